package steps

import (
	"math"
	"strings"
	"unicode"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func meanFloat(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// NormalizeName lowercases, strips punctuation and collapses whitespace so
// "Invoice-Approval " and "invoice approval" compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched or
// empty inputs.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// decay is the exponential half-life falloff used by freshness and recency.
func decay(ageDays, halfLifeDays float64) float64 {
	if ageDays <= 0 {
		return 1
	}
	if halfLifeDays <= 0 {
		return 0.5
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

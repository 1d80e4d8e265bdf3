package steps

import (
	"time"

	"github.com/google/uuid"

	"github.com/kmflow/kmflow-backend/internal/domain"
)

// ConsensusInput is everything the confidence formula needs, prefetched so
// the computation itself is pure and order-independent.
type ConsensusInput struct {
	Assertions       []*domain.Assertion
	FragmentQuality  map[uuid.UUID]float64    // fragment id -> composite quality
	ItemValidated    map[uuid.UUID]bool       // evidence item id -> SME approved
	ItemSourceDate   map[uuid.UUID]*time.Time // evidence item id -> source date
	GenuineConflicts int
	ExpectedSources  int
	HalfLifeDays     float64
	Now              time.Time
}

type ConsensusResult struct {
	Confidence  float64
	Coverage    float64
	Agreement   float64
	Quality     float64
	Reliability float64
	Recency     float64

	DistinctSources int
	Grade           string
	Brightness      string
}

// Confidence term weights. They sum to 1.
const (
	wCoverage    = 0.30
	wAgreement   = 0.25
	wQuality     = 0.20
	wReliability = 0.15
	wRecency     = 0.10
)

// ComputeConsensus scores an element from its active assertion set. With no
// assertions everything is zero, grade U, dark.
func ComputeConsensus(in ConsensusInput) ConsensusResult {
	if len(in.Assertions) == 0 {
		return ConsensusResult{Grade: domain.GradeU, Brightness: domain.BrightnessDark}
	}
	if in.ExpectedSources <= 0 {
		in.ExpectedSources = domain.DefaultExpectedSourceCount
	}

	items := map[uuid.UUID]bool{}
	var quality, reliability, recency []float64
	validated := false
	for _, a := range in.Assertions {
		items[a.EvidenceItemID] = true
		if q, ok := in.FragmentQuality[a.FragmentID]; ok {
			quality = append(quality, q)
		} else {
			quality = append(quality, neutralScore)
		}
		reliability = append(reliability, domain.AuthorityWeight(a.EvidenceCategory))
		recency = append(recency, FreshnessScore(in.ItemSourceDate[a.EvidenceItemID], in.Now, in.HalfLifeDays))
		if in.ItemValidated[a.EvidenceItemID] {
			validated = true
		}
	}
	distinct := len(items)

	n := len(in.Assertions)
	totalPairs := n * (n - 1) / 2
	agreement := 1.0
	if totalPairs > 0 {
		agreement = 1 - float64(in.GenuineConflicts)/float64(totalPairs)
	}

	r := ConsensusResult{
		Coverage:        clamp01(float64(distinct) / float64(in.ExpectedSources)),
		Agreement:       clamp01(agreement),
		Quality:         clamp01(meanFloat(quality)),
		Reliability:     clamp01(meanFloat(reliability)),
		Recency:         clamp01(meanFloat(recency)),
		DistinctSources: distinct,
	}
	r.Confidence = clamp01(wCoverage*r.Coverage +
		wAgreement*r.Agreement +
		wQuality*r.Quality +
		wReliability*r.Reliability +
		wRecency*r.Recency)

	r.Grade = gradeFor(distinct, validated, r.Confidence)
	r.Brightness = domain.BrightnessFor(r.Confidence, r.Grade)
	return r
}

func gradeFor(distinctSources int, validated bool, confidence float64) string {
	switch {
	case distinctSources >= 2 && validated:
		return domain.GradeA
	case distinctSources >= 2:
		return domain.GradeB
	case distinctSources == 1 && (validated || confidence >= domain.DimThreshold):
		return domain.GradeC
	case distinctSources == 1:
		return domain.GradeD
	default:
		return domain.GradeU
	}
}

package steps

import "github.com/kmflow/kmflow-backend/internal/domain"

// AliasIndex answers "do these two names mean the same thing" using the
// engagement's curated alias table. All lookups go through NormalizeName.
type AliasIndex struct {
	canonical map[string]string
}

func NewAliasIndex(rows []*domain.NamingAlias) *AliasIndex {
	idx := &AliasIndex{canonical: map[string]string{}}
	for _, row := range rows {
		canon := NormalizeName(row.Canonical)
		if canon == "" {
			continue
		}
		idx.canonical[canon] = canon
		for _, alias := range row.AliasList() {
			if a := NormalizeName(alias); a != "" {
				idx.canonical[a] = canon
			}
		}
	}
	return idx
}

// Canonical maps a name to its canonical normalized form, or to its own
// normalized form when no alias entry exists.
func (ai *AliasIndex) Canonical(name string) string {
	norm := NormalizeName(name)
	if ai == nil {
		return norm
	}
	if canon, ok := ai.canonical[norm]; ok {
		return canon
	}
	return norm
}

func (ai *AliasIndex) Same(a, b string) bool {
	return ai.Canonical(a) == ai.Canonical(b)
}

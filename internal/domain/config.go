package domain

import "encoding/json"

// EngagementConfig carries the per-engagement scoring knobs. Zero values are
// replaced with defaults by Normalize, so a partially specified JSON config
// behaves the same as an absent one.
type EngagementConfig struct {
	QualityWeights        map[string]float64 `json:"quality_weights,omitempty"`
	FreshnessHalfLifeDays float64            `json:"freshness_half_life_days,omitempty"`
	ExpectedSourceCount   int                `json:"expected_source_count,omitempty"`
	SimilarityMinScore    float64            `json:"similarity_min_score,omitempty"`
	SimilarityMinGap      float64            `json:"similarity_min_gap,omitempty"`
	FragmentQualityFloor  float64            `json:"fragment_quality_floor,omitempty"`
	ReviewSeverityFloor   float64            `json:"review_severity_floor,omitempty"`
}

const (
	DefaultFreshnessHalfLifeDays = 1095 // three years
	DefaultExpectedSourceCount   = 3
	DefaultSimilarityMinScore    = 0.885
	DefaultSimilarityMinGap      = 0.02
	DefaultFragmentQualityFloor  = 0.40
	DefaultReviewSeverityFloor   = 0.60
)

func DefaultEngagementConfig() EngagementConfig {
	cfg := EngagementConfig{}
	cfg.Normalize()
	return cfg
}

func (c *EngagementConfig) Normalize() {
	if c.FreshnessHalfLifeDays <= 0 {
		c.FreshnessHalfLifeDays = DefaultFreshnessHalfLifeDays
	}
	if c.ExpectedSourceCount <= 0 {
		c.ExpectedSourceCount = DefaultExpectedSourceCount
	}
	if c.SimilarityMinScore <= 0 {
		c.SimilarityMinScore = DefaultSimilarityMinScore
	}
	if c.SimilarityMinGap <= 0 {
		c.SimilarityMinGap = DefaultSimilarityMinGap
	}
	if c.FragmentQualityFloor <= 0 {
		c.FragmentQualityFloor = DefaultFragmentQualityFloor
	}
	if c.ReviewSeverityFloor <= 0 {
		c.ReviewSeverityFloor = DefaultReviewSeverityFloor
	}
}

// ConfigFor decodes the engagement's JSON config, falling back to defaults
// for anything unset or malformed.
func ConfigFor(e *Engagement) EngagementConfig {
	cfg := EngagementConfig{}
	if e != nil && len(e.Config) > 0 {
		_ = json.Unmarshal(e.Config, &cfg)
	}
	cfg.Normalize()
	return cfg
}

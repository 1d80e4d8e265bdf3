package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/modules/evidence/steps"
	"github.com/kmflow/kmflow-backend/internal/ontology"
	"github.com/kmflow/kmflow-backend/internal/platform/aiclient"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

// Extractor turns fragment content into claim candidates.
type Extractor interface {
	Extract(ctx context.Context, frag *domain.EvidenceFragment) ([]steps.Candidate, error)
	Name() string
	Version() string
}

// ---- rule-based extractor ----

// RuleExtractor recognizes a small set of declarative sentence shapes. It is
// the offline fallback when no model is configured, and the baseline the
// model extractor is compared against in tests.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor { return &RuleExtractor{} }

func (e *RuleExtractor) Name() string    { return "rules" }
func (e *RuleExtractor) Version() string { return "1.0.0" }

var (
	rolePat      = regexp.MustCompile(`(?i)^(.{3,60}?) is (?:performed|handled|approved|executed|completed) by (?:the )?(.{2,60})$`)
	seqAfterPat  = regexp.MustCompile(`(?i)^after (.{3,60}?),? (?:the )?(.{3,60}?) (?:begins|starts|happens|runs|is performed|follows)$`)
	seqBeforePat = regexp.MustCompile(`(?i)^(.{3,60}?) (?:precedes|comes before|happens before|occurs before) (?:the )?(.{3,60})$`)
	producePat   = regexp.MustCompile(`(?i)^(.{3,60}?) (?:produces|generates|creates|emits) (?:an? |the )?(.{2,60})$`)
	consumePat   = regexp.MustCompile(`(?i)^(.{3,60}?) (?:consumes|uses|takes|reads) (?:an? |the )?(.{2,60}?)(?: as input)?$`)
	rulePat      = regexp.MustCompile(`(?i)^(.{3,60}?) is governed by (?:the )?(.{2,60})$`)
	negatePat    = regexp.MustCompile(`(?i)^there (?:is|are) no (.{3,60}?)(?: step| activity)?$`)
)

const ruleConfidence = 0.6

func (e *RuleExtractor) Extract(_ context.Context, frag *domain.EvidenceFragment) ([]steps.Candidate, error) {
	var out []steps.Candidate
	for _, sentence := range splitSentences(frag.Content) {
		out = append(out, e.fromSentence(sentence)...)
	}
	return out, nil
}

func (e *RuleExtractor) fromSentence(s string) []steps.Candidate {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if m := rolePat.FindStringSubmatch(s); m != nil {
		return []steps.Candidate{activityClaim(m[1], domain.ClaimPayload{
			Kind:    domain.ClaimRole,
			Subject: steps.NormalizeName(m[1]),
			Object:  strings.TrimSpace(m[2]),
		}, domain.KindRole, s)}
	}
	if m := seqAfterPat.FindStringSubmatch(s); m != nil {
		// "after X, Y begins": Y follows X.
		return []steps.Candidate{activityClaim(m[2], domain.ClaimPayload{
			Kind:      domain.ClaimSequence,
			Subject:   steps.NormalizeName(m[2]),
			Object:    strings.TrimSpace(m[1]),
			Direction: domain.SeqFollows,
		}, domain.KindActivity, s)}
	}
	if m := seqBeforePat.FindStringSubmatch(s); m != nil {
		return []steps.Candidate{activityClaim(m[1], domain.ClaimPayload{
			Kind:      domain.ClaimSequence,
			Subject:   steps.NormalizeName(m[1]),
			Object:    strings.TrimSpace(m[2]),
			Direction: domain.SeqPrecedes,
		}, domain.KindActivity, s)}
	}
	if m := producePat.FindStringSubmatch(s); m != nil {
		return []steps.Candidate{activityClaim(m[1], domain.ClaimPayload{
			Kind:      domain.ClaimIO,
			Subject:   steps.NormalizeName(m[1]),
			Object:    strings.TrimSpace(m[2]),
			Direction: domain.IOProduces,
		}, domain.KindDataObject, s)}
	}
	if m := consumePat.FindStringSubmatch(s); m != nil {
		return []steps.Candidate{activityClaim(m[1], domain.ClaimPayload{
			Kind:      domain.ClaimIO,
			Subject:   steps.NormalizeName(m[1]),
			Object:    strings.TrimSpace(m[2]),
			Direction: domain.IOConsumes,
		}, domain.KindDataObject, s)}
	}
	if m := rulePat.FindStringSubmatch(s); m != nil {
		return []steps.Candidate{activityClaim(m[1], domain.ClaimPayload{
			Kind:     domain.ClaimRule,
			Subject:  steps.NormalizeName(m[1]),
			Object:   strings.TrimSpace(m[2]),
			RuleText: s,
		}, domain.KindPolicy, s)}
	}
	if m := negatePat.FindStringSubmatch(s); m != nil {
		return []steps.Candidate{activityClaim(m[1], domain.ClaimPayload{
			Kind:    domain.ClaimExistence,
			Subject: steps.NormalizeName(m[1]),
			Negated: true,
		}, "", s)}
	}
	return nil
}

func activityClaim(name string, claim domain.ClaimPayload, objectKind, span string) steps.Candidate {
	return steps.Candidate{
		Kind:       domain.KindActivity,
		Name:       strings.TrimSpace(name),
		ObjectKind: objectKind,
		Confidence: ruleConfidence,
		Span:       span,
		Claim:      claim,
	}
}

func splitSentences(content string) []string {
	return strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '\n' || r == ';'
	})
}

// ---- model extractor ----

// AIExtractor asks the chat model for candidates in one JSON-mode call.
type AIExtractor struct {
	client *aiclient.Client
	ont    *ontology.Store
	log    *logger.Logger
}

func NewAIExtractor(client *aiclient.Client, ont *ontology.Store, log *logger.Logger) *AIExtractor {
	return &AIExtractor{client: client, ont: ont, log: log.With("service", "AIExtractor")}
}

func (e *AIExtractor) Name() string    { return "openai" }
func (e *AIExtractor) Version() string { return "1.0.0" }

const extractSystemPrompt = `You extract process knowledge from consulting evidence.
Return JSON: {"candidates": [{"kind": "...", "name": "...", "object_kind": "...",
"confidence": 0.0, "span": "...", "claim": {"kind": "existence|sequence|role|rule|io",
"subject": "...", "object": "...", "direction": "precedes|follows|produces|consumes",
"rule_text": "...", "counterpart": "...", "negated": false}}]}.
Element kinds allowed: %s. Only report what the text states; never infer.`

func (e *AIExtractor) Extract(ctx context.Context, frag *domain.EvidenceFragment) ([]steps.Candidate, error) {
	kinds := strings.Join(e.ont.Current().ExtractableKinds(), ", ")
	raw, err := e.client.CompleteJSON(ctx, fmt.Sprintf(extractSystemPrompt, kinds), frag.Content)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Candidates []steps.Candidate `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("extractor: bad model output: %w", err)
	}
	return parsed.Candidates, nil
}

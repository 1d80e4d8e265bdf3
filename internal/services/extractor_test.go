package services

import (
	"context"
	"testing"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/modules/evidence/steps"
)

func extractOne(t *testing.T, content string) steps.Candidate {
	t.Helper()
	got, err := NewRuleExtractor().Extract(context.Background(), &domain.EvidenceFragment{Content: content})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one candidate from %q, got %d", content, len(got))
	}
	return got[0]
}

func TestRuleExtractorRole(t *testing.T) {
	c := extractOne(t, "Invoice approval is performed by the Finance Controller.")
	if c.Claim.Kind != domain.ClaimRole {
		t.Fatalf("expected role claim, got %s", c.Claim.Kind)
	}
	if c.Claim.Object != "Finance Controller" {
		t.Fatalf("role object wrong: %q", c.Claim.Object)
	}
	if c.ObjectKind != domain.KindRole {
		t.Fatalf("object kind should be role, got %s", c.ObjectKind)
	}
}

func TestRuleExtractorSequenceAfter(t *testing.T) {
	c := extractOne(t, "After invoice approval, payment posting begins.")
	if c.Claim.Kind != domain.ClaimSequence {
		t.Fatalf("expected sequence claim, got %s", c.Claim.Kind)
	}
	// "after X, Y begins" anchors on Y following X.
	if c.Name != "payment posting" || c.Claim.Direction != domain.SeqFollows {
		t.Fatalf("wrong anchor or direction: name=%q dir=%q", c.Name, c.Claim.Direction)
	}
	if c.Claim.Object != "invoice approval" {
		t.Fatalf("counterpart wrong: %q", c.Claim.Object)
	}
}

func TestRuleExtractorSequenceBefore(t *testing.T) {
	c := extractOne(t, "Invoice approval precedes payment posting.")
	if c.Claim.Kind != domain.ClaimSequence || c.Claim.Direction != domain.SeqPrecedes {
		t.Fatalf("expected precedes, got %+v", c.Claim)
	}
	if c.Name != "Invoice approval" {
		t.Fatalf("anchor wrong: %q", c.Name)
	}
}

func TestRuleExtractorIO(t *testing.T) {
	produce := extractOne(t, "Payment posting produces a remittance advice.")
	if produce.Claim.Kind != domain.ClaimIO || produce.Claim.Direction != domain.IOProduces {
		t.Fatalf("expected produces, got %+v", produce.Claim)
	}
	if produce.Claim.Object != "remittance advice" {
		t.Fatalf("artifact wrong: %q", produce.Claim.Object)
	}

	consume := extractOne(t, "Payment posting consumes the approved invoice.")
	if consume.Claim.Direction != domain.IOConsumes {
		t.Fatalf("expected consumes, got %+v", consume.Claim)
	}
}

func TestRuleExtractorRule(t *testing.T) {
	c := extractOne(t, "Invoice approval is governed by the SOX approval policy.")
	if c.Claim.Kind != domain.ClaimRule {
		t.Fatalf("expected rule claim, got %s", c.Claim.Kind)
	}
	if c.Claim.Object != "SOX approval policy" {
		t.Fatalf("policy wrong: %q", c.Claim.Object)
	}
	if c.Claim.RuleText == "" {
		t.Fatalf("rule text should carry the sentence")
	}
}

func TestRuleExtractorNegation(t *testing.T) {
	c := extractOne(t, "There is no manual override step.")
	if c.Claim.Kind != domain.ClaimExistence || !c.Claim.Negated {
		t.Fatalf("expected negated existence, got %+v", c.Claim)
	}
	if c.Name != "manual override" {
		t.Fatalf("subject should drop the trailing noun, got %q", c.Name)
	}
}

func TestRuleExtractorSplitsSentences(t *testing.T) {
	frag := &domain.EvidenceFragment{Content: "Invoice approval precedes payment posting. Payment posting produces a remittance advice.\nPlain narrative text with no claim shape."}
	got, err := NewRuleExtractor().Extract(context.Background(), frag)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two candidates across sentences, got %d", len(got))
	}
	for _, c := range got {
		if c.Confidence != ruleConfidence {
			t.Fatalf("rule candidates carry the fixed confidence, got %v", c.Confidence)
		}
	}
}

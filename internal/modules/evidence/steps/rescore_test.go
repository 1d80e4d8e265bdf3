package steps

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/redisbus"
)

func TestPublishReviewEventsSeverityFloor(t *testing.T) {
	bus := &fakeBus{}
	d := &Deps{Review: bus}
	el := &domain.ProcessElement{ID: uuid.New(), EngagementID: uuid.New(), Name: "Approve Invoice"}
	cfg := domain.DefaultEngagementConfig()

	severe := &domain.Contradiction{
		ID:            uuid.New(),
		MismatchType:  domain.MismatchExistence,
		Severity:      0.82,
		SeverityLabel: domain.SeverityCritical,
	}
	minor := &domain.Contradiction{
		ID:            uuid.New(),
		MismatchType:  domain.MismatchRole,
		Severity:      0.30,
		SeverityLabel: domain.SeverityLow,
	}

	publishReviewEvents(context.Background(), d, cfg, el, []*domain.Contradiction{severe, minor}, nil)

	if len(bus.events) != 1 {
		t.Fatalf("only contradictions above the floor surface for review, got %d events", len(bus.events))
	}
	if bus.events[0].Type != redisbus.EventContradiction {
		t.Fatalf("unexpected event type %s", bus.events[0].Type)
	}
	if bus.events[0].EngagementID != el.EngagementID.String() {
		t.Fatalf("event should target the engagement channel")
	}
}

func TestPublishReviewEventsGaps(t *testing.T) {
	bus := &fakeBus{}
	d := &Deps{Review: bus}
	el := &domain.ProcessElement{ID: uuid.New(), EngagementID: uuid.New(), Name: "Approve Invoice"}

	publishReviewEvents(context.Background(), d, domain.DefaultEngagementConfig(), el, nil,
		[]string{domain.GapSingleSource, domain.GapMergeReview})

	if len(bus.events) != 2 {
		t.Fatalf("every opened gap publishes, got %d events", len(bus.events))
	}
	if bus.events[0].Type != redisbus.EventGapOpened {
		t.Fatalf("expected gap_opened first, got %s", bus.events[0].Type)
	}
	if bus.events[1].Type != redisbus.EventMergeReview {
		t.Fatalf("merge review gaps carry their own event type, got %s", bus.events[1].Type)
	}
}

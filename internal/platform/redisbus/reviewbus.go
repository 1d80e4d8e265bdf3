package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kmflow/kmflow-backend/internal/platform/envutil"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

// Review event types pushed to consultants.
const (
	EventContradiction = "contradiction_opened"
	EventGapOpened     = "gap_opened"
	EventGapClosed     = "gap_closed"
	EventMergeReview   = "merge_candidate"
)

type Event struct {
	Type         string          `json:"type"`
	EngagementID string          `json:"engagement_id"`
	ElementID    string          `json:"element_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Bus fans review events out to whoever is listening on the engagement
// channel. The pipeline treats publishing as best-effort.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type redisBus struct {
	rdb    *redis.Client
	prefix string
	log    *logger.Logger
}

// NewFromEnv returns a NopBus when REDIS_ADDR is unset.
func NewFromEnv(log *logger.Logger) (Bus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return NopBus{}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: envutil.Str("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisbus: ping: %w", err)
	}
	return &redisBus{
		rdb:    rdb,
		prefix: envutil.Str("REDIS_REVIEW_PREFIX", "kmflow:review:"),
		log:    log.With("client", "ReviewBus"),
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, ev Event) error {
	if ev.EngagementID == "" {
		return fmt.Errorf("redisbus: event missing engagement id")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redisbus: marshal event: %w", err)
	}
	channel := b.prefix + ev.EngagementID
	if err := b.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("redisbus: publish %s: %w", ev.Type, err)
	}
	return nil
}

func (b *redisBus) Close() error { return b.rdb.Close() }

type NopBus struct{}

func (NopBus) Publish(context.Context, Event) error { return nil }
func (NopBus) Close() error                         { return nil }

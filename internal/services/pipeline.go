package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/modules/evidence/steps"
	"github.com/kmflow/kmflow-backend/internal/observability"
	apperrors "github.com/kmflow/kmflow-backend/internal/pkg/errors"
	"github.com/kmflow/kmflow-backend/internal/platform/envutil"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
	"github.com/kmflow/kmflow-backend/internal/repos"
)

const (
	workerMaxAttempts  = 5
	workerRetryDelay   = 30 * time.Second
	workerStaleRunning = 2 * time.Minute
	workerPollInterval = 2 * time.Second
	heartbeatInterval  = 30 * time.Second
	extractionTimeout  = 90 * time.Second
)

// PipelineService owns the evidence lifecycle: ingest, queue, score,
// extract, assert, rescore.
type PipelineService interface {
	IngestItem(ctx context.Context, item *domain.EvidenceItem, fragments []*domain.EvidenceFragment) (*domain.EvidenceItem, bool, error)
	ProcessFragment(ctx context.Context, fragmentID uuid.UUID) error
	ReplaceFragment(ctx context.Context, oldFragmentID uuid.UUID, replacement *domain.EvidenceFragment) (*domain.EvidenceFragment, error)
	ValidateItem(ctx context.Context, itemID uuid.UUID, reviewer string, approved bool) error
	ResolveContradiction(ctx context.Context, contradictionID uuid.UUID, resolvedBy, note string, dismiss bool) error
	StartWorker(ctx context.Context)
}

type pipelineService struct {
	deps      *steps.Deps
	jobs      repos.FragmentJobRepo
	extractor Extractor
	metrics   *observability.Metrics
	log       *logger.Logger
}

func NewPipelineService(deps *steps.Deps, jobs repos.FragmentJobRepo, extractor Extractor, metrics *observability.Metrics, log *logger.Logger) PipelineService {
	return &pipelineService{
		deps:      deps,
		jobs:      jobs,
		extractor: extractor,
		metrics:   metrics,
		log:       log.With("service", "PipelineService"),
	}
}

// IngestItem registers an evidence item and its parsed fragments, deduping
// on content hash: a re-upload of identical bytes returns the existing item
// and enqueues nothing. The second return reports whether the item was new.
func (s *pipelineService) IngestItem(ctx context.Context, item *domain.EvidenceItem, fragments []*domain.EvidenceFragment) (*domain.EvidenceItem, bool, error) {
	if item.EngagementID == uuid.Nil {
		return nil, false, apperrors.InvalidArgumentf("evidence item missing engagement")
	}
	if !domain.KnownCategory(item.Category) {
		return nil, false, apperrors.InvalidArgumentf("unknown evidence category %q", item.Category)
	}
	if item.ContentHash == "" {
		item.ContentHash = hashFragments(fragments)
	}

	existing, err := s.deps.Items.GetByContentHash(ctx, nil, item.EngagementID, item.ContentHash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.log.Info("duplicate evidence item skipped", "item_id", existing.ID, "content_hash", item.ContentHash)
		return existing, false, nil
	}

	created, err := s.deps.Items.Create(ctx, nil, item)
	if err != nil {
		return nil, false, err
	}
	for _, f := range fragments {
		f.EngagementID = created.EngagementID
		f.EvidenceItemID = created.ID
	}
	if _, err := s.deps.Fragments.Create(ctx, nil, fragments); err != nil {
		return nil, false, err
	}
	for _, f := range fragments {
		if _, err := s.jobs.Enqueue(ctx, nil, created.EngagementID, f.ID); err != nil {
			return nil, false, err
		}
	}
	s.log.Info("evidence item ingested", "item_id", created.ID, "fragments", len(fragments))
	return created, true, nil
}

func hashFragments(fragments []*domain.EvidenceFragment) string {
	h := sha256.New()
	for _, f := range fragments {
		h.Write([]byte(f.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ProcessFragment runs the full pipeline for one fragment. Safe to replay:
// quality scoring overwrites, assertion writes dedupe on claim hash, and
// rescoring converges on the active set.
func (s *pipelineService) ProcessFragment(ctx context.Context, fragmentID uuid.UUID) error {
	now := time.Now()
	d := s.deps

	frag, err := d.Fragments.GetByID(ctx, nil, fragmentID)
	if err != nil {
		return err
	}
	if frag == nil {
		return apperrors.NotFoundf("fragment %s", fragmentID)
	}
	if frag.SupersededBy != nil {
		s.log.Info("skipping superseded fragment", "fragment_id", fragmentID)
		return nil
	}
	item, err := d.Items.GetByID(ctx, nil, frag.EvidenceItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return apperrors.NotFoundf("evidence item %s", frag.EvidenceItemID)
	}
	engagement, err := d.Engagements.GetByID(ctx, nil, frag.EngagementID)
	if err != nil {
		return err
	}
	cfg := domain.ConfigFor(engagement)

	scores, err := steps.ScoreFragment(ctx, d, item, frag, cfg, now)
	if err != nil {
		return fmt.Errorf("score fragment: %w", err)
	}
	// Weak fragments still contribute, but their assertions stay
	// provisional until stronger evidence or an SME confirms the element.
	provisional := scores.Composite < cfg.FragmentQualityFloor

	exCtx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()
	candidates, err := s.extractor.Extract(exCtx, frag)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	for i := range candidates {
		if candidates[i].ObjectKind == "" {
			candidates[i].ObjectKind = steps.DefaultObjectKind(candidates[i].Claim)
		}
	}
	ont := d.Ontology.Current()
	valid, rejected := steps.ValidateCandidates(ont, candidates)
	if len(valid) == 0 && len(rejected) == 0 {
		s.log.Info("fragment produced no candidates", "fragment_id", frag.ID)
		return nil
	}

	var vectors [][]float32
	if len(valid) > 0 {
		names := make([]string, len(valid))
		for i, c := range valid {
			names[i] = c.Name
		}
		if vectors, err = d.Embedder.Embed(ctx, names); err != nil {
			return fmt.Errorf("embed: %w", err)
		}
	}

	aliasRows, err := d.Aliases.GetByEngagement(ctx, nil, frag.EngagementID)
	if err != nil {
		return err
	}
	aliases := steps.NewAliasIndex(aliasRows)

	// One transaction for everything this fragment writes: element
	// creation, merge flags and the assertion set commit together or not
	// at all, so a canceled job cannot leave a partial claim set behind.
	var written steps.WriteResult
	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rejected) > 0 {
			if uerr := d.Fragments.UpdateFields(ctx, tx, frag.ID, map[string]interface{}{
				"rejections": domain.MustJSON(rejected),
			}); uerr != nil {
				return uerr
			}
		}

		var resolvedClaims []steps.ResolvedClaim
		for i, c := range valid {
			res, rerr := steps.ResolveElement(ctx, d, tx, aliases, frag.EngagementID, c.Kind, c.Name, vectors[i], cfg)
			if rerr != nil {
				return fmt.Errorf("resolve %q: %w", c.Name, rerr)
			}
			if res.Created && res.MergeCandidate {
				if merr := steps.MarkMergeReview(ctx, d, tx, res.Element, now); merr != nil {
					return merr
				}
			}
			claim := c.Claim
			claim.Subject = res.Element.NameNorm
			resolvedClaims = append(resolvedClaims, steps.ResolvedClaim{
				ElementID:     res.Element.ID,
				Claim:         claim,
				Confidence:    c.Confidence,
				Provisional:   provisional,
				EffectiveFrom: item.SourceDate,
				ExtractorName: s.extractor.Name(),
				ExtractorVer:  s.extractor.Version(),
			})
		}

		w, werr := steps.WriteAssertions(ctx, d, tx, item, frag, resolvedClaims, now)
		if werr != nil {
			return fmt.Errorf("write assertions: %w", werr)
		}
		written = w
		return nil
	})
	if err != nil {
		return err
	}
	if len(valid) == 0 {
		s.log.Info("fragment produced no valid candidates", "fragment_id", frag.ID, "rejected", len(rejected))
		return nil
	}
	if s.metrics != nil {
		s.metrics.AssertionsWritten.Add(float64(len(written.Created)))
	}

	for _, elementID := range written.Touched {
		start := time.Now()
		outcome, err := steps.RescoreElement(ctx, d, cfg, elementID, now)
		if err != nil {
			return fmt.Errorf("rescore %s: %w", elementID, err)
		}
		if s.metrics != nil {
			s.metrics.RescoreDuration.Observe(time.Since(start).Seconds())
			for _, mt := range outcome.NewContradictionTypes {
				s.metrics.Contradictions.WithLabelValues(mt).Inc()
			}
			for _, gk := range outcome.OpenedGapKinds {
				s.metrics.GapsOpened.WithLabelValues(gk).Inc()
			}
		}
	}

	s.log.Info("fragment processed",
		"fragment_id", frag.ID,
		"quality", scores.Composite,
		"assertions_created", len(written.Created),
		"assertions_skipped", written.Skipped,
		"elements_touched", len(written.Touched))
	return nil
}

// ReplaceFragment supersedes an earlier parse with a corrected one: the old
// fragment's assertions are retired, the replacement is enqueued, and every
// element the old fragment touched is rescored without it.
func (s *pipelineService) ReplaceFragment(ctx context.Context, oldFragmentID uuid.UUID, replacement *domain.EvidenceFragment) (*domain.EvidenceFragment, error) {
	d := s.deps
	old, err := d.Fragments.GetByID(ctx, nil, oldFragmentID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, apperrors.NotFoundf("fragment %s", oldFragmentID)
	}
	if old.SupersededBy != nil {
		return nil, apperrors.InvalidArgumentf("fragment %s already superseded", oldFragmentID)
	}

	retired, err := d.Assertions.GetActiveByFragmentID(ctx, nil, old.ID)
	if err != nil {
		return nil, err
	}

	replacement.EngagementID = old.EngagementID
	replacement.EvidenceItemID = old.EvidenceItemID
	created, err := d.Fragments.Create(ctx, nil, []*domain.EvidenceFragment{replacement})
	if err != nil {
		return nil, err
	}
	newFrag := created[0]

	if err := d.Fragments.MarkSuperseded(ctx, nil, old.ID, newFrag.ID); err != nil {
		return nil, err
	}
	if _, err := d.Assertions.SupersedeByFragment(ctx, nil, old.ID, newFrag.ID); err != nil {
		return nil, err
	}
	if _, err := s.jobs.Enqueue(ctx, nil, old.EngagementID, newFrag.ID); err != nil {
		return nil, err
	}

	engagement, err := d.Engagements.GetByID(ctx, nil, old.EngagementID)
	if err != nil {
		return nil, err
	}
	cfg := domain.ConfigFor(engagement)
	now := time.Now()
	for _, elementID := range distinctElements(retired) {
		if _, err := steps.RescoreElement(ctx, d, cfg, elementID, now); err != nil {
			return nil, err
		}
	}
	return newFrag, nil
}

// ValidateItem records an SME verdict on an evidence item and rescores
// every element resting on it: grades and brightness can move in both
// directions.
func (s *pipelineService) ValidateItem(ctx context.Context, itemID uuid.UUID, reviewer string, approved bool) error {
	d := s.deps
	item, err := d.Items.GetByID(ctx, nil, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return apperrors.NotFoundf("evidence item %s", itemID)
	}
	status := domain.ValidationRejected
	if approved {
		status = domain.ValidationApproved
	}
	now := time.Now()
	if err := d.Items.UpdateFields(ctx, nil, itemID, map[string]interface{}{
		"validation_status": status,
		"validated_by":      reviewer,
		"validated_at":      now,
	}); err != nil {
		return err
	}

	affected, err := d.Assertions.GetActiveByEvidenceItemID(ctx, nil, itemID)
	if err != nil {
		return err
	}
	engagement, err := d.Engagements.GetByID(ctx, nil, item.EngagementID)
	if err != nil {
		return err
	}
	cfg := domain.ConfigFor(engagement)
	for _, elementID := range distinctElements(affected) {
		if _, err := steps.RescoreElement(ctx, d, cfg, elementID, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *pipelineService) ResolveContradiction(ctx context.Context, contradictionID uuid.UUID, resolvedBy, note string, dismiss bool) error {
	status := domain.ContradictionResolved
	if dismiss {
		status = domain.ContradictionDismissed
	}
	now := time.Now()
	return s.deps.Contradictions.UpdateFields(ctx, nil, contradictionID, map[string]interface{}{
		"status":          status,
		"resolved_by":     resolvedBy,
		"resolution_note": note,
		"resolved_at":     now,
	})
}

func distinctElements(assertions []*domain.Assertion) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, a := range assertions {
		if !seen[a.ElementID] {
			seen[a.ElementID] = true
			out = append(out, a.ElementID)
		}
	}
	return out
}

// StartWorker runs the fragment job loop until ctx is cancelled. Multiple
// workers, in or across processes, share the queue through SKIP LOCKED
// claims.
func (s *pipelineService) StartWorker(ctx context.Context) {
	concurrency := envutil.Int("PIPELINE_WORKER_CONCURRENCY", 4)
	s.log.Info("pipeline worker starting", "concurrency", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error { return s.workerLoop(gctx) })
	}
	g.Go(func() error { return s.queueDepthLoop(gctx) })
	_ = g.Wait()
	s.log.Info("pipeline worker stopped")
}

func (s *pipelineService) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		job, err := s.jobs.ClaimNextRunnable(ctx, nil, workerMaxAttempts, workerRetryDelay, workerStaleRunning)
		if err != nil {
			s.log.Error("job claim failed", "error", err)
			sleepCtx(ctx, workerPollInterval)
			continue
		}
		if job == nil {
			sleepCtx(ctx, workerPollInterval)
			continue
		}
		s.runJob(ctx, job.ID, job.FragmentID)
	}
}

func (s *pipelineService) runJob(ctx context.Context, jobID, fragmentID uuid.UUID) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := s.jobs.Heartbeat(hbCtx, nil, jobID); err != nil {
					s.log.Warn("heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()

	if err := s.ProcessFragment(ctx, fragmentID); err != nil {
		s.log.Error("fragment job failed", "job_id", jobID, "fragment_id", fragmentID, "error", err)
		if merr := s.jobs.MarkFailed(ctx, nil, jobID, err.Error(), workerMaxAttempts); merr != nil {
			s.log.Error("mark failed errored", "job_id", jobID, "error", merr)
		}
		if s.metrics != nil {
			s.metrics.FragmentsProcessed.WithLabelValues("failed").Inc()
		}
		return
	}
	if err := s.jobs.MarkSucceeded(ctx, nil, jobID); err != nil {
		s.log.Error("mark succeeded errored", "job_id", jobID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.FragmentsProcessed.WithLabelValues("succeeded").Inc()
	}
}

func (s *pipelineService) queueDepthLoop(ctx context.Context) error {
	if s.metrics == nil {
		return nil
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.jobs.CountByStatus(ctx, nil, domain.JobQueued)
			if err != nil {
				continue
			}
			s.metrics.QueueDepth.Set(float64(n))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

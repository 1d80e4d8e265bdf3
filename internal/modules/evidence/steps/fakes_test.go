package steps

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	apperrors "github.com/kmflow/kmflow-backend/internal/pkg/errors"
	"github.com/kmflow/kmflow-backend/internal/platform/redisbus"
)

type fakeBus struct {
	events []redisbus.Event
}

func (f *fakeBus) Publish(_ context.Context, ev redisbus.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeBus) Close() error { return nil }

// In-memory repo fakes. They ignore the tx parameter the way the real repos
// fall back to their own handle.

type fakeElementRepo struct {
	rows map[uuid.UUID]*domain.ProcessElement
}

func newFakeElementRepo() *fakeElementRepo {
	return &fakeElementRepo{rows: map[uuid.UUID]*domain.ProcessElement{}}
}

func (f *fakeElementRepo) Create(_ context.Context, _ *gorm.DB, e *domain.ProcessElement) (*domain.ProcessElement, error) {
	for _, row := range f.rows {
		if row.EngagementID == e.EngagementID && row.Kind == e.Kind && row.NameNorm == e.NameNorm {
			return nil, apperrors.InvalidArgumentf("duplicate element %s", e.NameNorm)
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	f.rows[e.ID] = e
	return e, nil
}

func (f *fakeElementRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*domain.ProcessElement, error) {
	return f.rows[id], nil
}

func (f *fakeElementRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*domain.ProcessElement, error) {
	var out []*domain.ProcessElement
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeElementRepo) GetByNameNorm(_ context.Context, _ *gorm.DB, engagementID uuid.UUID, kind, nameNorm string) (*domain.ProcessElement, error) {
	for _, row := range f.rows {
		if row.EngagementID == engagementID && row.Kind == kind && row.NameNorm == nameNorm {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeElementRepo) GetByEngagementAndKind(_ context.Context, _ *gorm.DB, engagementID uuid.UUID, kind string) ([]*domain.ProcessElement, error) {
	var out []*domain.ProcessElement
	for _, row := range f.rows {
		if row.EngagementID == engagementID && row.Kind == kind {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeElementRepo) GetByEngagement(_ context.Context, _ *gorm.DB, engagementID uuid.UUID) ([]*domain.ProcessElement, error) {
	var out []*domain.ProcessElement
	for _, row := range f.rows {
		if row.EngagementID == engagementID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeElementRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	row, ok := f.rows[id]
	if !ok {
		return nil
	}
	if v, ok := updates["merge_candidate"].(bool); ok {
		row.MergeCandidate = v
	}
	if v, ok := updates["confidence"].(float64); ok {
		row.Confidence = v
	}
	if v, ok := updates["brightness"].(string); ok {
		row.Brightness = v
	}
	if v, ok := updates["evidence_grade"].(string); ok {
		row.EvidenceGrade = v
	}
	return nil
}

type fakeAssertionRepo struct {
	rows   map[uuid.UUID]*domain.Assertion
	lastTx *gorm.DB
}

func newFakeAssertionRepo() *fakeAssertionRepo {
	return &fakeAssertionRepo{rows: map[uuid.UUID]*domain.Assertion{}}
}

func (f *fakeAssertionRepo) Create(_ context.Context, tx *gorm.DB, a *domain.Assertion) (*domain.Assertion, error) {
	f.lastTx = tx
	for _, row := range f.rows {
		if row.FragmentID == a.FragmentID && row.ClaimHash == a.ClaimHash {
			return nil, apperrors.InvalidArgumentf("duplicate assertion")
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.rows[a.ID] = a
	return a, nil
}

func (f *fakeAssertionRepo) GetByFragmentAndHash(_ context.Context, tx *gorm.DB, fragmentID uuid.UUID, claimHash string) (*domain.Assertion, error) {
	f.lastTx = tx
	for _, row := range f.rows {
		if row.FragmentID == fragmentID && row.ClaimHash == claimHash {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeAssertionRepo) GetActiveByElementID(_ context.Context, _ *gorm.DB, elementID uuid.UUID) ([]*domain.Assertion, error) {
	var out []*domain.Assertion
	for _, row := range f.rows {
		if row.ElementID == elementID && row.SupersededBy == nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeAssertionRepo) GetActiveByFragmentID(_ context.Context, _ *gorm.DB, fragmentID uuid.UUID) ([]*domain.Assertion, error) {
	var out []*domain.Assertion
	for _, row := range f.rows {
		if row.FragmentID == fragmentID && row.SupersededBy == nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeAssertionRepo) GetActiveByEvidenceItemID(_ context.Context, _ *gorm.DB, itemID uuid.UUID) ([]*domain.Assertion, error) {
	var out []*domain.Assertion
	for _, row := range f.rows {
		if row.EvidenceItemID == itemID && row.SupersededBy == nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeAssertionRepo) Supersede(_ context.Context, _ *gorm.DB, id, byID uuid.UUID) error {
	if row, ok := f.rows[id]; ok && row.SupersededBy == nil {
		row.SupersededBy = &byID
	}
	return nil
}

func (f *fakeAssertionRepo) SupersedeByFragment(_ context.Context, _ *gorm.DB, fragmentID, byFragmentID uuid.UUID) (int64, error) {
	var n int64
	for _, row := range f.rows {
		if row.FragmentID == fragmentID && row.SupersededBy == nil {
			id := byFragmentID
			row.SupersededBy = &id
			n++
		}
	}
	return n, nil
}

type fakeGapRepo struct {
	open map[string]*domain.EvidenceGap // elementID|kind
}

func newFakeGapRepo() *fakeGapRepo {
	return &fakeGapRepo{open: map[string]*domain.EvidenceGap{}}
}

func gapKey(elementID uuid.UUID, kind string) string { return elementID.String() + "|" + kind }

func (f *fakeGapRepo) Open(_ context.Context, _ *gorm.DB, g *domain.EvidenceGap) (*domain.EvidenceGap, bool, error) {
	key := gapKey(g.ElementID, g.GapKind)
	if existing, ok := f.open[key]; ok && existing.Status == domain.GapOpen {
		return existing, false, nil
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.Status = domain.GapOpen
	f.open[key] = g
	return g, true, nil
}

func (f *fakeGapRepo) Close(_ context.Context, _ *gorm.DB, elementID uuid.UUID, gapKind string) (bool, error) {
	key := gapKey(elementID, gapKind)
	if existing, ok := f.open[key]; ok && existing.Status == domain.GapOpen {
		existing.Status = domain.GapClosed
		return true, nil
	}
	return false, nil
}

func (f *fakeGapRepo) GetOpenByElementID(_ context.Context, _ *gorm.DB, elementID uuid.UUID) ([]*domain.EvidenceGap, error) {
	var out []*domain.EvidenceGap
	for _, g := range f.open {
		if g.ElementID == elementID && g.Status == domain.GapOpen {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGapRepo) GetOpenByEngagement(_ context.Context, _ *gorm.DB, engagementID uuid.UUID) ([]*domain.EvidenceGap, error) {
	var out []*domain.EvidenceGap
	for _, g := range f.open {
		if g.EngagementID == engagementID && g.Status == domain.GapOpen {
			out = append(out, g)
		}
	}
	return out, nil
}

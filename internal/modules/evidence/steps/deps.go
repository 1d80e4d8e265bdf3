package steps

import (
	"context"

	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/ontology"
	"github.com/kmflow/kmflow-backend/internal/pkg/keylock"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
	"github.com/kmflow/kmflow-backend/internal/platform/neo4jdb"
	"github.com/kmflow/kmflow-backend/internal/platform/redisbus"
	"github.com/kmflow/kmflow-backend/internal/repos"
)

// Embedder produces one vector per input text. The OpenAI client satisfies
// this; tests and offline runs use a deterministic local fallback.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Deps is the bag of collaborators every pipeline step draws from. Graph may
// be nil (mirroring off) and Review may be a NopBus.
type Deps struct {
	Log *logger.Logger
	DB  *gorm.DB

	Engagements    repos.EngagementRepo
	Items          repos.EvidenceItemRepo
	Fragments      repos.EvidenceFragmentRepo
	Elements       repos.ProcessElementRepo
	Assertions     repos.AssertionRepo
	Contradictions repos.ContradictionRepo
	Gaps           repos.EvidenceGapRepo
	Aliases        repos.NamingAliasRepo

	Graph    *neo4jdb.Client
	Ontology *ontology.Store
	Embedder Embedder
	Review   redisbus.Bus
	Locks    *keylock.KeyLock
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kmflow/kmflow-backend/internal/data/graph"
	"github.com/kmflow/kmflow-backend/internal/db"
	"github.com/kmflow/kmflow-backend/internal/modules/evidence/steps"
	"github.com/kmflow/kmflow-backend/internal/observability"
	"github.com/kmflow/kmflow-backend/internal/ontology"
	"github.com/kmflow/kmflow-backend/internal/pkg/keylock"
	"github.com/kmflow/kmflow-backend/internal/platform/aiclient"
	"github.com/kmflow/kmflow-backend/internal/platform/envutil"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
	"github.com/kmflow/kmflow-backend/internal/platform/neo4jdb"
	"github.com/kmflow/kmflow-backend/internal/platform/redisbus"
	"github.com/kmflow/kmflow-backend/internal/repos"
	"github.com/kmflow/kmflow-backend/internal/services"
)

func main() {
	log, err := logger.New(envutil.Str("APP_ENV", "dev"))
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("postgres migration failed", "error", err)
	}

	// The ontology gates every graph write; a broken definition is fatal.
	var ont *ontology.Ontology
	if path := envutil.Str("ONTOLOGY_PATH", ""); path != "" {
		ont, err = ontology.LoadFile(path)
	} else {
		ont, err = ontology.LoadDefault()
	}
	if err != nil {
		log.Fatal("ontology load failed", "error", err)
	}
	ontStore := ontology.NewStore(ont)
	log.Info("ontology loaded", "version", ont.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("neo4j init failed", "error", err)
	}
	if neo != nil {
		defer neo.Close(ctx)
		graph.EnsureSchema(ctx, neo, ont, log)
	} else {
		log.Warn("NEO4J_URI unset, graph mirroring disabled")
	}

	bus, err := redisbus.NewFromEnv(log)
	if err != nil {
		log.Fatal("redis init failed", "error", err)
	}
	defer bus.Close()

	ai, err := aiclient.NewFromEnv(log)
	if err != nil {
		log.Fatal("openai init failed", "error", err)
	}

	gdb := pg.DB()
	deps := &steps.Deps{
		Log:            log,
		DB:             gdb,
		Engagements:    repos.NewEngagementRepo(gdb, log),
		Items:          repos.NewEvidenceItemRepo(gdb, log),
		Fragments:      repos.NewEvidenceFragmentRepo(gdb, log),
		Elements:       repos.NewProcessElementRepo(gdb, log),
		Assertions:     repos.NewAssertionRepo(gdb, log),
		Contradictions: repos.NewContradictionRepo(gdb, log),
		Gaps:           repos.NewEvidenceGapRepo(gdb, log),
		Aliases:        repos.NewNamingAliasRepo(gdb, log),
		Graph:          neo,
		Ontology:       ontStore,
		Review:         bus,
		Locks:          keylock.New(),
	}

	var extractor services.Extractor
	if ai != nil {
		deps.Embedder = ai
		extractor = services.NewAIExtractor(ai, ontStore, log)
	} else {
		log.Warn("OPENAI_API_KEY unset, using rule extractor and hash embeddings")
		deps.Embedder = services.NewHashEmbedder()
		extractor = services.NewRuleExtractor()
	}

	metrics := observability.NewMetrics()
	go observability.Serve(envutil.Str("METRICS_ADDR", ":9090"), log)

	jobs := repos.NewFragmentJobRepo(gdb, log)
	pipeline := services.NewPipelineService(deps, jobs, extractor, metrics, log)
	pipeline.StartWorker(ctx)
}

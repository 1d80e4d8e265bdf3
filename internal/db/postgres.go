package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kmflow/kmflow-backend/internal/domain"
	"github.com/kmflow/kmflow-backend/internal/platform/envutil"
	"github.com/kmflow/kmflow-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := envutil.Str("POSTGRES_HOST", "localhost")
	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "kmflow")
	sslmode := envutil.Str("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&domain.Engagement{},
		&domain.EvidenceItem{},
		&domain.EvidenceFragment{},
		&domain.ProcessElement{},
		&domain.Assertion{},
		&domain.Contradiction{},
		&domain.EvidenceGap{},
		&domain.NamingAlias{},
		&domain.FragmentJob{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

// Package bootstrap wires config into concrete adapters for the binaries.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/tor-evaluator/internal/config"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/ai/openai"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/cache"
	mysqlp "github.com/bryanwahyu/tor-evaluator/internal/infra/db/mysql"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/db/postgres"
	"github.com/bryanwahyu/tor-evaluator/internal/middleware"
)

// Stores groups the repositories of one database driver.
type Stores struct {
	DB            *sql.DB
	Organizations guidelines.OrganizationRepository
	Guidelines    guidelines.Repository
	Audit         guidelines.AuditLog
	Sessions      evaluation.Repository
	Redis         *cache.Client
}

// Checkers returns the health checks for /health.
func (s *Stores) Checkers() map[string]middleware.HealthChecker {
	out := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: s.DB},
	}
	if s.Redis != nil {
		out["redis"] = middleware.CheckFunc(s.Redis.Ping)
	}
	return out
}

func (s *Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
}

// OpenStores connects to the configured database, applies the schema
// when migrate is set, and puts the Redis organization cache in front of
// the organization repository when redis.url is configured.
func OpenStores(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*Stores, error) {
	s := &Stores{}
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		s.DB = db
		if migrate {
			if err := mysqlp.Migrate(ctx, db); err != nil {
				s.Close()
				return nil, fmt.Errorf("mysql migrate: %w", err)
			}
		}
		s.Organizations = mysqlp.NewOrganizationRepository(db)
		s.Guidelines = mysqlp.NewGuidelineRepository(db)
		s.Audit = mysqlp.NewAuditRepository(db)
		s.Sessions = mysqlp.NewSessionRepository(db)
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		s.DB = db
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				s.Close()
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		s.Organizations = postgres.NewOrganizationRepository(db)
		s.Guidelines = postgres.NewGuidelineRepository(db)
		s.Audit = postgres.NewAuditRepository(db)
		s.Sessions = postgres.NewSessionRepository(db)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Redis.URL != "" {
		rc, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = rc
		s.Organizations = &cache.OrganizationCache{
			Next:   s.Organizations,
			Store:  rc,
			TTL:    cfg.Redis.OrganizationTTL,
			Logger: logger,
		}
	}
	return s, nil
}

// LLMClient builds the provider adapter named by llm.provider.
func LLMClient(cfg *config.Config) (ai.Client, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL), nil
	case config.ProviderAnthropic:
		return anthropic.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
}

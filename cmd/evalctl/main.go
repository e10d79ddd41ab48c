// Command evalctl inspects guideline visibility and the access audit log.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bryanwahyu/tor-evaluator/internal/application"
	appguidelines "github.com/bryanwahyu/tor-evaluator/internal/application/guidelines"
	"github.com/bryanwahyu/tor-evaluator/internal/bootstrap"
	"github.com/bryanwahyu/tor-evaluator/internal/config"
	"github.com/bryanwahyu/tor-evaluator/internal/infra/logging"
)

func main() {
	root := newRootCmd(openService)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openService builds the guideline service against the configured
// database. The schema is only applied by the migrate command.
func openService(ctx context.Context, cfgPath string, migrate bool) (GuidelineService, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	stores, err := bootstrap.OpenStores(ctx, cfg, migrate, logger)
	if err != nil {
		return nil, nil, err
	}
	svc := &appguidelines.Service{
		Orgs:       stores.Organizations,
		Guidelines: stores.Guidelines,
		Audit:      stores.Audit,
		Clock:      application.SystemClock{},
		Logger:     logger.Named("evalctl"),
	}
	return svc, func() {
		stores.Close()
		_ = logger.Sync()
	}, nil
}

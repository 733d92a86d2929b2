package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veridocs/reviewctl/internal/checks"
	"github.com/veridocs/reviewctl/internal/store"
	"github.com/veridocs/reviewctl/internal/tracker"
	"github.com/veridocs/reviewctl/internal/validate"
	"github.com/veridocs/reviewctl/internal/workflow"
)

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// initReadyStore opens the store and applies migrations.
func initReadyStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newRunner builds the automated checker set from config.
func newRunner() *checks.Runner {
	required := cfg.Checks.RequiredFields
	if len(required) == 0 {
		required = validate.DefaultRequiredFields
	}
	return checks.NewRunner(cfg.Checks.ContentDir,
		checks.NewSchemaChecker(required),
		checks.NewGlossaryChecker(cfg.Checks.GlossaryTerms),
		checks.NewLinkChecker(time.Duration(cfg.Checks.LinkTimeoutSecs)*time.Second, cfg.Checks.LinkRatePerHost),
	)
}

// newEngine assembles the workflow engine over an open store.
func newEngine(st store.Store) *workflow.Engine {
	v := validate.New(validate.Policy{RequiredFields: cfg.Checks.RequiredFields})
	return workflow.New(st, v, workflow.Options{
		Checks: newRunner(),
		SLA: workflow.SLAPolicy{
			P0:             time.Duration(cfg.SLA.P0Hours) * time.Hour,
			P1BusinessDays: cfg.SLA.P1BusinessDays,
			Cycle:          time.Duration(cfg.SLA.CycleDays) * 24 * time.Hour,
		},
		MaxCorrectionRounds: cfg.Workflow.MaxCorrectionRounds,
	})
}

// newTracker builds the configured issue tracker, or nil when disabled.
func newTracker() (tracker.Tracker, error) {
	switch cfg.Tracker.Kind {
	case "notion":
		if cfg.Tracker.Token == "" || cfg.Tracker.DatabaseID == "" {
			return nil, eris.New("tracker: notion requires token and database_id")
		}
		return tracker.NewNotionTracker(cfg.Tracker.Token, cfg.Tracker.DatabaseID), nil
	case "webhook":
		if cfg.Tracker.WebhookURL == "" {
			return nil, eris.New("tracker: webhook requires webhook_url")
		}
		return tracker.NewWebhookTracker(cfg.Tracker.WebhookURL), nil
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("unknown tracker kind: %s", cfg.Tracker.Kind)
	}
}

package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/growthsignal/attribution-cli/internal/store"
	"github.com/growthsignal/attribution-cli/pkg/ihc"
)

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.SchemaPath)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		return st, nil
	case "", "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL, cfg.Store.SchemaPath)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initClient builds the IHC scoring client from config.
func initClient() (ihc.Client, error) {
	opts := []ihc.Option{
		ihc.WithBaseURL(cfg.IHC.BaseURL),
		ihc.WithRetry(cfg.IHC.RetryCount, cfg.IHC.RetryDelay()),
		ihc.WithRateLimit(cfg.IHC.RatePerSec),
		ihc.WithHTTPClient(&http.Client{Timeout: cfg.IHC.Timeout()}),
	}

	if cfg.IHC.RedistributionPath != "" {
		redistribution, err := ihc.LoadRedistribution(cfg.IHC.RedistributionPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ihc.WithRedistribution(redistribution))
		zap.L().Info("using redistribution override", zap.String("path", cfg.IHC.RedistributionPath))
	}

	return ihc.NewClient(cfg.IHC.APIKey, cfg.IHC.ConvTypeID, opts...), nil
}

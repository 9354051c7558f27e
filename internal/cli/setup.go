package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/core/invoke"
	"github.com/leofalp/devforge/internal/config"
	"github.com/leofalp/devforge/internal/pipeline"
	"github.com/leofalp/devforge/providers/ai"
	"github.com/leofalp/devforge/providers/ai/gemini"
	"github.com/leofalp/devforge/providers/ai/openai"
	"github.com/leofalp/devforge/providers/checkpoint/file"
	"github.com/leofalp/devforge/providers/checkpoint/inmemory"
	"github.com/leofalp/devforge/providers/checkpoint/pg"
	"github.com/leofalp/devforge/providers/checkpoint/sqlite"
	"github.com/leofalp/devforge/providers/observability"
	"github.com/leofalp/devforge/providers/observability/slogobs"
)

// loadConfig reads the configuration. The global flags take precedence over
// every other source, so they are fed in as environment overrides.
func (o *RootOptions) loadConfig(requireKeys bool) (*config.Config, error) {
	lookup := o.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	flags := map[string]string{
		"DEVFORGE_CHECKPOINT_BACKEND": o.Backend,
		"DEVFORGE_LOG_LEVEL":          o.LogLevel,
	}
	opts := []config.Option{
		config.WithLookup(func(key string) (string, bool) {
			if v := flags[key]; v != "" {
				return v, true
			}
			return lookup(key)
		}),
	}
	if o.ConfigFile != "" {
		opts = append(opts, config.WithFile(o.ConfigFile))
	}
	if o.envFiles != nil {
		opts = append(opts, config.WithEnvFiles(o.envFiles...))
	}
	if !requireKeys {
		opts = append(opts, config.WithoutKeyCheck())
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "load configuration", err)
	}
	return cfg, nil
}

func newObserver(cfg *config.Config, w io.Writer) observability.Provider {
	level, _ := slogobs.ParseLogLevel(cfg.Log.Level)
	format, _ := slogobs.ParseFormat(cfg.Log.Format)
	return slogobs.New(
		slogobs.WithFormat(format),
		slogobs.WithLevel(level),
		slogobs.WithOutput(w),
	)
}

func newProvider(t config.Tier) (ai.Provider, error) {
	var p ai.Provider
	switch t.Provider {
	case config.ProviderGemini:
		p = gemini.New()
	case config.ProviderOpenAI:
		p = openai.New()
	default:
		return nil, fmt.Errorf("unknown provider %q", t.Provider)
	}
	p = p.WithAPIKey(t.APIKey)
	if t.BaseURL != "" {
		p = p.WithBaseURL(t.BaseURL)
	}
	return p, nil
}

func tierName(t config.Tier) string {
	return t.Provider + "/" + t.Model
}

// newInvoker builds the resilient invoker from the configured tiers.
func newInvoker(cfg *config.Config, observer observability.Provider) (pipeline.Model, error) {
	primary, err := newProvider(cfg.Primary)
	if err != nil {
		return nil, err
	}
	opts := []invoke.Option{
		invoke.WithMaxRetries(cfg.Retries),
		invoke.WithRetryDelay(cfg.RetryDelay),
		invoke.WithAttemptTimeout(cfg.AttemptTimeout),
		invoke.WithObserver(observer),
	}
	if cfg.Fallback != nil {
		fallback, err := newProvider(*cfg.Fallback)
		if err != nil {
			return nil, err
		}
		opts = append(opts, invoke.WithFallback(invoke.Tier{
			Name:     tierName(*cfg.Fallback),
			Provider: fallback,
			Model:    cfg.Fallback.Model,
		}))
	}
	return invoke.New(invoke.Tier{
		Name:     tierName(cfg.Primary),
		Provider: primary,
		Model:    cfg.Primary.Model,
	}, opts...), nil
}

// openStore opens the configured checkpoint backend. The returned function
// releases it.
func openStore(ctx context.Context, cfg config.Checkpoint) (checkpoint.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		return inmemory.New(), noop, nil
	case config.BackendFile:
		store, err := file.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := pgxpool.New(connectCtx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		var opts []pg.Option
		if cfg.Table != "" {
			opts = append(opts, pg.WithTableName(cfg.Table))
		}
		store := pg.New(pool, opts...)
		if err := store.EnsureSchema(connectCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

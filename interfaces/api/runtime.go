package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/ruleup/application"
	"github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
	"github.com/felixgeelhaar/ruleup/infrastructure/logging"
	"github.com/felixgeelhaar/ruleup/infrastructure/observability"
	"github.com/felixgeelhaar/ruleup/infrastructure/telemetry"
)

// Runtime holds the engine built from a configuration and the resources it
// owns.
type Runtime struct {
	Engine *application.Engine
	Logger *bolt.Logger
	Config *Config

	source  pack.Source
	observe *observability.Provider
	closers []func(context.Context) error
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logOutput io.Writer
	source    pack.Source
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) BuildOption {
	return func(o *buildOptions) {
		o.logOutput = w
	}
}

// WithSource replaces the configured package source.
func WithSource(src pack.Source) BuildOption {
	return func(o *buildOptions) {
		o.source = src
	}
}

// Build wires a runtime from cfg. Close must be called to release storage
// connections and flush telemetry.
func Build(ctx context.Context, cfg *Config, opts ...BuildOption) (*Runtime, error) {
	o := buildOptions{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{Config: cfg, source: o.source}
	rt.Logger = logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		NoColor: cfg.Logging.NoColor,
		Output:  o.logOutput,
	})

	ok := false
	defer func() {
		if !ok {
			_ = rt.Close(ctx)
		}
	}()

	observe, err := observability.New(observability.FromConfig(cfg.Telemetry)...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	rt.observe = observe

	var metrics application.Metrics = telemetry.NoopMetricsProvider{}
	if cfg.Telemetry.Metrics {
		mp := telemetry.NewMetricsProvider(telemetry.DefaultMetricsConfig())
		if err := mp.Error(); err != nil {
			return nil, fmt.Errorf("failed to set up metrics: %w", err)
		}
		metrics = mp
	}

	rules, assets, closeStores, err := openStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeStores)

	cachedAssets, closeCache, err := wrapCache(assets, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if closeCache != nil {
		rt.closers = append(rt.closers, closeCache)
	}

	pick := upgrade.DefaultPickVersion
	if cfg.Engine.DefaultPickVersion != "" {
		pick, err = upgrade.ParsePickVersion(cfg.Engine.DefaultPickVersion)
		if err != nil {
			return nil, err
		}
	}

	rt.Engine, err = application.NewEngineWithOptions(
		application.WithRuleStore(rules),
		application.WithAssetStore(cachedAssets),
		application.WithLogger(rt.Logger),
		application.WithMetrics(metrics),
		application.WithTracer(observe.Tracer()),
		application.WithConcurrency(cfg.Engine.Concurrency),
		application.WithDefaultPickVersion(pick),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	ok = true
	return rt, nil
}

// Source returns the package source, building the configured one on first
// use.
func (r *Runtime) Source(ctx context.Context) (pack.Source, error) {
	if r.source != nil {
		return r.source, nil
	}
	src, closeSource, err := newSource(ctx, r.Config.Package, r.Config.Resilience)
	if err != nil {
		return nil, err
	}
	if closeSource != nil {
		r.closers = append(r.closers, closeSource)
	}
	r.source = src
	return src, nil
}

// Close releases every resource in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	if r.observe != nil {
		if err := r.observe.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		r.observe = nil
	}
	return errors.Join(errs...)
}

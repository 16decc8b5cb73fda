// Package telemetry provides OpenTelemetry metrics for the upgrade engine.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/ruleup"
)

// MetricsProvider records engine metrics.
type MetricsProvider struct {
	meter metric.Meter

	// Counters
	rulesUpgraded  metric.Int64Counter
	rulesFailed    metric.Int64Counter
	rulesSkipped   metric.Int64Counter
	rulesInstalled metric.Int64Counter
	fieldConflicts metric.Int64Counter
	assetsSaved    metric.Int64Counter

	// Histograms
	batchDuration metric.Float64Histogram

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: "github.com/felixgeelhaar/ruleup").
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// MeterProvider overrides the global provider.
	MeterProvider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/ruleup",
		MeterVersion: ruleup.Version,
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion)),
	}
	mp.initErr = mp.initInstruments()
	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&mp.rulesUpgraded, "ruleup.rules.upgraded", "Number of upgraded prebuilt rules", "{rule}"},
		{&mp.rulesFailed, "ruleup.rules.failed", "Number of rules that failed a bulk operation", "{rule}"},
		{&mp.rulesSkipped, "ruleup.rules.skipped", "Number of rules skipped by a bulk operation", "{rule}"},
		{&mp.rulesInstalled, "ruleup.rules.installed", "Number of installed prebuilt rules", "{rule}"},
		{&mp.fieldConflicts, "ruleup.fields.conflicts", "Number of field diffs with a conflict", "{field}"},
		{&mp.assetsSaved, "ruleup.package.assets_saved", "Number of rule assets saved from packages", "{asset}"},
	}
	for _, c := range counters {
		counter, err := mp.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	mp.batchDuration, err = mp.meter.Float64Histogram(
		"ruleup.batch.duration",
		metric.WithDescription("Duration of bulk rule operations"),
		metric.WithUnit("ms"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordRuleUpgraded records an upgraded rule.
func (mp *MetricsProvider) RecordRuleUpgraded(ctx context.Context, ruleType string, dryRun bool) {
	mp.rulesUpgraded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule.type", ruleType),
		attribute.Bool("dry_run", dryRun),
	))
}

// RecordRuleFailed records a rule that failed operation.
func (mp *MetricsProvider) RecordRuleFailed(ctx context.Context, operation string) {
	mp.rulesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordRuleSkipped records a rule that operation skipped.
func (mp *MetricsProvider) RecordRuleSkipped(ctx context.Context, operation, reason string) {
	mp.rulesSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("reason", reason),
	))
}

// RecordRuleInstalled records an installed rule.
func (mp *MetricsProvider) RecordRuleInstalled(ctx context.Context, ruleType string) {
	mp.rulesInstalled.Add(ctx, 1, metric.WithAttributes(attribute.String("rule.type", ruleType)))
}

// RecordFieldConflict records a conflicting field diff.
func (mp *MetricsProvider) RecordFieldConflict(ctx context.Context, field, conflict string) {
	mp.fieldConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("conflict", conflict),
	))
}

// RecordBatchDuration records the duration of a bulk operation over n rules.
func (mp *MetricsProvider) RecordBatchDuration(ctx context.Context, operation string, n int, d time.Duration) {
	mp.batchDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("rules", n),
	))
}

// RecordPackageUpdate records the assets saved from a package source.
func (mp *MetricsProvider) RecordPackageUpdate(ctx context.Context, source string, saved int) {
	mp.assetsSaved.Add(ctx, int64(saved), metric.WithAttributes(attribute.String("source", source)))
}

// NoopMetricsProvider is a no-op metrics provider for testing or when metrics are disabled.
type NoopMetricsProvider struct{}

// RecordRuleUpgraded is a no-op.
func (NoopMetricsProvider) RecordRuleUpgraded(context.Context, string, bool) {}

// RecordRuleFailed is a no-op.
func (NoopMetricsProvider) RecordRuleFailed(context.Context, string) {}

// RecordRuleSkipped is a no-op.
func (NoopMetricsProvider) RecordRuleSkipped(context.Context, string, string) {}

// RecordRuleInstalled is a no-op.
func (NoopMetricsProvider) RecordRuleInstalled(context.Context, string) {}

// RecordFieldConflict is a no-op.
func (NoopMetricsProvider) RecordFieldConflict(context.Context, string, string) {}

// RecordBatchDuration is a no-op.
func (NoopMetricsProvider) RecordBatchDuration(context.Context, string, int, time.Duration) {}

// RecordPackageUpdate is a no-op.
func (NoopMetricsProvider) RecordPackageUpdate(context.Context, string, int) {}

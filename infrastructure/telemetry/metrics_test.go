package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/felixgeelhaar/ruleup"
)

func setupTestMetrics(t *testing.T) (*metric.ManualReader, *MetricsProvider) {
	t.Helper()

	reader := metric.NewManualReader()
	cfg := DefaultMetricsConfig()
	cfg.MeterProvider = metric.NewMeterProvider(metric.WithReader(reader))

	mp := NewMetricsProvider(cfg)
	if mp.Error() != nil {
		t.Fatalf("failed to create metrics provider: %v", mp.Error())
	}
	t.Cleanup(func() { _ = reader.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsProvider_Counters(t *testing.T) {
	t.Parallel()

	reader, mp := setupTestMetrics(t)
	ctx := context.Background()

	mp.RecordRuleUpgraded(ctx, "query", false)
	mp.RecordRuleUpgraded(ctx, "eql", true)
	mp.RecordRuleFailed(ctx, "perform_upgrade")
	mp.RecordRuleSkipped(ctx, "perform_upgrade", "RULE_UP_TO_DATE")
	mp.RecordRuleInstalled(ctx, "query")
	mp.RecordFieldConflict(ctx, "query", "NON_SOLVABLE")
	mp.RecordFieldConflict(ctx, "name", "NON_SOLVABLE")
	mp.RecordFieldConflict(ctx, "tags", "NON_SOLVABLE")
	mp.RecordPackageUpdate(ctx, "filesystem:rules", 12)

	metrics := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"ruleup.rules.upgraded", 2},
		{"ruleup.rules.failed", 1},
		{"ruleup.rules.skipped", 1},
		{"ruleup.rules.installed", 1},
		{"ruleup.fields.conflicts", 3},
		{"ruleup.package.assets_saved", 12},
	}
	for _, tt := range tests {
		m, ok := metrics[tt.name]
		if !ok {
			t.Errorf("%s metric not found", tt.name)
			continue
		}
		if got := sumOf(t, m); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMetricsProvider_RecordRuleUpgraded_Attributes(t *testing.T) {
	t.Parallel()

	reader, mp := setupTestMetrics(t)
	mp.RecordRuleUpgraded(context.Background(), "threshold", true)

	m := collect(t, reader)["ruleup.rules.upgraded"]
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("unexpected data %T", m.Data)
	}
	attrs := sum.DataPoints[0].Attributes
	if v, _ := attrs.Value(attribute.Key("rule.type")); v.AsString() != "threshold" {
		t.Errorf("rule.type = %q, want threshold", v.AsString())
	}
	if v, _ := attrs.Value(attribute.Key("dry_run")); !v.AsBool() {
		t.Error("dry_run = false, want true")
	}
}

func TestMetricsProvider_RecordBatchDuration(t *testing.T) {
	t.Parallel()

	reader, mp := setupTestMetrics(t)
	mp.RecordBatchDuration(context.Background(), "perform_upgrade", 10, 250*time.Millisecond)
	mp.RecordBatchDuration(context.Background(), "perform_upgrade", 3, 50*time.Millisecond)

	m, ok := collect(t, reader)["ruleup.batch.duration"]
	if !ok {
		t.Fatal("ruleup.batch.duration metric not found")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", m.Data)
	}
	var count uint64
	var total float64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		total += dp.Sum
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if total != 300 {
		t.Errorf("sum = %v, want 300", total)
	}
}

func TestNoopMetricsProvider(t *testing.T) {
	t.Parallel()

	var n NoopMetricsProvider
	ctx := context.Background()
	n.RecordRuleUpgraded(ctx, "query", false)
	n.RecordRuleFailed(ctx, "x")
	n.RecordRuleSkipped(ctx, "x", "y")
	n.RecordRuleInstalled(ctx, "query")
	n.RecordFieldConflict(ctx, "a", "b")
	n.RecordBatchDuration(ctx, "x", 1, time.Second)
	n.RecordPackageUpdate(ctx, "x", 1)
}

func TestDefaultMetricsConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultMetricsConfig()
	if cfg.MeterName != "github.com/felixgeelhaar/ruleup" {
		t.Errorf("MeterName = %q", cfg.MeterName)
	}
	if cfg.MeterVersion != ruleup.Version {
		t.Errorf("MeterVersion = %q, want %q", cfg.MeterVersion, ruleup.Version)
	}
}

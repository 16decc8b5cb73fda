// Package application provides the prebuilt rule upgrade engine: review and
// perform of upgrades and installs, status, customization and package
// updates on top of the rule and asset stores.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/telemetry"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
	"github.com/felixgeelhaar/ruleup/infrastructure/logging"
	"github.com/felixgeelhaar/ruleup/infrastructure/statemachine"
	infratelemetry "github.com/felixgeelhaar/ruleup/infrastructure/telemetry"
)

// Operation names used in logs, spans and metrics.
const (
	OpReviewUpgrade  = "review_upgrade"
	OpPerformUpgrade = "perform_upgrade"
	OpReviewInstall  = "review_install"
	OpPerformInstall = "perform_install"
	OpStatus         = "status"
	OpPatchRule      = "patch_rule"
	OpUpdatePackage  = "update_package"
)

// Metrics records engine metrics.
type Metrics interface {
	RecordRuleUpgraded(ctx context.Context, ruleType string, dryRun bool)
	RecordRuleFailed(ctx context.Context, operation string)
	RecordRuleSkipped(ctx context.Context, operation, reason string)
	RecordRuleInstalled(ctx context.Context, ruleType string)
	RecordFieldConflict(ctx context.Context, field, conflict string)
	RecordBatchDuration(ctx context.Context, operation string, n int, d time.Duration)
	RecordPackageUpdate(ctx context.Context, source string, saved int)
}

// Invalidator drops cached asset lookups.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Engine orchestrates prebuilt rule operations.
type Engine struct {
	rules       rule.Store
	assets      rule.AssetStore
	invalidator Invalidator
	logger      *bolt.Logger
	metrics     Metrics
	tracer      telemetry.Tracer
	concurrency int
	defaultPick upgrade.PickVersion
	now         func() time.Time
	newID       func() string
	machine     *statekit.MachineConfig[*statemachine.Context]
}

// EngineConfig contains configuration for the engine.
type EngineConfig struct {
	Rules  rule.Store
	Assets rule.AssetStore

	// Invalidator is called after a package update. When nil and Assets
	// implements Invalidator, Assets is used.
	Invalidator Invalidator

	Logger  *bolt.Logger
	Metrics Metrics
	Tracer  telemetry.Tracer

	// Concurrency bounds how many rules are processed at once.
	Concurrency int

	// DefaultPickVersion applies when a perform request names none.
	DefaultPickVersion upgrade.PickVersion

	Clock       func() time.Time
	IDGenerator func() string
}

// NewEngine creates a new engine with the given configuration.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Rules == nil {
		return nil, errors.New("rule store is required")
	}
	if config.Assets == nil {
		return nil, errors.New("asset store is required")
	}
	if p := config.DefaultPickVersion; p != "" && (!p.Valid() || p == upgrade.PickResolved) {
		return nil, fmt.Errorf("%w: default pick_version %q", upgrade.ErrInvalidRequest, p)
	}

	machine, err := statemachine.NewUpgradeMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}

	e := &Engine{
		rules:       config.Rules,
		assets:      config.Assets,
		invalidator: config.Invalidator,
		logger:      config.Logger,
		metrics:     config.Metrics,
		tracer:      config.Tracer,
		concurrency: config.Concurrency,
		defaultPick: config.DefaultPickVersion,
		now:         config.Clock,
		newID:       config.IDGenerator,
		machine:     machine,
	}

	// Set defaults
	if e.invalidator == nil {
		if inv, ok := config.Assets.(Invalidator); ok {
			e.invalidator = inv
		}
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	if e.metrics == nil {
		e.metrics = infratelemetry.NoopMetricsProvider{}
	}
	if e.tracer == nil {
		e.tracer = telemetry.NoopTracer{}
	}
	if e.concurrency <= 0 {
		e.concurrency = 10
	}
	if e.defaultPick == "" {
		e.defaultPick = upgrade.DefaultPickVersion
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	return e, nil
}

func (e *Engine) debug() *logging.LogEvent { return logging.NewEvent(e.logger.Debug()) }
func (e *Engine) info() *logging.LogEvent  { return logging.NewEvent(e.logger.Info()) }
func (e *Engine) warn() *logging.LogEvent  { return logging.NewEvent(e.logger.Warn()) }

// lifecycle starts the upgrade lifecycle of one rule. Transitions are logged
// at debug level.
func (e *Engine) lifecycle(ruleID string) *statemachine.Interpreter {
	ctx := statemachine.NewContext(ruleID)
	ctx.OnTransition = func(t statemachine.Transition) {
		e.debug().
			Transition(ruleID, string(t.From), string(t.To), t.Reason).
			Msg("rule lifecycle transition")
	}
	interp := statemachine.NewInterpreter(e.machine, ctx)
	interp.Start()
	return interp
}

// startBatch opens a span and logs the start of a bulk operation. The
// returned func logs the end and records the batch duration.
func (e *Engine) startBatch(ctx context.Context, op string, attrs ...telemetry.Attribute) (context.Context, telemetry.Span, func(n int)) {
	start := e.now()
	ctx, span := e.tracer.StartSpan(ctx, op, attrs...)
	e.info().Add(logging.Operation(op)).Msg("batch started")

	return ctx, span, func(n int) {
		d := e.now().Sub(start)
		e.metrics.RecordBatchDuration(ctx, op, n, d)
		span.SetAttributes(telemetry.Int("rules", n))
		e.info().Batch(op, n, d).Msg("batch completed")
	}
}

// pickDefault fills the request-global pick version.
func (e *Engine) pickDefault(p upgrade.PickVersion) upgrade.PickVersion {
	if p == "" {
		return e.defaultPick
	}
	return p
}

// assetAt returns the asset at version, or nil when none exists.
func (e *Engine) assetAt(ctx context.Context, ruleID string, version int) (*rule.Asset, error) {
	a, err := e.assets.Get(ctx, ruleID, version)
	if errors.Is(err, rule.ErrAssetNotFound) {
		return nil, nil
	}
	return a, err
}

// latestByRuleID returns the latest asset of each rule_id.
func (e *Engine) latestByRuleID(ctx context.Context, ruleIDs ...string) (map[string]*rule.Asset, error) {
	latest, err := e.assets.Latest(ctx, ruleIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest assets: %w", err)
	}
	out := make(map[string]*rule.Asset, len(latest))
	for _, a := range latest {
		out[a.RuleID] = a
	}
	return out, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/ruleup/domain/upgrade"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the dotted path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// Validator validates ruleup configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) ValidationErrors {
	v.errors = nil

	v.validateLogging(cfg)
	v.validateEngine(cfg)
	v.validateStorage(cfg)
	v.validateCache(cfg)
	v.validatePackage(cfg)
	v.validateTelemetry(cfg)
	v.validateResilience(cfg)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) oneOf(path, value string, allowed ...string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.addError(path, fmt.Sprintf("invalid value %q, must be one of %s", value, strings.Join(allowed, ", ")))
}

func (v *Validator) validateLogging(cfg *Config) {
	v.oneOf("logging.level", strings.ToLower(cfg.Logging.Level), "trace", "debug", "info", "warn", "error")
	v.oneOf("logging.format", cfg.Logging.Format, "console", "json")
}

func (v *Validator) validateEngine(cfg *Config) {
	if cfg.Engine.Concurrency < 0 {
		v.addError("engine.concurrency", "concurrency must be non-negative")
	}
	if p := cfg.Engine.DefaultPickVersion; p != "" {
		pick, err := upgrade.ParsePickVersion(p)
		switch {
		case err != nil:
			v.addError("engine.default_pick_version", fmt.Sprintf("invalid pick version: %s", p))
		case pick == upgrade.PickResolved:
			v.addError("engine.default_pick_version", "RESOLVED is only allowed for individual fields")
		}
	}
}

func (v *Validator) validateStorage(cfg *Config) {
	s := cfg.Storage
	v.oneOf("storage.driver", s.Driver, StorageMemory, StorageSQLite, StoragePostgres, StorageMongoDB, StorageDynamoDB)

	switch s.Driver {
	case StorageSQLite:
		if s.SQLite.Path == "" {
			v.addError("storage.sqlite.path", "path is required for sqlite storage")
		}
	case StoragePostgres:
		if s.Postgres.DSN == "" {
			v.addError("storage.postgres.dsn", "dsn is required for postgres storage")
		}
		if s.Postgres.MaxConns < 0 {
			v.addError("storage.postgres.max_conns", "max_conns must be non-negative")
		}
	case StorageMongoDB:
		if s.MongoDB.URI == "" {
			v.addError("storage.mongodb.uri", "uri is required for mongodb storage")
		}
	case StorageDynamoDB:
		if s.DynamoDB.Region == "" && s.DynamoDB.Endpoint == "" {
			v.addError("storage.dynamodb.region", "region or endpoint is required for dynamodb storage")
		}
	}
}

func (v *Validator) validateCache(cfg *Config) {
	c := cfg.Cache
	v.oneOf("cache.driver", c.Driver, CacheNone, CacheMemory, CacheRedis, CacheBadger)
	if c.TTL < 0 {
		v.addError("cache.ttl", "ttl must be non-negative")
	}
	if c.Driver == CacheRedis && c.Redis.Addr == "" {
		v.addError("cache.redis.addr", "addr is required for redis cache")
	}
}

func (v *Validator) validatePackage(cfg *Config) {
	p := cfg.Package
	v.oneOf("package.source", p.Source, SourceFilesystem, SourceGit, SourceS3, SourceGCS, SourceAzure, SourceKubernetes)

	switch p.Source {
	case SourceFilesystem:
		if p.Filesystem.Dir == "" {
			v.addError("package.filesystem.dir", "dir is required for filesystem source")
		}
	case SourceGit:
		if p.Git.URL == "" {
			v.addError("package.git.url", "url is required for git source")
		}
		if p.Git.CloneDir == "" {
			v.addError("package.git.clone_dir", "clone_dir is required for git source")
		}
	case SourceS3, SourceGCS:
		if p.Blob.Bucket == "" {
			v.addError("package.blob.bucket", "bucket is required for "+p.Source+" source")
		}
	case SourceAzure:
		if p.Blob.Bucket == "" {
			v.addError("package.blob.bucket", "bucket (container) is required for azure source")
		}
		if p.Blob.ConnectionString == "" && p.Blob.AccountName == "" {
			v.addError("package.blob.account_name", "account_name or connection_string is required for azure source")
		}
	case SourceKubernetes:
		if p.Kubernetes.Namespace == "" {
			v.addError("package.kubernetes.namespace", "namespace is required for kubernetes source")
		}
	}
}

func (v *Validator) validateTelemetry(cfg *Config) {
	t := cfg.Telemetry
	v.oneOf("telemetry.tracing", t.Tracing, "otlp", "stdout", "noop")
	if t.Tracing == "otlp" && t.Endpoint == "" {
		v.addError("telemetry.endpoint", "endpoint is required for otlp tracing")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.addError("telemetry.sample_rate", "sample_rate must be between 0 and 1")
	}
}

func (v *Validator) validateResilience(cfg *Config) {
	r := cfg.Resilience
	if r.Timeout < 0 {
		v.addError("resilience.timeout", "timeout must be non-negative")
	}
	if r.Retry.Enabled {
		if r.Retry.MaxAttempts <= 0 {
			v.addError("resilience.retry.max_attempts", "max_attempts must be positive when enabled")
		}
		if r.Retry.Multiplier < 1 {
			v.addError("resilience.retry.multiplier", "multiplier must be >= 1")
		}
	}
	if r.CircuitBreaker.Enabled && r.CircuitBreaker.Threshold <= 0 {
		v.addError("resilience.circuit_breaker.threshold", "threshold must be positive when enabled")
	}
}

// Package config provides domain models for ruleup configuration.
package config

import "time"

// Config represents the complete ruleup configuration.
type Config struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Logging    LoggingConfig    `json:"logging,omitempty" yaml:"logging,omitempty"`
	Engine     EngineConfig     `json:"engine,omitempty" yaml:"engine,omitempty"`
	Storage    StorageConfig    `json:"storage,omitempty" yaml:"storage,omitempty"`
	Cache      CacheConfig      `json:"cache,omitempty" yaml:"cache,omitempty"`
	Package    PackageConfig    `json:"package,omitempty" yaml:"package,omitempty"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is console or json.
	Format  string `json:"format,omitempty" yaml:"format,omitempty"`
	NoColor bool   `json:"no_color,omitempty" yaml:"no_color,omitempty"`
}

// EngineConfig configures the upgrade engine.
type EngineConfig struct {
	// Concurrency bounds how many rules are processed at once.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// DefaultPickVersion applies when a request names no pick version.
	DefaultPickVersion string `json:"default_pick_version,omitempty" yaml:"default_pick_version,omitempty"`
}

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongoDB  = "mongodb"
	StorageDynamoDB = "dynamodb"
)

// StorageConfig selects where installed rules and assets live.
type StorageConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`

	SQLite   SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	MongoDB  MongoDBConfig  `json:"mongodb,omitempty" yaml:"mongodb,omitempty"`
	DynamoDB DynamoDBConfig `json:"dynamodb,omitempty" yaml:"dynamodb,omitempty"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file; ":memory:" keeps it in memory.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN      string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	MaxConns int32  `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
}

// MongoDBConfig configures the MongoDB backend.
type MongoDBConfig struct {
	URI      string `json:"uri,omitempty" yaml:"uri,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	Region      string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	RulesTable  string `json:"rules_table,omitempty" yaml:"rules_table,omitempty"`
	AssetsTable string `json:"assets_table,omitempty" yaml:"assets_table,omitempty"`
}

// Cache drivers.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
)

// CacheConfig configures the asset cache.
type CacheConfig struct {
	Driver string   `json:"driver,omitempty" yaml:"driver,omitempty"`
	TTL    Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`

	Redis  RedisConfig  `json:"redis,omitempty" yaml:"redis,omitempty"`
	Badger BadgerConfig `json:"badger,omitempty" yaml:"badger,omitempty"`
}

// RedisConfig configures the Redis cache.
type RedisConfig struct {
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// BadgerConfig configures the Badger cache.
type BadgerConfig struct {
	// Dir is the data directory; empty runs in memory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Package sources.
const (
	SourceFilesystem = "filesystem"
	SourceGit        = "git"
	SourceS3         = "s3"
	SourceGCS        = "gcs"
	SourceAzure      = "azure"
	SourceKubernetes = "kubernetes"
)

// PackageConfig selects where prebuilt rule packages are fetched from.
type PackageConfig struct {
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	Filesystem FilesystemSourceConfig `json:"filesystem,omitempty" yaml:"filesystem,omitempty"`
	Git        GitSourceConfig        `json:"git,omitempty" yaml:"git,omitempty"`
	Blob       BlobSourceConfig       `json:"blob,omitempty" yaml:"blob,omitempty"`
	Kubernetes KubernetesSourceConfig `json:"kubernetes,omitempty" yaml:"kubernetes,omitempty"`
}

// FilesystemSourceConfig reads assets from a local directory.
type FilesystemSourceConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// GitSourceConfig reads assets from a git repository.
type GitSourceConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Ref is a branch name; empty uses the default branch.
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty"`
	// Path is the asset directory inside the repository.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// CloneDir is where the repository is checked out.
	CloneDir string `json:"clone_dir,omitempty" yaml:"clone_dir,omitempty"`
}

// BlobSourceConfig reads assets from an object store bucket.
type BlobSourceConfig struct {
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// S3
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`

	// GCS
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	// Azure
	AccountName      string `json:"account_name,omitempty" yaml:"account_name,omitempty"`
	AccountKey       string `json:"account_key,omitempty" yaml:"account_key,omitempty"`
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
}

// KubernetesSourceConfig reads assets from ConfigMaps.
type KubernetesSourceConfig struct {
	Namespace     string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	LabelSelector string `json:"label_selector,omitempty" yaml:"label_selector,omitempty"`
	Kubeconfig    string `json:"kubeconfig,omitempty" yaml:"kubeconfig,omitempty"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	// Tracing is otlp, stdout or noop.
	Tracing    string  `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure   bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Metrics    bool    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// ResilienceConfig contains resilience settings for remote package fetches.
type ResilienceConfig struct {
	// Timeout bounds a single fetch attempt.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retry configures retry behavior.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures circuit breaker behavior.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	Enabled      bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxAttempts  int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	Multiplier   float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Default returns the configuration used when no file is given: in-memory
// storage, no cache, a local package directory and console logging.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Engine:  EngineConfig{Concurrency: 10, DefaultPickVersion: "MERGED"},
		Storage: StorageConfig{Driver: StorageMemory},
		Cache:   CacheConfig{Driver: CacheNone},
		Package: PackageConfig{
			Source:     SourceFilesystem,
			Filesystem: FilesystemSourceConfig{Dir: "./rules"},
		},
		Telemetry: TelemetryConfig{Tracing: "noop", SampleRate: 1},
		Resilience: ResilienceConfig{
			Timeout: Duration(30 * time.Second),
			Retry: RetryConfig{
				Enabled:      true,
				MaxAttempts:  3,
				InitialDelay: Duration(200 * time.Millisecond),
				Multiplier:   2,
			},
		},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

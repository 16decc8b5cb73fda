package api

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	domainconfig "github.com/felixgeelhaar/ruleup/domain/config"
	"github.com/felixgeelhaar/ruleup/domain/install"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack/filesystem"
	"github.com/felixgeelhaar/ruleup/infrastructure/resilience"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/cached"
)

func writeAsset(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBuild_Default(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	rt, err := Build(context.Background(), DefaultConfig(), WithLogOutput(&logs))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	st, err := rt.Engine.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.NumPrebuiltRulesTotalInPackage != 0 {
		t.Errorf("NumPrebuiltRulesTotalInPackage = %d, want 0", st.NumPrebuiltRulesTotalInPackage)
	}
}

func TestBuild_SQLiteWithCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rulesDir := filepath.Join(dir, "rules")
	if err := os.Mkdir(rulesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeAsset(t, rulesDir, "a.yaml", "rule_id: a\nversion: 1\ntype: query\nname: Rule A\nquery: 'host.name: *'\nlanguage: kuery\n")
	writeAsset(t, rulesDir, "b.json", `{"rule_id":"b","version":2,"type":"eql","name":"Rule B","query":"any where true","language":"eql"}`)

	cfg := DefaultConfig()
	cfg.Storage = domainconfig.StorageConfig{
		Driver: domainconfig.StorageSQLite,
		SQLite: domainconfig.SQLiteConfig{Path: filepath.Join(dir, "ruleup.db")},
	}
	cfg.Cache.Driver = domainconfig.CacheMemory
	cfg.Package.Filesystem.Dir = rulesDir

	ctx := context.Background()
	rt, err := Build(ctx, cfg, WithLogOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	src, err := rt.Source(ctx)
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if _, ok := src.(*filesystem.Source); !ok {
		t.Errorf("Source() = %T, want *filesystem.Source", src)
	}

	res, err := rt.Engine.UpdatePackage(ctx, src)
	if err != nil {
		t.Fatalf("UpdatePackage() error = %v", err)
	}
	if res.Saved != 2 {
		t.Errorf("Saved = %d, want 2", res.Saved)
	}

	resp, err := rt.Engine.PerformInstall(ctx, install.PerformRequest{Mode: install.ModeAllRules})
	if err != nil {
		t.Fatalf("PerformInstall() error = %v", err)
	}
	if resp.Summary.Succeeded != 2 {
		t.Errorf("Summary = %+v, errors = %+v", resp.Summary, resp.Errors)
	}

	st, err := rt.Engine.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.NumPrebuiltRulesInstalled != 2 || st.NumPrebuiltRulesToInstall != 0 {
		t.Errorf("Status() = %+v", *st)
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Driver = "cassandra" }},
		{"unknown cache", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"unknown pick version", func(c *Config) { c.Engine.DefaultPickVersion = "LATEST" }},
		{"unknown exporter", func(c *Config) { c.Telemetry.Tracing = "zipkin" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			if _, err := Build(context.Background(), cfg, WithLogOutput(&bytes.Buffer{})); err == nil {
				t.Error("Build() error = nil, want error")
			}
		})
	}
}

func TestWrapCache(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Cache.Driver = domainconfig.CacheBadger
	rules, assets, closeStores, err := openStores(context.Background(), cfg.Storage)
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}
	defer func() { _ = closeStores(context.Background()) }()
	if rules == nil {
		t.Fatal("openStores() returned nil rule store")
	}

	wrapped, closeCache, err := wrapCache(assets, cfg.Cache)
	if err != nil {
		t.Fatalf("wrapCache() error = %v", err)
	}
	defer func() { _ = closeCache(context.Background()) }()
	if _, ok := wrapped.(*cached.AssetStore); !ok {
		t.Errorf("wrapCache() = %T, want *cached.AssetStore", wrapped)
	}

	same, closer, err := wrapCache(assets, domainconfig.CacheConfig{Driver: domainconfig.CacheNone})
	if err != nil || closer != nil || same != assets {
		t.Errorf("wrapCache(none) = %T, %v, %v", same, closer != nil, err)
	}
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     domainconfig.PackageConfig
		wantErr bool
		remote  bool
	}{
		{name: "filesystem", cfg: domainconfig.PackageConfig{Source: "filesystem", Filesystem: domainconfig.FilesystemSourceConfig{Dir: "./rules"}}},
		{name: "git", cfg: domainconfig.PackageConfig{Source: "git", Git: domainconfig.GitSourceConfig{URL: "https://example.com/rules.git"}}, remote: true},
		{name: "git without url", cfg: domainconfig.PackageConfig{Source: "git"}, wantErr: true},
		{name: "s3 without bucket", cfg: domainconfig.PackageConfig{Source: "s3"}, wantErr: true},
		{name: "azure without account", cfg: domainconfig.PackageConfig{Source: "azure", Blob: domainconfig.BlobSourceConfig{Bucket: "c"}}, wantErr: true},
		{name: "unknown", cfg: domainconfig.PackageConfig{Source: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, _, err := newSource(context.Background(), tt.cfg, DefaultConfig().Resilience)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newSource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			_, isRemote := src.(*resilience.Source)
			if isRemote != tt.remote {
				t.Errorf("newSource() = %T, remote %t, want %t", src, isRemote, tt.remote)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ruleup.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: memory\nengine:\n  concurrency: 3\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Engine.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Engine.Concurrency)
	}

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, domainconfig.ErrConfigNotFound) {
		t.Errorf("LoadConfig() error = %v, want ErrConfigNotFound", err)
	}
}

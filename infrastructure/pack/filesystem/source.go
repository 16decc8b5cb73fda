// Package filesystem reads prebuilt rule packages from a local directory.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	domainpack "github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack"
)

// Source reads every asset file below a directory.
type Source struct {
	dir      string
	debounce time.Duration
}

// Option configures a Source.
type Option func(*Source)

// WithDebounce sets how long Watch waits for changes to settle before
// re-fetching.
func WithDebounce(d time.Duration) Option {
	return func(s *Source) {
		s.debounce = d
	}
}

// New creates a directory source.
func New(dir string, opts ...Option) *Source {
	s := &Source{dir: dir, debounce: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements pack.Source.
func (s *Source) Name() string {
	return "filesystem:" + s.dir
}

// Fetch implements pack.Source.
func (s *Source) Fetch(ctx context.Context) (*domainpack.Pack, error) {
	files, err := ReadDir(ctx, s.dir)
	if err != nil {
		return nil, err
	}
	return pack.Build(filepath.Base(filepath.Clean(s.dir)), files)
}

// ReadDir collects the asset files below dir, named by their slash-separated
// path relative to dir.
func ReadDir(ctx context.Context, dir string) ([]pack.File, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domainpack.ErrPackNotFound, dir)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domainpack.ErrPackNotFound, dir)
	}

	var files []pack.File
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if !pack.IsAssetFile(d.Name()) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, pack.File{Name: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Watch implements pack.Watcher. Bursts of file events are coalesced into a
// single fetch.
func (s *Source) Watch(ctx context.Context, fn func(*domainpack.Pack, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := s.addDirs(watcher); err != nil {
		return err
	}

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fn(nil, err)

		case <-timer.C:
			fn(s.Fetch(ctx))
		}
	}
}

func (s *Source) addDirs(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

var _ domainpack.Watcher = (*Source)(nil)

package resilience

import (
	"context"

	"github.com/felixgeelhaar/ruleup/domain/pack"
)

// Source wraps a package source so that fetches go through an executor.
// Watch is forwarded unchanged when the wrapped source supports it.
type Source struct {
	source pack.Source
	exec   *Executor[*pack.Pack]
}

// NewSource wraps source with the given executor configuration.
func NewSource(source pack.Source, config ExecutorConfig) *Source {
	return &Source{source: source, exec: NewExecutor[*pack.Pack](config)}
}

// Name returns the wrapped source name.
func (s *Source) Name() string {
	return s.source.Name()
}

// Fetch fetches the package with retry and circuit breaking.
func (s *Source) Fetch(ctx context.Context) (*pack.Pack, error) {
	return s.exec.Do(ctx, s.source.Fetch)
}

// Watch delegates to the wrapped source if it is a pack.Watcher.
func (s *Source) Watch(ctx context.Context, fn func(*pack.Pack, error)) error {
	w, ok := s.source.(pack.Watcher)
	if !ok {
		return pack.ErrUnsupportedWatch
	}
	return w.Watch(ctx, fn)
}

// Unwrap returns the wrapped source.
func (s *Source) Unwrap() pack.Source {
	return s.source
}

// Package gitrepo reads prebuilt rule packages from a git repository.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	domainpack "github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack/filesystem"
)

// Config configures a git source.
type Config struct {
	// URL is the repository to clone.
	URL string

	// Ref is a branch name or a full reference. Empty means the remote HEAD.
	Ref string

	// Path is the package directory inside the repository.
	Path string

	// CloneDir keeps a working copy between fetches. Empty clones into a
	// temporary directory on every fetch.
	CloneDir string

	// Depth limits clone history; zero clones everything.
	Depth int
}

// Source clones or pulls a repository and reads the package directory.
type Source struct {
	cfg Config
}

// New creates a git source.
func New(cfg Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("git source: url is required")
	}
	if strings.Contains(filepath.ToSlash(cfg.Path), "..") {
		return nil, fmt.Errorf("git source: path %q escapes the repository", cfg.Path)
	}
	return &Source{cfg: cfg}, nil
}

// Name implements pack.Source.
func (s *Source) Name() string {
	if s.cfg.Ref == "" {
		return "git:" + s.cfg.URL
	}
	return "git:" + s.cfg.URL + "#" + s.cfg.Ref
}

// Fetch implements pack.Source. The package version defaults to the short
// commit hash when the manifest carries none.
func (s *Source) Fetch(ctx context.Context) (*domainpack.Pack, error) {
	dir := s.cfg.CloneDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "ruleup-git-")
		if err != nil {
			return nil, err
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		dir = tmp
	}

	repo, err := s.sync(ctx, dir)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	files, err := filesystem.ReadDir(ctx, filepath.Join(dir, s.cfg.Path))
	if err != nil {
		return nil, err
	}
	p, err := pack.Build(s.defaultName(), files)
	if err != nil {
		return nil, err
	}
	if p.Version == "" {
		p.Version = head.Hash().String()[:12]
	}
	return p, nil
}

func (s *Source) sync(ctx context.Context, dir string) (*git.Repository, error) {
	ref := s.referenceName()

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           s.cfg.URL,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         s.cfg.Depth,
		})
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", s.cfg.URL, err)
		}
		return repo, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    git.DefaultRemoteName,
		ReferenceName: ref,
		SingleBranch:  true,
		Depth:         s.cfg.Depth,
		Force:         true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("pull %s: %w", s.cfg.URL, err)
	}
	return repo, nil
}

func (s *Source) referenceName() plumbing.ReferenceName {
	switch {
	case s.cfg.Ref == "":
		return ""
	case strings.HasPrefix(s.cfg.Ref, "refs/"):
		return plumbing.ReferenceName(s.cfg.Ref)
	default:
		return plumbing.NewBranchReferenceName(s.cfg.Ref)
	}
}

func (s *Source) defaultName() string {
	if s.cfg.Path != "" {
		return filepath.Base(filepath.Clean(s.cfg.Path))
	}
	base := filepath.Base(strings.TrimSuffix(s.cfg.URL, "/"))
	return strings.TrimSuffix(base, ".git")
}

var _ domainpack.Source = (*Source)(nil)

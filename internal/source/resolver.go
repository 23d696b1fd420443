package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"

	"github.com/auto-dns/dock-route/internal/domain"
)

// CloneFunc fetches repoURL into dir.
type CloneFunc func(ctx context.Context, dir, repoURL string) error

// Resolver turns a deployment source, either a local directory or a git
// URL, into a directory on disk.
type Resolver struct {
	clone  CloneFunc
	logger zerolog.Logger
}

func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{clone: shallowClone(logger), logger: logger}
}

// NewResolverWithCloner is NewResolver with a custom clone step.
func NewResolverWithCloner(clone CloneFunc, logger zerolog.Logger) *Resolver {
	return &Resolver{clone: clone, logger: logger}
}

// IsRemote reports whether src names a git repository rather than a path.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "git@") ||
		strings.HasSuffix(src, ".git")
}

// Resolve returns an absolute directory holding src. The returned cleanup
// must be called once the directory is no longer needed; it is a no-op for
// local sources.
func (r *Resolver) Resolve(ctx context.Context, src string) (string, func(), error) {
	if src == "" {
		return "", nil, domain.NewValidationError("source path is required", nil)
	}
	if IsRemote(src) {
		return r.cloneRemote(ctx, src)
	}

	abs, err := filepath.Abs(src)
	if err != nil {
		return "", nil, domain.NewValidationError(fmt.Sprintf("invalid source path %q", src), err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, domain.NewNotFoundError("source path", abs)
		}
		return "", nil, domain.NewRuntimeError(fmt.Sprintf("stat %s", abs), err)
	}
	if !info.IsDir() {
		return "", nil, domain.NewValidationError(fmt.Sprintf("source path %q is not a directory", abs), nil)
	}
	return abs, func() {}, nil
}

func (r *Resolver) cloneRemote(ctx context.Context, repoURL string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "dock-route-src-*")
	if err != nil {
		return "", nil, domain.NewRuntimeError("create clone directory", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove cloned source")
		}
	}

	r.logger.Info().Str("repo", repoURL).Str("dir", dir).Msg("Cloning source")
	if err := r.clone(ctx, dir, repoURL); err != nil {
		cleanup()
		return "", nil, domain.NewRuntimeError(fmt.Sprintf("clone %s", repoURL), err)
	}
	return dir, cleanup, nil
}

func shallowClone(logger zerolog.Logger) CloneFunc {
	return func(ctx context.Context, dir, repoURL string) error {
		var progress io.Writer
		if logger.GetLevel() <= zerolog.DebugLevel {
			progress = logger
		}
		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:      repoURL,
			Depth:    1,
			Progress: progress,
		})
		return err
	}
}

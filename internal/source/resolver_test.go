package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-dns/dock-route/internal/domain"
)

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://github.com/acme/site": true,
		"http://git.local/acme/site":   true,
		"git@github.com:acme/site.git": true,
		"/srv/repos/site.git":          true,
		"./site":                       false,
		"/home/dev/projects/site":      false,
		"site-gitlab":                  false,
	}
	for src, want := range tests {
		t.Run(src, func(t *testing.T) {
			assert.Equal(t, want, IsRemote(src))
		})
	}
}

func TestResolve_LocalDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(zerolog.Nop())

	path, cleanup, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)
	defer cleanup()

	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Clean(dir), path)
	cleanup()
	assert.DirExists(t, dir, "cleanup must not touch local sources")
}

func TestResolve_LocalMissing(t *testing.T) {
	r := NewResolver(zerolog.Nop())

	_, _, err := r.Resolve(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestResolve_LocalFileRejected(t *testing.T) {
	file := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main"), 0o644))

	_, _, err := NewResolver(zerolog.Nop()).Resolve(context.Background(), file)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestResolve_Empty(t *testing.T) {
	_, _, err := NewResolver(zerolog.Nop()).Resolve(context.Background(), "")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestResolve_RemoteClonesIntoTempDir(t *testing.T) {
	var gotURL string
	clone := func(_ context.Context, dir, repoURL string) error {
		gotURL = repoURL
		return os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644)
	}
	r := NewResolverWithCloner(clone, zerolog.Nop())

	path, cleanup, err := r.Resolve(context.Background(), "https://github.com/acme/site.git")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/site.git", gotURL)
	assert.FileExists(t, filepath.Join(path, "package.json"))

	cleanup()
	assert.NoDirExists(t, path)
}

func TestResolve_RemoteCloneFailureCleansUp(t *testing.T) {
	var cloneDir string
	clone := func(_ context.Context, dir, _ string) error {
		cloneDir = dir
		return errors.New("authentication required")
	}
	r := NewResolverWithCloner(clone, zerolog.Nop())

	_, cleanup, err := r.Resolve(context.Background(), "git@github.com:acme/private.git")
	require.Error(t, err)
	assert.Nil(t, cleanup)
	assert.True(t, domain.IsRuntime(err))
	assert.ErrorContains(t, err, "authentication required")
	assert.NoDirExists(t, cloneDir)
}

package templates

import (
	"errors"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-dns/dock-route/internal/domain"
)

// countingFS hides MapFS.ReadFile so every read goes through Open.
type countingFS struct {
	fsys  fs.FS
	mu    sync.Mutex
	opens map[string]int
}

func newCountingFS(fsys fs.FS) *countingFS {
	return &countingFS{fsys: fsys, opens: map[string]int{}}
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.mu.Lock()
	c.opens[name]++
	c.mu.Unlock()
	return c.fsys.Open(name)
}

func (c *countingFS) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[name]
}

type brokenFS struct{}

func (brokenFS) Open(string) (fs.File, error) { return nil, errors.New("disk on fire") }

const nodeRecipe = `
name: node
description: Node service
port: "3000"
mount_path: /app
environment:
  NODE_ENV: development
build_args:
  NODE_VERSION: "20"
dev_command: ["npm", "run", "dev"]
prod_command: ["node", "index.js"]
`

func testTree() fstest.MapFS {
	return fstest.MapFS{
		"node/template.yaml":         {Data: []byte(nodeRecipe)},
		"node/Dockerfile":            {Data: []byte("FROM node:20\n")},
		"nodockerfile/template.yaml": {Data: []byte("name: x\n")},
		"broken/template.yaml":       {Data: []byte("name: [unterminated\n")},
		"broken/Dockerfile":          {Data: []byte("FROM scratch\n")},
		"extra/template.yaml":        {Data: []byte("name: extra\nbogus_field: 1\n")},
		"extra/Dockerfile":           {Data: []byte("FROM scratch\n")},
		"empty/template.yaml":        {Data: []byte("")},
		"empty/Dockerfile":           {Data: []byte("FROM scratch\n")},
		"README.md":                  {Data: []byte("not a template")},
	}
}

func TestGetTemplate(t *testing.T) {
	t.Run("loads recipe and merges Dockerfile", func(t *testing.T) {
		c := NewCatalog(testTree(), zerolog.Nop())

		tpl, err := c.GetTemplate("node")
		require.NoError(t, err)

		assert.Equal(t, "node", tpl.Name)
		assert.Equal(t, "Node service", tpl.Description)
		assert.Equal(t, "3000", tpl.Port)
		assert.Equal(t, "/app", tpl.MountPath)
		assert.Equal(t, map[string]string{"NODE_ENV": "development"}, tpl.Environment)
		assert.Equal(t, map[string]string{"NODE_VERSION": "20"}, tpl.BuildArgs)
		assert.Equal(t, []string{"npm", "run", "dev"}, tpl.DevCommand)
		assert.Equal(t, []string{"node", "index.js"}, tpl.ProdCommand)
		assert.Equal(t, "FROM node:20\n", tpl.Dockerfile)
	})

	t.Run("repeated lookups hit the cache", func(t *testing.T) {
		fsys := newCountingFS(testTree())
		c := NewCatalog(fsys, zerolog.Nop())

		first, err := c.GetTemplate("node")
		require.NoError(t, err)
		second, err := c.GetTemplate("node")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.NotSame(t, first, second)
		assert.Equal(t, 1, fsys.count("node/template.yaml"))
		assert.Equal(t, 1, fsys.count("node/Dockerfile"))
	})

	t.Run("mutating a result leaves the cache intact", func(t *testing.T) {
		c := NewCatalog(testTree(), zerolog.Nop())

		tpl, err := c.GetTemplate("node")
		require.NoError(t, err)
		tpl.Port = "9999"
		tpl.Environment["NODE_ENV"] = "tampered"
		tpl.BuildArgs["EXTRA"] = "1"
		tpl.DevCommand[0] = "yarn"
		tpl.ProdCommand = append(tpl.ProdCommand[:0], "sh")

		again, err := c.GetTemplate("node")
		require.NoError(t, err)
		assert.Equal(t, "3000", again.Port)
		assert.Equal(t, map[string]string{"NODE_ENV": "development"}, again.Environment)
		assert.Equal(t, map[string]string{"NODE_VERSION": "20"}, again.BuildArgs)
		assert.Equal(t, []string{"npm", "run", "dev"}, again.DevCommand)
		assert.Equal(t, []string{"node", "index.js"}, again.ProdCommand)
	})

	t.Run("concurrent cold lookups read once", func(t *testing.T) {
		fsys := newCountingFS(testTree())
		c := NewCatalog(fsys, zerolog.Nop())

		var wg sync.WaitGroup
		results := make([]*domain.Template, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tpl, err := c.GetTemplate("node")
				assert.NoError(t, err)
				results[i] = tpl
			}(i)
		}
		wg.Wait()

		for _, tpl := range results {
			assert.Equal(t, results[0], tpl)
		}
		assert.Equal(t, 1, fsys.count("node/template.yaml"))
	})

	t.Run("unknown app type is not found", func(t *testing.T) {
		c := NewCatalog(testTree(), zerolog.Nop())

		_, err := c.GetTemplate("cobol")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("path traversal is not found", func(t *testing.T) {
		c := NewCatalog(testTree(), zerolog.Nop())

		_, err := c.GetTemplate("../node")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("missing Dockerfile is not found", func(t *testing.T) {
		c := NewCatalog(testTree(), zerolog.Nop())

		_, err := c.GetTemplate("nodockerfile")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("malformed recipes are validation errors", func(t *testing.T) {
		c := NewCatalog(testTree(), zerolog.Nop())

		for _, appType := range []string{"broken", "extra", "empty"} {
			_, err := c.GetTemplate(appType)
			assert.True(t, domain.IsValidation(err), "app type %s: %v", appType, err)
		}
	})

	t.Run("failures are not cached", func(t *testing.T) {
		fsys := newCountingFS(testTree())
		c := NewCatalog(fsys, zerolog.Nop())

		_, err := c.GetTemplate("broken")
		require.Error(t, err)
		_, err = c.GetTemplate("broken")
		require.Error(t, err)

		assert.Equal(t, 2, fsys.count("broken/template.yaml"))
	})
}

func TestListTemplates(t *testing.T) {
	t.Run("lists directories only", func(t *testing.T) {
		c := NewCatalog(testTree(), zerolog.Nop())

		assert.Equal(t, []string{"broken", "empty", "extra", "node", "nodockerfile"}, c.ListTemplates())
	})

	t.Run("unreadable tree yields empty list", func(t *testing.T) {
		c := NewCatalog(brokenFS{}, zerolog.Nop())

		types := c.ListTemplates()
		assert.NotNil(t, types)
		assert.Empty(t, types)
	})
}

func TestEmbeddedCatalog(t *testing.T) {
	c := NewCatalog(Embedded(), zerolog.Nop())

	assert.Equal(t, []string{"nextjs", "nodejs", "reactjs"}, c.ListTemplates())

	for _, appType := range c.ListTemplates() {
		tpl, err := c.GetTemplate(appType)
		require.NoError(t, err, appType)
		assert.Equal(t, appType, tpl.Name)
		assert.NotEmpty(t, tpl.Port)
		assert.NotEmpty(t, tpl.ProdCommand)
		assert.Contains(t, tpl.Dockerfile, "FROM ")
	}
}

package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/auto-dns/dock-route/internal/domain"
)

const (
	recipeFile = "template.yaml"
	buildFile  = "Dockerfile"
)

//go:embed data
var embedded embed.FS

// Embedded returns the recipe tree shipped with the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

// Catalog loads build recipes from a read-only tree laid out as
// <appType>/template.yaml plus <appType>/Dockerfile. Loaded templates are
// cached for the lifetime of the catalog.
type Catalog struct {
	fsys   fs.FS
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*domain.Template
	group singleflight.Group
}

func NewCatalog(fsys fs.FS, logger zerolog.Logger) *Catalog {
	return &Catalog{
		fsys:   fsys,
		logger: logger,
		cache:  make(map[string]*domain.Template),
	}
}

// GetTemplate returns a copy of the template for appType, reading it from
// the tree on first use. Concurrent first lookups of the same key share a
// single read.
func (c *Catalog) GetTemplate(appType string) (*domain.Template, error) {
	if t, ok := c.cached(appType); ok {
		return t.Clone(), nil
	}

	v, err, _ := c.group.Do(appType, func() (interface{}, error) {
		if t, ok := c.cached(appType); ok {
			return t, nil
		}
		t, err := c.load(appType)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[appType] = t
		c.mu.Unlock()
		c.logger.Debug().Str("app_type", appType).Msg("Loaded template")
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Template).Clone(), nil
}

// ListTemplates returns the app types available in the tree. An unreadable
// tree yields an empty list.
func (c *Catalog) ListTemplates() []string {
	types := []string{}

	entries, err := fs.ReadDir(c.fsys, ".")
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to enumerate template catalog")
		return types
	}
	for _, entry := range entries {
		if entry.IsDir() {
			types = append(types, entry.Name())
		}
	}
	return types
}

func (c *Catalog) cached(appType string) (*domain.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.cache[appType]
	return t, ok
}

func (c *Catalog) load(appType string) (*domain.Template, error) {
	if appType == "" || strings.ContainsAny(appType, `/\`) || !fs.ValidPath(appType) {
		return nil, domain.NewNotFoundError("template", appType)
	}

	recipe, err := c.read(appType, recipeFile)
	if err != nil {
		return nil, err
	}

	var t domain.Template
	dec := yaml.NewDecoder(bytes.NewReader(recipe))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.NewValidationError(fmt.Sprintf("template %q: empty recipe", appType), nil)
		}
		return nil, domain.NewValidationError(fmt.Sprintf("template %q: malformed recipe", appType), err)
	}

	dockerfile, err := c.read(appType, buildFile)
	if err != nil {
		return nil, err
	}
	t.Dockerfile = string(dockerfile)
	if t.Name == "" {
		t.Name = appType
	}
	return &t, nil
}

func (c *Catalog) read(appType, name string) ([]byte, error) {
	data, err := fs.ReadFile(c.fsys, path.Join(appType, name))
	if err == nil {
		return data, nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
		return nil, domain.NewNotFoundError("template", appType+"/"+name)
	}
	return nil, domain.NewRuntimeError(fmt.Sprintf("read template %s/%s", appType, name), err)
}

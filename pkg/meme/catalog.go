package meme

import (
	"context"
	"sort"
	"strings"
)

// Catalog is the external owner of template data. Implementations must be
// safe for concurrent readers; templates handed out are never mutated.
type Catalog interface {
	// ByID returns the template whose primary id equals id (already
	// lowercased by the resolver). The bool reports whether it exists.
	ByID(ctx context.Context, id string) (*Template, bool, error)

	// ByAlias returns the template carrying the given alias.
	ByAlias(ctx context.Context, alias string) (*Template, bool, error)

	// List returns all templates ordered by id.
	List(ctx context.Context) ([]*Template, error)

	// Frames loads and decodes the template's source image frames.
	Frames(ctx context.Context, t *Template) (*FrameSet, error)
}

// MemoryCatalog is an in-memory Catalog for tests and embedded use.
type MemoryCatalog struct {
	byID    map[string]*Template
	byAlias map[string]*Template
	frames  map[string]*FrameSet
}

// NewMemoryCatalog builds a catalog from the given templates and their
// frame sets, keyed by template id.
func NewMemoryCatalog(templates []*Template, frames map[string]*FrameSet) *MemoryCatalog {
	c := &MemoryCatalog{
		byID:    make(map[string]*Template),
		byAlias: make(map[string]*Template),
		frames:  frames,
	}
	for _, t := range templates {
		c.byID[strings.ToLower(t.ID)] = t
		for _, a := range t.Aliases {
			c.byAlias[strings.ToLower(a)] = t
		}
	}
	return c
}

// ByID implements Catalog.
func (c *MemoryCatalog) ByID(_ context.Context, id string) (*Template, bool, error) {
	t, ok := c.byID[strings.ToLower(id)]
	return t, ok, nil
}

// ByAlias implements Catalog.
func (c *MemoryCatalog) ByAlias(_ context.Context, alias string) (*Template, bool, error) {
	t, ok := c.byAlias[strings.ToLower(alias)]
	return t, ok, nil
}

// List implements Catalog.
func (c *MemoryCatalog) List(_ context.Context) ([]*Template, error) {
	out := make([]*Template, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Frames implements Catalog.
func (c *MemoryCatalog) Frames(_ context.Context, t *Template) (*FrameSet, error) {
	if f, ok := c.frames[t.ID]; ok {
		return f, nil
	}
	return nil, errNoFrames(t.ID)
}

// Ensure MemoryCatalog implements Catalog.
var _ Catalog = (*MemoryCatalog)(nil)

package meme

import (
	"context"
	"image"
	"image/gif"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	// Base images are decoded through image.Decode.
	_ "image/jpeg"
	_ "image/png"

	"github.com/memebox/memebox/pkg/errors"
)

// descriptorFile is the per-template metadata file inside each template
// directory.
const descriptorFile = "template.toml"

// DirCatalog loads templates from a directory tree:
//
//	<root>/<id>/template.toml
//	<root>/<id>/<source image>
//
// Descriptors are read once at construction; source frames are decoded on
// demand. The catalog is read-only after NewDirCatalog returns and safe
// for concurrent use.
type DirCatalog struct {
	root    string
	byID    map[string]*Template
	byAlias map[string]*Template
	order   []string
}

// NewDirCatalog scans root and loads every template descriptor found.
// A directory without a descriptor file is skipped; a malformed
// descriptor fails the whole load so configuration errors surface at
// startup rather than per request.
func NewDirCatalog(root string) (*DirCatalog, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidTemplate, err, "read template dir %s", root)
	}

	c := &DirCatalog{
		root:    root,
		byID:    make(map[string]*Template),
		byAlias: make(map[string]*Template),
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), descriptorFile)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		t := &Template{ID: strings.ToLower(entry.Name())}
		if _, err := toml.DecodeFile(path, t); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidTemplate, err, "parse %s", path)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}

		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
		for _, a := range t.Aliases {
			c.byAlias[strings.ToLower(a)] = t
		}
	}

	sort.Strings(c.order)
	return c, nil
}

// Len returns the number of loaded templates.
func (c *DirCatalog) Len() int {
	return len(c.byID)
}

// ByID implements Catalog.
func (c *DirCatalog) ByID(_ context.Context, id string) (*Template, bool, error) {
	t, ok := c.byID[strings.ToLower(id)]
	return t, ok, nil
}

// ByAlias implements Catalog.
func (c *DirCatalog) ByAlias(_ context.Context, alias string) (*Template, bool, error) {
	t, ok := c.byAlias[strings.ToLower(alias)]
	return t, ok, nil
}

// List implements Catalog.
func (c *DirCatalog) List(_ context.Context) ([]*Template, error) {
	out := make([]*Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out, nil
}

// Frames implements Catalog. Animated GIF sources keep their per-frame
// timing and loop count; everything else decodes to a single frame.
func (c *DirCatalog) Frames(_ context.Context, t *Template) (*FrameSet, error) {
	path := filepath.Join(c.root, t.ID, t.Source)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "open source for template %s", t.ID)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(t.Source), ".gif") {
		g, err := gif.DecodeAll(f)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "decode gif for template %s", t.ID)
		}
		set := &FrameSet{
			Images:   make([]image.Image, len(g.Image)),
			Delays:   g.Delay,
			Disposal: g.Disposal,
			Loop:     g.LoopCount,
		}
		for i, frame := range g.Image {
			set.Images[i] = frame
		}
		return set, nil
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "decode source for template %s", t.ID)
	}
	return &FrameSet{Images: []image.Image{img}}, nil
}

// Ensure DirCatalog implements Catalog.
var _ Catalog = (*DirCatalog)(nil)

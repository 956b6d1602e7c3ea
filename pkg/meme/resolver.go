package meme

import (
	"context"
	"strings"

	"github.com/memebox/memebox/pkg/errors"
)

// Resolver maps a template identifier or alias to its descriptor.
// It is stateless indirection over a Catalog: case-insensitive, primary
// ids checked before aliases, nothing cached.
type Resolver struct {
	catalog Catalog
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the template for id, trying the primary id set first
// and the alias set second. It fails with a TEMPLATE_NOT_FOUND error when
// neither matches.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Template, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return nil, errors.New(errors.ErrCodeTemplateNotFound, "empty template id")
	}

	if t, ok, err := r.catalog.ByID(ctx, key); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "catalog lookup %q", key)
	} else if ok {
		return t, nil
	}

	if t, ok, err := r.catalog.ByAlias(ctx, key); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "catalog alias lookup %q", key)
	} else if ok {
		return t, nil
	}

	return nil, errors.New(errors.ErrCodeTemplateNotFound, "no template matches %q", id)
}

// errNoFrames is shared by catalog implementations.
func errNoFrames(id string) error {
	return errors.New(errors.ErrCodeRenderFailed, "no source frames for template %s", id)
}

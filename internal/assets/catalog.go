package assets

import (
	"context"
	"image"
	"io"
	"log/slog"
	"strings"
)

// Catalog routes references to the built-in or custom resolver and merges their listings.
// It satisfies compositor.TemplateLoader.
type Catalog struct {
	builtin Resolver
	custom  Resolver
	logger  *slog.Logger
}

type CatalogOption func(*Catalog)

// WithCustom adds the object-store resolver. Without it custom references are not found.
func WithCustom(r Resolver) CatalogOption {
	return func(c *Catalog) { c.custom = r }
}

func WithLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCatalog(builtin Resolver, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		builtin: builtin,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) LoadTemplate(ctx context.Context, ref string) (image.Image, error) {
	r := c.route(ref)
	if r == nil {
		return nil, notFound(ref)
	}
	img, err := r.LoadTemplate(ctx, ref)
	if err != nil {
		c.logger.Warn("template load failed", "ref", ref, "error", err)
		return nil, err
	}
	return img, nil
}

// List возвращает сначала встроенные шаблоны, затем пользовательские рамки.
// Если хранилище недоступно, пропадают только пользовательские.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	entries, err := c.builtin.List(ctx)
	if err != nil {
		return nil, err
	}
	if c.custom == nil {
		return entries, nil
	}
	custom, err := c.custom.List(ctx)
	if err != nil {
		c.logger.Warn("custom frames unavailable", "error", err)
		return entries, nil
	}
	return append(entries, custom...), nil
}

func (c *Catalog) route(ref string) Resolver {
	if strings.HasPrefix(strings.TrimPrefix(strings.TrimSpace(ref), "./"), CustomPrefix) {
		return c.custom
	}
	return c.builtin
}

// Package compositor merges captured frames into a layout and overlays the template artwork.
package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/photobooth/internal/analyzer"
	"github.com/ivlev/photobooth/internal/layout"
	"github.com/ivlev/photobooth/internal/system"
)

var (
	// ErrTemplateLoad means the template asset could not be fetched or decoded.
	ErrTemplateLoad = errors.New("template load failed")
	// ErrCanvas means the output surface could not be allocated.
	ErrCanvas = errors.New("canvas unavailable")
	// ErrFrameDecode means a captured frame is not a decodable image.
	ErrFrameDecode = errors.New("frame decode failed")
)

// MaxCanvasPixels bounds the output surface.
const MaxCanvasPixels = 64 << 20

// TemplateLoader fetches and decodes template artwork by reference.
type TemplateLoader interface {
	LoadTemplate(ctx context.Context, ref string) (image.Image, error)
}

// Request is everything one composite needs. It is not modified by Compose.
type Request struct {
	Frames           [][]byte // encoded frames in capture order
	LayoutID         string
	TemplateOverride string // empty means the layout's default template
}

// Compositor owns no session state; one instance may serve concurrent requests.
type Compositor struct {
	layouts   *layout.Registry
	templates TemplateLoader
	pool      *system.SurfacePool
	kernel    draw.Transformer
	verify    bool
	tolerance int
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithKernel sets the resampling kernel used for photos. Defaults to CatmullRom.
func WithKernel(k draw.Transformer) Option {
	return func(c *Compositor) { c.kernel = k }
}

// WithAlignmentCheck rejects templates whose cut-outs do not fit the layout slots.
func WithAlignmentCheck(tolerance int) Option {
	return func(c *Compositor) {
		c.verify = true
		c.tolerance = tolerance
	}
}

func New(layouts *layout.Registry, templates TemplateLoader, opts ...Option) *Compositor {
	c := &Compositor{
		layouts:   layouts,
		templates: templates,
		pool:      system.NewSurfacePool(),
		kernel:    draw.CatmullRom,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose draws the frames into their slots, overlays the template and returns a PNG.
// Frames beyond the layout's slot count are ignored; missing frames leave their slots empty.
func (c *Compositor) Compose(ctx context.Context, req Request) ([]byte, error) {
	l, err := c.layouts.Resolve(req.LayoutID)
	if err != nil {
		return nil, err
	}
	ref := req.TemplateOverride
	if ref == "" {
		ref = l.Template
	}

	frames := req.Frames
	if len(frames) > len(l.Slots) {
		frames = frames[:len(l.Slots)]
	}

	// Декодируем все параллельно, рисуем только после загрузки всего
	var tmpl image.Image
	photos := make([]image.Image, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := c.templates.LoadTemplate(gctx, ref)
		if err != nil {
			if errors.Is(err, ErrTemplateLoad) {
				return err
			}
			return fmt.Errorf("%w: %s: %v", ErrTemplateLoad, ref, err)
		}
		if img == nil {
			return fmt.Errorf("%w: %s: loader returned no image", ErrTemplateLoad, ref)
		}
		tmpl = img
		return nil
	})
	for i, data := range frames {
		g.Go(func() error {
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("%w: frame %d: %v", ErrFrameDecode, i, err)
			}
			photos[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tb := tmpl.Bounds()
	if tb.Dx() != l.CanvasWidth || tb.Dy() != l.CanvasHeight {
		return nil, fmt.Errorf("%w: %s is %dx%d, layout %s expects %dx%d",
			ErrTemplateLoad, ref, tb.Dx(), tb.Dy(), l.ID, l.CanvasWidth, l.CanvasHeight)
	}
	if c.verify {
		if err := analyzer.Verify(l, tmpl, c.tolerance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
		}
	}

	surface, err := c.allocate(tb.Dx(), tb.Dy())
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(surface)

	// Сначала фото по порядку слотов, затем шаблон поверх
	for i, img := range photos {
		drawCover(surface, img, l.Slots[i], c.kernel)
	}
	draw.Draw(surface, surface.Bounds(), tmpl, tb.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, surface); err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Compositor) allocate(w, h int) (surface *image.RGBA, err error) {
	if w <= 0 || h <= 0 || w*h > MaxCanvasPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrCanvas, w, h)
	}
	defer func() {
		if r := recover(); r != nil {
			surface, err = nil, fmt.Errorf("%w: %v", ErrCanvas, r)
		}
	}()
	return c.pool.Get(image.Rect(0, 0, w, h)), nil
}

// Package capture turns the current frame of a video source into an encoded still.
package capture

import (
	"bytes"
	"fmt"
	"image"
	stddraw "image/draw"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/photobooth/internal/filter"
	"github.com/ivlev/photobooth/internal/layout"
	"github.com/ivlev/photobooth/internal/source"
)

// DefaultQuality is the JPEG quality used for captured frames.
const DefaultQuality = 95

// Frame is one captured still. Data holds the JPEG bytes and must not be modified once returned.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// Options control a single capture.
type Options struct {
	Mirror  bool
	Filter  filter.Filter
	Crop    layout.Aspect // zero value disables cropping
	Quality int           // JPEG quality, DefaultQuality when 0
}

// Capture берет текущий кадр src, отражает, применяет фильтр, обрезает по центру и кодирует в JPEG
func Capture(src source.Source, opts Options) (Frame, error) {
	w, h := src.Dimensions()
	if w <= 0 || h <= 0 {
		return Frame{}, source.ErrSourceUnavailable
	}
	img, err := src.CurrentFrame()
	if err != nil {
		return Frame{}, err
	}
	if img == nil || img.Bounds().Empty() {
		return Frame{}, source.ErrSourceUnavailable
	}

	out := Process(img, opts)

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}

	b := out.Bounds()
	return Frame{
		Data:      buf.Bytes(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: time.Now(),
	}, nil
}

// Process прогоняет пиксели без кодирования: зеркало, фильтр, обрезка
func Process(img image.Image, opts Options) *image.RGBA {
	var rgba *image.RGBA
	if opts.Mirror {
		rgba = Mirror(img)
	} else {
		rgba = toRGBA(img)
	}
	if len(opts.Filter) > 0 {
		rgba = opts.Filter.Apply(rgba)
	}

	b := rgba.Bounds()
	g := CropGeometry(b.Dx(), b.Dy(), opts.Crop)
	if g.Rect.Size() == b.Size() {
		return rgba
	}
	cropped := image.NewRGBA(image.Rect(0, 0, g.Rect.Dx(), g.Rect.Dy()))
	stddraw.Draw(cropped, cropped.Bounds(), rgba, b.Min.Add(g.Rect.Min), stddraw.Src)
	return cropped
}

// Mirror отражает img по вертикальной оси в новый RGBA с началом в нуле
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	// отражение: x' = width - (x - minX); y' = y - minY
	s2d := f64.Aff3{
		-1, 0, float64(b.Dx() + b.Min.X),
		0, 1, float64(-b.Min.Y),
	}
	draw.NearestNeighbor.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

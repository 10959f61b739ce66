package compositor

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/photobooth/internal/layout"
)

// Placement is where a frame is drawn, in canvas pixels, before clipping to its slot.
type Placement struct {
	X, Y, W, H float64
}

// CoverFit scales an image of aspect imgAspect so it fills slot completely,
// centering the overflow. Wider images fit the slot height; everything else fits the width.
func CoverFit(slot layout.Slot, imgAspect float64) Placement {
	sx, sy := float64(slot.X), float64(slot.Y)
	sw, sh := float64(slot.W), float64(slot.H)

	if imgAspect > slot.Aspect() {
		w := sh * imgAspect
		return Placement{X: sx - (w-sw)/2, Y: sy, W: w, H: sh}
	}
	h := sw / imgAspect
	return Placement{X: sx, Y: sy - (h-sh)/2, W: sw, H: h}
}

// drawCover рисует src в dst с заполнением слота и обрезкой по его прямоугольнику
func drawCover(dst *image.RGBA, src image.Image, slot layout.Slot, kernel draw.Transformer) {
	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	p := CoverFit(slot, float64(sb.Dx())/float64(sb.Dy()))

	clip, ok := dst.SubImage(slot.Rect().Intersect(dst.Bounds())).(*image.RGBA)
	if !ok || clip.Bounds().Empty() {
		return
	}

	scaleX := p.W / float64(sb.Dx())
	scaleY := p.H / float64(sb.Dy())
	s2d := f64.Aff3{
		scaleX, 0, p.X - float64(sb.Min.X)*scaleX,
		0, scaleY, p.Y - float64(sb.Min.Y)*scaleY,
	}
	kernel.Transform(clip, s2d, src, sb, draw.Over, nil)
}

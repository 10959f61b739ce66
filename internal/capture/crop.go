package capture

import (
	"image"
	"math"

	"github.com/ivlev/photobooth/internal/layout"
)

// Geometry is the centered horizontal crop of a source frame.
//
// ContentWidth and OffsetX are exact. Rect is the pixel region actually copied:
// its width is ContentWidth rounded half away from zero and it is centered with
// integer division, so it never drifts more than half a pixel from the exact crop.
type Geometry struct {
	ContentWidth float64
	OffsetX      float64
	Rect         image.Rectangle
}

// CropGeometry считает обрезку кадра srcW x srcH под нужные пропорции.
// Если цель не уже исходника, кадр остается целым.
func CropGeometry(srcW, srcH int, target layout.Aspect) Geometry {
	full := Geometry{
		ContentWidth: float64(srcW),
		Rect:         image.Rect(0, 0, srcW, srcH),
	}
	if target.IsZero() || srcH <= 0 {
		return full
	}
	// target.W/target.H < srcW/srcH, сравниваем без деления
	if target.W*srcH >= srcW*target.H {
		return full
	}

	contentWidth := float64(srcH) * target.Ratio()
	outW := int(math.Round(contentWidth))
	if outW < 1 {
		outW = 1
	}
	x := (srcW - outW) / 2
	return Geometry{
		ContentWidth: contentWidth,
		OffsetX:      (float64(srcW) - contentWidth) / 2,
		Rect:         image.Rect(x, 0, x+outW, srcH),
	}
}

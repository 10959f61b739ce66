// Package analyzer inspects template artwork for the transparent cut-outs photos show through.
package analyzer

import (
	"image"
	"sort"
)

// Cutout is one connected transparent region of a template.
type Cutout struct {
	Rect image.Rectangle // bounding box
	Area int             // transparent pixels in the region
}

// Detector finds cut-outs in template artwork.
type Detector struct {
	AlphaThreshold uint8 // pixels with alpha at or below this are transparent
	MinArea        int   // smaller regions are ignored (stray antialiasing)
}

// NewDetector создает детектор с настройками по умолчанию
func NewDetector() *Detector {
	return &Detector{
		AlphaThreshold: 16,
		MinArea:        400, // 20x20
	}
}

// Detect возвращает вырезы сверху вниз, затем слева направо
func (d *Detector) Detect(img image.Image) []Cutout {
	mask := transparencyMask(img, d.AlphaThreshold)
	b := img.Bounds()

	var cutouts []Cutout
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if !mask.open(x, y) {
				continue
			}
			rect, area := mask.floodFill(x, y)
			if area >= d.MinArea {
				cutouts = append(cutouts, Cutout{Rect: rect.Add(b.Min), Area: area})
			}
		}
	}

	sort.Slice(cutouts, func(i, j int) bool {
		if cutouts[i].Rect.Min.Y != cutouts[j].Rect.Min.Y {
			return cutouts[i].Rect.Min.Y < cutouts[j].Rect.Min.Y
		}
		return cutouts[i].Rect.Min.X < cutouts[j].Rect.Min.X
	})
	return cutouts
}

// mask отмечает прозрачные пиксели в координатах от нуля. Посещенные пиксели сбрасываются.
type mask struct {
	w, h int
	bits []bool
}

func transparencyMask(img image.Image, threshold uint8) *mask {
	b := img.Bounds()
	m := &mask{w: b.Dx(), h: b.Dy(), bits: make([]bool, b.Dx()*b.Dy())}

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < m.h; y++ {
			row := nrgba.Pix[y*nrgba.Stride:]
			for x := 0; x < m.w; x++ {
				m.bits[y*m.w+x] = row[x*4+3] <= threshold
			}
		}
		return m
	}

	limit := uint32(threshold) * 0x101
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.bits[y*m.w+x] = a <= limit
		}
	}
	return m
}

func (m *mask) open(x, y int) bool {
	return m.bits[y*m.w+x]
}

// floodFill заливает 4-связную область в (x, y) и возвращает ее границы и площадь
func (m *mask) floodFill(startX, startY int) (image.Rectangle, int) {
	minX, minY := startX, startY
	maxX, maxY := startX, startY
	area := 0

	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := p.X, p.Y
		if x < 0 || x >= m.w || y < 0 || y >= m.h || !m.open(x, y) {
			continue
		}
		m.bits[y*m.w+x] = false
		area++

		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}

		stack = append(stack,
			image.Point{X: x + 1, Y: y},
			image.Point{X: x - 1, Y: y},
			image.Point{X: x, Y: y + 1},
			image.Point{X: x, Y: y - 1},
		)
	}

	return image.Rect(minX, minY, maxX+1, maxY+1), area
}

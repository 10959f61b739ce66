package analyzer

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ivlev/photobooth/internal/layout"
)

// template returns an opaque canvas with fully transparent holes.
func template(w, h int, holes ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 240, G: 220, B: 200, A: 255})
		}
	}
	for _, r := range holes {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	return img
}

func TestDetectCutouts(t *testing.T) {
	holes := []image.Rectangle{
		image.Rect(10, 60, 90, 100),
		image.Rect(10, 10, 90, 50),
		image.Rect(0, 0, 3, 3), // too small
	}
	img := template(100, 110, holes...)

	cutouts := NewDetector().Detect(img)
	if len(cutouts) != 2 {
		t.Fatalf("Expected 2 cut-outs, got %d: %v", len(cutouts), cutouts)
	}
	if cutouts[0].Rect != holes[1] || cutouts[1].Rect != holes[0] {
		t.Errorf("cut-outs out of order or wrong: %v", cutouts)
	}
	if cutouts[0].Area != 80*40 {
		t.Errorf("Area = %d, want %d", cutouts[0].Area, 80*40)
	}
}

func TestCheckAlignment(t *testing.T) {
	l := layout.Layout{
		ID:           "pair",
		CanvasWidth:  100,
		CanvasHeight: 110,
		Slots: []layout.Slot{
			{X: 10, Y: 10, W: 80, H: 40},
			{X: 10, Y: 60, W: 80, H: 40},
		},
	}

	tests := []struct {
		name     string
		holes    []image.Rectangle
		problems int
	}{
		{"exact", []image.Rectangle{image.Rect(10, 10, 90, 50), image.Rect(10, 60, 90, 100)}, 0},
		{"inset cut-outs", []image.Rectangle{image.Rect(14, 14, 86, 46), image.Rect(14, 64, 86, 96)}, 0},
		{"missing hole", []image.Rectangle{image.Rect(10, 10, 90, 50)}, 1},
		{"hole too big", []image.Rectangle{image.Rect(10, 10, 90, 50), image.Rect(5, 60, 95, 100)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := template(100, 110, tt.holes...)
			got := CheckAlignment(l, NewDetector().Detect(img), 0)
			if len(got) != tt.problems {
				t.Errorf("Expected %d problems, got %v", tt.problems, got)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	l := layout.Layout{
		ID:           "single",
		CanvasWidth:  50,
		CanvasHeight: 50,
		Slots:        []layout.Slot{{X: 5, Y: 5, W: 40, H: 40}},
	}
	if err := Verify(l, template(50, 50, image.Rect(5, 5, 45, 45)), 0); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	err := Verify(l, template(50, 50), 0)
	var alignErr *AlignmentError
	if !errors.As(err, &alignErr) {
		t.Fatalf("Expected *AlignmentError, got %v", err)
	}
	if len(alignErr.Problems) != 1 || alignErr.Problems[0].Slot != 0 {
		t.Errorf("problems = %v", alignErr.Problems)
	}
}

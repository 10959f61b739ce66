package layout

import (
	"fmt"
	"image"
)

// Slot is a rectangle in canvas pixels that receives one captured photo.
type Slot struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// Rect returns the slot as an image.Rectangle.
func (s Slot) Rect() image.Rectangle {
	return image.Rect(s.X, s.Y, s.X+s.W, s.Y+s.H)
}

// Aspect returns width divided by height.
func (s Slot) Aspect() float64 {
	if s.H == 0 {
		return 0
	}
	return float64(s.W) / float64(s.H)
}

// Orientation is the axis along which slots are stacked.
type Orientation string

const (
	// Row: слоты слева направо
	Row Orientation = "row"
	// Column: слоты сверху вниз
	Column Orientation = "column"
)

// Grid describes equally sized slots stacked along one axis.
type Grid struct {
	Orientation Orientation `yaml:"orientation"`
	Count       int         `yaml:"count"`
	Margin      int         `yaml:"margin"` // leading offset on the stacking axis
	Gap         int         `yaml:"gap"`
	SlotWidth   int         `yaml:"slot_width"`
	SlotHeight  int         `yaml:"slot_height"`
	Offset      int         `yaml:"offset"` // fixed position on the cross axis
}

// Validate отсекает некорректные сетки
func (g Grid) Validate() error {
	switch g.Orientation {
	case Row, Column:
	default:
		return fmt.Errorf("unknown orientation: %q", g.Orientation)
	}
	if g.Count < 1 {
		return fmt.Errorf("slot count must be >= 1, got %d", g.Count)
	}
	if g.SlotWidth <= 0 || g.SlotHeight <= 0 {
		return fmt.Errorf("slot size must be positive, got %dx%d", g.SlotWidth, g.SlotHeight)
	}
	if g.Margin < 0 || g.Gap < 0 || g.Offset < 0 {
		return fmt.Errorf("margin, gap and offset must be >= 0")
	}
	return nil
}

// Slots выводит слот i как margin + i*(size+gap) вдоль оси.
// Результат должен совпадать с шаблоном до пикселя, поэтому считаем в целых.
func (g Grid) Slots() []Slot {
	if g.Count < 1 {
		return nil
	}
	slots := make([]Slot, g.Count)
	for i := range slots {
		s := Slot{W: g.SlotWidth, H: g.SlotHeight}
		switch g.Orientation {
		case Column:
			s.X = g.Offset
			s.Y = g.Margin + i*(g.SlotHeight+g.Gap)
		default:
			s.X = g.Margin + i*(g.SlotWidth+g.Gap)
			s.Y = g.Offset
		}
		slots[i] = s
	}
	return slots
}

// Package layout holds the named canvas layouts a session composes into.
package layout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLayout is returned when a layout identifier is not registered.
var ErrUnknownLayout = errors.New("unknown layout")

// Built-in layout identifiers.
const (
	Horizontal = "horizontal"
	Vertical   = "vertical"
	Strip4     = "strip_4"
)

// Aspect is an exact width:height ratio. The zero value means "no crop".
type Aspect struct {
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// IsZero: пропорции не заданы
func (a Aspect) IsZero() bool { return a.W == 0 || a.H == 0 }

// Ratio returns W/H, or 0 for the zero aspect.
func (a Aspect) Ratio() float64 {
	if a.IsZero() {
		return 0
	}
	return float64(a.W) / float64(a.H)
}

func (a Aspect) String() string {
	if a.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%d:%d", a.W, a.H)
}

// Layout is a canvas with an ordered list of slots. Slot i receives the i-th captured frame.
type Layout struct {
	ID            string
	CanvasWidth   int
	CanvasHeight  int
	Template      string // default template asset reference
	CaptureAspect Aspect // frames are center-cropped to this aspect before compositing
	Slots         []Slot
}

// Shots это число снимков для раскладки
func (l Layout) Shots() int { return len(l.Slots) }

// Validate checks that every slot is non-empty and lies inside the canvas.
func (l Layout) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return errors.New("layout id is required")
	}
	if l.CanvasWidth <= 0 || l.CanvasHeight <= 0 {
		return fmt.Errorf("layout %s: canvas must be positive, got %dx%d", l.ID, l.CanvasWidth, l.CanvasHeight)
	}
	if len(l.Slots) == 0 {
		return fmt.Errorf("layout %s: no slots", l.ID)
	}
	for i, s := range l.Slots {
		if s.W <= 0 || s.H <= 0 {
			return fmt.Errorf("layout %s: slot %d is empty", l.ID, i)
		}
		if s.X < 0 || s.Y < 0 || s.X+s.W > l.CanvasWidth || s.Y+s.H > l.CanvasHeight {
			return fmt.Errorf("layout %s: slot %d %v outside %dx%d canvas", l.ID, i, s.Rect(), l.CanvasWidth, l.CanvasHeight)
		}
	}
	return nil
}

func (l Layout) clone() Layout {
	c := l
	c.Slots = append([]Slot(nil), l.Slots...)
	return c
}

// Definition is the declarative form of a layout, as written in config files.
type Definition struct {
	ID            string `yaml:"id"`
	CanvasWidth   int    `yaml:"canvas_width"`
	CanvasHeight  int    `yaml:"canvas_height"`
	Template      string `yaml:"template"`
	CaptureAspect Aspect `yaml:"capture_aspect"`
	Grid          Grid   `yaml:"grid"`
}

// Build выводит слоты из d и проверяет результат
func (d Definition) Build() (Layout, error) {
	if err := d.Grid.Validate(); err != nil {
		return Layout{}, fmt.Errorf("layout %s: %w", d.ID, err)
	}
	l := Layout{
		ID:            d.ID,
		CanvasWidth:   d.CanvasWidth,
		CanvasHeight:  d.CanvasHeight,
		Template:      d.Template,
		CaptureAspect: d.CaptureAspect,
		Slots:         d.Grid.Slots(),
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Builtins возвращает встроенные раскладки. Числа сняты с макетов шаблонов.
func Builtins() []Definition {
	return []Definition{
		{
			ID:           Horizontal,
			CanvasWidth:  1920,
			CanvasHeight: 1080,
			Template:     "1x3/template_h.png",
			Grid: Grid{
				Orientation: Row,
				Count:       3,
				Margin:      142,
				Gap:         27,
				SlotWidth:   527,
				SlotHeight:  349,
				Offset:      531,
			},
		},
		{
			ID:            Vertical,
			CanvasWidth:   1080,
			CanvasHeight:  1920,
			Template:      "1x3/template_v.png",
			CaptureAspect: Aspect{W: 9, H: 16},
			Grid: Grid{
				Orientation: Column,
				Count:       3,
				Margin:      140,
				Gap:         26,
				SlotWidth:   349,
				SlotHeight:  529,
				Offset:      531,
			},
		},
		{
			ID:           Strip4,
			CanvasWidth:  880,
			CanvasHeight: 2650,
			Template:     "1x4/1x4_default.png",
			Grid: Grid{
				Orientation: Column,
				Count:       4,
				Margin:      64,
				Gap:         47,
				SlotWidth:   770,
				SlotHeight:  565,
				Offset:      55,
			},
		},
	}
}

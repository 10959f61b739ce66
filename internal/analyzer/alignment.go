package analyzer

import (
	"fmt"
	"image"
	"strings"

	"github.com/ivlev/photobooth/internal/layout"
)

// Misalignment describes a slot whose photo would not line up with the template.
type Misalignment struct {
	Slot   int
	Rect   image.Rectangle
	Reason string
}

func (m Misalignment) String() string {
	return fmt.Sprintf("slot %d %v: %s", m.Slot, m.Rect, m.Reason)
}

// CheckAlignment verifies that every slot shows through some cut-out and
// that no cut-out touching a slot extends past it (which would leave a transparent gap).
// tolerance widens each slot by that many pixels before the containment test.
func CheckAlignment(l layout.Layout, cutouts []Cutout, tolerance int) []Misalignment {
	var problems []Misalignment
	for i, s := range l.Slots {
		slot := s.Rect()
		bounds := slot.Inset(-tolerance)
		touched := false
		for _, c := range cutouts {
			if !c.Rect.Overlaps(slot) {
				continue
			}
			touched = true
			if !c.Rect.In(bounds) {
				problems = append(problems, Misalignment{
					Slot:   i,
					Rect:   slot,
					Reason: fmt.Sprintf("cut-out %v extends past the slot", c.Rect),
				})
			}
		}
		if !touched {
			problems = append(problems, Misalignment{Slot: i, Rect: slot, Reason: "no transparent cut-out over the slot"})
		}
	}
	return problems
}

// AlignmentError bundles misalignments into one error.
type AlignmentError struct {
	Layout   string
	Problems []Misalignment
}

func (e *AlignmentError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("template does not match layout %s: %s", e.Layout, strings.Join(parts, "; "))
}

// Verify ищет вырезы в tmpl и возвращает *AlignmentError, если раскладка l в них не попадает
func Verify(l layout.Layout, tmpl image.Image, tolerance int) error {
	problems := CheckAlignment(l, NewDetector().Detect(tmpl), tolerance)
	if len(problems) == 0 {
		return nil
	}
	return &AlignmentError{Layout: l.ID, Problems: problems}
}

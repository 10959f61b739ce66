// Package filter interprets cosmetic filter tokens such as
// "brightness(1.08) contrast(1.04) saturate(0.95)" and applies them to captured frames.
package filter

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/gift"
)

// ErrUnknownFilter is returned for unsupported functions or malformed tokens.
var ErrUnknownFilter = errors.New("unknown filter")

// Op is one filter function with its amount.
type Op struct {
	Name   string
	Amount float64
}

// Filter is an ordered chain of operations. The empty chain is the identity.
type Filter []Op

// None is the identity filter.
var None Filter

var defaults = map[string]float64{
	"brightness": 1,
	"contrast":   1,
	"saturate":   1,
	"grayscale":  1,
	"sepia":      1,
	"blur":       0,
}

// Parse reads a whitespace separated list of fn(arg) calls. "none" and "" yield the identity.
func Parse(token string) (Filter, error) {
	token = strings.TrimSpace(token)
	if token == "" || token == "none" {
		return None, nil
	}

	var f Filter
	rest := token
	for rest != "" {
		open := strings.IndexByte(rest, '(')
		closing := strings.IndexByte(rest, ')')
		if open <= 0 || closing < open {
			return nil, fmt.Errorf("%w: malformed %q", ErrUnknownFilter, rest)
		}
		name := strings.ToLower(strings.TrimSpace(rest[:open]))
		def, ok := defaults[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		amount, err := parseAmount(strings.TrimSpace(rest[open+1:closing]), def, name == "blur")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnknownFilter, name, err)
		}
		f = append(f, Op{Name: name, Amount: amount})
		rest = strings.TrimSpace(rest[closing+1:])
	}
	return f, nil
}

func parseAmount(arg string, def float64, length bool) (float64, error) {
	if arg == "" {
		return def, nil
	}
	scale := 1.0
	switch {
	case length:
		arg = strings.TrimSuffix(arg, "px")
	case strings.HasSuffix(arg, "%"):
		arg = strings.TrimSuffix(arg, "%")
		scale = 0.01
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative amount %v", v)
	}
	return v * scale, nil
}

// String renders the chain back into token form.
func (f Filter) String() string {
	if len(f) == 0 {
		return "none"
	}
	parts := make([]string, len(f))
	for i, op := range f {
		if op.Name == "blur" {
			parts[i] = fmt.Sprintf("blur(%gpx)", op.Amount)
			continue
		}
		parts[i] = fmt.Sprintf("%s(%g)", op.Name, op.Amount)
	}
	return strings.Join(parts, " ")
}

// Apply runs the chain over img and returns a new RGBA image with the same bounds.
// The identity filter still returns a copy so callers may mutate the result.
func (f Filter) Apply(img image.Image) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	f.gift().Draw(out, img)
	return out
}

// gift собирает цепочку фильтров. gift работает с непремультиплицированными
// каналами в [0,1] и сам ограничивает результат, так что цвет не превышает альфу.
func (f Filter) gift() *gift.GIFT {
	g := gift.New()
	for _, op := range f {
		switch op.Name {
		case "brightness":
			a := float32(op.Amount)
			g.Add(channels(func(v float32) float32 { return v * a }))
		case "contrast":
			a := float32(op.Amount)
			g.Add(channels(func(v float32) float32 { return (v-0.5)*a + 0.5 }))
		case "saturate":
			g.Add(matrix(saturateMatrix(float32(op.Amount))))
		case "grayscale":
			g.Add(matrix(grayscaleMatrix(float32(math.Min(op.Amount, 1)))))
		case "sepia":
			g.Add(gift.Sepia(float32(math.Min(op.Amount, 1) * 100)))
		case "blur":
			if op.Amount > 0 {
				g.Add(gift.GaussianBlur(float32(op.Amount)))
			}
		}
	}
	return g
}

func channels(fn func(v float32) float32) gift.Filter {
	return gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
		return fn(r), fn(g), fn(b), a
	})
}

// Матрицы как у CSS filter: коэффициенты яркости Rec.709, а не 0.299/0.587/0.114 из gift.Grayscale.
type mat3 [9]float32

func matrix(m mat3) gift.Filter {
	return gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
		return m[0]*r + m[1]*g + m[2]*b,
			m[3]*r + m[4]*g + m[5]*b,
			m[6]*r + m[7]*g + m[8]*b,
			a
	})
}

func saturateMatrix(s float32) mat3 {
	return mat3{
		0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s,
	}
}

func grayscaleMatrix(a float32) mat3 {
	s := 1 - a
	return mat3{
		0.2126 + 0.7874*s, 0.7152 - 0.7152*s, 0.0722 - 0.0722*s,
		0.2126 - 0.2126*s, 0.7152 + 0.2848*s, 0.0722 - 0.0722*s,
		0.2126 - 0.2126*s, 0.7152 - 0.7152*s, 0.0722 + 0.9278*s,
	}
}

package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// DefaultPDFDPI renders PDF artwork at its natural point size.
const DefaultPDFDPI = 72

// Dir serves built-in templates from a directory tree. References are slash paths
// relative to the root, e.g. "1x3/template_h.png".
type Dir struct {
	root string
	dpi  int
}

func NewDir(root string, pdfDPI int) *Dir {
	if pdfDPI <= 0 {
		pdfDPI = DefaultPDFDPI
	}
	return &Dir{root: root, dpi: pdfDPI}
}

func (d *Dir) LoadTemplate(ctx context.Context, ref string) (image.Image, error) {
	rel, ok := cleanRef(ref)
	if !ok || strings.HasPrefix(rel, CustomPrefix) {
		return nil, notFound(ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := filepath.Join(d.root, filepath.FromSlash(rel))

	if strings.EqualFold(path.Ext(rel), ".pdf") {
		return d.renderPDF(p, ref)
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(ref)
		}
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return img, nil
}

// renderPDF растрирует первую страницу с заданным DPI через go-fitz
func (d *Dir) renderPDF(p, ref string) (image.Image, error) {
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(ref)
		}
		return nil, err
	}
	doc, err := fitz.New(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	defer doc.Close()
	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%s has no pages", ref)
	}
	img, err := doc.ImageDPI(0, float64(d.dpi))
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", ref, err)
	}
	return img, nil
}

// List обходит папку и собирает шаблоны, отсортированные по ссылке
func (d *Dir) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() || !Supported(de.Name()) {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		ref := filepath.ToSlash(rel)
		if strings.HasPrefix(ref, CustomPrefix) {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Ref:      ref,
			Name:     displayName(ref),
			Origin:   Builtin,
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list templates in %s: %w", d.root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ref < entries[j].Ref })
	return entries, nil
}

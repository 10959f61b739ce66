// Package assets resolves template artwork references into decoded images.
//
// Built-in templates live in a directory next to the binary. Custom frames live in an
// object store and are addressed as "custom/<name>". Catalog merges both.
package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
)

// ErrNotFound means no asset exists under the reference.
var ErrNotFound = errors.New("asset not found")

// CustomPrefix marks references served from the object store.
const CustomPrefix = "custom/"

type Origin string

const (
	Builtin Origin = "builtin"
	Custom  Origin = "custom"
)

// Entry is one selectable template.
type Entry struct {
	Ref      string
	Name     string
	Origin   Origin
	Modified time.Time
}

// Resolver loads templates and lists what it can load.
type Resolver interface {
	LoadTemplate(ctx context.Context, ref string) (image.Image, error)
	List(ctx context.Context) ([]Entry, error)
}

var supported = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".pdf":  true,
}

// Supported проверяет, что расширение файла подходит для шаблона
func Supported(name string) bool {
	return supported[strings.ToLower(path.Ext(name))]
}

// cleanRef нормализует ссылку и не дает выйти за пределы корня
func cleanRef(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	c := path.Clean("/" + ref)[1:]
	if c == "" || c != strings.TrimPrefix(path.Clean(ref), "./") {
		return "", false
	}
	return c, true
}

func displayName(ref string) string {
	base := path.Base(ref)
	return strings.TrimSuffix(base, path.Ext(base))
}

func notFound(ref string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, ref)
}

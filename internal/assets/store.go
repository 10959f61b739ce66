package assets

import (
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/ivlev/photobooth/internal/objectstore"
)

// ObjectStore is the part of objectstore.MinioStore the frame resolver uses.
type ObjectStore interface {
	List(ctx context.Context) ([]objectstore.ObjectInfo, error)
	Get(ctx context.Context, name string) (io.ReadCloser, objectstore.ObjectInfo, error)
}

// Store отдает пользовательские рамки из объектного хранилища
type Store struct {
	objects ObjectStore
	missing func(error) bool
}

func NewStore(objects ObjectStore) *Store {
	return &Store{objects: objects, missing: objectstore.IsNotFound}
}

func (s *Store) LoadTemplate(ctx context.Context, ref string) (image.Image, error) {
	rel, ok := cleanRef(ref)
	if !ok || !strings.HasPrefix(rel, CustomPrefix) {
		return nil, notFound(ref)
	}
	name := strings.TrimPrefix(rel, CustomPrefix)

	rc, _, err := s.objects.Get(ctx, name)
	if err != nil {
		if s.missing(err) {
			return nil, notFound(ref)
		}
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer rc.Close()

	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return img, nil
}

// List возвращает рамки от новых к старым. PDF пропускаем.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	objs, err := s.objects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom frames: %w", err)
	}
	entries := make([]Entry, 0, len(objs))
	for _, o := range objs {
		if !Supported(o.Key) || strings.EqualFold(path.Ext(o.Key), ".pdf") {
			continue
		}
		ref := CustomPrefix + o.Key
		entries = append(entries, Entry{
			Ref:      ref,
			Name:     displayName(ref),
			Origin:   Custom,
			Modified: o.LastModified,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

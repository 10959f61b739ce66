package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "golang.org/x/image/webp"
)

// ImageSource отдает снимки с диска как кадры камеры.
// Каждый вызов CurrentFrame переходит к следующему файлу, после последнего снова к первому.
type ImageSource struct {
	mu    sync.Mutex
	paths []string
	next  int
	w, h  int
}

// NewImageSource принимает один файл или папку с .jpg/.jpeg/.png/.webp
func NewImageSource(path string) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImage(entry.Name()) {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", path)
	}

	s := &ImageSource{paths: paths}
	s.w, s.h = probe(paths[0])
	return s, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

func probe(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// Len это число кадров в ротации
func (s *ImageSource) Len() int {
	return len(s.paths)
}

func (s *ImageSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func (s *ImageSource) CurrentFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.paths[s.next]
	s.next = (s.next + 1) % len(s.paths)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSourceUnavailable, filepath.Base(path), err)
	}
	if img.Bounds().Empty() {
		return nil, ErrSourceUnavailable
	}

	// Размеры кадра, который вернет следующий вызов
	s.w, s.h = probe(s.paths[s.next])
	return img, nil
}

func (s *ImageSource) Close() error {
	return nil
}

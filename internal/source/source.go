// Package source abstracts the live video feed frames are captured from.
package source

import (
	"errors"
	"image"
	"sync"
)

// ErrSourceUnavailable means the source has no decodable current frame.
var ErrSourceUnavailable = errors.New("video source unavailable")

// Source exposes the current frame of a video feed on demand.
type Source interface {
	// Dimensions reports the size of the current frame, or 0x0 when nothing is available.
	Dimensions() (width, height int)
	// CurrentFrame returns the current frame. Callers must not modify it.
	CurrentFrame() (image.Image, error)
	Close() error
}

// Static отдает один и тот же кадр. nil ведет себя как камера, которая еще не прогрелась.
type Static struct {
	mu    sync.RWMutex
	frame image.Image
}

func NewStatic(frame image.Image) *Static {
	return &Static{frame: frame}
}

// Set подменяет кадр
func (s *Static) Set(frame image.Image) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
}

func (s *Static) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *Static) CurrentFrame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil || s.frame.Bounds().Empty() {
		return nil, ErrSourceUnavailable
	}
	return s.frame, nil
}

func (s *Static) Close() error {
	return nil
}

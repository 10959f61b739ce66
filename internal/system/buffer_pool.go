package system

import (
	"image"
	"sync"
)

// SurfacePool переиспользует холсты *image.RGBA по их прямоугольнику,
// чтобы повторные коллажи одной раскладки не нагружали GC
type SurfacePool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex
}

func NewSurfacePool() *SurfacePool {
	return &SurfacePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

// Get возвращает очищенный холст с границами rect
func (p *SurfacePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	img := pool.Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// Put возвращает холст в пул. Чужие холсты отбрасываются
func (p *SurfacePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}

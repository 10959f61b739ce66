package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ivlev/photobooth/internal/compositor"
	"github.com/ivlev/photobooth/internal/session"
	"github.com/ivlev/photobooth/internal/system"
)

// report собирает тайминги для вывода -stats
type report struct {
	mu       sync.Mutex
	start    time.Time
	captures []time.Time
	compose  time.Duration
	bytes    int
}

func (r *report) observe(ev session.Event) {
	if ev.Type != session.EventCaptured {
		return
	}
	r.mu.Lock()
	r.captures = append(r.captures, time.Now())
	r.mu.Unlock()
}

func (r *report) print(build, layoutID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := time.Since(r.start)
	var gaps time.Duration
	for i := 1; i < len(r.captures); i++ {
		gaps += r.captures[i].Sub(r.captures[i-1])
	}
	avgGap := 0.0
	if len(r.captures) > 1 {
		avgGap = gaps.Seconds() / float64(len(r.captures)-1)
	}
	rss, err := system.MemoryUsage()
	if err != nil {
		fmt.Printf("[!] Не удалось получить потребление памяти: %v\n", err)
	}

	fmt.Printf("--- [PERFORMANCE REPORT] ---\n"+
		"Build: %s\n"+
		"Layout: %s\n"+
		"Total Time: %.2fs\n"+
		"Shots: %d (avg interval %.2fs)\n"+
		"Compose: %.3fs\n"+
		"Composite Size: %.1f KB\n"+
		"Memory (RSS): %.1f MB\n"+
		"----------------------------\n",
		build, layoutID, total.Seconds(), len(r.captures), avgGap,
		r.compose.Seconds(), float64(r.bytes)/1024, float64(rss)/(1<<20))

	logEntry := fmt.Sprintf("[%s] Build: %s | Layout: %s | Shots: %d | Total: %.2fs | Compose: %.3fs | RSS: %.1fMB\n",
		time.Now().Format("2006-01-02 15:04:05"),
		build, layoutID, len(r.captures), total.Seconds(), r.compose.Seconds(), float64(rss)/(1<<20))
	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[!] Не удалось открыть benchmark.log: %v", err)
		return
	}
	if _, err := f.WriteString(logEntry); err != nil {
		log.Printf("[!] Не удалось записать benchmark.log: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Printf("[!] Не удалось закрыть benchmark.log: %v", err)
	}
}

// timedComposer замеряет время сборки для отчета
type timedComposer struct {
	*compositor.Compositor
	stats *report
}

func (t timedComposer) Compose(ctx context.Context, req compositor.Request) ([]byte, error) {
	start := time.Now()
	out, err := t.Compositor.Compose(ctx, req)
	t.stats.mu.Lock()
	t.stats.compose = time.Since(start)
	t.stats.bytes = len(out)
	t.stats.mu.Unlock()
	return out, err
}

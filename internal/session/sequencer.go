// Package session drives one multi-shot capture session from countdown to composite.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ivlev/photobooth/internal/capture"
	"github.com/ivlev/photobooth/internal/compositor"
	"github.com/ivlev/photobooth/internal/filter"
	"github.com/ivlev/photobooth/internal/layout"
	"github.com/ivlev/photobooth/internal/source"
)

// ErrShotCount means the requested shot target does not match the layout's slots.
var ErrShotCount = errors.New("shot count does not match layout")

// Composer builds the final image. *compositor.Compositor implements it.
type Composer interface {
	Compose(ctx context.Context, req compositor.Request) ([]byte, error)
}

// Timing holds the sequencer delays. Countdown and InterShot are counted in Unit ticks.
type Timing struct {
	Unit      time.Duration
	Countdown int
	InterShot int
	Flash     time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Unit:      time.Second,
		Countdown: 5,
		InterShot: 1,
		Flash:     150 * time.Millisecond,
	}
}

// Settings are the per-session capture and composition choices.
type Settings struct {
	Mirror           bool
	Filter           filter.Filter
	Quality          int    // JPEG quality, capture.DefaultQuality when 0
	TemplateOverride string // empty uses the layout's template
}

// Snapshot это копия полей сессии
type Snapshot struct {
	Session     string
	Status      Status
	Layout      string
	ShotTarget  int
	CurrentShot int
	Countdown   *int // nil outside the countdown state
	Frames      []capture.Frame
	Flash       bool
	Result      []byte // PNG, set in review
	Err         error  // why the last session was abandoned
}

// Sequencer is the session state machine. Only one session is active at a time.
type Sequencer struct {
	layouts  *layout.Registry
	src      source.Source
	composer Composer
	clock    clockwork.Clock
	timing   Timing
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lmu       sync.Mutex
	listeners []Listener

	mu          sync.Mutex
	id          string
	status      Status
	layout      layout.Layout
	settings    Settings
	shotTarget  int
	currentShot int
	countdown   int
	frames      []capture.Frame
	result      []byte
	err         error
	flash       bool
	settled     *latch

	// Единственный таймер сессии. gen отсекает колбэки остановленных таймеров,
	// которые уже были запущены к моменту Stop.
	timer      clockwork.Timer
	gen        uint64
	flashTimer clockwork.Timer
	flashGen   uint64
	epoch      uint64
}

type Option func(*Sequencer)

// WithClock подменяет часы, в тестах это clockwork.NewFakeClock().
func WithClock(c clockwork.Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

func WithTiming(t Timing) Option {
	return func(s *Sequencer) { s.timing = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithListener(l Listener) Option {
	return func(s *Sequencer) { s.listeners = append(s.listeners, l) }
}

func New(layouts *layout.Registry, src source.Source, composer Composer, opts ...Option) *Sequencer {
	s := &Sequencer{
		layouts:  layouts,
		src:      src,
		composer: composer,
		clock:    clockwork.NewRealClock(),
		timing:   DefaultTiming(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// StartSession begins a session. It is a no-op while another session is active.
// An unknown layout or a shot target that differs from the layout's slot count is rejected
// without touching the current state.
func (s *Sequencer) StartSession(shotTarget int, layoutID string, settings Settings) error {
	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return nil
	}
	l, err := s.layouts.Resolve(layoutID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if shotTarget != l.Shots() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s takes %d shots, got %d", ErrShotCount, l.ID, l.Shots(), shotTarget)
	}

	s.epoch++
	s.id = uuid.NewString()
	s.layout = l
	s.settings = settings
	s.shotTarget = shotTarget
	s.currentShot = 1
	s.frames = make([]capture.Frame, 0, shotTarget)
	s.result = nil
	s.err = nil
	s.settled = newLatch()
	s.enterCountdownLocked()

	events := []Event{s.eventLocked(EventStarted), s.countdownEventLocked()}
	s.logger.Info("session started", "session", s.id, "layout", l.ID, "shots", shotTarget)
	s.mu.Unlock()

	s.emit(events)
	return nil
}

// Reset abandons the session from countdown, capturing or review and returns to idle.
// It is ignored while a composite is in flight and when already idle.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	switch s.status {
	case StatusCountdown, StatusCapturing, StatusReview:
	default:
		s.mu.Unlock()
		return
	}
	s.logger.Info("session reset", "session", s.id, "status", s.status)
	ev := s.eventLocked(EventReset)
	s.toIdleLocked(nil)
	ev.Status = StatusIdle
	s.mu.Unlock()

	s.emit([]Event{ev})
}

// Close stops all timers and cancels an in-flight composite.
func (s *Sequencer) Close() error {
	s.cancel()
	s.mu.Lock()
	if s.status != StatusIdle {
		s.toIdleLocked(context.Canceled)
	}
	s.mu.Unlock()
	return nil
}

// Snapshot возвращает копию текущей сессии
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Session:     s.id,
		Status:      s.status,
		Layout:      s.layout.ID,
		ShotTarget:  s.shotTarget,
		CurrentShot: s.currentShot,
		Frames:      append([]capture.Frame(nil), s.frames...),
		Flash:       s.flash,
		Result:      s.result,
		Err:         s.err,
	}
	if s.status == StatusCountdown {
		v := s.countdown
		snap.Countdown = &v
	}
	return snap
}

// Wait blocks until the current session reaches review or is abandoned, then returns its snapshot.
func (s *Sequencer) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()
	if settled != nil {
		select {
		case <-settled.done:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
	return s.Snapshot(), nil
}

func (s *Sequencer) enterCountdownLocked() {
	s.status = StatusCountdown
	s.countdown = s.timing.Countdown
	s.scheduleLocked(s.timing.Unit, s.tickLocked)
}

// step runs under the lock. The returned follow-up, if any, runs after its events
// have been delivered.
type step func() ([]Event, func())

// scheduleLocked заменяет ожидающий таймер сессии
func (s *Sequencer) scheduleLocked(d time.Duration, fn step) {
	s.stopTimerLocked()
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if gen != s.gen || s.timer == nil {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		events, then := fn()
		s.mu.Unlock()
		s.emit(events)
		if then != nil {
			then()
		}
	})
}

func (s *Sequencer) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Sequencer) tickLocked() ([]Event, func()) {
	s.countdown--
	if s.countdown > 0 {
		s.scheduleLocked(s.timing.Unit, s.tickLocked)
		return []Event{s.countdownEventLocked()}, nil
	}
	return s.captureLocked()
}

// captureLocked takes the shot synchronously and decides what comes next.
// After the last shot it returns the compose start as the follow-up, so listeners
// hear Processing before anything the composite produces.
func (s *Sequencer) captureLocked() ([]Event, func()) {
	s.status = StatusCapturing
	s.countdown = 0

	frame, err := capture.Capture(s.src, capture.Options{
		Mirror:  s.settings.Mirror,
		Filter:  s.settings.Filter,
		Crop:    s.layout.CaptureAspect,
		Quality: s.settings.Quality,
	})
	if err != nil {
		if !errors.Is(err, source.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
		}
		s.logger.Error("capture failed", "session", s.id, "shot", s.currentShot, "error", err)
		ev := s.eventLocked(EventFailed)
		ev.Err = err
		s.toIdleLocked(err)
		ev.Status = StatusIdle
		return []Event{ev}, nil
	}

	s.frames = append(s.frames, frame)
	events := []Event{s.eventLocked(EventCaptured), s.flashLocked(true)}
	s.logger.Debug("frame captured", "session", s.id, "shot", s.currentShot, "width", frame.Width, "height", frame.Height)

	if len(s.frames) < s.shotTarget {
		s.currentShot++
		s.scheduleLocked(time.Duration(s.timing.InterShot)*s.timing.Unit, func() ([]Event, func()) {
			s.enterCountdownLocked()
			return []Event{s.countdownEventLocked()}, nil
		})
		return events, nil
	}

	s.stopTimerLocked()
	s.status = StatusProcessing
	req := compositor.Request{
		Frames:           make([][]byte, len(s.frames)),
		LayoutID:         s.layout.ID,
		TemplateOverride: s.settings.TemplateOverride,
	}
	for i, f := range s.frames {
		req.Frames[i] = f.Data
	}
	epoch := s.epoch
	return append(events, s.eventLocked(EventProcessing)), func() { go s.compose(epoch, req) }
}

func (s *Sequencer) compose(epoch uint64, req compositor.Request) {
	start := time.Now()
	out, err := s.composer.Compose(s.ctx, req)

	s.mu.Lock()
	// Сессию могли закрыть, пока шла сборка.
	if epoch != s.epoch || s.status != StatusProcessing {
		s.mu.Unlock()
		return
	}
	// Слушатели узнают результат раньше, чем вернется Wait
	settled := s.settled
	var ev Event
	if err != nil {
		s.settled = nil
		s.logger.Error("compose failed", "session", s.id, "layout", req.LayoutID, "error", err)
		ev = s.eventLocked(EventFailed)
		ev.Err = err
		s.toIdleLocked(err)
		ev.Status = StatusIdle
	} else {
		s.logger.Info("composite ready", "session", s.id, "layout", req.LayoutID, "bytes", len(out), "took", time.Since(start))
		s.status = StatusReview
		s.result = out
		ev = s.eventLocked(EventReview)
	}
	s.mu.Unlock()

	s.emit([]Event{ev})
	settled.release()
}

// flashLocked включает вспышку и планирует ее выключение. На ход сессии она не влияет.
func (s *Sequencer) flashLocked(on bool) Event {
	s.flash = on
	if s.flashTimer != nil {
		s.flashTimer.Stop()
		s.flashTimer = nil
	}
	s.flashGen++
	if on {
		gen := s.flashGen
		s.flashTimer = s.clock.AfterFunc(s.timing.Flash, func() {
			s.mu.Lock()
			if gen != s.flashGen {
				s.mu.Unlock()
				return
			}
			s.flashTimer = nil
			ev := s.flashLocked(false)
			s.mu.Unlock()
			s.emit([]Event{ev})
		})
	}
	ev := s.eventLocked(EventFlash)
	ev.Flash = on
	return ev
}

// toIdleLocked завершает сессию: гасит все таймеры, освобождает кадры и результат.
func (s *Sequencer) toIdleLocked(cause error) {
	s.stopTimerLocked()
	if s.flash || s.flashTimer != nil {
		s.flashLocked(false)
	}
	s.epoch++
	if s.settled != nil {
		s.settled.release()
	}
	s.settled = nil
	s.status = StatusIdle
	s.id = ""
	s.layout = layout.Layout{}
	s.settings = Settings{}
	s.shotTarget = 0
	s.currentShot = 0
	s.countdown = 0
	s.frames = nil
	s.result = nil
	s.err = cause
}

func (s *Sequencer) eventLocked(t EventType) Event {
	return Event{
		Type:       t,
		Session:    s.id,
		Status:     s.status,
		Shot:       s.currentShot,
		ShotTarget: s.shotTarget,
	}
}

func (s *Sequencer) countdownEventLocked() Event {
	ev := s.eventLocked(EventCountdown)
	ev.Countdown = s.countdown
	return ev
}

func (s *Sequencer) emit(events []Event) {
	s.lmu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.lmu.Unlock()
	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}

// latch закрывается один раз, когда сессия завершилась.
type latch struct {
	once sync.Once
	done chan struct{}
}

func newLatch() *latch {
	return &latch{done: make(chan struct{})}
}

func (l *latch) release() {
	l.once.Do(func() { close(l.done) })
}

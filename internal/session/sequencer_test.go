package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ivlev/photobooth/internal/compositor"
	"github.com/ivlev/photobooth/internal/layout"
	"github.com/ivlev/photobooth/internal/source"
)

type fakeComposer struct {
	mu       sync.Mutex
	requests []compositor.Request
	out      []byte
	err      error
	gate     chan struct{} // when set, Compose waits for it to close
}

func (f *fakeComposer) Compose(ctx context.Context, req compositor.Request) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) index(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ev := range r.events {
		if ev.Type == t {
			return i
		}
	}
	return -1
}

// stepClock is a clockwork fake that can wait for the callbacks an Advance made due.
// clockwork runs AfterFunc callbacks on their own goroutines.
type stepClock struct {
	*clockwork.FakeClock

	mu     sync.Mutex
	timers []*stepTimer
}

type stepTimer struct {
	clockwork.Timer
	clock    *stepClock
	when     time.Time
	stopped  bool
	finished bool
}

func newStepClock() *stepClock {
	return &stepClock{FakeClock: clockwork.NewFakeClock()}
}

func (c *stepClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	t := &stepTimer{clock: c, when: c.Now().Add(d)}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	t.Timer = c.FakeClock.AfterFunc(d, func() {
		f()
		c.mu.Lock()
		t.finished = true
		c.mu.Unlock()
	})
	return t
}

func (t *stepTimer) Stop() bool {
	ok := t.Timer.Stop()
	if ok {
		t.clock.mu.Lock()
		t.stopped = true
		t.clock.mu.Unlock()
	}
	return ok
}

// Advance moves the fake time and returns once every callback due by then has finished.
func (c *stepClock) Advance(t *testing.T, d time.Duration) {
	t.Helper()
	c.FakeClock.Advance(d)
	now := c.Now()
	deadline := time.Now().Add(5 * time.Second)
	for {
		c.mu.Lock()
		busy := false
		live := c.timers[:0]
		for _, tm := range c.timers {
			if tm.stopped || tm.finished {
				continue
			}
			live = append(live, tm)
			if !tm.when.After(now) {
				busy = true
			}
		}
		c.timers = live
		c.mu.Unlock()
		if !busy {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("callbacks due at %v did not finish", now)
		}
		time.Sleep(time.Millisecond)
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (c *stepClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tm := range c.timers {
		if !tm.stopped && !tm.finished {
			n++
		}
	}
	return n
}

type harness struct {
	seq      *Sequencer
	clock    *stepClock
	src      *source.Static
	composer *fakeComposer
	events   *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := layout.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	frame := image.NewRGBA(image.Rect(0, 0, 64, 36))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.RGBA{R: 200, G: 120, B: 40, A: 255}), image.Point{}, draw.Src)

	h := &harness{
		clock:    newStepClock(),
		src:      source.NewStatic(frame),
		composer: &fakeComposer{out: []byte("composite")},
		events:   &recorder{},
	}
	h.seq = New(reg, h.src, h.composer,
		WithClock(h.clock),
		WithTiming(DefaultTiming()),
		WithListener(h.events.listen),
	)
	t.Cleanup(func() { h.seq.Close() })
	return h
}

// tick advances one time unit and checks the frame/shot invariant.
func (h *harness) tick(t *testing.T) Snapshot {
	t.Helper()
	h.clock.Advance(t, time.Second)
	snap := h.seq.Snapshot()
	if snap.Status == StatusCountdown || snap.Status == StatusCapturing {
		if len(snap.Frames) != snap.CurrentShot-1 {
			t.Fatalf("frames=%d with current shot %d", len(snap.Frames), snap.CurrentShot)
		}
	}
	return snap
}

// shoot runs one full countdown and returns the snapshot right after the capture.
func (h *harness) shoot(t *testing.T) Snapshot {
	t.Helper()
	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap = h.tick(t)
	}
	return snap
}

func (h *harness) wait(t *testing.T) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := h.seq.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v (status %s)", err, snap.Status)
	}
	return snap
}

func (h *harness) runToReview(t *testing.T, shots int) Snapshot {
	t.Helper()
	for i := 0; i < shots; i++ {
		h.shoot(t)
		if i < shots-1 {
			h.tick(t)
		}
	}
	return h.wait(t)
}

func TestStartSession(t *testing.T) {
	h := newHarness(t)
	if err := h.seq.StartSession(3, layout.Horizontal, Settings{Mirror: true}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	snap := h.seq.Snapshot()
	if snap.Status != StatusCountdown {
		t.Errorf("status = %s", snap.Status)
	}
	if snap.CurrentShot != 1 || len(snap.Frames) != 0 || snap.ShotTarget != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Countdown == nil || *snap.Countdown != 5 {
		t.Errorf("countdown = %v, want 5", snap.Countdown)
	}
	if snap.Session == "" {
		t.Error("session id not assigned")
	}
	if h.events.count(EventStarted) != 1 {
		t.Error("expected one started event")
	}
}

func TestCountdownCapturesAtZero(t *testing.T) {
	h := newHarness(t)
	h.seq.StartSession(3, layout.Horizontal, Settings{})

	for want := 4; want >= 1; want-- {
		snap := h.tick(t)
		if snap.Countdown == nil || *snap.Countdown != want {
			t.Fatalf("countdown = %v, want %d", snap.Countdown, want)
		}
	}

	snap := h.tick(t)
	if snap.Status != StatusCapturing {
		t.Fatalf("status = %s, want capturing", snap.Status)
	}
	if snap.Countdown != nil {
		t.Errorf("countdown should be cleared while capturing, got %d", *snap.Countdown)
	}
	if len(snap.Frames) != 1 || snap.CurrentShot != 2 {
		t.Errorf("frames=%d current=%d", len(snap.Frames), snap.CurrentShot)
	}

	// inter-shot delay, then a fresh countdown
	snap = h.tick(t)
	if snap.Status != StatusCountdown || *snap.Countdown != 5 {
		t.Errorf("after delay: %s %v", snap.Status, snap.Countdown)
	}
}

func TestFullSession(t *testing.T) {
	tests := []struct {
		layout string
		shots  int
		frameW int
	}{
		{layout.Horizontal, 3, 64},
		{layout.Vertical, 3, 20}, // 36 * 9/16 = 20.25
		{layout.Strip4, 4, 64},
	}
	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			h := newHarness(t)
			if err := h.seq.StartSession(tt.shots, tt.layout, Settings{TemplateOverride: "custom/gold.png"}); err != nil {
				t.Fatal(err)
			}
			snap := h.runToReview(t, tt.shots)

			if snap.Status != StatusReview {
				t.Fatalf("status = %s, err = %v", snap.Status, snap.Err)
			}
			if len(snap.Frames) != tt.shots {
				t.Errorf("frames = %d, want %d", len(snap.Frames), tt.shots)
			}
			if snap.Frames[0].Width != tt.frameW || snap.Frames[0].Height != 36 {
				t.Errorf("frame size %dx%d", snap.Frames[0].Width, snap.Frames[0].Height)
			}
			if string(snap.Result) != "composite" {
				t.Errorf("result = %q", snap.Result)
			}

			h.composer.mu.Lock()
			defer h.composer.mu.Unlock()
			if len(h.composer.requests) != 1 {
				t.Fatalf("compose called %d times", len(h.composer.requests))
			}
			req := h.composer.requests[0]
			if len(req.Frames) != tt.shots || req.LayoutID != tt.layout || req.TemplateOverride != "custom/gold.png" {
				t.Errorf("request = %d frames, %s, %q", len(req.Frames), req.LayoutID, req.TemplateOverride)
			}
			if h.events.count(EventCaptured) != tt.shots || h.events.count(EventProcessing) != 1 || h.events.count(EventReview) != 1 {
				t.Errorf("events: %+v", h.events.events)
			}
			if h.clock.Pending() > 1 {
				t.Errorf("timers left pending in review: %d", h.clock.Pending())
			}
		})
	}
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	h := newHarness(t)
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	h.tick(t)
	h.tick(t)
	before := h.seq.Snapshot()

	if err := h.seq.StartSession(4, layout.Strip4, Settings{}); err != nil {
		t.Errorf("StartSession while active should not fail: %v", err)
	}
	if err := h.seq.StartSession(3, "nope", Settings{}); err != nil {
		t.Errorf("StartSession while active should not validate: %v", err)
	}
	after := h.seq.Snapshot()
	if after.Session != before.Session || after.Layout != before.Layout || after.ShotTarget != before.ShotTarget ||
		*after.Countdown != *before.Countdown || after.CurrentShot != before.CurrentShot {
		t.Errorf("snapshot changed: %+v -> %+v", before, after)
	}
	if h.events.count(EventStarted) != 1 {
		t.Error("second start emitted events")
	}
}

func TestResetFromReview(t *testing.T) {
	h := newHarness(t)
	h.seq.StartSession(4, layout.Strip4, Settings{})
	h.runToReview(t, 4)

	h.seq.Reset()
	snap := h.seq.Snapshot()
	if snap.Status != StatusIdle || snap.Frames != nil || snap.Result != nil || snap.CurrentShot != 0 {
		t.Errorf("reset left state behind: %+v", snap)
	}

	if err := h.seq.StartSession(3, layout.Horizontal, Settings{}); err != nil {
		t.Fatal(err)
	}
	snap = h.seq.Snapshot()
	if snap.CurrentShot != 1 || len(snap.Frames) != 0 || snap.ShotTarget != 3 {
		t.Errorf("new session after reset: %+v", snap)
	}
}

func TestStaleTimerAfterReset(t *testing.T) {
	h := newHarness(t)
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	h.tick(t)
	h.tick(t)
	h.clock.Advance(t, 500*time.Millisecond)

	h.seq.Reset()
	if n := h.clock.Pending(); n != 0 {
		t.Fatalf("reset left %d timers pending", n)
	}
	h.seq.StartSession(3, layout.Horizontal, Settings{})

	// The old session would have ticked at 3s. Only the new one may move the countdown.
	h.clock.Advance(t, 500*time.Millisecond)
	if got := *h.seq.Snapshot().Countdown; got != 5 {
		t.Errorf("countdown = %d, stale tick leaked into the new session", got)
	}
	h.clock.Advance(t, 500*time.Millisecond)
	if got := *h.seq.Snapshot().Countdown; got != 4 {
		t.Errorf("countdown = %d, want 4", got)
	}
	if n := h.clock.Pending(); n != 1 {
		t.Errorf("pending timers = %d, want exactly one", n)
	}
}

func TestStaleCallbackIgnored(t *testing.T) {
	// A real timer may already be running its callback when Stop is called.
	// Simulate that by holding on to the callback and firing it after a reset.
	h := newHarness(t)
	capturing := &capturingClock{Clock: h.clock.FakeClock}
	h.seq.clock = capturing
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	stale := capturing.last

	h.seq.Reset()
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	stale()

	if got := *h.seq.Snapshot().Countdown; got != 5 {
		t.Errorf("stale callback moved countdown to %d", got)
	}
}

// capturingClock keeps the last callback instead of scheduling it.
type capturingClock struct {
	clockwork.Clock
	last func()
}

func (c *capturingClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.last = f
	return c.Clock.AfterFunc(d, func() {})
}

func TestResetIgnoredWhileProcessing(t *testing.T) {
	h := newHarness(t)
	h.composer.gate = make(chan struct{})
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	for i := 0; i < 3; i++ {
		h.shoot(t)
		if i < 2 {
			h.tick(t)
		}
	}
	if s := h.seq.Snapshot().Status; s != StatusProcessing {
		t.Fatalf("status = %s, want processing", s)
	}

	h.seq.Reset()
	if s := h.seq.Snapshot().Status; s != StatusProcessing {
		t.Errorf("reset interrupted processing: %s", s)
	}

	close(h.composer.gate)
	if snap := h.wait(t); snap.Status != StatusReview {
		t.Errorf("status = %s, want review", snap.Status)
	}
}

func TestSourceUnavailableAborts(t *testing.T) {
	h := newHarness(t)
	h.src.Set(nil)
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	h.shoot(t)

	snap := h.wait(t)
	if snap.Status != StatusIdle {
		t.Fatalf("status = %s, want idle", snap.Status)
	}
	if !errors.Is(snap.Err, source.ErrSourceUnavailable) {
		t.Errorf("Err = %v", snap.Err)
	}
	if len(snap.Frames) != 0 {
		t.Error("no frame may be appended")
	}
	if h.clock.Pending() != 0 {
		t.Errorf("timers pending after abort: %d", h.clock.Pending())
	}
	if ev := h.events.last(); ev.Type != EventFailed || ev.Status != StatusIdle {
		t.Errorf("last event = %+v", ev)
	}

	// no retry: nothing happens on later ticks
	h.tick(t)
	if h.events.count(EventCaptured) != 0 {
		t.Error("capture retried")
	}
}

func TestComposeFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.composer.err = compositor.ErrTemplateLoad
	h.seq.StartSession(3, layout.Horizontal, Settings{})

	snap := h.runToReview(t, 3)
	if snap.Status != StatusIdle {
		t.Fatalf("status = %s, want idle", snap.Status)
	}
	if !errors.Is(snap.Err, compositor.ErrTemplateLoad) {
		t.Errorf("Err = %v", snap.Err)
	}
	if snap.Frames != nil || snap.Result != nil {
		t.Error("frames must be discarded with the session")
	}

	if err := h.seq.StartSession(3, layout.Horizontal, Settings{}); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	if snap := h.seq.Snapshot(); snap.Err != nil || snap.CurrentShot != 1 {
		t.Errorf("restart snapshot %+v", snap)
	}
}

func TestStartSessionRejects(t *testing.T) {
	tests := []struct {
		name   string
		shots  int
		layout string
		want   error
	}{
		{"unknown layout", 3, "polaroid", layout.ErrUnknownLayout},
		{"too few shots for strip", 3, layout.Strip4, ErrShotCount},
		{"too many shots for row", 4, layout.Horizontal, ErrShotCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			err := h.seq.StartSession(tt.shots, tt.layout, Settings{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			snap := h.seq.Snapshot()
			if snap.Status != StatusIdle || snap.Session != "" {
				t.Errorf("state changed: %+v", snap)
			}
			if h.clock.Pending() != 0 {
				t.Error("timer scheduled for a rejected session")
			}
		})
	}
}

func TestFlash(t *testing.T) {
	h := newHarness(t)
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	h.shoot(t)

	if !h.seq.Snapshot().Flash {
		t.Fatal("flash should be on right after a capture")
	}
	h.clock.Advance(t, 149*time.Millisecond)
	if !h.seq.Snapshot().Flash {
		t.Error("flash went off early")
	}
	h.clock.Advance(t, time.Millisecond)
	if h.seq.Snapshot().Flash {
		t.Error("flash still on after 150ms")
	}
	if h.events.count(EventFlash) != 2 {
		t.Errorf("flash events = %d, want on and off", h.events.count(EventFlash))
	}
}

func TestCloseCancelsComposite(t *testing.T) {
	h := newHarness(t)
	h.composer.gate = make(chan struct{})
	h.seq.StartSession(3, layout.Horizontal, Settings{})
	for i := 0; i < 3; i++ {
		h.shoot(t)
		if i < 2 {
			h.tick(t)
		}
	}

	h.seq.Close()
	snap := h.wait(t)
	if snap.Status != StatusIdle || !errors.Is(snap.Err, context.Canceled) {
		t.Errorf("after close: %s %v", snap.Status, snap.Err)
	}
}

// Слушатель, который тормозит на последнем кадре, не должен увидеть Review раньше Processing.
func TestProcessingDeliveredBeforeReview(t *testing.T) {
	h := newHarness(t)
	h.seq.listeners = append(h.seq.listeners, func(ev Event) {
		if ev.Type == EventCaptured && ev.Shot == ev.ShotTarget {
			time.Sleep(2 * time.Millisecond)
		}
	})

	for run := 0; run < 20; run++ {
		h.events.mu.Lock()
		h.events.events = nil
		h.events.mu.Unlock()

		if err := h.seq.StartSession(3, layout.Horizontal, Settings{}); err != nil {
			t.Fatal(err)
		}
		if snap := h.runToReview(t, 3); snap.Status != StatusReview {
			t.Fatalf("run %d: status = %s", run, snap.Status)
		}
		processing, review := h.events.index(EventProcessing), h.events.index(EventReview)
		if processing < 0 || review < 0 || review < processing {
			t.Fatalf("run %d: processing at %d, review at %d", run, processing, review)
		}
		h.seq.Reset()
	}
}

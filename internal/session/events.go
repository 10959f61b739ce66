package session

import "fmt"

// Status это состояние автомата сессии
type Status string

const (
	StatusIdle       Status = "idle"
	StatusCountdown  Status = "countdown"
	StatusCapturing  Status = "capturing"
	StatusProcessing Status = "processing"
	StatusReview     Status = "review"
)

// EventType classifies sequencer notifications.
type EventType int

const (
	EventStarted EventType = iota
	EventCountdown
	EventCaptured
	EventFlash
	EventProcessing
	EventReview
	EventFailed
	EventReset
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventCountdown:
		return "countdown"
	case EventCaptured:
		return "captured"
	case EventFlash:
		return "flash"
	case EventProcessing:
		return "processing"
	case EventReview:
		return "review"
	case EventFailed:
		return "failed"
	case EventReset:
		return "reset"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is delivered to listeners after the state change it describes.
type Event struct {
	Type       EventType
	Session    string
	Status     Status
	Shot       int // current shot, 1-based
	ShotTarget int
	Countdown  int  // EventCountdown only
	Flash      bool // EventFlash: on or off
	Err        error
}

// Listener получает события. Долго блокировать нельзя: он вызывается из горутин таймеров.
type Listener func(Event)

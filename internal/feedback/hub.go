// Package feedback implements the status indicator and the toast queue and
// broadcasts them, together with view directives, to every connected client.
package feedback

import (
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/google/uuid"
)

// Event types sent to clients.
const (
	EventSnapshot    = "snapshot"
	EventStatus      = "status"
	EventToast       = "toast"
	EventToastFade   = "toast-fade"
	EventToastRemove = "toast-remove"
	EventSetup       = "setup"
	EventDirective   = "directive"
	EventPlay        = "play"
	EventCount       = "count"
)

const (
	defaultToastDuration = 3 * time.Second
	defaultToastFade     = 300 * time.Millisecond
	subscriberBuffer     = 64

	logFmtSubscriberLagging = "Dropping %s event for a lagging subscriber"
	logFmtStatus            = "Status: %s (%s)"
	logFmtToast             = "Toast [%s]: %s"
)

// Event is one message to a client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StatusData is the payload of a status event.
type StatusData struct {
	State core.StatusState `json:"state"`
	Text  string           `json:"text"`
}

// ToastData is the payload of a toast event.
type ToastData struct {
	ID      string         `json:"id"`
	Kind    core.ToastKind `json:"kind"`
	Message string         `json:"message"`
	Fading  bool           `json:"fading,omitempty"`
}

// ToastRef identifies a toast in fade and remove events.
type ToastRef struct {
	ID string `json:"id"`
}

// PlayData asks the client to play a clip.
type PlayData struct {
	URL string `json:"url"`
}

// CountData is the character count of a slot.
type CountData struct {
	Slot  core.Slot `json:"slot"`
	Count int       `json:"count"`
}

// Snapshot is the feedback state a newly connected client starts from.
type Snapshot struct {
	Status StatusData       `json:"status"`
	Toasts []ToastData      `json:"toasts"`
	Setup  core.SetupPrompt `json:"setup"`
}

// Options configures a Hub.
type Options struct {
	Log           *logger.Logger
	ToastDuration time.Duration
	ToastFade     time.Duration
}

// Hub fans feedback out to subscribers. It implements core.Notifier.
// With no subscribers every broadcast is a no-op.
type Hub struct {
	log           *logger.Logger
	subscribers   map[*Subscription]struct{}
	timers        map[string]*time.Timer
	status        StatusData
	toasts        []ToastData
	setup         core.SetupPrompt
	toastDuration time.Duration
	toastFade     time.Duration
	mu            sync.Mutex
	closed        bool
}

// Subscription receives the events of one client.
type Subscription struct {
	hub    *Hub
	events chan Event
	once   sync.Once
}

// NewHub creates a feedback hub.
func NewHub(opts Options) *Hub {
	duration := opts.ToastDuration
	if duration <= 0 {
		duration = defaultToastDuration
	}

	fade := opts.ToastFade
	if fade <= 0 {
		fade = defaultToastFade
	}

	return &Hub{
		log:           opts.Log,
		subscribers:   make(map[*Subscription]struct{}),
		timers:        make(map[string]*time.Timer),
		status:        StatusData{State: core.StatusSuccess, Text: ""},
		toasts:        []ToastData{},
		toastDuration: duration,
		toastFade:     fade,
	}
}

// Subscribe registers a client and returns the state it starts from.
// Events broadcast after the snapshot are delivered on the subscription.
func (h *Hub) Subscribe() (*Subscription, Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{hub: h, events: make(chan Event, subscriberBuffer)}
	if h.closed {
		close(sub.events)
	} else {
		h.subscribers[sub] = struct{}{}
	}

	return sub, h.snapshotLocked()
}

// Snapshot returns the current feedback state.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.snapshotLocked()
}

// Status sets the status indicator.
func (h *Hub) Status(state core.StatusState, text string) {
	h.log.Info(logFmtStatus, text, state)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.status = StatusData{State: state, Text: text}
	h.broadcastLocked(Event{Type: EventStatus, Data: h.status})
}

// Toast shows a toast that fades out after the toast duration and is
// removed after the fade. Each toast has its own timers.
func (h *Hub) Toast(kind core.ToastKind, message string) {
	h.log.Info(logFmtToast, kind, message)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	toast := ToastData{ID: uuid.NewString(), Kind: kind, Message: message}
	h.toasts = append(h.toasts, toast)
	h.broadcastLocked(Event{Type: EventToast, Data: toast})

	h.timers[toast.ID] = time.AfterFunc(h.toastDuration, func() { h.fadeToast(toast.ID) })
}

// Setup opens or closes the setup form.
func (h *Hub) Setup(prompt core.SetupPrompt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.setup = prompt
	h.broadcastLocked(Event{Type: EventSetup, Data: prompt})
}

// Directive forwards a text area instruction.
func (h *Hub) Directive(directive core.Directive) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcastLocked(Event{Type: EventDirective, Data: directive})
}

// CharCount publishes the character count of a slot.
func (h *Hub) CharCount(slot core.Slot, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcastLocked(Event{Type: EventCount, Data: CountData{Slot: slot, Count: count}})
}

// Play asks the clients to play the clip at url.
func (h *Hub) Play(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcastLocked(Event{Type: EventPlay, Data: PlayData{URL: url}})
}

// Close stops all toast timers and closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for id, timer := range h.timers {
		timer.Stop()
		delete(h.timers, id)
	}

	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.events)
	}
}

// Events is the channel of broadcast events. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		if _, ok := s.hub.subscribers[s]; ok {
			delete(s.hub.subscribers, s)
			close(s.events)
		}
	})
}

func (h *Hub) fadeToast(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for i := range h.toasts {
		if h.toasts[i].ID == id {
			h.toasts[i].Fading = true
		}
	}

	h.broadcastLocked(Event{Type: EventToastFade, Data: ToastRef{ID: id}})
	h.timers[id] = time.AfterFunc(h.toastFade, func() { h.removeToast(id) })
}

func (h *Hub) removeToast(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	delete(h.timers, id)

	for i := range h.toasts {
		if h.toasts[i].ID == id {
			h.toasts = append(h.toasts[:i], h.toasts[i+1:]...)

			break
		}
	}

	h.broadcastLocked(Event{Type: EventToastRemove, Data: ToastRef{ID: id}})
}

func (h *Hub) broadcastLocked(event Event) {
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			h.log.Warn(logFmtSubscriberLagging, event.Type)
		}
	}
}

func (h *Hub) snapshotLocked() Snapshot {
	toasts := make([]ToastData, len(h.toasts))
	copy(toasts, h.toasts)

	return Snapshot{Status: h.status, Toasts: toasts, Setup: h.setup}
}

// Package core defines the domain types and the contracts shared by the tts-pad components.
package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a key or object does not exist.
var ErrNotFound = errors.New("not found")

// KeyValueStore defines the persisted preference storage.
// Values are opaque strings; structured values are JSON-encoded by the caller.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// SpeechProvider is a session with the external speech-synthesis provider.
// A nil error means the provider reached a terminal reason (completed or canceled);
// a non-nil error is the transport-error branch.
type SpeechProvider interface {
	SpeakSSML(ctx context.Context, ssml string) (SynthesisResult, error)
}

// SessionFactory constructs a provider session from credentials.
type SessionFactory func(creds Credentials) (SpeechProvider, error)

// Notifier is the feedback layer as seen by the controller.
type Notifier interface {
	Status(state StatusState, text string)
	Toast(kind ToastKind, message string)
	Setup(prompt SetupPrompt)
	Directive(directive Directive)
	CharCount(slot Slot, count int)
}

// AudioSink receives the audio of a completed synthesis.
type AudioSink interface {
	Deliver(ctx context.Context, audio []byte) error
}

// Dispatcher executes user-triggered actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, req ActionRequest) Outcome
}

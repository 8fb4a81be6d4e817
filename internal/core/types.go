package core

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Slot identifies one of the two text buffers.
type Slot int

// The two on-screen text areas.
const (
	Slot1 Slot = 1
	Slot2 Slot = 2
)

// ErrInvalidSlot indicates a slot identifier other than 1 or 2.
var ErrInvalidSlot = errors.New("invalid slot")

// ParseSlot converts a slot identifier as it appears in the UI ("1", "2").
func ParseSlot(raw string) (Slot, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, raw)
	}

	slot := Slot(n)
	if !slot.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSlot, n)
	}

	return slot, nil
}

// Valid reports whether s is slot 1 or slot 2.
func (s Slot) Valid() bool {
	return s == Slot1 || s == Slot2
}

// TextKey is the persisted storage key holding the draft text of the slot.
func (s Slot) TextKey() string {
	return "text" + strconv.Itoa(int(s))
}

// Voice is a selectable synthesis voice.
type Voice struct {
	ID   string `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Lang string `json:"lang" yaml:"lang"`
}

// Credentials authenticate a provider session.
type Credentials struct {
	Key    string
	Region string
}

// Complete reports whether both credential fields are present.
func (c Credentials) Complete() bool {
	return c.Key != "" && c.Region != ""
}

// Settings is the operator configuration: credentials plus the voice list.
type Settings struct {
	AzureKey    string  `json:"azureKey"         yaml:"azureKey"`
	AzureRegion string  `json:"azureRegion"      yaml:"azureRegion"`
	Voices      []Voice `json:"voices,omitempty" yaml:"voices,omitempty"`
}

// Credentials returns the credential part of the settings.
func (s Settings) Credentials() Credentials {
	return Credentials{Key: s.AzureKey, Region: s.AzureRegion}
}

// SynthesisReason is the terminal reason reported by the provider.
type SynthesisReason int

// Provider terminal reasons.
const (
	ReasonUnknown SynthesisReason = iota
	ReasonCompleted
	ReasonCanceled
)

func (r SynthesisReason) String() string {
	switch r {
	case ReasonCompleted:
		return "completed"
	case ReasonCanceled:
		return "canceled"
	case ReasonUnknown:
		return "unknown"
	default:
		return "reason(" + strconv.Itoa(int(r)) + ")"
	}
}

// SynthesisResult is the provider's answer to one markup document.
type SynthesisResult struct {
	Reason        SynthesisReason
	Audio         []byte
	AudioDuration time.Duration
	ErrorCode     int
	ErrorDetails  string
}

// StatusState is the color of the status indicator.
type StatusState string

// Status indicator states.
const (
	StatusSuccess StatusState = "success"
	StatusLoading StatusState = "loading"
	StatusError   StatusState = "error"
)

// ToastKind selects the icon and color of a toast.
type ToastKind string

// Toast kinds.
const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastWarning ToastKind = "warning"
	ToastInfo    ToastKind = "info"
)

// SetupPrompt opens or closes the credential setup form.
type SetupPrompt struct {
	Open   bool   `json:"open"`
	Key    string `json:"key,omitempty"`
	Region string `json:"region,omitempty"`
}

// DirectiveKind is a UI instruction about a text area.
type DirectiveKind string

// Directive kinds.
const (
	DirectiveSelectAll        DirectiveKind = "select-all"
	DirectiveRestoreSelection DirectiveKind = "restore-selection"
)

// Directive asks the view to focus a text area and adjust its selection.
type Directive struct {
	Kind  DirectiveKind `json:"kind"`
	Slot  Slot          `json:"slot"`
	Start int           `json:"start"`
	End   int           `json:"end"`
}

// Action is the identifier carried by an action button.
type Action string

// User-triggered actions.
const (
	ActionSpeakAll       Action = "speak-all"
	ActionSpeakSelection Action = "speak-selection"
	ActionRepeatLast     Action = "repeat-last"
	ActionSaveConfig     Action = "save-config"
	ActionCloseModal     Action = "close-modal"
)

// Selection is a range of rune offsets within a text buffer.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ActionRequest is one dispatched action with its arguments.
type ActionRequest struct {
	Action      Action
	Slot        Slot
	Selection   Selection
	AzureKey    string
	AzureRegion string
}

// OutcomeKind classifies the result of an action.
type OutcomeKind string

// Action outcomes.
const (
	OutcomeCompleted     OutcomeKind = "completed"
	OutcomeCanceled      OutcomeKind = "canceled"
	OutcomeFailed        OutcomeKind = "failed"
	OutcomeBusy          OutcomeKind = "busy"
	OutcomeNotConfigured OutcomeKind = "not-configured"
	OutcomeEmptyInput    OutcomeKind = "empty-input"
	OutcomeRejected      OutcomeKind = "rejected"
	OutcomeDone          OutcomeKind = "done"
	OutcomeIgnored       OutcomeKind = "ignored"
)

// CancelClass is the classification of a provider cancellation.
type CancelClass string

// Cancellation classes.
const (
	CancelNone         CancelClass = ""
	CancelUnauthorized CancelClass = "unauthorized"
	CancelForbidden    CancelClass = "forbidden"
	CancelConnection   CancelClass = "connection"
	CancelOther        CancelClass = "other"
)

// Outcome is the tagged result of an action.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	Cancel  CancelClass
	Elapsed time.Duration
}

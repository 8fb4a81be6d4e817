// Package controller holds the single tts-pad controller: the text buffers,
// the preferences, the provider session and the synthesis guard.
package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/settings"
	"github.com/book-expert/tts-pad/internal/ssml"
)

// Synthesis guard states.
const (
	stateIdle int32 = iota
	stateBusy
)

const (
	defaultStatusRevertDelay = time.Second
	defaultRegion            = "westeurope"
)

// Status texts.
const (
	StatusTextReady   = "Ready"
	StatusTextLoading = "Loading..."
	StatusTextPlaying = "Playing..."
	StatusTextError   = "Error"
)

// Log messages.
const (
	logFmtPersistFailed     = "Failed to persist %s: %v"
	logFmtRestoreFailed     = "Failed to restore %s: %v"
	logFmtSessionReady      = "Speech session initialized for region %s (key length %d)"
	logFmtSessionFailed     = "Failed to initialize speech session: %v"
	logMissingCredentials   = "Missing Azure credentials"
	logFmtStarted           = "Controller started with %d voices, voice %q, rate %q"
	logFmtIgnoredStoredRate = "Ignoring stored rate %q"
)

var (
	// ErrSetupRequired indicates that credentials are missing.
	ErrSetupRequired = errors.New("setup required: missing Azure credentials")
	// ErrUnknownRate indicates a rate token outside Rates.
	ErrUnknownRate = errors.New("unknown rate")
	// ErrEmptyVoice indicates an empty voice identifier.
	ErrEmptyVoice = errors.New("voice cannot be empty")
)

// Rates are the selectable prosody rate tokens.
var Rates = []string{"-50%", "-25%", "-10%", ssml.DefaultRate, "+10%", "+25%", "+50%"}

// Options configures a Controller.
type Options struct {
	Store             core.KeyValueStore
	Sessions          core.SessionFactory
	Notifier          core.Notifier
	Sink              core.AudioSink
	Loader            *settings.Loader
	Log               *logger.Logger
	DefaultRegion     string
	StatusRevertDelay time.Duration
	SynthesisTimeout  time.Duration
}

// View is the controller state a client renders on connect.
type View struct {
	Texts         [2]string    `json:"texts"`
	Counts        [2]int       `json:"counts"`
	Voices        []core.Voice `json:"voices"`
	Rates         []string     `json:"rates"`
	SelectedVoice string       `json:"selectedVoice"`
	SelectedRate  string       `json:"selectedRate"`
	ActiveSlot    core.Slot    `json:"activeSlot"`
	Configured    bool         `json:"configured"`
	Busy          bool         `json:"busy"`
}

// Controller coordinates the text buffers, the preferences and the synthesis bridge.
// The synthesis guard is an atomic idle/busy state; every other field is guarded by mu,
// which is never held across a provider call.
type Controller struct {
	store             core.KeyValueStore
	sessions          core.SessionFactory
	notifier          core.Notifier
	sink              core.AudioSink
	loader            *settings.Loader
	log               *logger.Logger
	session           core.SpeechProvider
	revertTimer       *time.Timer
	defaultRegion     string
	lastText          string
	selectedVoice     string
	selectedRate      string
	settings          core.Settings
	voices            []core.Voice
	buffers           [2]string
	statusRevertDelay time.Duration
	synthesisTimeout  time.Duration
	activeSlot        core.Slot
	slotWrites        [2]sync.Mutex
	mu                sync.Mutex
	state             atomic.Int32
}

// New creates a controller. Start must be called before actions are dispatched.
func New(opts Options) *Controller {
	revertDelay := opts.StatusRevertDelay
	if revertDelay <= 0 {
		revertDelay = defaultStatusRevertDelay
	}

	region := opts.DefaultRegion
	if region == "" {
		region = defaultRegion
	}

	return &Controller{
		store:             opts.Store,
		sessions:          opts.Sessions,
		notifier:          opts.Notifier,
		sink:              opts.Sink,
		loader:            opts.Loader,
		log:               opts.Log,
		defaultRegion:     region,
		selectedRate:      ssml.DefaultRate,
		voices:            settings.ResolveVoices(core.Settings{}),
		statusRevertDelay: revertDelay,
		synthesisTimeout:  opts.SynthesisTimeout,
		activeSlot:        core.Slot1,
	}
}

// Start loads the settings, restores the persisted drafts and preferences and
// initializes the provider session, or opens the setup form when credentials are missing.
func (c *Controller) Start(ctx context.Context) {
	result := c.loader.Load(ctx)

	c.mu.Lock()
	c.settings = result.Settings
	c.voices = settings.ResolveVoices(result.Settings)
	c.mu.Unlock()

	c.restoreTexts(ctx)
	c.restorePreferences(ctx)

	c.mu.Lock()
	c.log.Info(logFmtStarted, len(c.voices), c.selectedVoice, c.selectedRate)
	c.mu.Unlock()

	if result.SetupRequired {
		c.notifier.Setup(c.setupPrompt())

		return
	}

	_ = c.InitializeSession()
}

// InitializeSession builds a provider session from the current credentials.
func (c *Controller) InitializeSession() error {
	c.mu.Lock()
	creds := c.settings.Credentials()
	c.mu.Unlock()

	if !creds.Complete() {
		c.log.Error(logMissingCredentials)
		c.notifier.Toast(core.ToastError, MsgMissingCredentials)
		c.notifier.Setup(c.setupPrompt())

		return ErrSetupRequired
	}

	session, err := c.sessions(creds)
	if err != nil {
		c.log.Error(logFmtSessionFailed, err)
		c.notifier.Toast(core.ToastError, MsgInitFailedPrefix+err.Error())
		c.notifier.Status(core.StatusError, StatusTextError)
		c.notifier.Setup(c.setupPrompt())

		return fmt.Errorf("failed to create speech session: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.log.Info(logFmtSessionReady, creds.Region, len(creds.Key))
	c.notifier.Status(core.StatusSuccess, StatusTextReady)

	return nil
}

// UpdateText replaces the draft of a slot, publishes its character count and persists it.
func (c *Controller) UpdateText(ctx context.Context, slot core.Slot, text string) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", core.ErrInvalidSlot, slot)
	}

	// Writes to one slot are serialized so the stored draft is the latest one.
	c.slotWrites[slot-1].Lock()
	defer c.slotWrites[slot-1].Unlock()

	c.mu.Lock()
	c.buffers[slot-1] = text
	c.mu.Unlock()

	c.notifier.CharCount(slot, utf8.RuneCountInString(text))
	c.persist(ctx, slot.TextKey(), text)

	return nil
}

// Focus marks slot as the target of keyboard shortcuts.
func (c *Controller) Focus(slot core.Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", core.ErrInvalidSlot, slot)
	}

	c.mu.Lock()
	c.activeSlot = slot
	c.mu.Unlock()

	return nil
}

// SelectVoice changes and persists the selected voice.
// Membership in the voice list is not enforced.
func (c *Controller) SelectVoice(ctx context.Context, voiceID string) error {
	if voiceID == "" {
		return ErrEmptyVoice
	}

	c.mu.Lock()
	c.selectedVoice = voiceID
	c.mu.Unlock()

	c.persist(ctx, settings.KeySelectedVoice, voiceID)

	return nil
}

// SelectRate changes and persists the selected rate.
func (c *Controller) SelectRate(ctx context.Context, rate string) error {
	if !slices.Contains(Rates, rate) {
		return fmt.Errorf("%w: %q", ErrUnknownRate, rate)
	}

	c.mu.Lock()
	c.selectedRate = rate
	c.mu.Unlock()

	c.persist(ctx, settings.KeySelectedRate, rate)

	return nil
}

// Busy reports whether a synthesis is in flight.
func (c *Controller) Busy() bool {
	return c.state.Load() == stateBusy
}

// View returns a copy of the state a client renders.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := View{
		Texts:         c.buffers,
		Voices:        slices.Clone(c.voices),
		Rates:         slices.Clone(Rates),
		SelectedVoice: c.selectedVoice,
		SelectedRate:  c.selectedRate,
		ActiveSlot:    c.activeSlot,
		Configured:    c.session != nil,
		Busy:          c.Busy(),
	}

	for i, text := range c.buffers {
		view.Counts[i] = utf8.RuneCountInString(text)
	}

	return view
}

// Settings returns the current settings.
func (c *Controller) Settings() core.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.settings
	current.Voices = slices.Clone(c.settings.Voices)

	return current
}

func (c *Controller) restoreTexts(ctx context.Context) {
	for _, slot := range []core.Slot{core.Slot1, core.Slot2} {
		text, ok := c.restore(ctx, slot.TextKey())
		if !ok {
			continue
		}

		c.mu.Lock()
		c.buffers[slot-1] = text
		c.mu.Unlock()

		c.notifier.CharCount(slot, utf8.RuneCountInString(text))
	}
}

func (c *Controller) restorePreferences(ctx context.Context) {
	voice, voiceOK := c.restore(ctx, settings.KeySelectedVoice)
	rate, rateOK := c.restore(ctx, settings.KeySelectedRate)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case voiceOK && voice != "":
		c.selectedVoice = voice
	case len(c.voices) > 0:
		c.selectedVoice = c.voices[0].ID
	}

	if rateOK {
		if slices.Contains(Rates, rate) {
			c.selectedRate = rate
		} else {
			c.log.Warn(logFmtIgnoredStoredRate, rate)
		}
	}
}

func (c *Controller) restore(ctx context.Context, key string) (string, bool) {
	if c.store == nil {
		return "", false
	}

	value, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			c.log.Warn(logFmtRestoreFailed, key, err)
		}

		return "", false
	}

	return string(value), true
}

// persist writes a preference. Failures are logged, not retried.
func (c *Controller) persist(ctx context.Context, key, value string) {
	if c.store == nil {
		return
	}

	err := c.store.Put(ctx, key, []byte(value))
	if err != nil {
		c.log.Error(logFmtPersistFailed, key, err)
	}
}

func (c *Controller) setupPrompt() core.SetupPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()

	region := c.settings.AzureRegion
	if region == "" {
		region = c.defaultRegion
	}

	return core.SetupPrompt{Open: true, Key: c.settings.AzureKey, Region: region}
}

package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/tts-pad/internal/core"
)

// Action messages.
const (
	MsgTextEmpty         = "Text is empty"
	MsgNoSelection       = "No text selected"
	MsgNothingToRepeat   = "Nothing to repeat yet"
	MsgFillAllFields     = "Fill in all fields"
	MsgConfigSaved       = "Configuration saved"
	MsgFmtUnknownAction  = "unknown action %q"
	logFmtDispatch       = "Action %s (slot %d)"
	logFmtUnknownAction  = "Ignoring unknown action %q"
	logFmtShortcut       = "Keyboard shortcut %s on slot %d"
	logFmtSaveFailed     = "Failed to save configuration: %v"
	shortcutSpeakAll     = "v"
	shortcutSpeakSelect  = "b"
	messageInvalidSlot   = "invalid slot"
	logFmtSpeakSelection = "Speak selection [%d, %d) of %d runes in slot %d"
)

// Shortcut is a key press with its modifiers and the selection of the active text area.
type Shortcut struct {
	Key       string
	Selection core.Selection
	Ctrl      bool
	Meta      bool
}

// Dispatch executes one action. A zero slot targets the active slot.
func (c *Controller) Dispatch(ctx context.Context, req core.ActionRequest) core.Outcome {
	slot := req.Slot
	if slot == 0 {
		slot = c.ActiveSlot()
	}

	c.log.Info(logFmtDispatch, req.Action, slot)

	switch req.Action {
	case core.ActionSpeakAll:
		return c.SpeakAll(ctx, slot)
	case core.ActionSpeakSelection:
		return c.SpeakSelection(ctx, slot, req.Selection)
	case core.ActionRepeatLast:
		return c.RepeatLast(ctx)
	case core.ActionSaveConfig:
		return c.SaveConfig(ctx, req.AzureKey, req.AzureRegion)
	case core.ActionCloseModal:
		return c.CloseSetup()
	default:
		c.log.Warn(logFmtUnknownAction, req.Action)

		return core.Outcome{Kind: core.OutcomeRejected, Message: fmt.Sprintf(MsgFmtUnknownAction, req.Action)}
	}
}

// HandleShortcut maps Ctrl+Meta+V to speak-all and Ctrl+Meta+B to
// speak-selection on the active slot. Every other key combination is ignored.
func (c *Controller) HandleShortcut(ctx context.Context, shortcut Shortcut) core.Outcome {
	if !shortcut.Ctrl || !shortcut.Meta {
		return core.Outcome{Kind: core.OutcomeIgnored}
	}

	slot := c.ActiveSlot()

	switch strings.ToLower(shortcut.Key) {
	case shortcutSpeakAll:
		c.log.Info(logFmtShortcut, "speak-all", slot)

		return c.SpeakAll(ctx, slot)
	case shortcutSpeakSelect:
		c.log.Info(logFmtShortcut, "speak-selection", slot)

		return c.SpeakSelection(ctx, slot, shortcut.Selection)
	default:
		return core.Outcome{Kind: core.OutcomeIgnored}
	}
}

// SpeakAll speaks the trimmed draft of slot, then selects the whole text area.
func (c *Controller) SpeakAll(ctx context.Context, slot core.Slot) core.Outcome {
	if !slot.Valid() {
		return core.Outcome{Kind: core.OutcomeRejected, Message: messageInvalidSlot}
	}

	text := strings.TrimSpace(c.buffer(slot))
	if text == "" {
		c.notifier.Toast(core.ToastWarning, MsgTextEmpty)

		return core.Outcome{Kind: core.OutcomeEmptyInput, Message: MsgTextEmpty}
	}

	outcome := c.Synthesize(ctx, text)
	c.focus(core.Directive{Kind: core.DirectiveSelectAll, Slot: slot})

	return outcome
}

// SpeakSelection speaks the selected part of the draft of slot. Offsets are in
// runes and clamped to the draft. An empty selection selects the whole text
// area instead and speaks nothing.
func (c *Controller) SpeakSelection(ctx context.Context, slot core.Slot, selection core.Selection) core.Outcome {
	if !slot.Valid() {
		return core.Outcome{Kind: core.OutcomeRejected, Message: messageInvalidSlot}
	}

	runes := []rune(c.buffer(slot))
	start, end := clampSelection(selection, len(runes))

	c.log.Info(logFmtSpeakSelection, start, end, len(runes), slot)

	text := strings.TrimSpace(string(runes[start:end]))
	if text == "" {
		c.notifier.Toast(core.ToastWarning, MsgNoSelection)
		c.focus(core.Directive{Kind: core.DirectiveSelectAll, Slot: slot})

		return core.Outcome{Kind: core.OutcomeEmptyInput, Message: MsgNoSelection}
	}

	outcome := c.Synthesize(ctx, text)
	c.focus(core.Directive{Kind: core.DirectiveRestoreSelection, Slot: slot, Start: start, End: end})

	return outcome
}

// RepeatLast speaks the most recently spoken text again.
func (c *Controller) RepeatLast(ctx context.Context) core.Outcome {
	text := c.LastText()
	if text == "" {
		c.notifier.Toast(core.ToastWarning, MsgNothingToRepeat)

		return core.Outcome{Kind: core.OutcomeEmptyInput, Message: MsgNothingToRepeat}
	}

	return c.Synthesize(ctx, text)
}

// SaveConfig stores new credentials, keeps the existing voice list and
// reinitializes the provider session. Both fields are required.
func (c *Controller) SaveConfig(ctx context.Context, key, region string) core.Outcome {
	key = strings.TrimSpace(key)
	region = strings.TrimSpace(region)

	if key == "" || region == "" {
		c.notifier.Toast(core.ToastError, MsgFillAllFields)

		return core.Outcome{Kind: core.OutcomeRejected, Message: MsgFillAllFields}
	}

	c.mu.Lock()
	voices := c.settings.Voices
	if voices == nil {
		voices = []core.Voice{}
	}

	updated := core.Settings{AzureKey: key, AzureRegion: region, Voices: voices}
	c.settings = updated
	c.mu.Unlock()

	err := c.loader.Save(ctx, updated)
	if err != nil {
		c.log.Error(logFmtSaveFailed, err)
	}

	c.notifier.Setup(core.SetupPrompt{Open: false})
	c.notifier.Toast(core.ToastSuccess, MsgConfigSaved)

	_ = c.InitializeSession()

	return core.Outcome{Kind: core.OutcomeDone, Message: MsgConfigSaved}
}

// CloseSetup closes the setup form.
func (c *Controller) CloseSetup() core.Outcome {
	c.notifier.Setup(core.SetupPrompt{Open: false})

	return core.Outcome{Kind: core.OutcomeDone}
}

// ActiveSlot returns the slot that last received focus.
func (c *Controller) ActiveSlot() core.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.activeSlot
}

func (c *Controller) buffer(slot core.Slot) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buffers[slot-1]
}

// focus sends a directive; the directed text area becomes the active slot.
func (c *Controller) focus(directive core.Directive) {
	c.mu.Lock()
	c.activeSlot = directive.Slot
	c.mu.Unlock()

	c.notifier.Directive(directive)
}

func clampSelection(selection core.Selection, length int) (int, int) {
	start := min(max(selection.Start, 0), length)
	end := min(max(selection.End, 0), length)

	if start > end {
		start, end = end, start
	}

	return start, end
}


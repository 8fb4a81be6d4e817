package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/ssml"
)

// User-facing messages.
const (
	MsgBusy               = "Wait for the previous playback to finish"
	MsgNotInitialized     = "Azure TTS is not initialized. Check credentials."
	MsgMissingCredentials = "Missing Azure credentials"
	MsgInitFailedPrefix   = "Azure TTS initialization failed: "
	MsgFmtPlaying         = "Playing (%d ms)"
	MsgUnauthorized       = "Invalid Azure key (401)"
	MsgForbidden          = "Azure subscription problem (403)"
	MsgConnection         = "Connection problem with Azure"
	MsgCanceled           = "Synthesis canceled"
	MsgUnexpected         = "Unexpected synthesis error"
	MsgSynthesisFailed    = "Speech synthesis failed"
	MsgInvalidKey         = "Invalid Azure key"
	MsgDeliveryFailed     = "Audio playback failed"
)

const (
	logFmtSynthesisBusy     = "Synthesis already in progress, ignoring request (%d chars)"
	logSynthesisNoSession   = "Speech session not initialized"
	logFmtSynthesisStart    = "Starting synthesis: voice %s, rate %s, %d chars"
	logFmtSynthesisDone     = "Synthesis completed in %d ms (%d bytes, audio %s)"
	logFmtSynthesisCanceled = "Synthesis canceled (code %d): %s"
	logFmtSynthesisFailed   = "Synthesis failed: %v"
	logFmtUnexpectedReason  = "Unexpected synthesis result reason: %s"
	logFmtDeliveryFailed    = "Failed to deliver audio: %v"
)

// ClassifyCancellation maps the provider's cancellation details to a class and a message.
func ClassifyCancellation(details string) (core.CancelClass, string) {
	switch {
	case details == "":
		return core.CancelOther, MsgCanceled
	case strings.Contains(details, "401") || strings.Contains(details, "Unauthorized"):
		return core.CancelUnauthorized, MsgUnauthorized
	case strings.Contains(details, "403") || strings.Contains(details, "Forbidden"):
		return core.CancelForbidden, MsgForbidden
	case strings.Contains(details, "Connection"):
		return core.CancelConnection, MsgConnection
	default:
		return core.CancelOther, details
	}
}

// Synthesize speaks text with the selected voice and rate.
// At most one synthesis is in flight; a concurrent call returns OutcomeBusy
// without reaching the provider and without affecting the call in flight.
func (c *Controller) Synthesize(ctx context.Context, text string) core.Outcome {
	if c.Busy() {
		return c.rejectBusy(text)
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		c.log.Error(logSynthesisNoSession)
		c.notifier.Toast(core.ToastError, MsgNotInitialized)
		c.notifier.Setup(c.setupPrompt())

		return core.Outcome{Kind: core.OutcomeNotConfigured, Message: MsgNotInitialized}
	}

	if !c.state.CompareAndSwap(stateIdle, stateBusy) {
		return c.rejectBusy(text)
	}
	defer c.state.Store(stateIdle)

	c.mu.Lock()
	c.lastText = text
	doc := ssml.Document{Text: text, Voice: c.selectedVoice, Rate: c.selectedRate}
	c.mu.Unlock()

	c.log.Info(logFmtSynthesisStart, doc.Voice, doc.Rate, len(text))
	c.notifier.Status(core.StatusLoading, StatusTextLoading)

	// The timeout bounds the provider round trip only; playback runs on ctx.
	speakCtx := ctx

	if c.synthesisTimeout > 0 {
		var cancel context.CancelFunc

		speakCtx, cancel = context.WithTimeout(ctx, c.synthesisTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := session.SpeakSSML(speakCtx, ssml.Build(doc))
	elapsed := time.Since(start)

	if err != nil {
		return c.handleTransportError(err, elapsed)
	}

	switch result.Reason {
	case core.ReasonCompleted:
		return c.handleCompleted(ctx, result, elapsed)
	case core.ReasonCanceled:
		return c.handleCanceled(result, elapsed)
	default:
		c.log.Error(logFmtUnexpectedReason, result.Reason)
		c.notifier.Status(core.StatusError, StatusTextError)
		c.notifier.Toast(core.ToastError, MsgUnexpected)

		return core.Outcome{Kind: core.OutcomeFailed, Message: MsgUnexpected, Elapsed: elapsed}
	}
}

// LastText returns the most recently spoken text.
func (c *Controller) LastText() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastText
}

func (c *Controller) rejectBusy(text string) core.Outcome {
	c.log.Warn(logFmtSynthesisBusy, len(text))
	c.notifier.Toast(core.ToastWarning, MsgBusy)

	return core.Outcome{Kind: core.OutcomeBusy, Message: MsgBusy}
}

func (c *Controller) handleCompleted(ctx context.Context, result core.SynthesisResult, elapsed time.Duration) core.Outcome {
	latency := elapsed.Milliseconds()

	c.log.Info(logFmtSynthesisDone, latency, len(result.Audio), result.AudioDuration)
	c.notifier.Status(core.StatusSuccess, StatusTextPlaying)

	message := fmt.Sprintf(MsgFmtPlaying, latency)
	c.notifier.Toast(core.ToastSuccess, message)

	if c.sink != nil && len(result.Audio) > 0 {
		err := c.sink.Deliver(ctx, result.Audio)
		if err != nil {
			c.log.Error(logFmtDeliveryFailed, err)
			c.notifier.Toast(core.ToastWarning, MsgDeliveryFailed)
		}
	}

	c.scheduleStatusRevert()

	return core.Outcome{Kind: core.OutcomeCompleted, Message: message, Elapsed: elapsed}
}

func (c *Controller) handleCanceled(result core.SynthesisResult, elapsed time.Duration) core.Outcome {
	class, message := ClassifyCancellation(result.ErrorDetails)

	c.log.Error(logFmtSynthesisCanceled, result.ErrorCode, result.ErrorDetails)
	c.notifier.Status(core.StatusError, StatusTextError)
	c.notifier.Toast(core.ToastError, message)

	if class == core.CancelUnauthorized || class == core.CancelForbidden {
		c.notifier.Setup(c.setupPrompt())
	}

	return core.Outcome{Kind: core.OutcomeCanceled, Message: message, Cancel: class, Elapsed: elapsed}
}

func (c *Controller) handleTransportError(err error, elapsed time.Duration) core.Outcome {
	c.log.Error(logFmtSynthesisFailed, err)
	c.notifier.Status(core.StatusError, StatusTextError)
	c.notifier.Toast(core.ToastError, MsgSynthesisFailed)

	text := err.Error()
	if strings.Contains(text, "401") || strings.Contains(text, "authentication") {
		c.notifier.Toast(core.ToastError, MsgInvalidKey)
		c.notifier.Setup(c.setupPrompt())
	}

	return core.Outcome{Kind: core.OutcomeFailed, Message: text, Elapsed: elapsed}
}

// scheduleStatusRevert returns the status to ready after the revert delay,
// unless another synthesis is in flight by then.
func (c *Controller) scheduleStatusRevert() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revertTimer != nil {
		c.revertTimer.Stop()
	}

	c.revertTimer = time.AfterFunc(c.statusRevertDelay, func() {
		if !c.Busy() {
			c.notifier.Status(core.StatusSuccess, StatusTextReady)
		}
	})
}

// Stop cancels the pending status revert.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revertTimer != nil {
		c.revertTimer.Stop()
	}
}

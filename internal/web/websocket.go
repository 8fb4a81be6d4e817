package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/tts-pad/internal/controller"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/feedback"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Inbound message types.
const (
	MessageAction = "action"
	MessageInput  = "input"
	MessageFocus  = "focus"
	MessageVoice  = "voice"
	MessageRate   = "rate"
	MessageKey    = "key"
)

const (
	writeTimeout = 10 * time.Second

	logFmtUpgradeFailed   = "WebSocket upgrade failed: %v"
	logFmtClientConnected = "Client connected from %s"
	logFmtClientGone      = "Client %s disconnected"
	logFmtReadFailed      = "WebSocket read error from %s: %v"
	logFmtWriteFailed     = "WebSocket write error to %s: %v"
	logFmtThrottled       = "Throttling messages from %s"
	logFmtBadMessage      = "Ignoring malformed message from %s: %v"
	logFmtMessageFailed   = "Message %s from %s rejected: %v"
	logFmtOutcome         = "Action %s finished: %s %s"
)

// ErrUnknownMessage indicates an inbound message type the server does not handle.
var ErrUnknownMessage = errors.New("unknown message type")

// InboundMessage is a message from the page. Type selects which fields are read.
type InboundMessage struct {
	Type        string      `json:"type"`
	Action      core.Action `json:"action,omitempty"`
	Text        string      `json:"text,omitempty"`
	Voice       string      `json:"voice,omitempty"`
	Rate        string      `json:"rate,omitempty"`
	Key         string      `json:"key,omitempty"`
	AzureKey    string      `json:"azureKey,omitempty"`
	AzureRegion string      `json:"azureRegion,omitempty"`
	Slot        core.Slot   `json:"slot,omitempty"`
	Start       int         `json:"start,omitempty"`
	End         int         `json:"end,omitempty"`
	Ctrl        bool        `json:"ctrl,omitempty"`
	Meta        bool        `json:"meta,omitempty"`
}

// SnapshotData is sent once to every new connection.
type SnapshotData struct {
	Feedback feedback.Snapshot `json:"feedback"`
	View     controller.View   `json:"view"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error(logFmtUpgradeFailed, err)

		return
	}

	remote := r.RemoteAddr
	s.log.Info(logFmtClientConnected, remote)

	sub, snapshot := s.hub.Subscribe()

	defer func() {
		sub.Close()
		_ = conn.Close()
		s.log.Info(logFmtClientGone, remote)
	}()

	err = s.write(conn, feedback.Event{
		Type: feedback.EventSnapshot,
		Data: SnapshotData{Feedback: snapshot, View: s.pad.View()},
	})
	if err != nil {
		s.log.Warn(logFmtWriteFailed, remote, err)

		return
	}

	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		s.writeLoop(conn, sub, remote)
	}()

	// Actions outlive the connection that triggered them.
	s.readLoop(context.WithoutCancel(r.Context()), conn, remote)

	sub.Close()
	<-writerDone
}

func (s *Server) writeLoop(conn *websocket.Conn, sub *feedback.Subscription, remote string) {
	for event := range sub.Events() {
		err := s.write(conn, event)
		if err != nil {
			s.log.Warn(logFmtWriteFailed, remote, err)
			_ = conn.Close()

			return
		}
	}

	// The hub closed the subscription; end the read loop too.
	_ = conn.Close()
}

func (s *Server) write(conn *websocket.Conn, event feedback.Event) error {
	err := conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	err = conn.WriteJSON(event)
	if err != nil {
		return fmt.Errorf("failed to write %s event: %w", event.Type, err)
	}

	return nil
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, remote string) {
	limiter := rate.NewLimiter(rate.Limit(s.messagesPerSecond), s.burst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn(logFmtReadFailed, remote, err)
			}

			return
		}

		if !limiter.Allow() {
			s.log.Warn(logFmtThrottled, remote)

			continue
		}

		var msg InboundMessage

		err = json.Unmarshal(data, &msg)
		if err != nil {
			s.log.Warn(logFmtBadMessage, remote, err)

			continue
		}

		err = s.handleMessage(ctx, msg)
		if err != nil {
			s.log.Warn(logFmtMessageFailed, msg.Type, remote, err)
		}
	}
}

// handleMessage applies one inbound message. Actions and shortcuts run in
// their own goroutine so a busy synthesis never stalls the connection.
func (s *Server) handleMessage(ctx context.Context, msg InboundMessage) error {
	switch msg.Type {
	case MessageInput:
		return s.pad.UpdateText(ctx, msg.Slot, msg.Text)
	case MessageFocus:
		return s.pad.Focus(msg.Slot)
	case MessageVoice:
		return s.pad.SelectVoice(ctx, msg.Voice)
	case MessageRate:
		return s.pad.SelectRate(ctx, msg.Rate)
	case MessageAction:
		req := core.ActionRequest{
			Action:      msg.Action,
			Slot:        msg.Slot,
			Selection:   core.Selection{Start: msg.Start, End: msg.End},
			AzureKey:    msg.AzureKey,
			AzureRegion: msg.AzureRegion,
		}

		go func() {
			s.logOutcome(string(msg.Action), s.pad.Dispatch(ctx, req))
		}()

		return nil
	case MessageKey:
		shortcut := controller.Shortcut{
			Key:       msg.Key,
			Ctrl:      msg.Ctrl,
			Meta:      msg.Meta,
			Selection: core.Selection{Start: msg.Start, End: msg.End},
		}

		go func() {
			s.logOutcome("shortcut "+msg.Key, s.pad.HandleShortcut(ctx, shortcut))
		}()

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func (s *Server) logOutcome(name string, outcome core.Outcome) {
	s.log.Info(logFmtOutcome, name, outcome.Kind, outcome.Message)
}

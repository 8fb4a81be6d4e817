// Package worker provides a NATS worker that executes remote tts-pad actions.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	handleMessageTimeout = 60 * time.Second
	drainTimeout         = 5 * time.Second
)

var (
	// ErrSubjectEmpty indicates that the actions subject is empty.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	// ErrUnknownAction indicates an action identifier the pad does not know.
	ErrUnknownAction = errors.New("unknown action")
)

// ActionEvent is a remote request to run one action.
type ActionEvent struct {
	Header      events.EventHeader `json:"header"`
	Action      core.Action        `json:"action"`
	AzureKey    string             `json:"azureKey,omitempty"`
	AzureRegion string             `json:"azureRegion,omitempty"`
	Slot        int                `json:"slot,omitempty"`
	Start       int                `json:"start,omitempty"`
	End         int                `json:"end,omitempty"`
}

// ActionReply is the outcome of an ActionEvent.
type ActionReply struct {
	Header    events.EventHeader `json:"header"`
	Outcome   core.OutcomeKind   `json:"outcome"`
	Message   string             `json:"message,omitempty"`
	Cancel    core.CancelClass   `json:"cancel,omitempty"`
	ElapsedMS int64              `json:"elapsedMs"`
}

// NatsWorker listens for actions on a NATS subject and dispatches them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	dispatcher     core.Dispatcher
	log            *logger.Logger
	inFlight       sync.WaitGroup
	mu             sync.Mutex
	stopping       bool
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	dispatcher core.Dispatcher,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		dispatcher:     dispatcher,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
// Each message is handled in its own goroutine, so a request arriving while
// a synthesis is in flight is answered busy instead of waiting behind it.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.mu.Lock()
		defer w.mu.Unlock()

		if w.stopping {
			w.log.Warn("Dropping action received during shutdown")

			return
		}

		w.inFlight.Add(1)

		go func() {
			defer w.inFlight.Done()
			w.handleMessage(msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for actions on subject: %s", w.subject)

	<-ctx.Done()

	drained := sub.StatusChanged(nats.SubscriptionClosed)
	drainErr := sub.Drain()

	if drainErr == nil {
		select {
		case <-drained:
		case <-time.After(drainTimeout):
		}
	}

	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()

	w.inFlight.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse action event: %v", err)

		return
	}

	reply := w.processAction(ctx, event)

	err = w.publishReply(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processAction validates the event and runs it through the dispatcher.
func (w *NatsWorker) processAction(ctx context.Context, event *ActionEvent) *ActionReply {
	header := event.Header
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	req, err := toRequest(event)
	if err != nil {
		w.log.Warn("Rejecting action for workflow %s: %v", event.Header.WorkflowID, err)

		return &ActionReply{Header: header, Outcome: core.OutcomeRejected, Message: err.Error()}
	}

	outcome := w.dispatcher.Dispatch(ctx, req)

	w.log.Info("Action %s for workflow %s finished: %s", event.Action, event.Header.WorkflowID, outcome.Kind)

	return &ActionReply{
		Header:    header,
		Outcome:   outcome.Kind,
		Message:   outcome.Message,
		Cancel:    outcome.Cancel,
		ElapsedMS: outcome.Elapsed.Milliseconds(),
	}
}

// publishReply marshals and responds with the ActionReply.
func (w *NatsWorker) publishReply(msg *nats.Msg, reply *ActionReply) error {
	if msg.Reply == "" {
		return nil
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*ActionEvent, error) {
	var event ActionEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

func toRequest(event *ActionEvent) (core.ActionRequest, error) {
	switch event.Action {
	case core.ActionSpeakAll, core.ActionSpeakSelection, core.ActionRepeatLast,
		core.ActionSaveConfig, core.ActionCloseModal:
	default:
		return core.ActionRequest{}, fmt.Errorf("%w: %q", ErrUnknownAction, event.Action)
	}

	slot := core.Slot(event.Slot)
	if slot != 0 && !slot.Valid() {
		return core.ActionRequest{}, fmt.Errorf("%w: %d", core.ErrInvalidSlot, event.Slot)
	}

	return core.ActionRequest{
		Action:      event.Action,
		Slot:        slot,
		Selection:   core.Selection{Start: event.Start, End: event.End},
		AzureKey:    event.AzureKey,
		AzureRegion: event.AzureRegion,
	}, nil
}

// Package web serves the tablet page, the websocket event protocol and the synthesized clips.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/controller"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/book-expert/tts-pad/internal/feedback"
	"github.com/book-expert/tts-pad/internal/playback"
	"github.com/gorilla/websocket"
)

//go:embed static
var staticFiles embed.FS

const (
	defaultMessagesPerSecond = 20
	defaultBurst             = 40
	readHeaderTimeout        = 10 * time.Second
	shutdownTimeout          = 5 * time.Second
	contentTypeMPEG          = "audio/mpeg"
	contentTypeJSON          = "application/json"

	logFmtServerListening = "Web server listening on %s"
	logFmtServerFailed    = "Web server failed: %v"
	logFmtAudioFailed     = "Failed to serve clip %s: %v"
	logFmtHealthEncode    = "Failed to encode health response: %v"
)

// Pad is the controller as seen by the web surface.
type Pad interface {
	core.Dispatcher
	HandleShortcut(ctx context.Context, shortcut controller.Shortcut) core.Outcome
	UpdateText(ctx context.Context, slot core.Slot, text string) error
	Focus(slot core.Slot) error
	SelectVoice(ctx context.Context, voiceID string) error
	SelectRate(ctx context.Context, rate string) error
	View() controller.View
}

// Options configures a Server.
type Options struct {
	Pad               Pad
	Hub               *feedback.Hub
	Audio             core.ObjectStore
	Log               *logger.Logger
	Addr              string
	MessagesPerSecond float64
	Burst             int
}

// Server is the HTTP surface of tts-pad.
type Server struct {
	pad               Pad
	hub               *feedback.Hub
	audio             core.ObjectStore
	log               *logger.Logger
	httpServer        *http.Server
	upgrader          websocket.Upgrader
	messagesPerSecond float64
	burst             int
}

type healthResponse struct {
	Status     string `json:"status"`
	Configured bool   `json:"configured"`
	Busy       bool   `json:"busy"`
}

// NewServer creates the web server and its routes.
func NewServer(opts Options) (*Server, error) {
	messagesPerSecond := opts.MessagesPerSecond
	if messagesPerSecond <= 0 {
		messagesPerSecond = defaultMessagesPerSecond
	}

	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	server := &Server{
		pad:               opts.Pad,
		hub:               opts.Hub,
		audio:             opts.Audio,
		log:               opts.Log,
		messagesPerSecond: messagesPerSecond,
		burst:             burst,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded assets: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /", http.FileServerFS(static))
	mux.HandleFunc("GET /ws", server.handleWebSocket)
	mux.HandleFunc("GET "+playback.AudioRoutePrefix+"{key}", server.handleAudio)
	mux.HandleFunc("GET /healthz", server.handleHealth)

	server.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return server, nil
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info(logFmtServerListening, s.httpServer.Addr)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.log.Error(logFmtServerFailed, err)

			return fmt.Errorf("web server failed: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}

	return nil
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	err := playback.ValidateClipKey(key)
	if err != nil {
		http.NotFound(w, r)

		return
	}

	data, err := s.audio.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.NotFound(w, r)

			return
		}

		s.log.Error(logFmtAudioFailed, key, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", contentTypeMPEG)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	view := s.pad.View()

	w.Header().Set("Content-Type", contentTypeJSON)

	err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Configured: view.Configured, Busy: view.Busy})
	if err != nil {
		s.log.Error(logFmtHealthEncode, err)
	}
}

// Package playback delivers synthesized audio to where it is heard.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/tts-pad/internal/core"
	"github.com/google/uuid"
)

// AudioRoutePrefix is the URL path under which clips are served.
const AudioRoutePrefix = "/audio/"

const clipExtension = ".mp3"

// ErrInvalidClipKey indicates a key that was not produced by a sink.
var ErrInvalidClipKey = errors.New("invalid clip key")

// Player tells connected clients to play a clip.
type Player interface {
	Play(url string)
}

// BrowserSink uploads each clip to the object store and asks the clients to play it.
type BrowserSink struct {
	store  core.ObjectStore
	player Player
}

var _ core.AudioSink = (*BrowserSink)(nil)

// NewBrowserSink creates a browser sink.
func NewBrowserSink(store core.ObjectStore, player Player) *BrowserSink {
	return &BrowserSink{store: store, player: player}
}

// Deliver stores the clip under a fresh key and broadcasts its URL.
func (s *BrowserSink) Deliver(ctx context.Context, audio []byte) error {
	key := uuid.NewString() + clipExtension

	err := s.store.Upload(ctx, key, audio)
	if err != nil {
		return fmt.Errorf("failed to upload clip '%s': %w", key, err)
	}

	s.player.Play(AudioRoutePrefix + key)

	return nil
}

// ValidateClipKey checks that key has the shape of a key produced by Deliver.
func ValidateClipKey(key string) error {
	id, found := strings.CutSuffix(key, clipExtension)
	if !found {
		return fmt.Errorf("%w: %q", ErrInvalidClipKey, key)
	}

	err := uuid.Validate(id)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidClipKey, key)
	}

	return nil
}

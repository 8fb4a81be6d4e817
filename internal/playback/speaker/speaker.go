// Package speaker plays synthesized MP3 clips on the host's default audio output.
package speaker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-pad/internal/core"
	"github.com/gordonklaus/portaudio"
	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 decodes to interleaved 16-bit little-endian stereo.
	outputChannels  = 2
	bytesPerSample  = 2
	framesPerBuffer = 1024
	sampleScale     = 32768.0

	logFmtPlaying = "Playing %d frames at %d Hz on the default output"
)

// Sink plays clips through PortAudio. One clip plays at a time.
type Sink struct {
	log *logger.Logger
	mu  sync.Mutex
}

var _ core.AudioSink = (*Sink)(nil)

// New initializes PortAudio. Close must be called to release it.
func New(log *logger.Logger) (*Sink, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &Sink{log: log}, nil
}

// Deliver decodes the clip and plays it to the end, or until ctx is done.
func (s *Sink) Deliver(ctx context.Context, audio []byte) error {
	samples, sampleRate, err := decode(audio)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info(logFmtPlaying, len(samples)/outputChannels, sampleRate)

	buffer := make([]float32, framesPerBuffer*outputChannels)

	stream, err := portaudio.OpenDefaultStream(0, outputChannels, float64(sampleRate), framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	err = stream.Start()
	if err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for position := 0; position < len(samples); position += len(buffer) {
		if ctx.Err() != nil {
			return fmt.Errorf("playback interrupted: %w", ctx.Err())
		}

		n := copy(buffer, samples[position:])
		clear(buffer[n:])

		err = stream.Write()
		if err != nil {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
	}

	return nil
}

// Close releases PortAudio.
func (s *Sink) Close() error {
	err := portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	return nil
}

func decode(audio []byte) ([]float32, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode mp3: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read decoded audio: %w", err)
	}

	samples := make([]float32, len(pcm)/bytesPerSample)
	for i := range samples {
		value := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		samples[i] = float32(value) / sampleScale
	}

	return samples, decoder.SampleRate(), nil
}

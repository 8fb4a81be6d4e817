package azure

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to 16-bit little-endian stereo.
const decodedBytesPerFrame = 4

// ErrUnknownLength is returned when the decoder cannot determine the stream length.
var ErrUnknownLength = errors.New("mp3 stream length unknown")

// MP3Duration returns the playback length of an MP3 clip.
func MP3Duration(audio []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return 0, fmt.Errorf("failed to decode mp3: %w", err)
	}

	length := decoder.Length()
	if length < 0 || decoder.SampleRate() <= 0 {
		return 0, ErrUnknownLength
	}

	frames := length / decodedBytesPerFrame

	return time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate()), nil
}

package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file does not carry a readable WAV header.
var ErrInvalidWAV = errors.New("invalid wav file")

// Info describes a stored WAV file.
type Info struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
	Duration      time.Duration
}

// Probe reads the header of the WAV file at path.
func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open wav file '%s': %w", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read duration of '%s': %w", path, err)
	}

	return Info{
		SampleRate:    int(decoder.SampleRate),
		BitsPerSample: int(decoder.BitDepth),
		Channels:      int(decoder.NumChans),
		Duration:      duration,
	}, nil
}

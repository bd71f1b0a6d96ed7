package audio

import (
	"bytes"
	"fmt"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// Inspect decodes the WAV header of data and reports its length.
func Inspect(data []byte) (Info, error) {
	streamer, format, err := decode(data)
	if err != nil {
		return Info{}, err
	}
	defer streamer.Close()

	samples := streamer.Len()
	return Info{
		SampleRate: int(format.SampleRate),
		Channels:   format.NumChannels,
		Samples:    samples,
		Duration:   format.SampleRate.D(samples),
	}, nil
}

func decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if !IsWAV(data) {
		return nil, beep.Format{}, ErrInvalidFormat
	}
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode wav: %w", err)
	}
	return streamer, format, nil
}

package audio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Source records raw mono samples from an input device.
type Source interface {
	// RecordFor blocks for dur, reading the device in one second blocks.
	// tick is called before every block with the whole seconds left.
	RecordFor(ctx context.Context, dur time.Duration, sampleRate int, tick func(left int)) ([]float32, error)
}

// Recorder reads the default portaudio input device.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordFor records for dur. ctx is only checked between blocks, so a
// cancel takes up to one second to be honored and the partial recording is
// discarded.
func (r *Recorder) RecordFor(ctx context.Context, dur time.Duration, sampleRate int, tick func(left int)) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}

	seconds := int(math.Ceil(dur.Seconds()))
	if seconds <= 0 {
		seconds = 15
	}

	// one block per second
	buf := make([]float32, sampleRate)

	stream, err := portaudio.OpenDefaultStream(
		1, // in
		0, // no out
		float64(sampleRate),
		len(buf),
		buf,
	)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	out := make([]float32, 0, seconds*sampleRate)

	for left := seconds; left > 0; left-- {
		if tick != nil {
			tick(left)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		out = append(out, buf...)
	}

	if len(out) == 0 {
		return nil, errors.New("no audio recorded")
	}

	return out, nil
}

// FrameRMS returns the root mean square level of f.
func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}

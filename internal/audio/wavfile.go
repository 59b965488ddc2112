package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/multierr"
)

const wavBitDepth = 16

// WriteWAV stores mono float samples in [-1, 1] as 16 bit PCM.
func WriteWAV(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	data := make([]int, len(samples))
	const scale = 1<<(wavBitDepth-1) - 1
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * scale)
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: wavBitDepth,
		Data:           data,
	}
	if err := enc.Write(buf); err != nil {
		return multierr.Combine(fmt.Errorf("encode wav: %w", err), enc.Close())
	}

	return enc.Close()
}

// VerifyFile fails unless path is an existing non-empty regular file.
func VerifyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not created: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return errors.New("file is empty: " + path)
	}
	return nil
}

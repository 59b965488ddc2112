// Package audioconv decodes audio files into the 16 kHz mono float PCM
// whisper expects.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
	"go.uber.org/multierr"
)

// TargetRate is the sample rate of every decoded buffer.
const TargetRate = 16000

type Options struct {
	MaxSamples int // 0 = no limit
}

type decodeFunc func(io.ReadSeeker) (pcm []float32, rate int, channels int, err error)

// DecodeFile reads path and returns mono samples at TargetRate. The format
// is picked by extension, then by magic bytes.
func DecodeFile(ctx context.Context, path string, opt Options) (out []float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	decoders, err := pickDecoders(f, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, err
	}

	var errs error
	for _, dec := range decoders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}

		pcm, rate, ch, err := dec(f)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		return finish(pcm, rate, ch, opt), nil
	}

	return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), errs)
}

func pickDecoders(f io.ReadSeeker, ext string) ([]decodeFunc, error) {
	switch ext {
	case ".wav":
		return []decodeFunc{decodeWAV}, nil
	case ".mp3":
		return []decodeFunc{decodeMP3}, nil
	case ".ogg", ".oga", ".opus":
		return []decodeFunc{decodeOggVorbis, decodeOggOpus}, nil
	}

	magic, _ := bufio.NewReader(f).Peek(4)
	switch string(magic) {
	case "RIFF":
		return []decodeFunc{decodeWAV}, nil
	case "OggS":
		return []decodeFunc{decodeOggVorbis, decodeOggOpus}, nil
	}
	return nil, fmt.Errorf("unsupported format: %q (supported: wav/mp3/ogg-vorbis/ogg-opus)", ext)
}

func finish(pcm []float32, rate, channels int, opt Options) []float32 {
	x := Downmix(pcm, channels)
	x = Resample(x, rate, TargetRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, 0, 0, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return intsToFloat32(pb.Data, bd), sr, ch, nil
}

func decodeMP3(r io.ReadSeeker) ([]float32, int, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, 0, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, 0, 0, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always yields interleaved stereo
	return int16sToFloat32(ints), sr, 2, nil
}

func decodeOggVorbis(r io.ReadSeeker) ([]float32, int, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, 0, errors.New("invalid ogg/vorbis stream")
	}
	return pcm, format.SampleRate, format.Channels, nil
}

func decodeOggOpus(r io.ReadSeeker) ([]float32, int, int, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// opus always decodes at 48 kHz, read about half a second at a time
	var (
		pcm []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf) // samples per channel
		if n > 0 {
			pcm = append(pcm, int16sToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
	}
	if len(pcm) == 0 {
		return nil, 0, 0, errors.New("empty ogg/opus stream")
	}
	return pcm, 48000, ch, nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16sToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// Downmix averages interleaved frames of the given channel count into one
// channel.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	n := len(in) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts in from inRate to outRate with linear interpolation.
func Resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 || inRate <= 0 || outRate <= 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := range out {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		switch {
		case i0 >= len(in)-1:
			out[i] = in[len(in)-1]
		default:
			a := float32(src - float64(i0))
			out[i] = in[i0]*(1-a) + in[i0+1]*a
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

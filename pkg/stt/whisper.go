package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Options are the decoding parameters of one inference run. Zero values
// keep the whisper.cpp defaults.
type Options struct {
	Language      string // "es", "en" or "auto"
	Threads       int    // <=0 uses every CPU
	BeamSize      int    // 0 is greedy
	Temperature   float32
	InitialPrompt string
}

type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// PCMTranscriber turns 16 kHz mono samples into text.
type PCMTranscriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error)
}

// Transcriber runs a whisper.cpp model. Inference runs are serialized.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
}

func NewTranscriber(modelPath string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return &Transcriber{model: m}, nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// TranscribePCM expects mono samples at 16 kHz in [-1, 1].
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return Result{}, errors.New("model closed")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}
	if err := configure(wctx, opt); err != nil {
		return Result{}, err
	}

	// whisper.cpp skips encoding when this returns false
	encoderBegin := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(pcm16k, encoderBegin, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	segs, err := collect(wctx)
	if err != nil {
		return Result{}, err
	}

	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:     strings.Join(parts, " "),
		Segments: segs,
		Language: lang,
	}, nil
}

func configure(wctx whisper.Context, opt Options) error {
	lang := opt.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return fmt.Errorf("set language %q: %w", lang, err)
	}
	wctx.SetTranslate(false)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.Temperature > 0 {
		wctx.SetTemperature(opt.Temperature)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	return nil
}

func collect(wctx whisper.Context) ([]Segment, error) {
	var segs []Segment
	for {
		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return segs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
}

package tts

import "context"

// Synthesizer renders text to an audio file at path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, path string) error
	// Ext is the file extension of the produced audio, dot included.
	Ext() string
}

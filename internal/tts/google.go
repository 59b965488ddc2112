package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/multierr"
)

const (
	googleEndpoint = "https://translate.google.com/translate_tts"
	// the endpoint rejects long inputs
	maxChunkRunes = 100
)

// Google uses the public translate TTS endpoint and writes MP3.
type Google struct {
	lang     string
	endpoint string
	client   *http.Client
}

func NewGoogle(lang string, client *http.Client) *Google {
	if client == nil {
		client = http.DefaultClient
	}
	return &Google{lang: lang, endpoint: googleEndpoint, client: client}
}

func (g *Google) Ext() string { return ".mp3" }

func (g *Google) Synthesize(ctx context.Context, text, path string) (err error) {
	chunks := splitText(text, maxChunkRunes)
	if len(chunks) == 0 {
		return fmt.Errorf("nothing to synthesize")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	for i, chunk := range chunks {
		if err := g.fetch(ctx, f, chunk, i, len(chunks)); err != nil {
			return err
		}
	}
	return nil
}

func (g *Google) fetch(ctx context.Context, w io.Writer, chunk string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.lang)
	q.Set("q", chunk)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts returned status %d", resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read tts audio: %w", err)
	}
	return nil
}

// splitText cuts text into pieces of at most limit runes on word boundaries.
// Words longer than limit are hard split.
func splitText(text string, limit int) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}

	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > limit {
			flush()
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}

		wl := len(runes)
		if n > 0 && n+1+wl > limit {
			flush()
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(string(runes))
		n += wl
	}
	flush()
	return out
}

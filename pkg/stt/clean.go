package stt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Cleaner strips tokens the model is known to hallucinate. Entries may be
// single words or phrases and are matched case-insensitively on whole
// words.
type Cleaner struct {
	phrases [][]string
}

func NewCleaner(denylist []string) *Cleaner {
	c := &Cleaner{}
	for _, entry := range denylist {
		var words []string
		for _, w := range strings.Fields(entry) {
			if w = normalize(w); w != "" {
				words = append(words, w)
			}
		}
		if len(words) > 0 {
			c.phrases = append(c.phrases, words)
		}
	}
	return c
}

// Clean removes denylisted words, collapses whitespace and upper-cases the
// first letter.
func (c *Cleaner) Clean(text string) string {
	words := strings.Fields(text)
	kept := make([]string, 0, len(words))

	for i := 0; i < len(words); {
		if n := c.match(words[i:]); n > 0 {
			i += n
			continue
		}
		kept = append(kept, words[i])
		i++
	}

	return capitalize(strings.Join(kept, " "))
}

// match returns how many words at the head of words form a denylisted
// phrase, preferring the longest one.
func (c *Cleaner) match(words []string) int {
	best := 0
	for _, p := range c.phrases {
		if len(p) > len(words) || len(p) <= best {
			continue
		}
		ok := true
		for j, w := range p {
			if normalize(words[j]) != w {
				ok = false
				break
			}
		}
		if ok {
			best = len(p)
		}
	}
	return best
}

// normalize lower-cases a word and drops the punctuation around it.
func normalize(w string) string {
	return strings.ToLower(strings.Trim(w, ".,;:!¡?¿\"'"))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

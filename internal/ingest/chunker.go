// Package ingest turns external documents into embedded chunks in the
// vector store.
package ingest

import (
	"regexp"
	"strings"
)

// Chunker splits document text on semantic boundaries. Paragraph breaks are
// preferred, sentence breaks are the fallback when a paragraph alone would
// exceed the word ceiling. Consecutive chunks share an overlap so context
// survives the cut.
type Chunker struct {
	minWords     int
	maxWords     int
	overlapWords int
}

// NewChunker builds a chunker; non-positive settings fall back to defaults
func NewChunker(minWords, maxWords, overlapWords int) *Chunker {
	if minWords <= 0 {
		minWords = 50
	}
	if maxWords <= 0 {
		maxWords = 1200
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= maxWords {
		overlapWords = maxWords / 5
	}
	return &Chunker{minWords: minWords, maxWords: maxWords, overlapWords: overlapWords}
}

var (
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
	sentenceRe  = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)
)

// Chunk splits text into word-bounded pieces. Text below the minimum comes
// back as a single chunk; an empty or whitespace-only text yields none.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if wordCount(text) <= c.maxWords {
		return []string{text}
	}

	var chunks []string
	var current []string
	currentWords := 0

	flush := func() {
		if currentWords == 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(current, "\n\n"))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		// Seed the next chunk with the overlap tail of this one
		tail := tailWords(chunk, c.overlapWords)
		current = current[:0]
		currentWords = 0
		if tail != "" {
			current = append(current, tail)
			currentWords = wordCount(tail)
		}
	}

	for _, unit := range c.units(text) {
		n := wordCount(unit)
		if currentWords+n > c.maxWords && currentWords >= c.minWords {
			flush()
		}
		current = append(current, unit)
		currentWords += n
	}
	if currentWords > 0 {
		chunk := strings.TrimSpace(strings.Join(current, "\n\n"))
		// A trailing sliver below the minimum folds into the previous chunk
		if wordCount(chunk) < c.minWords && len(chunks) > 0 {
			chunks[len(chunks)-1] = chunks[len(chunks)-1] + "\n\n" + chunk
		} else if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// units returns paragraphs, splitting any paragraph that alone exceeds the
// ceiling into sentences.
func (c *Chunker) units(text string) []string {
	var units []string
	for _, para := range paragraphRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if wordCount(para) <= c.maxWords {
			units = append(units, para)
			continue
		}
		for _, m := range sentenceRe.FindAllStringSubmatch(para, -1) {
			if s := strings.TrimSpace(m[1]); s != "" {
				units = append(units, s)
			}
		}
	}
	return units
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// tailWords returns the last n words of s
func tailWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[len(words)-n:], " ")
}

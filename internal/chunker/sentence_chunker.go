package chunker

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"secondbrain/internal/domain"
)

// SentenceChunker splits text into chunks of roughly targetSize characters,
// preferring sentence boundaries and repeating up to overlap trailing
// characters at the start of the next chunk. A sentence longer than
// targetSize is hard-split so no chunk exceeds the embedding budget.
type SentenceChunker struct {
	targetSize int
	overlap    int
	splitter   *regexp.Regexp
}

func NewSentenceChunker(targetSize, overlap int) *SentenceChunker {
	if targetSize <= 0 {
		targetSize = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize / 4
	}
	return &SentenceChunker{
		targetSize: targetSize,
		overlap:    overlap,
		splitter:   regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+\s*)`),
	}
}

// Chunk materializes Split for the Chunker interface.
func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for ch := range c.Split(document) {
		chunks = append(chunks, ch)
	}
	return chunks, nil
}

// Split returns a restartable lazy sequence of chunks. Ranging over it again
// regenerates the same chunks without materializing the whole document twice.
func (c *SentenceChunker) Split(document domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		units := c.units(document.Text)
		if len(units) == 0 {
			return
		}
		idx := 0
		var carry []string // overlap units seeding the next chunk
		i := 0
		for i < len(units) {
			var b strings.Builder
			overlapLen := 0
			for _, u := range carry {
				b.WriteString(u)
				overlapLen += len(u)
			}
			n := 0 // fresh units consumed by this chunk
			for i+n < len(units) {
				u := units[i+n]
				// always take at least one fresh unit so progress is made
				if n > 0 && b.Len()+len(u) > c.targetSize {
					break
				}
				b.WriteString(u)
				n++
			}
			ch := domain.Chunk{
				ID:         document.ID + ":" + strconv.Itoa(idx),
				DocumentID: document.ID,
				Owner:      document.Owner,
				Index:      idx,
				Text:       b.String(),
				Overlap:    overlapLen,
			}
			if !yield(ch) {
				return
			}
			i += n
			idx++
			carry = c.trailing(units[:i])
		}
	}
}

// units slices text into sentence substrings. The substrings concatenate
// back to the original text exactly: trailing text without terminal
// punctuation becomes a final unit, and sentences longer than targetSize
// are hard-split on rune boundaries.
func (c *SentenceChunker) units(text string) []string {
	if text == "" {
		return nil
	}
	var sentences []string
	last := 0
	for _, loc := range c.splitter.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			sentences = append(sentences, text[last:loc[0]])
		}
		sentences = append(sentences, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		sentences = append(sentences, text[last:])
	}
	var units []string
	for _, s := range sentences {
		for len(s) > c.targetSize {
			cut := c.targetSize
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = c.targetSize
			}
			units = append(units, s[:cut])
			s = s[cut:]
		}
		if s != "" {
			units = append(units, s)
		}
	}
	return units
}

// trailing picks the suffix of consumed units that fits the overlap budget.
func (c *SentenceChunker) trailing(consumed []string) []string {
	if c.overlap == 0 {
		return nil
	}
	total := 0
	start := len(consumed)
	for start > 0 {
		l := len(consumed[start-1])
		if total+l > c.overlap {
			break
		}
		total += l
		start--
	}
	if start == len(consumed) {
		return nil
	}
	return consumed[start:]
}

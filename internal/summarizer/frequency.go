// Package summarizer is the local, model-free summary path. It backs the
// summarize operation when the generation service is unreachable, trading
// fluency for availability.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	tokenRe    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// Frequency ranks sentences by normalized content-word frequency and
// returns the top ones in their original order.
type Frequency struct {
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{stopwords: stopwords}
}

// Summarize extracts up to maxSentences sentences from text. Input shorter
// than one sentence comes back trimmed but otherwise untouched.
func (f *Frequency) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}

	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = f.contentWords(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	peak := 0.0
	for _, n := range freq {
		peak = math.Max(peak, n)
	}
	if peak > 0 {
		for tok, n := range freq {
			freq[tok] = n / peak
		}
	}

	order := make([]int, len(sentences))
	score := make([]float64, len(sentences))
	for i := range sentences {
		order[i] = i
		for _, tok := range tokens[i] {
			score[i] += freq[tok]
		}
		// dampen the long-sentence advantage
		if n := len(tokens[i]); n > 0 {
			score[i] /= math.Sqrt(float64(n))
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return score[order[a]] > score[order[b]] })

	if maxSentences > len(order) {
		maxSentences = len(order)
	}
	keep := append([]int(nil), order[:maxSentences]...)
	sort.Ints(keep)

	out := make([]string, 0, len(keep))
	for _, i := range keep {
		out = append(out, strings.TrimSpace(sentences[i]))
	}
	return strings.Join(out, " "), nil
}

func (f *Frequency) contentWords(sent string) []string {
	var out []string
	for _, tok := range tokenRe.FindAllString(strings.ToLower(sent), -1) {
		if _, skip := f.stopwords[tok]; !skip {
			out = append(out, tok)
		}
	}
	return out
}

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`a an the and or but if then else for to of in on at by
		with as is are was were be been being it this that these those from up down
		over under again further than so such into about between through during
		before after above below out off own same too very can will just don
		should now i you he she we they my your our`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

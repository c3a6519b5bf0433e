package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gardenText = `The garden needs watering every morning in summer. Tomatoes grow best
with six hours of direct sun. The garden hose sprung a leak near the tap.
Weather was mild yesterday. Watering the garden in the evening invites slugs.`

func TestSummarizeKeepsOriginalOrder(t *testing.T) {
	s := NewFrequency()
	out, err := s.Summarize(gardenText, 2)
	require.NoError(t, err)

	picked := strings.Split(out, ". ")
	require.Len(t, picked, 2)
	first := strings.Index(gardenText, strings.TrimSuffix(picked[0], "."))
	second := strings.Index(gardenText, strings.TrimSuffix(picked[1], "."))
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second, "selected sentences keep source order")
}

func TestSummarizePrefersFrequentTopic(t *testing.T) {
	s := NewFrequency()
	out, err := s.Summarize(gardenText, 2)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "garden")
	assert.NotContains(t, out, "Weather was mild", "off-topic sentence ranks last")
}

func TestSummarizeShortInputPassesThrough(t *testing.T) {
	s := NewFrequency()
	out, err := s.Summarize("  no terminal punctuation here  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "no terminal punctuation here", out)
}

func TestSummarizeCapsAtAvailableSentences(t *testing.T) {
	s := NewFrequency()
	out, err := s.Summarize("One. Two.", 10)
	require.NoError(t, err)
	assert.Equal(t, "One. Two.", out)
}

func TestSummarizeEmpty(t *testing.T) {
	s := NewFrequency()
	out, err := s.Summarize("", 3)
	require.NoError(t, err)
	assert.Empty(t, out)
}

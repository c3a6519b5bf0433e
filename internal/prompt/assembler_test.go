package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/domain"
)

func results(texts ...string) []domain.SearchResult {
	out := make([]domain.SearchResult, len(texts))
	for i, t := range texts {
		out[i] = domain.SearchResult{
			Chunk: domain.Chunk{ID: "c" + string(rune('0'+i)), Text: t},
			Score: 1 - float64(i)*0.1,
		}
	}
	return out
}

func TestAssembleOrdering(t *testing.T) {
	a := NewAssembler("You are a helpful assistant.")
	history := []domain.Message{
		{Role: "user", Text: "older question"},
		{Role: "assistant", Text: "older answer"},
	}
	out, cited := a.Assemble(results("Most relevant chunk.", "Second chunk."), history, "What now?", 4000)

	sys := strings.Index(out, "You are a helpful assistant.")
	ctx1 := strings.Index(out, "Most relevant chunk.")
	ctx2 := strings.Index(out, "Second chunk.")
	hist := strings.Index(out, "older question")
	q := strings.Index(out, "Question: What now?")
	require.NotEqual(t, -1, sys)
	require.NotEqual(t, -1, ctx1)
	require.NotEqual(t, -1, ctx2)
	require.NotEqual(t, -1, hist)
	require.NotEqual(t, -1, q)
	assert.Less(t, sys, ctx1)
	assert.Less(t, ctx1, ctx2)
	assert.Less(t, ctx2, hist)
	assert.Less(t, hist, q)
	assert.Equal(t, []string{"c0", "c1"}, cited)
	assert.True(t, strings.HasSuffix(out, "\n\nAnswer:"))
}

func TestAssembleNeverExceedsBudget(t *testing.T) {
	a := NewAssembler(strings.Repeat("instruction ", 10))
	history := []domain.Message{
		{Role: "user", Text: strings.Repeat("history ", 30)},
		{Role: "assistant", Text: strings.Repeat("reply ", 30)},
	}
	chunks := results(strings.Repeat("context ", 40), strings.Repeat("more ", 40))
	for _, maxLen := range []int{40, 100, 200, 500, 1000} {
		out, _ := a.Assemble(chunks, history, "the question survives", maxLen)
		assert.LessOrEqual(t, len(out), maxLen, "maxLen=%d", maxLen)
		assert.Contains(t, out, "the question survives")
	}
}

func TestAssembleDropsHistoryBeforeContext(t *testing.T) {
	a := NewAssembler("")
	history := []domain.Message{{Role: "user", Text: strings.Repeat("old history ", 20)}}
	chunks := results("The one important fact.")
	// budget fits query + context but not history
	out, cited := a.Assemble(chunks, history, "question?", 120)
	assert.Contains(t, out, "The one important fact.")
	assert.NotContains(t, out, "old history")
	assert.Len(t, cited, 1)
}

func TestAssembleDropsOldestHistoryFirst(t *testing.T) {
	a := NewAssembler("")
	history := []domain.Message{
		{Role: "user", Text: strings.Repeat("oldest turn padding ", 10)},
		{Role: "user", Text: "newest turn"},
	}
	out, _ := a.Assemble(nil, history, "q?", 260)
	assert.Contains(t, out, "newest turn")
	assert.NotContains(t, out, "oldest turn")
}

func TestAssembleEmptyContextAdmission(t *testing.T) {
	a := NewAssembler("")
	out, cited := a.Assemble(nil, nil, "What do I know?", 4000)
	assert.Empty(t, cited)
	assert.Contains(t, out, "No saved information matched")
}

func TestAssembleDeterministic(t *testing.T) {
	a := NewAssembler("sys")
	chunks := results("alpha", "beta")
	history := []domain.Message{{Role: "user", Text: "hi"}}
	out1, _ := a.Assemble(chunks, history, "q", 300)
	out2, _ := a.Assemble(chunks, history, "q", 300)
	assert.Equal(t, out1, out2)
}

func TestAssembleOversizedQueryTruncated(t *testing.T) {
	a := NewAssembler("")
	long := strings.Repeat("q", 500)
	out, _ := a.Assemble(nil, nil, long, 100)
	assert.LessOrEqual(t, len(out), 100)
	assert.True(t, strings.HasPrefix(out, "Question: "))
}

// Package prompt builds bounded-length prompts for the generation model.
package prompt

import (
	"strings"

	"secondbrain/internal/domain"
)

// Assembler composes system instructions, retrieved context, conversation
// history and the user query into one prompt. Content is ordered as:
// instructions, context (most relevant first), history (most recent first),
// query last. When the budget is exceeded, history is dropped before
// context and context before instructions; the query always survives.
type Assembler struct {
	system string
}

func NewAssembler(system string) *Assembler {
	return &Assembler{system: system}
}

const (
	contextHeader      = "Context:\n"
	contextSeparator   = "\n---\n"
	historyHeader      = "Conversation so far (most recent first):\n"
	questionPrefix     = "Question: "
	answerSuffix       = "\n\nAnswer:"
	noContextAdmission = "No saved information matched this question. Say so if you cannot answer from general knowledge.\n"
)

// Assemble returns the prompt and the ids of the chunks that made it in.
// Deterministic for identical inputs.
func (a *Assembler) Assemble(chunks []domain.SearchResult, history []domain.Message, query string, maxLen int) (string, []string) {
	if maxLen <= 0 {
		maxLen = 4000
	}
	query = strings.TrimSpace(query)
	queryBlock := questionPrefix + query + answerSuffix
	if len(queryBlock) > maxLen {
		// the one unavoidable truncation: a query alone over budget
		keep := maxLen - len(questionPrefix) - len(answerSuffix)
		if keep < 0 {
			keep = 0
		}
		queryBlock = questionPrefix + query[:keep] + answerSuffix
	}
	budget := maxLen - len(queryBlock)

	var system string
	if a.system != "" && len(a.system)+2 <= budget {
		system = a.system + "\n\n"
		budget -= len(system)
	}

	var contextBlock strings.Builder
	var cited []string
	for _, res := range chunks {
		piece := res.Chunk.Text
		addition := len(piece) + len(contextSeparator)
		if contextBlock.Len() == 0 {
			addition = len(contextHeader) + len(piece)
		}
		if addition > budget {
			break
		}
		if contextBlock.Len() == 0 {
			contextBlock.WriteString(contextHeader)
		} else {
			contextBlock.WriteString(contextSeparator)
		}
		contextBlock.WriteString(piece)
		cited = append(cited, res.Chunk.ID)
		budget -= addition
	}
	contextStr := contextBlock.String()
	if contextStr != "" {
		if budget >= 2 {
			contextStr += "\n\n"
			budget -= 2
		}
	} else if len(noContextAdmission)+1 <= budget {
		contextStr = noContextAdmission + "\n"
		budget -= len(contextStr)
	}

	var historyBlock strings.Builder
	// most recent first; stop at the first turn that no longer fits, so
	// the oldest turns are the ones dropped
	for i := len(history) - 1; i >= 0; i-- {
		line := renderTurn(history[i])
		addition := len(line)
		if historyBlock.Len() == 0 {
			addition += len(historyHeader)
		}
		if addition > budget {
			break
		}
		if historyBlock.Len() == 0 {
			historyBlock.WriteString(historyHeader)
		}
		historyBlock.WriteString(line)
		budget -= addition
	}
	historyStr := historyBlock.String()
	if historyStr != "" && budget >= 1 {
		historyStr += "\n"
	}

	return system + contextStr + historyStr + queryBlock, cited
}

func renderTurn(msg domain.Message) string {
	role := "User"
	if msg.Role == "assistant" {
		role = "Assistant"
	}
	return role + ": " + strings.TrimSpace(msg.Text) + "\n"
}

package granite

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"secondbrain/internal/domain"
	"secondbrain/internal/timeparse"
)

// ExtractTasks asks the model for action items in the text and parses the
// reply tolerantly: a clean JSON object parses fully, a damaged one is
// salvaged entry by entry, and when no JSON survives a small set of
// imperative-phrase patterns runs directly over the input text.
func (c *Client) ExtractTasks(ctx context.Context, text string, ref time.Time) (domain.TaskExtraction, error) {
	raw, err := c.Generate(ctx, extractionPrompt(text), Params{
		MaxNewTokens: 400,
		Temperature:  0.2,
	})
	if err != nil {
		return domain.TaskExtraction{}, err
	}
	ext := parseExtraction(raw, ref)
	if ext.Outcome == domain.Unparseable {
		if fb := fallbackExtract(text, ref); len(fb.Tasks) > 0 || len(fb.Reminders) > 0 {
			return fb, nil
		}
	}
	return ext, nil
}

func extractionPrompt(text string) string {
	return `Extract action items from the message below. Respond with JSON only, in this shape:
{"tasks": [{"description": "...", "due": "tomorrow at 3pm", "priority": "high|medium|low", "is_reminder": true, "confidence": 0.9}]}
Use "due": "" when the message names no time. Use an empty list when there is nothing to do.

Message: ` + strings.TrimSpace(text) + `

JSON:`
}

type rawTask struct {
	Description string  `json:"description"`
	Due         string  `json:"due"`
	Priority    string  `json:"priority"`
	IsReminder  bool    `json:"is_reminder"`
	Confidence  float64 `json:"confidence"`
}

// parseExtraction interprets the model output. The JSON object is located
// by the outermost braces so prose around it does not matter.
func parseExtraction(raw string, ref time.Time) domain.TaskExtraction {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.TaskExtraction{Outcome: domain.Unparseable}
	}
	island := raw[start : end+1]

	var parsed struct {
		Tasks []rawTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(island), &parsed); err != nil {
		return domain.TaskExtraction{Outcome: domain.Unparseable}
	}

	out := domain.TaskExtraction{Outcome: domain.Parsed}
	dropped := false
	for _, rt := range parsed.Tasks {
		desc := strings.TrimSpace(rt.Description)
		if desc == "" {
			dropped = true
			continue
		}
		due, hasDue := timeparse.Resolve(rt.Due, ref)
		if rt.IsReminder && hasDue {
			out.Reminders = append(out.Reminders, domain.Reminder{
				ID:      uuid.NewString(),
				Message: desc,
				At:      due,
			})
			continue
		}
		task := domain.Task{
			ID:          uuid.NewString(),
			Description: desc,
			Priority:    normalizePriority(rt.Priority),
			Confidence:  rt.Confidence,
			CreatedAt:   ref,
		}
		if task.Confidence == 0 {
			task.Confidence = 0.8
		}
		if hasDue {
			task.DueDate = &due
		}
		out.Tasks = append(out.Tasks, task)
	}
	if dropped {
		out.Outcome = domain.PartiallyParsed
	}
	return out
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high", "low":
		return strings.ToLower(strings.TrimSpace(p))
	default:
		return "medium"
	}
}

var fallbackPatterns = []struct {
	re       *regexp.Regexp
	reminder bool
}{
	{regexp.MustCompile(`(?i)remind me to\s+(.+?)(?:\.|$)`), true},
	{regexp.MustCompile(`(?i)don'?t forget to\s+(.+?)(?:\.|$)`), true},
	{regexp.MustCompile(`(?i)(?:need to|have to|must|should|remember to)\s+(.+?)(?:\.|$)`), false},
}

// fallbackExtract runs pattern matching directly over the user text when
// the model output yields no JSON. Matches are always PartiallyParsed;
// the patterns recover phrasing, not structure.
func fallbackExtract(text string, ref time.Time) domain.TaskExtraction {
	out := domain.TaskExtraction{Outcome: domain.PartiallyParsed}
	seen := map[string]bool{}
	for _, p := range fallbackPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			desc, due, hasDue := splitTrailingTime(strings.TrimSpace(m[1]), ref)
			if desc == "" || seen[desc] {
				continue
			}
			seen[desc] = true
			if p.reminder && hasDue {
				out.Reminders = append(out.Reminders, domain.Reminder{
					ID:      uuid.NewString(),
					Message: desc,
					At:      due,
				})
				continue
			}
			task := domain.Task{
				ID:          uuid.NewString(),
				Description: desc,
				Priority:    "medium",
				Confidence:  0.5,
				CreatedAt:   ref,
			}
			if hasDue {
				task.DueDate = &due
			}
			out.Tasks = append(out.Tasks, task)
		}
	}
	return out
}

// splitTrailingTime peels a time expression off the end of a phrase:
// "call mom tomorrow at 3pm" becomes ("call mom", tomorrow 15:00). The
// longest resolvable suffix wins.
func splitTrailingTime(phrase string, ref time.Time) (string, time.Time, bool) {
	words := strings.Fields(phrase)
	for cut := 0; cut < len(words)-1; cut++ {
		suffix := strings.Join(words[cut:], " ")
		if t, ok := timeparse.Resolve(suffix, ref); ok {
			return strings.TrimRight(strings.Join(words[:cut], " "), " ,"), t, true
		}
	}
	return phrase, time.Time{}, false
}

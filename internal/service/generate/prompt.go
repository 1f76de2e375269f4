package generate

import (
	"fmt"
	"strings"

	"github.com/sandevgo/threadbot/internal/core"
)

// responseContract is appended to the operator instruction so the model
// knows the two shapes the response schema allows and how to decline.
func responseContract() string {
	return fmt.Sprintf(`You must answer with a single JSON object in one of two shapes:
  {"action": "reply", "text": "<your full reply>"} to answer directly, or
  {"action": "query_user", "text": "<username>"} when you need that user's public posting history before you can answer responsibly.
Only ask for a user's history when their own posts would materially change your answer, and never twice for the same user.
If the question cannot be answered from the provided context, or answering would be inappropriate, reply with {"action": "reply", "text": "%s"}.`, core.DeclineMarker)
}

// buildPrompt lays out one task for the model: the item itself first,
// then whatever grounding material exists.
func buildPrompt(task Task) string {
	var b strings.Builder

	if title := strings.TrimSpace(task.Title); title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	if body := strings.TrimSpace(task.Body); body != "" {
		fmt.Fprintf(&b, "Content: %s\n", body)
	}
	if len(task.Images) > 0 {
		b.WriteString("An image is attached; take its content into account.\n")
	}

	if task.Context != "" && task.Context != core.NoContext {
		b.WriteString("\nContext from the community archive:\n")
		b.WriteString(task.Context)
		b.WriteString("\n")
	}
	if extra := strings.TrimSpace(task.ExtraContext); extra != "" {
		b.WriteString("\nAdditional context:\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

package chat

import (
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type PromptInput struct {
	Message string
	Context []string
	History []Turn
}

// BuildPrompt renders the model prompt. With context the model is told to
// answer only from the excerpts; without it the prompt is a plain
// conversation. When maxTokens is positive, the oldest history turns go
// first, then the lowest ranked excerpts, then the last excerpt is cut.
func BuildPrompt(in PromptInput, counter TokenCounter, maxTokens int) string {
	history := in.History
	excerpts := in.Context
	prompt := renderPrompt(in.Message, excerpts, history)
	if maxTokens <= 0 || counter == nil {
		return prompt
	}
	for counter.CountTokens(prompt) > maxTokens && len(history) > 0 {
		history = history[1:]
		prompt = renderPrompt(in.Message, excerpts, history)
	}
	for counter.CountTokens(prompt) > maxTokens && len(excerpts) > 1 {
		excerpts = excerpts[:len(excerpts)-1]
		prompt = renderPrompt(in.Message, excerpts, history)
	}
	if over := counter.CountTokens(prompt) - maxTokens; over > 0 && len(excerpts) == 1 {
		keep := counter.CountTokens(excerpts[0]) - over
		trimmed := counter.TrimToTokenLimit(excerpts[0], keep)
		if strings.TrimSpace(trimmed) == "" {
			excerpts = nil
		} else {
			excerpts = []string{trimmed}
		}
		prompt = renderPrompt(in.Message, excerpts, history)
	}
	return prompt
}

func renderPrompt(message string, excerpts []string, history []Turn) string {
	var sb strings.Builder
	if len(excerpts) > 0 {
		sb.WriteString("You are a helpful assistant.\n")
		sb.WriteString("Answer the user's question using ONLY the document excerpts below.\n")
		sb.WriteString("If the answer is not present in the document, say so clearly.\n\n")
		sb.WriteString("[DOCUMENT]\n")
		sb.WriteString(strings.Join(excerpts, "\n\n"))
		sb.WriteString("\n\n")
		if len(history) > 0 {
			sb.WriteString("Conversation so far:\n")
			writeHistory(&sb, history)
			sb.WriteString("\n")
		}
		sb.WriteString("User question:\n")
		sb.WriteString(message)
		sb.WriteString("\n\nAnswer clearly:")
		return sb.String()
	}
	sb.WriteString("You are a friendly helpful assistant.\n")
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		writeHistory(&sb, history)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(message)
	sb.WriteString("\nAssistant:")
	return sb.String()
}

func writeHistory(sb *strings.Builder, history []Turn) {
	for _, turn := range history {
		if turn.Role == RoleUser {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
}

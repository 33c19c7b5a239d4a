package service

import (
	"strings"

	"github.com/raglinehq/ragline/internal/adapter/completion"
	"github.com/raglinehq/ragline/internal/domain"
)

// defaultSystemPrompt is used when SYSTEM_PROMPT is not configured.
const defaultSystemPrompt = `You are an assistant for a project management platform. You help teams find information across their meetings, documents and project records.

Use the provided database context to answer questions. When the context contains relevant information, ground your answer in it and name the documents you drew from. When the context does not contain the answer, say so instead of guessing.

Keep answers concise and actionable.`

func (s *Service) systemPrompt() string {
	if s.config.SystemPrompt != "" {
		return s.config.SystemPrompt
	}
	return defaultSystemPrompt
}

// buildMessages converts an assembled context plus the user query into the
// message list for the completion service. Retrieved documents ride inside
// the system message under a context header; history turns become regular
// role messages; the user query goes last.
func buildMessages(ac *domain.AssembledContext, userMessage string) []completion.ChatMessage {
	systemContent := ac.System
	if docs := ac.DocumentFragments(); len(docs) > 0 {
		var b strings.Builder
		b.WriteString(systemContent)
		b.WriteString("\n\nCURRENT DATABASE CONTEXT:\n")
		for i, f := range docs {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			b.WriteString(f.Text)
		}
		systemContent = b.String()
	}

	messages := make([]completion.ChatMessage, 0, len(ac.Fragments)+2)
	messages = append(messages, completion.ChatMessage{Role: domain.RoleSystem, Content: systemContent})
	for _, f := range ac.HistoryFragments() {
		messages = append(messages, completion.ChatMessage{Role: f.Role, Content: f.Text})
	}
	messages = append(messages, completion.ChatMessage{Role: domain.RoleUser, Content: userMessage})
	return messages
}

package usecase

import (
	"fmt"
	"strings"

	"recall/internal/usecase/retrieval"
)

// PromptInput contains the pieces that feed into the prompt builder.
type PromptInput struct {
	Query   string
	Context retrieval.ContextPayload
}

// PromptBuilder renders the prompt sent to the LLM.
type PromptBuilder interface {
	Build(input PromptInput) (string, error)
}

// HistoryPromptBuilder creates structured prompts that separate the browsing
// history context, the instructions and the question.
type HistoryPromptBuilder struct {
	additionalInstructions []string
}

// NewHistoryPromptBuilder creates a prompt builder with optional extra
// instructions appended.
func NewHistoryPromptBuilder(additionalInstructions ...string) PromptBuilder {
	return &HistoryPromptBuilder{
		additionalInstructions: additionalInstructions,
	}
}

// Build renders the full prompt text.
func (b *HistoryPromptBuilder) Build(input PromptInput) (string, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	var sb strings.Builder

	sb.WriteString("You are an assistant that answers questions using excerpts from the user's browsing history.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("1. Answer ONLY from the excerpts below. Do not use outside knowledge.\n")
	sb.WriteString("2. When you state a fact, name the source page it came from.\n")
	sb.WriteString("3. If the excerpts do not contain the answer, say so plainly.\n")
	for i, inst := range b.additionalInstructions {
		sb.WriteString(fmt.Sprintf("%d. %s\n", 4+i, inst))
	}

	sb.WriteString("\n--- Browsing history excerpts ---\n")
	for _, entry := range input.Context.Entries {
		sb.WriteString(entry.Text)
		sb.WriteString("\n\n")
	}
	sb.WriteString("--- End of excerpts ---\n\n")

	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n")

	return sb.String(), nil
}

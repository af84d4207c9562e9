package usecase_test

import (
	"testing"

	"recall/internal/usecase"
	"recall/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptBuilder_Build(t *testing.T) {
	builder := usecase.NewHistoryPromptBuilder()

	payload := retrieval.ContextPayload{
		Entries: []retrieval.ContextEntry{
			{ChunkID: 1, URL: "https://a", Title: "A", Text: "[source: A (https://a)]\nexcerpt one"},
			{ChunkID: 2, URL: "https://b", Title: "B", Text: "[source: B (https://b)]\nexcerpt two"},
		},
		Sources: []string{"https://a", "https://b"},
	}

	prompt, err := builder.Build(usecase.PromptInput{Query: "what did I read", Context: payload})
	require.NoError(t, err)

	assert.Contains(t, prompt, "excerpt one")
	assert.Contains(t, prompt, "excerpt two")
	assert.Contains(t, prompt, "Question: what did I read")
	assert.Contains(t, prompt, "browsing history")
}

func TestPromptBuilder_EmptyQuery(t *testing.T) {
	builder := usecase.NewHistoryPromptBuilder()

	_, err := builder.Build(usecase.PromptInput{Query: "  "})
	assert.Error(t, err)
}

func TestPromptBuilder_AdditionalInstructions(t *testing.T) {
	builder := usecase.NewHistoryPromptBuilder("Answer in one short paragraph.")

	prompt, err := builder.Build(usecase.PromptInput{Query: "q"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "4. Answer in one short paragraph.")
}

package usecase

import (
	"context"
	"time"
)

// AnswerInput encapsulates the parameters that drive an answer request.
type AnswerInput struct {
	Query     string
	K         int
	From      time.Time
	To        time.Time
	MaxTokens int
}

// AnswerOutput is the normalized answer returned to API clients.
type AnswerOutput struct {
	Answer   string
	Sources  []string
	Fallback bool
	Cached   bool
}

// AnswerUsecase generates grounded answers over the indexed browsing history.
type AnswerUsecase interface {
	Chat(ctx context.Context, input AnswerInput) (*AnswerOutput, error)
	ChatStream(ctx context.Context, input AnswerInput) <-chan StreamEvent
}

type StreamEventKind string

const (
	StreamEventKindMeta  StreamEventKind = "meta"
	StreamEventKindDelta StreamEventKind = "delta"
	StreamEventKindDone  StreamEventKind = "done"
	StreamEventKindError StreamEventKind = "error"
)

type StreamEvent struct {
	Kind    StreamEventKind
	Payload interface{}
}

// StreamMeta is the first event of a stream: the sources the answer will be
// grounded on.
type StreamMeta struct {
	Sources []string
}

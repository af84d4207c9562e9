package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"recall/internal/domain"
	"recall/internal/usecase/retrieval"
)

// fallbackAnswer is returned when retrieval finds nothing relevant. It is a
// valid answer, not an error, and is never cached as a generation.
const fallbackAnswer = "I couldn't find anything relevant in your browsing history for that question."

type answerUsecase struct {
	retriever     RetrieveContextUsecase
	reranker      domain.Reranker
	rerankCfg     retrieval.RerankConfig
	buildCfg      retrieval.BuildConfig
	promptBuilder PromptBuilder
	llmClient     domain.LLMClient
	cache         *ResponseCache
	maxTokens     int
	logger        *slog.Logger
}

// NewAnswerUsecase wires the retrieve, rerank, context build and generate
// stages into the answer pipeline. The reranker may be nil when disabled.
func NewAnswerUsecase(
	retriever RetrieveContextUsecase,
	reranker domain.Reranker,
	rerankCfg retrieval.RerankConfig,
	buildCfg retrieval.BuildConfig,
	promptBuilder PromptBuilder,
	llmClient domain.LLMClient,
	cache *ResponseCache,
	maxTokens int,
	logger *slog.Logger,
) AnswerUsecase {
	return &answerUsecase{
		retriever:     retriever,
		reranker:      reranker,
		rerankCfg:     rerankCfg,
		buildCfg:      buildCfg,
		promptBuilder: promptBuilder,
		llmClient:     llmClient,
		cache:         cache,
		maxTokens:     maxTokens,
		logger:        logger,
	}
}

// prepareContext runs retrieve, rerank and context assembly. An empty payload
// means nothing relevant was indexed.
func (u *answerUsecase) prepareContext(ctx context.Context, input AnswerInput) (retrieval.ContextPayload, error) {
	retrieveK := input.K
	if u.rerankCfg.Enabled && u.rerankCfg.TopK > retrieveK {
		retrieveK = u.rerankCfg.TopK
	}

	out, err := u.retriever.Execute(ctx, RetrieveContextInput{
		Query: input.Query,
		K:     retrieveK,
		From:  input.From,
		To:    input.To,
	})
	if err != nil {
		return retrieval.ContextPayload{}, err
	}

	candidates := retrieval.Rerank(ctx, input.Query, out.Candidates, u.reranker, u.rerankCfg, u.logger)
	return retrieval.BuildContext(candidates, u.buildCfg), nil
}

func (u *answerUsecase) Chat(ctx context.Context, input AnswerInput) (*AnswerOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	input.Query = query

	payload, err := u.prepareContext(ctx, input)
	if err != nil {
		return nil, err
	}

	if payload.Empty() {
		u.logger.Info("answer_fallback_empty_context", slog.String("query", query))
		return &AnswerOutput{Answer: fallbackAnswer, Fallback: true}, nil
	}

	fingerprint := Fingerprint(query, payload.Sources)

	answer, cached, err := u.cache.GetOrCompute(ctx, fingerprint, func() (CachedAnswer, error) {
		prompt, err := u.promptBuilder.Build(PromptInput{Query: query, Context: payload})
		if err != nil {
			return CachedAnswer{}, fmt.Errorf("failed to build prompt: %w", err)
		}

		maxTokens := input.MaxTokens
		if maxTokens <= 0 {
			maxTokens = u.maxTokens
		}

		resp, err := u.llmClient.Generate(ctx, prompt, maxTokens)
		if err != nil {
			return CachedAnswer{}, fmt.Errorf("failed to generate answer: %w", err)
		}

		return CachedAnswer{
			Answer:  strings.TrimSpace(resp.Text),
			Sources: payload.Sources,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if cached {
		u.logger.Info("answer_served_from_cache", slog.String("query", query))
	}

	return &AnswerOutput{
		Answer:  answer.Answer,
		Sources: answer.Sources,
		Cached:  cached,
	}, nil
}

// ChatStream streams the answer as ordered events: one meta, zero or more
// deltas, then exactly one done or error. A cancelled or failed stream never
// reaches the cache.
func (u *answerUsecase) ChatStream(ctx context.Context, input AnswerInput) <-chan StreamEvent {
	events := make(chan StreamEvent, 4)

	go func() {
		defer close(events)

		query := strings.TrimSpace(input.Query)
		if query == "" {
			u.send(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "query is required"})
			return
		}
		input.Query = query

		payload, err := u.prepareContext(ctx, input)
		if err != nil {
			u.send(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: err.Error()})
			return
		}

		if payload.Empty() {
			if !u.send(ctx, events, StreamEvent{Kind: StreamEventKindMeta, Payload: StreamMeta{}}) {
				return
			}
			if !u.send(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: fallbackAnswer}) {
				return
			}
			u.send(ctx, events, StreamEvent{Kind: StreamEventKindDone, Payload: &AnswerOutput{Answer: fallbackAnswer, Fallback: true}})
			return
		}

		fingerprint := Fingerprint(query, payload.Sources)

		// A cached answer streams as a single delta.
		if cached, ok := u.cache.Get(fingerprint); ok {
			u.logger.Info("streaming_cached_answer", slog.String("query", query))
			if !u.send(ctx, events, StreamEvent{Kind: StreamEventKindMeta, Payload: StreamMeta{Sources: cached.Sources}}) {
				return
			}
			if !u.send(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: cached.Answer}) {
				return
			}
			u.send(ctx, events, StreamEvent{Kind: StreamEventKindDone, Payload: &AnswerOutput{
				Answer:  cached.Answer,
				Sources: cached.Sources,
				Cached:  true,
			}})
			return
		}

		if !u.send(ctx, events, StreamEvent{Kind: StreamEventKindMeta, Payload: StreamMeta{Sources: payload.Sources}}) {
			return
		}

		prompt, err := u.promptBuilder.Build(PromptInput{Query: query, Context: payload})
		if err != nil {
			u.send(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "failed to build prompt"})
			return
		}

		maxTokens := input.MaxTokens
		if maxTokens <= 0 {
			maxTokens = u.maxTokens
		}

		chunkCh, errCh, err := u.llmClient.GenerateStream(ctx, prompt, maxTokens)
		if err != nil {
			u.send(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: fmt.Sprintf("generation setup failed: %v", err)})
			return
		}

		var builder strings.Builder
		finished := false

		chunkStream := chunkCh
		errStream := errCh
		for chunkStream != nil || errStream != nil {
			select {
			case <-ctx.Done():
				// Client went away mid-generation: nothing is cached.
				u.send(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "client disconnected"})
				return
			case chunk, ok := <-chunkStream:
				if !ok {
					chunkStream = nil
					continue
				}
				if chunk.Response != "" {
					builder.WriteString(chunk.Response)
					if !u.send(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: chunk.Response}) {
						return
					}
				}
				if chunk.Done {
					finished = true
					chunkStream = nil
				}
			case streamErr, ok := <-errStream:
				if !ok {
					errStream = nil
					continue
				}
				u.send(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: fmt.Sprintf("generation failed: %v", streamErr)})
				return
			}
		}

		if !finished {
			u.send(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "generation ended without completing"})
			return
		}

		answer := CachedAnswer{
			Answer:  strings.TrimSpace(builder.String()),
			Sources: payload.Sources,
		}
		u.cache.Put(fingerprint, answer)

		u.send(ctx, events, StreamEvent{Kind: StreamEventKindDone, Payload: &AnswerOutput{
			Answer:  answer.Answer,
			Sources: answer.Sources,
		}})
	}()

	return events
}

func (u *answerUsecase) send(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- event:
		return true
	}
}

package openai

import (
	"strings"

	"go.uber.org/zap"

	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/observability"
)

// chunkStream adapts a raw fragment stream into the unified chunk stream.
// It merges incremental tool-call deltas by index, buffers legacy
// function-call deltas until they are complete, and holds the
// finish-bearing chunk back until the fragments are exhausted so the usage
// trailer can be attached to it. Exactly one chunk carries usage, and it is
// always the last one yielded.
type chunkStream struct {
	fragments fragmentStream
	estimator *TokenEstimator
	logger    *zap.Logger

	model   string
	prompt  []domain.PromptMessage
	tools   []domain.Tool
	pricing domain.PricingConfig

	current domain.ResultChunk
	queued  []domain.ResultChunk
	held    *domain.ResultChunk
	err     error
	done    bool
	closed  bool

	fullText    strings.Builder
	fingerprint string
	trailer     *wireUsage
	lastIndex   int

	toolCalls   toolCallAccumulator
	pendingCall *deltaFunctionCall
	flushed     []domain.ToolCall
}

type chunkStreamOptions struct {
	model     string
	prompt    []domain.PromptMessage
	tools     []domain.Tool
	estimator *TokenEstimator
	pricing   domain.PricingConfig
	logger    *zap.Logger
}

func newChunkStream(fragments fragmentStream, opts chunkStreamOptions) *chunkStream {
	logger := opts.logger
	if logger == nil {
		logger = observability.Logger()
	}
	return &chunkStream{
		fragments: fragments,
		estimator: opts.estimator,
		logger:    logger,
		model:     opts.model,
		prompt:    opts.prompt,
		tools:     opts.tools,
		pricing:   opts.pricing,
		toolCalls: toolCallAccumulator{byIndex: map[int]*domain.ToolCall{}},
	}
}

// Next advances to the next chunk. It returns false when the stream is
// exhausted or failed; Err distinguishes the two.
func (s *chunkStream) Next() bool {
	for {
		if len(s.queued) > 0 {
			s.current = s.queued[0]
			s.queued = s.queued[1:]
			return true
		}
		if s.done {
			return false
		}

		if !s.fragments.Next() {
			if err := s.fragments.Err(); err != nil {
				s.err = err
				s.done = true
				return false
			}
			s.done = true
			s.finalize()
			continue
		}

		s.process(s.fragments.Current())
	}
}

// Chunk returns the chunk produced by the last successful Next.
func (s *chunkStream) Chunk() domain.ResultChunk {
	return s.current
}

// Err returns the first error encountered while pulling fragments.
func (s *chunkStream) Err() error {
	return s.err
}

// Close releases the underlying connection. An abandoned stream emits
// nothing further; there is no usage chunk for it.
func (s *chunkStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	return s.fragments.Close()
}

// process folds one raw fragment into the aggregation state, queueing
// chunks when there is something to emit.
func (s *chunkStream) process(frag chatCompletionChunk) {
	if frag.SystemFingerprint != "" {
		s.fingerprint = frag.SystemFingerprint
	}

	// A fragment without choices is the usage trailer.
	if len(frag.Choices) == 0 {
		if frag.Usage != nil {
			s.trailer = frag.Usage
		}
		return
	}

	choice := frag.Choices[0]
	delta := choice.Delta
	finish := normalizeFinishReason(s.model, choice.FinishReason)
	s.lastIndex = choice.Index

	if delta.FunctionCall != nil {
		s.bufferFunctionCall(delta.FunctionCall)
	}
	for _, call := range delta.ToolCalls {
		s.toolCalls.merge(call)
	}

	// Keep-alive fragments carry no payload and no verdict.
	if delta.Content == "" && len(delta.ToolCalls) == 0 && delta.FunctionCall == nil && finish == "" {
		return
	}

	s.fullText.WriteString(delta.Content)

	if finish == "" {
		// Tool-call and function-call deltas stay buffered until the
		// finish verdict; only plain content flows through immediately.
		if delta.Content == "" {
			return
		}
		s.queued = append(s.queued, s.chunk(domain.ChunkDelta{
			Index:   choice.Index,
			Message: domain.AssistantMessage{Content: delta.Content},
		}))
		return
	}

	message := domain.AssistantMessage{Content: delta.Content}
	if finish == "tool_calls" {
		message.ToolCalls = s.toolCalls.flush()
	}
	if call := s.flushFunctionCall(); call != nil {
		message.ToolCalls = append(message.ToolCalls, *call)
	}
	s.flushed = message.ToolCalls

	held := s.chunk(domain.ChunkDelta{
		Index:        choice.Index,
		Message:      message,
		FinishReason: finish,
	})
	s.held = &held
}

// bufferFunctionCall accumulates a legacy single-function delta. The name
// arrives first, arguments drip in across fragments.
func (s *chunkStream) bufferFunctionCall(delta *deltaFunctionCall) {
	if s.pendingCall == nil {
		s.pendingCall = &deltaFunctionCall{}
	}
	s.pendingCall.Name += delta.Name
	s.pendingCall.Arguments += delta.Arguments
}

// flushFunctionCall converts the buffered legacy call into a tool call.
// Legacy calls have no upstream ID, so the function name stands in for it.
func (s *chunkStream) flushFunctionCall() *domain.ToolCall {
	if s.pendingCall == nil {
		return nil
	}
	call := &domain.ToolCall{
		ID:   s.pendingCall.Name,
		Type: "function",
		Function: domain.ToolCallFunction{
			Name:      s.pendingCall.Name,
			Arguments: s.pendingCall.Arguments,
		},
	}
	s.pendingCall = nil
	return call
}

// finalize computes usage, attaches it to the held finish-bearing chunk and
// queues that chunk as the last emission. When the upstream never sent a
// finish verdict, a bare final chunk carries the usage instead.
func (s *chunkStream) finalize() {
	usage := s.computeUsage()

	if s.held == nil {
		held := s.chunk(domain.ChunkDelta{Index: s.lastIndex})
		s.held = &held
	}
	s.held.Delta.Usage = &usage
	s.queued = append(s.queued, *s.held)
	s.held = nil
}

// computeUsage prefers the upstream usage trailer and falls back to local
// estimation over the prompt and the full assistant output, text and
// aggregated tool calls alike.
func (s *chunkStream) computeUsage() domain.Usage {
	var promptTokens, completionTokens int

	if s.trailer != nil {
		promptTokens = s.trailer.PromptTokens
		completionTokens = s.trailer.CompletionTokens
	} else {
		var err error
		promptTokens, err = s.estimator.EstimateMessages(s.model, s.prompt, s.tools)
		if err != nil {
			s.logger.Warn("prompt token estimation unavailable",
				observability.String("model", s.model),
				observability.Error(err))
			promptTokens = 0
		}

		assistant := domain.AssistantMessage{
			Content:   s.fullText.String(),
			ToolCalls: s.flushed,
		}
		completionTokens, err = s.estimator.EstimateMessages(
			s.model, []domain.PromptMessage{assistant}, nil)
		if err != nil {
			completionTokens = s.estimator.EstimateText(s.model, s.fullText.String())
		}
	}

	return buildUsage(s.pricing, promptTokens, completionTokens)
}

func (s *chunkStream) chunk(delta domain.ChunkDelta) domain.ResultChunk {
	return domain.ResultChunk{
		Model:             s.model,
		PromptMessages:    s.prompt,
		SystemFingerprint: s.fingerprint,
		Delta:             delta,
	}
}

// toolCallAccumulator merges incremental tool-call deltas by choice index.
// A delta carrying an ID opens a new call at its index; deltas without an
// ID extend the call already at that index. Flush order is the order in
// which indexes were first seen.
type toolCallAccumulator struct {
	byIndex map[int]*domain.ToolCall
	order   []int
}

func (a *toolCallAccumulator) merge(delta deltaToolCall) {
	existing, ok := a.byIndex[delta.Index]
	if !ok {
		if delta.ID == "" {
			// An extension for an index never opened; upstream fragments
			// arrived out of contract. Drop rather than fabricate a call.
			return
		}
		callType := delta.Type
		if callType == "" {
			callType = "function"
		}
		a.byIndex[delta.Index] = &domain.ToolCall{
			ID:   delta.ID,
			Type: callType,
			Function: domain.ToolCallFunction{
				Name:      delta.Function.Name,
				Arguments: delta.Function.Arguments,
			},
		}
		a.order = append(a.order, delta.Index)
		return
	}

	// Monotonic merge: fields overwrite only when newly present, arguments
	// concatenate across fragments.
	if delta.ID != "" {
		existing.ID = delta.ID
	}
	if delta.Type != "" {
		existing.Type = delta.Type
	}
	if delta.Function.Name != "" {
		existing.Function.Name = delta.Function.Name
	}
	existing.Function.Arguments += delta.Function.Arguments
}

func (a *toolCallAccumulator) flush() []domain.ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	calls := make([]domain.ToolCall, 0, len(a.order))
	for _, index := range a.order {
		calls = append(calls, *a.byIndex[index])
	}
	a.byIndex = map[int]*domain.ToolCall{}
	a.order = nil
	return calls
}

// finishReasonPrefixes recognizes verdicts from providers that append
// detail after the canonical reason.
var finishReasonPrefixes = []string{"stop", "length", "content_filter"}

// normalizeFinishReason maps a raw finish verdict to its canonical form.
// Providers behind the yi- model family suffix their verdicts, so those are
// matched by prefix.
func normalizeFinishReason(model, reason string) string {
	if reason == "" {
		return ""
	}
	if !strings.HasPrefix(model, "yi-") {
		return reason
	}
	for _, prefix := range finishReasonPrefixes {
		if strings.HasPrefix(reason, prefix) {
			return prefix
		}
	}
	return reason
}

// buildUsage assembles a usage record with cost attached when pricing is
// known.
func buildUsage(pricing domain.PricingConfig, promptTokens, completionTokens int) domain.Usage {
	usage := domain.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	if pricing.Unit > 0 {
		usage.Cost = float64(promptTokens)*pricing.InputPrice*pricing.Unit +
			float64(completionTokens)*pricing.OutputPrice*pricing.Unit
		usage.Currency = pricing.Currency
	}
	return usage
}

// completionStream adapts the text completion fragment stream. The text
// endpoint has no tool calls; only content and the finish verdict matter.
type completionStream struct {
	fragments completionFragments
	estimator *TokenEstimator
	logger    *zap.Logger

	model   string
	prompt  []domain.PromptMessage
	pricing domain.PricingConfig

	current domain.ResultChunk
	queued  []domain.ResultChunk
	held    *domain.ResultChunk
	err     error
	done    bool

	fullText    strings.Builder
	fingerprint string
	trailer     *wireUsage
	lastIndex   int
}

func newCompletionStream(
	fragments completionFragments,
	opts chunkStreamOptions,
) *completionStream {
	logger := opts.logger
	if logger == nil {
		logger = observability.Logger()
	}
	return &completionStream{
		fragments: fragments,
		estimator: opts.estimator,
		logger:    logger,
		model:     opts.model,
		prompt:    opts.prompt,
		pricing:   opts.pricing,
	}
}

func (s *completionStream) Next() bool {
	for {
		if len(s.queued) > 0 {
			s.current = s.queued[0]
			s.queued = s.queued[1:]
			return true
		}
		if s.done {
			return false
		}

		if !s.fragments.Next() {
			if err := s.fragments.Err(); err != nil {
				s.err = err
				s.done = true
				return false
			}
			s.done = true
			s.finalize()
			continue
		}

		s.process(s.fragments.Current())
	}
}

func (s *completionStream) Chunk() domain.ResultChunk { return s.current }
func (s *completionStream) Err() error                { return s.err }

func (s *completionStream) Close() error {
	s.done = true
	return s.fragments.Close()
}

func (s *completionStream) process(frag completionChunk) {
	if frag.SystemFingerprint != "" {
		s.fingerprint = frag.SystemFingerprint
	}
	if len(frag.Choices) == 0 {
		if frag.Usage != nil {
			s.trailer = frag.Usage
		}
		return
	}

	choice := frag.Choices[0]
	s.lastIndex = choice.Index

	if choice.Text == "" && choice.FinishReason == "" {
		return
	}

	s.fullText.WriteString(choice.Text)

	chunk := domain.ResultChunk{
		Model:             s.model,
		PromptMessages:    s.prompt,
		SystemFingerprint: s.fingerprint,
		Delta: domain.ChunkDelta{
			Index:        choice.Index,
			Message:      domain.AssistantMessage{Content: choice.Text},
			FinishReason: choice.FinishReason,
		},
	}
	if choice.FinishReason != "" {
		s.held = &chunk
		return
	}
	s.queued = append(s.queued, chunk)
}

func (s *completionStream) finalize() {
	var promptTokens, completionTokens int
	if s.trailer != nil {
		promptTokens = s.trailer.PromptTokens
		completionTokens = s.trailer.CompletionTokens
	} else {
		promptTokens = s.estimator.EstimateText(s.model, flattenPromptText(s.prompt))
		completionTokens = s.estimator.EstimateText(s.model, s.fullText.String())
	}
	usage := buildUsage(s.pricing, promptTokens, completionTokens)

	if s.held == nil {
		held := domain.ResultChunk{
			Model:             s.model,
			PromptMessages:    s.prompt,
			SystemFingerprint: s.fingerprint,
			Delta:             domain.ChunkDelta{Index: s.lastIndex},
		}
		s.held = &held
	}
	s.held.Delta.Usage = &usage
	s.queued = append(s.queued, *s.held)
	s.held = nil
}

// sliceChunkStream replays pre-built chunks as a stream. Block responses
// served over the streaming surface use it.
type sliceChunkStream struct {
	chunks  []domain.ResultChunk
	current domain.ResultChunk
}

func newSliceChunkStream(chunks []domain.ResultChunk) *sliceChunkStream {
	return &sliceChunkStream{chunks: chunks}
}

func (s *sliceChunkStream) Next() bool {
	if len(s.chunks) == 0 {
		return false
	}
	s.current = s.chunks[0]
	s.chunks = s.chunks[1:]
	return true
}

func (s *sliceChunkStream) Chunk() domain.ResultChunk { return s.current }
func (s *sliceChunkStream) Err() error                { return nil }
func (s *sliceChunkStream) Close() error              { s.chunks = nil; return nil }

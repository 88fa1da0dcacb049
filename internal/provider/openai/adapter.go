package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/observability"
)

// ErrMissingAPIKey is returned when the provider is constructed without
// credentials.
var ErrMissingAPIKey = errors.New("openai: API key is not configured")

// multipartFlattenModels lists the chat models that reject multipart user
// content once the conversation holds more than one user message.
var multipartFlattenModels = map[string]bool{
	"gpt-4-turbo":            true,
	"gpt-4-turbo-2024-04-09": true,
}

// responsesEndpointMarker selects the models served through the alternate
// responses endpoint instead of chat completions.
const responsesEndpointMarker = "o3-pro"

// transport is the wire surface the adapter invokes. *Client implements it;
// tests substitute fakes.
type transport interface {
	ChatComplete(ctx context.Context, req chatCompletionRequest) (*chatCompletionResponse, error)
	ChatStream(ctx context.Context, req chatCompletionRequest) (fragmentStream, error)
	Complete(ctx context.Context, req completionRequest) (*completionChunk, error)
	CompleteStream(ctx context.Context, req completionRequest) (completionFragments, error)
	Respond(ctx context.Context, req responsesRequest) (*responsesResponse, error)
}

// Provider adapts the OpenAI-compatible wire protocol to the unified model
// invocation contract. It dispatches each request to the chat, completion
// or responses endpoint based on the model family, normalizes streamed
// fragments into chunks and backfills token usage when the upstream omits
// it.
type Provider struct {
	client    transport
	estimator *TokenEstimator
}

var _ domain.Provider = (*Provider)(nil)

// NewProvider creates an OpenAI provider from configuration.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Provider{
		client:    NewClient(config),
		estimator: NewTokenEstimator(),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// IsModelSupported checks if this provider serves the given model. Fine
// tuned models are judged by their base model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	base := baseModelName(model)
	for _, supported := range SupportedModels() {
		if strings.HasPrefix(base, supported) {
			return true
		}
	}
	return false
}

// CountTokens estimates the prompt token count for the given messages and
// tool declarations without calling the upstream.
func (p *Provider) CountTokens(
	_ context.Context,
	model string,
	messages []domain.PromptMessage,
	tools []domain.Tool,
) (int, error) {
	base := baseModelName(model)
	if resolveModelMode(base) == domain.ModeCompletion {
		return p.estimator.EstimateText(base, flattenPromptText(messages)), nil
	}
	return p.estimator.EstimateMessages(base, messages, tools)
}

// Invoke sends a blocking invocation.
func (p *Provider) Invoke(ctx context.Context, req *domain.InvokeRequest) (*domain.Result, error) {
	if err := validateResponseFormat(req.Parameters); err != nil {
		return nil, err
	}

	base := baseModelName(req.Model)
	switch {
	case resolveModelMode(base) == domain.ModeCompletion:
		return p.invokeCompletion(ctx, req, base)
	case strings.Contains(base, responsesEndpointMarker):
		return p.invokeResponses(ctx, req, base)
	default:
		return p.invokeChat(ctx, req, base)
	}
}

// InvokeStream sends a streaming invocation. Models without a streaming
// endpoint are invoked in block mode and replayed as a single-chunk stream.
func (p *Provider) InvokeStream(ctx context.Context, req *domain.InvokeRequest) (domain.ChunkStream, error) {
	if err := validateResponseFormat(req.Parameters); err != nil {
		return nil, err
	}

	base := baseModelName(req.Model)
	opts := chunkStreamOptions{
		model:     req.Model,
		prompt:    req.Messages,
		tools:     req.Tools,
		estimator: p.estimator,
		pricing:   pricingFor(base),
		logger:    observability.FromContext(ctx),
	}

	switch {
	case resolveModelMode(base) == domain.ModeCompletion:
		wireReq := p.buildCompletionRequest(req, base)
		wireReq.StreamOptions = &wireStreamOptions{IncludeUsage: true}
		fragments, err := p.client.CompleteStream(ctx, wireReq)
		if err != nil {
			return nil, err
		}
		return newCompletionStream(fragments, opts), nil

	case strings.Contains(base, responsesEndpointMarker):
		result, err := p.invokeResponses(ctx, req, base)
		if err != nil {
			return nil, err
		}
		return blockAsStream(result), nil

	default:
		wireReq, err := p.buildChatRequest(ctx, req, base)
		if err != nil {
			return nil, err
		}
		wireReq.StreamOptions = &wireStreamOptions{IncludeUsage: true}
		fragments, err := p.client.ChatStream(ctx, wireReq)
		if err != nil {
			return nil, err
		}
		return newChunkStream(fragments, opts), nil
	}
}

func (p *Provider) invokeChat(ctx context.Context, req *domain.InvokeRequest, base string) (*domain.Result, error) {
	wireReq, err := p.buildChatRequest(ctx, req, base)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.ChatComplete(ctx, wireReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ContractViolationError{Detail: "chat response carries no choices"}
	}

	choice := resp.Choices[0]
	message := domain.AssistantMessage{
		Content:   choice.Message.Content,
		ToolCalls: extractToolCalls(choice.Message.ToolCalls),
	}
	if call, ok := extractFunctionCall(choice.Message.FunctionCall); ok {
		message.ToolCalls = append(message.ToolCalls, call)
	}

	usage := p.resolveUsage(base, resp.Usage, req, message.Content)
	return &domain.Result{
		Model:             req.Model,
		PromptMessages:    req.Messages,
		Message:           message,
		Usage:             usage,
		SystemFingerprint: resp.SystemFingerprint,
	}, nil
}

func (p *Provider) invokeCompletion(ctx context.Context, req *domain.InvokeRequest, base string) (*domain.Result, error) {
	resp, err := p.client.Complete(ctx, p.buildCompletionRequest(req, base))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ContractViolationError{Detail: "completion response carries no choices"}
	}

	text := resp.Choices[0].Text

	var usage domain.Usage
	if resp.Usage != nil {
		usage = buildUsage(pricingFor(base), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	} else {
		usage = buildUsage(pricingFor(base),
			p.estimator.EstimateText(base, flattenPromptText(req.Messages)),
			p.estimator.EstimateText(base, text))
	}

	return &domain.Result{
		Model:             req.Model,
		PromptMessages:    req.Messages,
		Message:           domain.AssistantMessage{Content: text},
		Usage:             usage,
		SystemFingerprint: resp.SystemFingerprint,
	}, nil
}

func (p *Provider) invokeResponses(ctx context.Context, req *domain.InvokeRequest, base string) (*domain.Result, error) {
	wireReq := responsesRequest{
		Model:           base,
		Input:           responsesInput(ctx, req.Messages),
		Temperature:     req.Parameters.Temperature,
		TopP:            req.Parameters.TopP,
		MaxOutputTokens: req.Parameters.MaxTokens,
		User:            req.User,
	}

	resp, err := p.client.Respond(ctx, wireReq)
	if err != nil {
		return nil, err
	}

	text := resp.outputText()
	if len(req.Stop) > 0 {
		text = enforceStopTokens(text, req.Stop)
	}

	// The responses endpoint omits usage on some variants; report zero
	// rather than an estimate so the caller can tell the counts are absent.
	var usage domain.Usage
	if resp.Usage != nil {
		usage = buildUsage(pricingFor(base), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	return &domain.Result{
		Model:          req.Model,
		PromptMessages: req.Messages,
		Message:        domain.AssistantMessage{Content: text},
		Usage:          usage,
	}, nil
}

func (p *Provider) buildChatRequest(ctx context.Context, req *domain.InvokeRequest, base string) (chatCompletionRequest, error) {
	messages, err := toWireMessages(clearIllegalPromptMessages(base, req.Messages))
	if err != nil {
		return chatCompletionRequest{}, err
	}

	wireReq := chatCompletionRequest{
		Model:            base,
		Messages:         messages,
		Tools:            toWireTools(req.Tools),
		ToolChoice:       req.Parameters.ToolChoice,
		Temperature:      req.Parameters.Temperature,
		TopP:             req.Parameters.TopP,
		MaxTokens:        req.Parameters.MaxTokens,
		PresencePenalty:  req.Parameters.PresencePenalty,
		FrequencyPenalty: req.Parameters.FrequencyPenalty,
		Seed:             req.Parameters.Seed,
		Stop:             req.Stop,
		User:             req.User,
	}

	// Reasoning models renamed the token limit parameter and reject stop
	// sequences.
	if isOSeriesModel(base) {
		wireReq.MaxCompletionTokens = wireReq.MaxTokens
		wireReq.MaxTokens = 0
		if len(wireReq.Stop) > 0 {
			observability.FromContext(ctx).Warn("dropping stop sequences unsupported by model",
				observability.String("model", base))
			wireReq.Stop = nil
		}
	}

	switch req.Parameters.ResponseFormat {
	case "":
	case "json_schema":
		wireReq.ResponseFormat = &wireResponseFormat{
			Type:       "json_schema",
			JSONSchema: []byte(req.Parameters.JSONSchema),
		}
	default:
		wireReq.ResponseFormat = &wireResponseFormat{Type: req.Parameters.ResponseFormat}
	}

	return wireReq, nil
}

func (p *Provider) buildCompletionRequest(req *domain.InvokeRequest, base string) completionRequest {
	return completionRequest{
		Model:            base,
		Prompt:           flattenPromptText(req.Messages),
		Temperature:      req.Parameters.Temperature,
		TopP:             req.Parameters.TopP,
		MaxTokens:        req.Parameters.MaxTokens,
		PresencePenalty:  req.Parameters.PresencePenalty,
		FrequencyPenalty: req.Parameters.FrequencyPenalty,
		Seed:             req.Parameters.Seed,
		Stop:             req.Stop,
		User:             req.User,
	}
}

func (p *Provider) resolveUsage(base string, wire *wireUsage, req *domain.InvokeRequest, completion string) domain.Usage {
	if wire != nil {
		return buildUsage(pricingFor(base), wire.PromptTokens, wire.CompletionTokens)
	}
	promptTokens, err := p.estimator.EstimateMessages(base, req.Messages, req.Tools)
	if err != nil {
		promptTokens = 0
	}
	return buildUsage(pricingFor(base), promptTokens, p.estimator.EstimateText(base, completion))
}

// validateResponseFormat fails fast on a structurally invalid JSON schema
// instead of letting the upstream reject the request.
func validateResponseFormat(params domain.ModelParameters) error {
	if params.ResponseFormat != "json_schema" {
		return nil
	}
	if params.JSONSchema == "" {
		return &domain.InvalidRequestError{Reason: "response_format json_schema requires a schema"}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("request.json", strings.NewReader(params.JSONSchema)); err != nil {
		return &domain.InvalidRequestError{Reason: "json_schema is not valid JSON", Cause: err}
	}
	if _, err := compiler.Compile("request.json"); err != nil {
		return &domain.InvalidRequestError{Reason: "json_schema is not a valid JSON schema", Cause: err}
	}
	return nil
}

// clearIllegalPromptMessages rewrites prompt shapes specific model families
// reject. Turbo snapshots refuse multipart user content in multi-user-turn
// conversations, and the first reasoning family refuses the system role.
func clearIllegalPromptMessages(model string, messages []domain.PromptMessage) []domain.PromptMessage {
	out := messages

	if multipartFlattenModels[model] {
		userCount := 0
		for _, message := range messages {
			if message.Role() == domain.RoleUser {
				userCount++
			}
		}
		if userCount > 1 {
			out = make([]domain.PromptMessage, len(messages))
			for i, message := range messages {
				user, ok := message.(domain.UserMessage)
				if !ok || len(user.Parts) == 0 {
					out[i] = message
					continue
				}
				var parts []string
				for _, part := range user.Parts {
					switch typed := part.(type) {
					case domain.TextPart:
						parts = append(parts, typed.Text)
					case domain.ImagePart:
						parts = append(parts, "[IMAGE]")
					}
				}
				user.Content = strings.Join(parts, "\n")
				user.Parts = nil
				out[i] = user
			}
		}
	}

	if strings.HasPrefix(model, "o1") {
		rewritten := make([]domain.PromptMessage, len(out))
		for i, message := range out {
			if system, ok := message.(domain.SystemMessage); ok {
				rewritten[i] = domain.UserMessage{Content: system.Content, Name: system.Name}
				continue
			}
			rewritten[i] = message
		}
		out = rewritten
	}

	return out
}

// flattenPromptText joins the text content of all messages into the single
// prompt string the completion protocol takes.
func flattenPromptText(messages []domain.PromptMessage) string {
	var parts []string
	for _, message := range messages {
		wire, err := toWireMessage(message)
		if err != nil {
			continue
		}
		if text := wire.textContent(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// responsesInput flattens a conversation into the single role-prefixed
// input string the responses endpoint takes, one blank line between
// turns. Messages with no text content are dropped, and system or
// unrecognized roles are skipped with a warning.
func responsesInput(ctx context.Context, messages []domain.PromptMessage) string {
	logger := observability.FromContext(ctx)

	var parts []string
	for _, message := range messages {
		wire, err := toWireMessage(message)
		if err != nil {
			logger.Warn("skipping message without responses mapping", observability.Error(err))
			continue
		}
		switch message.Role() {
		case domain.RoleUser, domain.RoleAssistant, domain.RoleTool:
			text := wire.textContent()
			if text == "" {
				continue
			}
			parts = append(parts, wire.Role+": "+text)
		default:
			logger.Warn("skipping role unsupported by responses endpoint",
				observability.String("role", wire.Role))
		}
	}
	return strings.Join(parts, "\n\n")
}

// enforceStopTokens truncates text at the earliest stop sequence.
func enforceStopTokens(text string, stop []string) string {
	cut := len(text)
	for _, token := range stop {
		if token == "" {
			continue
		}
		if idx := strings.Index(text, token); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return text[:cut]
}

// blockAsStream replays a block result as a single-chunk stream carrying
// the finish verdict and usage together.
func blockAsStream(result *domain.Result) domain.ChunkStream {
	usage := result.Usage
	return newSliceChunkStream([]domain.ResultChunk{{
		Model:             result.Model,
		PromptMessages:    result.PromptMessages,
		SystemFingerprint: result.SystemFingerprint,
		Delta: domain.ChunkDelta{
			Message:      result.Message,
			FinishReason: "stop",
			Usage:        &usage,
		},
	}})
}

// SupportedModels returns all models this provider serves.
func (p *Provider) SupportedModels(_ context.Context) []string {
	return SupportedModels()
}

package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanternai/lantern/internal/domain"
)

// fakeTransport records the wire request each endpoint received and replays
// canned responses.
type fakeTransport struct {
	chatReq     *chatCompletionRequest
	chatResp    *chatCompletionResponse
	streamReq   *chatCompletionRequest
	fragments   []chatCompletionChunk
	completeReq *completionRequest
	complete    *completionChunk
	respondReq  *responsesRequest
	respond     *responsesResponse
}

func (f *fakeTransport) ChatComplete(_ context.Context, req chatCompletionRequest) (*chatCompletionResponse, error) {
	f.chatReq = &req
	return f.chatResp, nil
}

func (f *fakeTransport) ChatStream(_ context.Context, req chatCompletionRequest) (fragmentStream, error) {
	f.streamReq = &req
	return &fakeFragments{fragments: f.fragments}, nil
}

func (f *fakeTransport) Complete(_ context.Context, req completionRequest) (*completionChunk, error) {
	f.completeReq = &req
	return f.complete, nil
}

func (f *fakeTransport) CompleteStream(_ context.Context, req completionRequest) (completionFragments, error) {
	f.completeReq = &req
	return &fakeCompletionFragments{}, nil
}

func (f *fakeTransport) Respond(_ context.Context, req responsesRequest) (*responsesResponse, error) {
	f.respondReq = &req
	return f.respond, nil
}

func testProvider(transport *fakeTransport) *Provider {
	return &Provider{client: transport, estimator: testEstimator()}
}

func chatResponse(content string) *chatCompletionResponse {
	return &chatCompletionResponse{
		Model: "gpt-4o",
		Choices: []responseChoice{{
			Message:      responseMessage{Content: content},
			FinishReason: "stop",
		}},
		Usage: &wireUsage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
	}
}

func userRequest(model, content string) *domain.InvokeRequest {
	return &domain.InvokeRequest{
		Model:    model,
		Messages: []domain.PromptMessage{domain.UserMessage{Content: content}},
	}
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewProvider(Config{})
	require.ErrorIs(t, err, ErrMissingAPIKey)

	provider, err := NewProvider(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	require.Equal(t, "openai", provider.Name())
}

func TestInvoke_Chat(t *testing.T) {
	transport := &fakeTransport{chatResp: chatResponse("hello back")}
	provider := testProvider(transport)

	result, err := provider.Invoke(context.Background(), userRequest("gpt-4o", "hello"))

	require.NoError(t, err)
	require.Equal(t, "gpt-4o", result.Model)
	require.Equal(t, "hello back", result.Message.Content)
	require.Equal(t, 5, result.Usage.PromptTokens)
	require.Equal(t, 3, result.Usage.CompletionTokens)
	require.NotNil(t, transport.chatReq)
	require.Equal(t, "gpt-4o", transport.chatReq.Model)
}

func TestInvoke_FineTuneModelStrippedOnWire(t *testing.T) {
	transport := &fakeTransport{chatResp: chatResponse("ok")}
	provider := testProvider(transport)

	result, err := provider.Invoke(context.Background(),
		userRequest("ft:gpt-3.5-turbo-0613:acme::abc123", "hi"))

	require.NoError(t, err)
	// The wire sees the base model, the result keeps the caller's name.
	require.Equal(t, "gpt-3.5-turbo-0613", transport.chatReq.Model)
	require.Equal(t, "ft:gpt-3.5-turbo-0613:acme::abc123", result.Model)
}

func TestInvoke_OSeriesParameterRenames(t *testing.T) {
	transport := &fakeTransport{chatResp: chatResponse("ok")}
	provider := testProvider(transport)

	req := userRequest("o1-preview", "hi")
	req.Parameters.MaxTokens = 256
	req.Stop = []string{"\n"}

	_, err := provider.Invoke(context.Background(), req)

	require.NoError(t, err)
	require.Zero(t, transport.chatReq.MaxTokens)
	require.Equal(t, 256, transport.chatReq.MaxCompletionTokens)
	require.Empty(t, transport.chatReq.Stop)
}

func TestInvoke_O1SystemMessagesBecomeUser(t *testing.T) {
	transport := &fakeTransport{chatResp: chatResponse("ok")}
	provider := testProvider(transport)

	req := &domain.InvokeRequest{
		Model: "o1-mini",
		Messages: []domain.PromptMessage{
			domain.SystemMessage{Content: "be brief"},
			domain.UserMessage{Content: "hi"},
		},
	}

	_, err := provider.Invoke(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, "user", transport.chatReq.Messages[0].Role)
	require.Equal(t, "be brief", transport.chatReq.Messages[0].Content)
}

func TestInvoke_CompletionModeModel(t *testing.T) {
	transport := &fakeTransport{complete: &completionChunk{
		Choices: []completionChoice{{Text: "once upon a time", FinishReason: "stop"}},
		Usage:   &wireUsage{PromptTokens: 2, CompletionTokens: 4, TotalTokens: 6},
	}}
	provider := testProvider(transport)

	result, err := provider.Invoke(context.Background(),
		userRequest("gpt-3.5-turbo-instruct", "tell a story"))

	require.NoError(t, err)
	require.Nil(t, transport.chatReq)
	require.NotNil(t, transport.completeReq)
	require.Equal(t, "tell a story", transport.completeReq.Prompt)
	require.Equal(t, "once upon a time", result.Message.Content)
	require.Equal(t, 6, result.Usage.TotalTokens)
}

func TestInvoke_ResponsesEndpoint(t *testing.T) {
	transport := &fakeTransport{respond: &responsesResponse{
		Model: "o3-pro",
		Output: []responsesOutput{{
			Type: "message",
			Content: []responsesContent{
				{Type: "output_text", Text: "deep answer"},
			},
		}},
		Usage: &responsesUsage{InputTokens: 9, OutputTokens: 2, TotalTokens: 11},
	}}
	provider := testProvider(transport)

	req := &domain.InvokeRequest{
		Model: "o3-pro",
		Messages: []domain.PromptMessage{
			domain.UserMessage{Content: "question"},
			domain.AssistantMessage{Content: "partial"},
		},
	}
	req.Parameters.MaxTokens = 128

	result, err := provider.Invoke(context.Background(), req)

	require.NoError(t, err)
	require.Nil(t, transport.chatReq)
	require.NotNil(t, transport.respondReq)
	require.Equal(t, 128, transport.respondReq.MaxOutputTokens)
	require.Equal(t, "user: question\n\nassistant: partial", transport.respondReq.Input)
	require.Equal(t, "deep answer", result.Message.Content)
	require.Equal(t, 9, result.Usage.PromptTokens)
}

func TestInvoke_ResponsesInputSkipsEmptyMessages(t *testing.T) {
	transport := &fakeTransport{respond: &responsesResponse{
		Output: []responsesOutput{{
			Type:    "message",
			Content: []responsesContent{{Type: "output_text", Text: "ok"}},
		}},
	}}
	provider := testProvider(transport)

	req := &domain.InvokeRequest{
		Model: "o3-pro",
		Messages: []domain.PromptMessage{
			domain.UserMessage{Content: "question"},
			domain.AssistantMessage{Content: ""},
			domain.UserMessage{Content: "follow-up"},
		},
	}

	_, err := provider.Invoke(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, transport.respondReq)
	require.Equal(t, "user: question\n\nuser: follow-up", transport.respondReq.Input)
}

func TestInvoke_ResponsesWithoutUsageReportsZero(t *testing.T) {
	transport := &fakeTransport{respond: &responsesResponse{
		Output: []responsesOutput{{
			Type:    "message",
			Content: []responsesContent{{Type: "output_text", Text: "deep answer"}},
		}},
	}}
	provider := testProvider(transport)

	result, err := provider.Invoke(context.Background(), userRequest("o3-pro", "question"))

	require.NoError(t, err)
	require.Zero(t, result.Usage.PromptTokens)
	require.Zero(t, result.Usage.CompletionTokens)
	require.Zero(t, result.Usage.TotalTokens)
	require.Zero(t, result.Usage.Cost)
}

func TestInvoke_ResponsesEnforcesStopTokens(t *testing.T) {
	transport := &fakeTransport{respond: &responsesResponse{
		Output: []responsesOutput{{
			Type:    "message",
			Content: []responsesContent{{Type: "output_text", Text: "keep this STOP drop this"}},
		}},
	}}
	provider := testProvider(transport)

	req := userRequest("o3-pro", "hi")
	req.Stop = []string{"STOP"}

	result, err := provider.Invoke(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, "keep this ", result.Message.Content)
}

func TestInvoke_InvalidJSONSchemaFailsBeforeTransport(t *testing.T) {
	transport := &fakeTransport{}
	provider := testProvider(transport)

	req := userRequest("gpt-4o", "hi")
	req.Parameters.ResponseFormat = "json_schema"
	req.Parameters.JSONSchema = `{"type": 42}`

	_, err := provider.Invoke(context.Background(), req)

	var invalid *domain.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	require.Nil(t, transport.chatReq)
}

func TestInvoke_JSONObjectResponseFormat(t *testing.T) {
	transport := &fakeTransport{chatResp: chatResponse("{}")}
	provider := testProvider(transport)

	req := userRequest("gpt-4o", "hi")
	req.Parameters.ResponseFormat = "json_object"

	_, err := provider.Invoke(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, transport.chatReq.ResponseFormat)
	require.Equal(t, "json_object", transport.chatReq.ResponseFormat.Type)
}

func TestInvoke_LegacyFunctionCallResponse(t *testing.T) {
	transport := &fakeTransport{chatResp: &chatCompletionResponse{
		Choices: []responseChoice{{
			Message: responseMessage{
				FunctionCall: &deltaFunctionCall{Name: "lookup", Arguments: "{}"},
			},
			FinishReason: "function_call",
		}},
		Usage: &wireUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}}
	provider := testProvider(transport)

	result, err := provider.Invoke(context.Background(), userRequest("gpt-4o", "hi"))

	require.NoError(t, err)
	require.Len(t, result.Message.ToolCalls, 1)
	require.Equal(t, "lookup", result.Message.ToolCalls[0].ID)
}

func TestInvokeStream_RequestsUsageTrailer(t *testing.T) {
	transport := &fakeTransport{fragments: []chatCompletionChunk{
		contentFragment("hi"),
		finishFragment("", "stop"),
	}}
	provider := testProvider(transport)

	stream, err := provider.InvokeStream(context.Background(), userRequest("gpt-4o", "hi"))

	require.NoError(t, err)
	defer stream.Close()
	require.NotNil(t, transport.streamReq)
	require.NotNil(t, transport.streamReq.StreamOptions)
	require.True(t, transport.streamReq.StreamOptions.IncludeUsage)
}

func TestInvokeStream_ResponsesModelReplaysBlock(t *testing.T) {
	transport := &fakeTransport{respond: &responsesResponse{
		Output: []responsesOutput{{
			Type:    "message",
			Content: []responsesContent{{Type: "output_text", Text: "answer"}},
		}},
		Usage: &responsesUsage{InputTokens: 3, OutputTokens: 1, TotalTokens: 4},
	}}
	provider := testProvider(transport)

	stream, err := provider.InvokeStream(context.Background(), userRequest("o3-pro", "hi"))
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	chunk := stream.Chunk()
	require.Equal(t, "answer", chunk.Delta.Message.Content)
	require.Equal(t, "stop", chunk.Delta.FinishReason)
	require.NotNil(t, chunk.Delta.Usage)
	require.Equal(t, 3, chunk.Delta.Usage.PromptTokens)
	require.False(t, stream.Next())
	require.NoError(t, stream.Err())
}

func TestCountTokens_ChatAndCompletionModes(t *testing.T) {
	provider := testProvider(&fakeTransport{})
	ctx := context.Background()
	messages := []domain.PromptMessage{domain.UserMessage{Content: "one two three"}}

	chat, err := provider.CountTokens(ctx, "gpt-4o", messages, nil)
	require.NoError(t, err)
	// Structured accounting adds per-message and priming overhead.
	require.Equal(t, 10, chat)

	completion, err := provider.CountTokens(ctx, "gpt-3.5-turbo-instruct", messages, nil)
	require.NoError(t, err)
	require.Equal(t, 3, completion)
}

func TestIsModelSupported(t *testing.T) {
	provider := testProvider(&fakeTransport{})
	ctx := context.Background()

	require.True(t, provider.IsModelSupported(ctx, "gpt-4o"))
	require.True(t, provider.IsModelSupported(ctx, "gpt-4o-2024-08-06"))
	require.True(t, provider.IsModelSupported(ctx, "ft:gpt-3.5-turbo-0613:acme::abc"))
	require.True(t, provider.IsModelSupported(ctx, "o3-pro"))
	require.False(t, provider.IsModelSupported(ctx, "claude-sonnet"))
}

func TestClearIllegalPromptMessages_TurboMultipartFlattened(t *testing.T) {
	messages := []domain.PromptMessage{
		domain.UserMessage{Parts: []domain.ContentPart{
			domain.TextPart{Text: "first"},
			domain.ImagePart{URL: "https://example.com/a.png"},
		}},
		domain.UserMessage{Content: "second"},
	}

	out := clearIllegalPromptMessages("gpt-4-turbo", messages)

	first, ok := out[0].(domain.UserMessage)
	require.True(t, ok)
	require.Nil(t, first.Parts)
	require.Equal(t, "first\n[IMAGE]", first.Content)
}

func TestClearIllegalPromptMessages_SingleUserMessageUntouched(t *testing.T) {
	messages := []domain.PromptMessage{
		domain.UserMessage{Parts: []domain.ContentPart{domain.TextPart{Text: "only"}}},
	}

	out := clearIllegalPromptMessages("gpt-4-turbo", messages)

	first, ok := out[0].(domain.UserMessage)
	require.True(t, ok)
	require.Len(t, first.Parts, 1)
}

func TestEnforceStopTokens(t *testing.T) {
	require.Equal(t, "abc", enforceStopTokens("abcSTOPdef", []string{"STOP"}))
	require.Equal(t, "a", enforceStopTokens("abc", []string{"b", "c"}))
	require.Equal(t, "abc", enforceStopTokens("abc", []string{"x"}))
	require.Equal(t, "abc", enforceStopTokens("abc", nil))
}

func TestBaseModelName(t *testing.T) {
	require.Equal(t, "gpt-4o", baseModelName("gpt-4o"))
	require.Equal(t, "gpt-3.5-turbo-0613", baseModelName("ft:gpt-3.5-turbo-0613:acme::abc123"))
	require.Equal(t, "ft:", baseModelName("ft:"))
}

func TestResolveModelMode(t *testing.T) {
	require.Equal(t, domain.ModeCompletion, resolveModelMode("gpt-3.5-turbo-instruct"))
	require.Equal(t, domain.ModeCompletion, resolveModelMode("babbage-002"))
	require.Equal(t, domain.ModeCompletion, resolveModelMode("text-davinci-003"))
	require.Equal(t, domain.ModeChat, resolveModelMode("gpt-4o"))
	require.Equal(t, domain.ModeChat, resolveModelMode("o3-mini"))
}

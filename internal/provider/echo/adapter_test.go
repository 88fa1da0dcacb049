package echo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/provider/echo"
)

func TestNewProvider(t *testing.T) {
	provider := echo.NewProvider()

	require.NotNil(t, provider)
	require.Equal(t, "echo", provider.Name())
}

func TestInvoke_Success(t *testing.T) {
	provider := echo.NewProvider()

	result, err := provider.Invoke(context.Background(), &domain.InvokeRequest{
		Model: "echo4",
		Messages: []domain.PromptMessage{
			domain.UserMessage{Content: "Hello world"},
		},
	})

	require.NoError(t, err)
	require.Equal(t, "echo4", result.Model)
	require.Equal(t, "[user]: Hello world\n", result.Message.Content)
	require.Equal(t, 3, result.Usage.PromptTokens) // "[user]:" "Hello" "world"
	require.Equal(t, 3, result.Usage.CompletionTokens)
	require.Equal(t, 6, result.Usage.TotalTokens)
}

func TestInvoke_NilRequest(t *testing.T) {
	provider := echo.NewProvider()

	_, err := provider.Invoke(context.Background(), nil)

	require.Error(t, err)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestInvoke_UnsupportedModel(t *testing.T) {
	provider := echo.NewProvider()

	_, err := provider.Invoke(context.Background(), &domain.InvokeRequest{
		Model:    "gpt-4",
		Messages: []domain.PromptMessage{domain.UserMessage{Content: "Hello"}},
	})

	var unsupported *domain.UnsupportedModelError
	require.ErrorAs(t, err, &unsupported)
}

func TestInvokeStream_ChunksReassembleContent(t *testing.T) {
	provider := echo.NewProvider()

	stream, err := provider.InvokeStream(context.Background(), &domain.InvokeRequest{
		Model: "echo4",
		Messages: []domain.PromptMessage{
			domain.UserMessage{Content: "one two three"},
		},
	})
	require.NoError(t, err)
	defer stream.Close()

	var assembled strings.Builder
	var final *domain.ResultChunk
	for stream.Next() {
		chunk := stream.Chunk()
		assembled.WriteString(chunk.Delta.Message.Content)
		if chunk.Delta.Usage != nil {
			copied := chunk
			final = &copied
		}
	}
	require.NoError(t, stream.Err())

	require.Equal(t, "[user]: one two three", assembled.String())
	require.NotNil(t, final)
	require.Equal(t, "stop", final.Delta.FinishReason)
	require.Equal(t, final.Delta.Usage.PromptTokens, final.Delta.Usage.CompletionTokens)
}

func TestInvokeStream_FinalChunkIsLast(t *testing.T) {
	provider := echo.NewProvider()

	stream, err := provider.InvokeStream(context.Background(), &domain.InvokeRequest{
		Model:    "echo4",
		Messages: []domain.PromptMessage{domain.UserMessage{Content: "hi"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var chunks []domain.ResultChunk
	for stream.Next() {
		chunks = append(chunks, stream.Chunk())
	}

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		if chunk.Delta.Usage != nil {
			require.Equal(t, len(chunks)-1, i)
		}
	}
}

func TestCountTokens(t *testing.T) {
	provider := echo.NewProvider()

	tokens, err := provider.CountTokens(context.Background(), "echo4",
		[]domain.PromptMessage{domain.UserMessage{Content: "a b c"}}, nil)

	require.NoError(t, err)
	require.Equal(t, 4, tokens) // "[user]:" plus three words
}

func TestIsModelSupported(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	require.True(t, provider.IsModelSupported(ctx, "echo4"))
	require.False(t, provider.IsModelSupported(ctx, "gpt-4"))
	require.Equal(t, []string{"echo4"}, provider.SupportedModels(ctx))
}

// Package echo provides a loopback provider that echoes input messages
// back as the completion. It makes no network calls and produces
// deterministic chunks, which makes it the provider of choice for
// development and integration testing.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo4"
)

// Provider implements domain.Provider without external calls.
type Provider struct {
	supportedModels map[string]bool
}

var _ domain.Provider = (*Provider)(nil)

// NewProvider creates a new echo provider. No configuration is required.
func NewProvider() *Provider {
	return &Provider{
		supportedModels: map[string]bool{modelName: true},
	}
}

// Invoke returns the conversation echoed back as a single result.
func (p *Provider) Invoke(ctx context.Context, req *domain.InvokeRequest) (*domain.Result, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Debug("echoing request")

	content := buildEchoContent(req.Messages)
	promptTokens := wordCount(content)

	return &domain.Result{
		Model:          req.Model,
		PromptMessages: req.Messages,
		Message:        domain.AssistantMessage{Content: content},
		Usage: domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: promptTokens,
			TotalTokens:      2 * promptTokens,
		},
	}, nil
}

// InvokeStream returns the echoed conversation split into word chunks. The
// final chunk carries the finish verdict and the usage, matching the
// streaming contract of the real providers.
func (p *Provider) InvokeStream(_ context.Context, req *domain.InvokeRequest) (domain.ChunkStream, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}

	content := buildEchoContent(req.Messages)
	words := strings.Fields(content)
	promptTokens := len(words)

	chunks := make([]domain.ResultChunk, 0, len(words)+1)
	for i, word := range words {
		delta := word
		if i < len(words)-1 {
			delta += " "
		}
		chunks = append(chunks, domain.ResultChunk{
			Model:          req.Model,
			PromptMessages: req.Messages,
			Delta: domain.ChunkDelta{
				Message: domain.AssistantMessage{Content: delta},
			},
		})
	}
	chunks = append(chunks, domain.ResultChunk{
		Model:          req.Model,
		PromptMessages: req.Messages,
		Delta: domain.ChunkDelta{
			FinishReason: "stop",
			Usage: &domain.Usage{
				PromptTokens:     promptTokens,
				CompletionTokens: promptTokens,
				TotalTokens:      2 * promptTokens,
			},
		},
	})

	return &sliceStream{chunks: chunks}, nil
}

// CountTokens counts words, which is close enough for a loopback provider.
func (p *Provider) CountTokens(
	_ context.Context,
	_ string,
	messages []domain.PromptMessage,
	_ []domain.Tool,
) (int, error) {
	return wordCount(buildEchoContent(messages)), nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return p.supportedModels[model]
}

// SupportedModels returns a list of all models this provider supports.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(p.supportedModels))
	for model := range p.supportedModels {
		models = append(models, model)
	}
	return models
}

func (p *Provider) check(req *domain.InvokeRequest) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}
	if !p.supportedModels[req.Model] {
		return &domain.UnsupportedModelError{Model: req.Model}
	}
	return nil
}

// buildEchoContent renders the conversation as role-tagged lines.
func buildEchoContent(messages []domain.PromptMessage) string {
	var builder strings.Builder
	for _, message := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", message.Role(), messageText(message)))
	}
	return builder.String()
}

func messageText(message domain.PromptMessage) string {
	switch typed := message.(type) {
	case domain.SystemMessage:
		return typed.Content
	case domain.UserMessage:
		if len(typed.Parts) == 0 {
			return typed.Content
		}
		var parts []string
		for _, part := range typed.Parts {
			if text, ok := part.(domain.TextPart); ok {
				parts = append(parts, text.Text)
			}
		}
		return strings.Join(parts, " ")
	case domain.AssistantMessage:
		return typed.Content
	case domain.ToolMessage:
		return typed.Content
	default:
		return ""
	}
}

func wordCount(content string) int {
	return len(strings.Fields(content))
}

// sliceStream replays pre-built chunks.
type sliceStream struct {
	chunks  []domain.ResultChunk
	current domain.ResultChunk
}

func (s *sliceStream) Next() bool {
	if len(s.chunks) == 0 {
		return false
	}
	s.current = s.chunks[0]
	s.chunks = s.chunks[1:]
	return true
}

func (s *sliceStream) Chunk() domain.ResultChunk { return s.current }
func (s *sliceStream) Err() error                { return nil }
func (s *sliceStream) Close() error              { s.chunks = nil; return nil }

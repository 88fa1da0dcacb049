package openai

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanternai/lantern/internal/domain"
)

func TestEstimateText_Deterministic(t *testing.T) {
	est := testEstimator()

	first := est.EstimateText("gpt-4o", "the quick brown fox")
	second := est.EstimateText("gpt-4o", "the quick brown fox")

	require.Equal(t, 4, first)
	require.Equal(t, first, second)
}

func TestEstimateMessages_StandardConvention(t *testing.T) {
	est := testEstimator()

	tokens, err := est.EstimateMessages("gpt-4o", []domain.PromptMessage{
		domain.UserMessage{Content: "Hello world"},
	}, nil)

	require.NoError(t, err)
	// 3 per message + role "user" + two content words + 3 reply priming.
	require.Equal(t, 9, tokens)
}

func TestEstimateMessages_LegacyConvention(t *testing.T) {
	est := testEstimator()

	tokens, err := est.EstimateMessages("gpt-3.5-turbo-0301", []domain.PromptMessage{
		domain.UserMessage{Content: "hi", Name: "alice"},
	}, nil)

	require.NoError(t, err)
	// 4 per message + role + content + name, minus one for the name
	// replacing the role delimiter, plus 3 reply priming.
	require.Equal(t, 9, tokens)
}

func TestEstimateMessages_NameSurcharge(t *testing.T) {
	est := testEstimator()

	without, err := est.EstimateMessages("gpt-4", []domain.PromptMessage{
		domain.UserMessage{Content: "hi"},
	}, nil)
	require.NoError(t, err)

	with, err := est.EstimateMessages("gpt-4", []domain.PromptMessage{
		domain.UserMessage{Content: "hi", Name: "alice"},
	}, nil)
	require.NoError(t, err)

	// The name value plus the per-name surcharge.
	require.Equal(t, without+2, with)
}

func TestEstimateMessages_UnknownModelFamily(t *testing.T) {
	est := testEstimator()

	_, err := est.EstimateMessages("mystery-model", []domain.PromptMessage{
		domain.UserMessage{Content: "hi"},
	}, nil)

	var unsupported *domain.UnsupportedModelError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "mystery-model", unsupported.Model)
}

func TestEstimateMessages_FineTuneNameResolvesBaseModel(t *testing.T) {
	est := testEstimator()

	tokens, err := est.EstimateMessages("ft:gpt-3.5-turbo-0613:acme::abc123", []domain.PromptMessage{
		domain.UserMessage{Content: "hi"},
	}, nil)

	require.NoError(t, err)
	require.Positive(t, tokens)
}

func TestEstimateMessages_ReasoningFamilyResolves(t *testing.T) {
	est := testEstimator()

	_, err := est.EstimateMessages("o3-mini", []domain.PromptMessage{
		domain.UserMessage{Content: "hi"},
	}, nil)

	require.NoError(t, err)
}

func TestEstimateMessages_CompletedToolCallsCounted(t *testing.T) {
	est := testEstimator()

	messages := []domain.PromptMessage{
		domain.AssistantMessage{ToolCalls: []domain.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: domain.ToolCallFunction{
				Name:      "do_it",
				Arguments: "{}",
			},
		}}},
	}

	tokens, err := est.EstimateMessages("gpt-4o", messages, nil)
	require.NoError(t, err)

	// 3 per message + role, then the call: doubled "id" and "type" keys
	// with their values, the "function" key, and singly counted "name"
	// and "arguments" keys with values. Plus 3 reply priming.
	require.Equal(t, 3+1+11+3, tokens)
}

func TestEstimateMessages_ToolMessageCountsCallID(t *testing.T) {
	est := testEstimator()

	without, err := est.EstimateMessages("gpt-4o", []domain.PromptMessage{
		domain.ToolMessage{Content: "42", ToolCallID: "x"},
	}, nil)
	require.NoError(t, err)

	with, err := est.EstimateMessages("gpt-4o", []domain.PromptMessage{
		domain.ToolMessage{Content: "42", ToolCallID: "x longer id"},
	}, nil)
	require.NoError(t, err)

	require.Greater(t, with, without)
}

func TestEstimateMessages_ImagePartsContributeNoTokens(t *testing.T) {
	est := testEstimator()

	plain, err := est.EstimateMessages("gpt-4o", []domain.PromptMessage{
		domain.UserMessage{Parts: []domain.ContentPart{
			domain.TextPart{Text: "look"},
		}},
	}, nil)
	require.NoError(t, err)

	withImage, err := est.EstimateMessages("gpt-4o", []domain.PromptMessage{
		domain.UserMessage{Parts: []domain.ContentPart{
			domain.TextPart{Text: "look"},
			domain.ImagePart{URL: "https://example.com/cat.png"},
		}},
	}, nil)
	require.NoError(t, err)

	require.Equal(t, plain, withImage)
}

func TestEstimateMessages_ToolSchemaWalk(t *testing.T) {
	est := testEstimator()

	messages := []domain.PromptMessage{domain.UserMessage{Content: "hi"}}

	without, err := est.EstimateMessages("gpt-4o", messages, nil)
	require.NoError(t, err)

	tools := []domain.Tool{{
		Name:        "weather",
		Description: "Get weather",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string", "description": "city name"},
				"unit": map[string]any{"type": "string", "enum": []any{"c", "f"}},
			},
			"required": []any{"city"},
		},
	}}

	with, err := est.EstimateMessages("gpt-4o", messages, tools)
	require.NoError(t, err)

	// Declaration preamble 8, schema type 2, properties key 1, city
	// subtree 8, unit subtree 13 (each enum value costs 3 plus its own
	// encoding), required 5.
	require.Equal(t, without+37, with)
}

func TestNormalizeEncodingModel(t *testing.T) {
	cases := map[string]string{
		"gpt-4o":                        "gpt-4o",
		"gpt-3.5-turbo":                 "gpt-3.5-turbo",
		"chatgpt-4o-latest":             "gpt-4o",
		"o1-preview":                    "gpt-4o",
		"o3-mini":                       "gpt-4o",
		"o4-mini":                       "gpt-4o",
		"gpt-4.1-nano":                  "gpt-4o",
		"gpt-4.5-preview":               "gpt-4o",
		"ft:gpt-3.5-turbo-0613:org::id": "gpt-3.5-turbo-0613",
	}

	for input, want := range cases {
		require.Equal(t, want, normalizeEncodingModel(input), "input %q", input)
	}
}

func TestRoughTokenizer(t *testing.T) {
	tok := roughTokenizer{}

	require.Zero(t, tok.CountTokens(""))
	require.Equal(t, 1, tok.CountTokens("abc"))
	require.Equal(t, 2, tok.CountTokens("abcdefgh"))
}

package openai

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lanternai/lantern/internal/domain"
)

// Message-to-token accounting for the chat protocol. The constants mirror
// the upstream service's documented accounting: a fixed surcharge per
// message, a surcharge when a name field is present, and a priming
// surcharge for the assistant reply. The per-message constants differ by
// protocol family, so an unknown family is a hard UnsupportedModelError
// rather than a guess.

const (
	replyPrimingTokens   = 3
	perEnumValueTokens   = 3
	perRequiredKeyTokens = 3

	defaultEncoding = "cl100k_base"
)

// Tokenizer counts tokens in a text string. Implementations must be
// deterministic.
type Tokenizer interface {
	CountTokens(text string) int
}

// TokenizerResolver resolves a tokenizer for a model family. Resolvers
// never fail: unknown models degrade to a general-purpose tokenizer, which
// is a deliberate approximation policy.
type TokenizerResolver func(model string) Tokenizer

// accountingConvention holds the per-message constants of one protocol
// family. tokensPerName is negative for the legacy delimiter convention,
// where a name replaces the role in the accounting.
type accountingConvention struct {
	tokensPerMessage int
	tokensPerName    int
}

// conventionTable is ordered: the first matching predicate wins. New model
// families are additive rows.
var conventionTable = []struct {
	match func(model string) bool
	conv  accountingConvention
}{
	{
		match: func(model string) bool { return strings.HasPrefix(model, "gpt-3.5-turbo-0301") },
		conv:  accountingConvention{tokensPerMessage: 4, tokensPerName: -1},
	},
	{
		match: func(model string) bool {
			return strings.HasPrefix(model, "gpt-3.5-turbo") ||
				strings.HasPrefix(model, "gpt-4") ||
				isOSeriesModel(model)
		},
		conv: accountingConvention{tokensPerMessage: 3, tokensPerName: 1},
	},
}

// TokenEstimator computes integer token counts for text and structured
// message lists. It is stateless apart from the resolver.
type TokenEstimator struct {
	resolve TokenizerResolver
}

// NewTokenEstimator creates an estimator backed by the tiktoken BPE
// encodings.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{resolve: tiktokenResolver}
}

// newTokenEstimatorWith creates an estimator with a custom tokenizer
// resolver.
func newTokenEstimatorWith(resolve TokenizerResolver) *TokenEstimator {
	return &TokenEstimator{resolve: resolve}
}

// EstimateText returns the token count of a plain text string for the given
// model.
func (e *TokenEstimator) EstimateText(model, text string) int {
	return e.resolve(normalizeEncodingModel(model)).CountTokens(text)
}

// EstimateMessages returns the token count of a structured message list,
// including per-message overhead, completed tool calls, tool schema
// declarations and the assistant reply priming.
func (e *TokenEstimator) EstimateMessages(
	model string,
	messages []domain.PromptMessage,
	tools []domain.Tool,
) (int, error) {
	normalized := normalizeEncodingModel(model)

	conv, err := conventionFor(normalized)
	if err != nil {
		return 0, err
	}

	tok := e.resolve(normalized)

	total := 0
	for _, message := range messages {
		wire, err := toWireMessage(message)
		if err != nil {
			return 0, err
		}

		total += conv.tokensPerMessage
		total += tok.CountTokens(wire.Role)
		total += tok.CountTokens(wire.textContent())

		if wire.ToolCallID != "" {
			total += tok.CountTokens(wire.ToolCallID)
		}

		for _, call := range wire.ToolCalls {
			// Flat keys are charged twice by the upstream accounting, the
			// function object charges each nested key once.
			total += 2*tok.CountTokens("id") + tok.CountTokens(call.ID)
			total += 2*tok.CountTokens("type") + tok.CountTokens(call.Type)
			total += tok.CountTokens("function")
			total += tok.CountTokens("name") + tok.CountTokens(call.Function.Name)
			total += tok.CountTokens("arguments") + tok.CountTokens(call.Function.Arguments)
		}

		if wire.Name != "" {
			total += tok.CountTokens(wire.Name)
			total += conv.tokensPerName
		}
	}

	// Every reply is primed with an assistant turn.
	total += replyPrimingTokens

	if len(tools) > 0 {
		total += toolDeclarationTokens(tok, tools)
	}

	return total, nil
}

// toolDeclarationTokens walks the JSON-schema declarations of the available
// tools, mirroring the upstream accounting: title, type, per-property field
// dicts with a fixed surcharge per enum value, and a fixed surcharge per
// required key. Image-resolution cost is not modeled anywhere in this file;
// that is a known inaccuracy.
func toolDeclarationTokens(tok Tokenizer, tools []domain.Tool) int {
	total := 0
	for _, tool := range tools {
		total += tok.CountTokens("type")
		total += tok.CountTokens("function")
		total += tok.CountTokens("name")
		total += tok.CountTokens(tool.Name)
		total += tok.CountTokens("description")
		total += tok.CountTokens(tool.Description)
		total += tok.CountTokens("parameters")

		params := tool.Parameters
		if title, ok := params["title"].(string); ok {
			total += tok.CountTokens("title")
			total += tok.CountTokens(title)
		}
		total += tok.CountTokens("type")
		if schemaType, ok := params["type"].(string); ok {
			total += tok.CountTokens(schemaType)
		}

		if properties, ok := params["properties"].(map[string]any); ok {
			total += tok.CountTokens("properties")
			for key, raw := range properties {
				total += tok.CountTokens(key)
				fields, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				for fieldKey, fieldValue := range fields {
					total += tok.CountTokens(fieldKey)
					if fieldKey == "enum" {
						values, _ := fieldValue.([]any)
						for _, value := range values {
							total += perEnumValueTokens
							total += tok.CountTokens(fmt.Sprintf("%v", value))
						}
						continue
					}
					total += tok.CountTokens(fieldKey)
					total += tok.CountTokens(fmt.Sprintf("%v", fieldValue))
				}
			}
		}

		if required, ok := params["required"].([]any); ok {
			total += tok.CountTokens("required")
			for _, key := range required {
				total += perRequiredKeyTokens
				total += tok.CountTokens(fmt.Sprintf("%v", key))
			}
		}
	}
	return total
}

func conventionFor(model string) (accountingConvention, error) {
	for _, entry := range conventionTable {
		if entry.match(model) {
			return entry.conv, nil
		}
	}
	return accountingConvention{}, &domain.UnsupportedModelError{Model: model}
}

// normalizeEncodingModel maps a model name to the identity used for
// encoding and convention lookup: fine-tune suffixes are stripped, and the
// families that share gpt-4o's tokenizer resolve as gpt-4o.
func normalizeEncodingModel(model string) string {
	model = baseModelName(model)

	if model == "chatgpt-4o-latest" ||
		isOSeriesModel(model) ||
		strings.HasPrefix(model, "gpt-4.1") ||
		strings.HasPrefix(model, "gpt-4.5") {
		return "gpt-4o"
	}

	return model
}

// tiktokenResolver resolves a BPE encoding by model family, degrading to
// the default general-purpose encoding for unknown models.
func tiktokenResolver(model string) Tokenizer {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			// Encoding data could not be loaded at all; approximate
			// rather than fail token counting outright.
			return roughTokenizer{}
		}
	}
	return tiktokenTokenizer{encoding: encoding}
}

type tiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

func (t tiktokenTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// roughTokenizer is the estimate of last resort: about four bytes per
// token, matching the upstream rule of thumb for English text.
type roughTokenizer struct{}

func (roughTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

package openai

import (
	"strings"

	"github.com/lanternai/lantern/internal/domain"
)

// fineTunePrefix marks fine-tuned model names, which look like
// ft:gpt-3.5-turbo-0613:personal::xxxx. The base model is the second
// colon-separated segment.
const fineTunePrefix = "ft:"

// oSeriesPrefixes covers the reasoning model families that rename the
// token-limit parameter and reject stop sequences.
var oSeriesPrefixes = []string{"o1", "o3", "o4"}

// completionModelPrefixes lists the model families that speak the legacy
// single-turn completion protocol instead of chat.
var completionModelPrefixes = []string{
	"gpt-3.5-turbo-instruct",
	"babbage-002",
	"davinci-002",
	"text-davinci",
}

// baseModelName strips a fine-tune suffix to recover the base model
// identity. Names without the fine-tune marker pass through unchanged.
func baseModelName(model string) string {
	if !strings.HasPrefix(model, fineTunePrefix) {
		return model
	}
	parts := strings.Split(model, ":")
	if len(parts) < 2 || parts[1] == "" {
		return model
	}
	return parts[1]
}

// resolveModelMode looks up the invocation protocol for a base model name.
// Unknown models default to chat, which is what every current family
// speaks.
func resolveModelMode(model string) domain.ModelMode {
	for _, prefix := range completionModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return domain.ModeCompletion
		}
	}
	return domain.ModeChat
}

func isOSeriesModel(model string) bool {
	for _, prefix := range oSeriesPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// SupportedModels returns the models this provider serves by default.
func SupportedModels() []string {
	return []string{
		"gpt-3.5-turbo",
		"gpt-3.5-turbo-instruct",
		"gpt-4",
		"gpt-4-turbo",
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.5-preview",
		"chatgpt-4o-latest",
		"o1",
		"o3",
		"o3-pro",
		"o4-mini",
		"babbage-002",
		"davinci-002",
	}
}

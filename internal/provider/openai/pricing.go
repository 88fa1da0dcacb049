package openai

import (
	"context"
	"strings"

	"github.com/lanternai/lantern/internal/domain"
)

// Per-model pricing in USD per token unit. Prices change upstream without
// notice; unknown models price at zero rather than guessing.
var modelPricing = map[string]domain.PricingConfig{
	"gpt-3.5-turbo":          {InputPrice: 0.5, OutputPrice: 1.5, Unit: 0.000001, Currency: "USD"},
	"gpt-3.5-turbo-instruct": {InputPrice: 1.5, OutputPrice: 2.0, Unit: 0.000001, Currency: "USD"},
	"gpt-4":                  {InputPrice: 30.0, OutputPrice: 60.0, Unit: 0.000001, Currency: "USD"},
	"gpt-4-turbo":            {InputPrice: 10.0, OutputPrice: 30.0, Unit: 0.000001, Currency: "USD"},
	"gpt-4o":                 {InputPrice: 2.5, OutputPrice: 10.0, Unit: 0.000001, Currency: "USD"},
	"gpt-4o-mini":            {InputPrice: 0.15, OutputPrice: 0.6, Unit: 0.000001, Currency: "USD"},
	"gpt-4.1":                {InputPrice: 2.0, OutputPrice: 8.0, Unit: 0.000001, Currency: "USD"},
	"chatgpt-4o-latest":      {InputPrice: 5.0, OutputPrice: 15.0, Unit: 0.000001, Currency: "USD"},
	"o1":                     {InputPrice: 15.0, OutputPrice: 60.0, Unit: 0.000001, Currency: "USD"},
	"o3":                     {InputPrice: 2.0, OutputPrice: 8.0, Unit: 0.000001, Currency: "USD"},
	"o3-pro":                 {InputPrice: 20.0, OutputPrice: 80.0, Unit: 0.000001, Currency: "USD"},
	"o4-mini":                {InputPrice: 1.1, OutputPrice: 4.4, Unit: 0.000001, Currency: "USD"},
	"babbage-002":            {InputPrice: 0.4, OutputPrice: 0.4, Unit: 0.000001, Currency: "USD"},
	"davinci-002":            {InputPrice: 2.0, OutputPrice: 2.0, Unit: 0.000001, Currency: "USD"},
}

// pricingFor resolves pricing for a base model name, falling back to the
// longest matching family prefix. A zero-value config means unknown.
func pricingFor(model string) domain.PricingConfig {
	if pricing, ok := modelPricing[model]; ok {
		return pricing
	}

	bestLen := 0
	var best domain.PricingConfig
	for family, pricing := range modelPricing {
		if strings.HasPrefix(model, family) && len(family) > bestLen {
			bestLen = len(family)
			best = pricing
		}
	}
	return best
}

// RegisterPricing loads this provider's price table into a shared registry.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	for model, pricing := range modelPricing {
		if err := registry.RegisterPricing(ctx, model, pricing); err != nil {
			return err
		}
	}
	return nil
}

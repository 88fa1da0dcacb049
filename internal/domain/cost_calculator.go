package domain

import (
	"context"
	"errors"
)

// StandardCostCalculator implements unit-scaled token-based cost calculation.
type StandardCostCalculator struct {
	pricingRegistry PricingRegistry
}

// NewStandardCostCalculator creates a new cost calculator.
func NewStandardCostCalculator(registry PricingRegistry) *StandardCostCalculator {
	return &StandardCostCalculator{
		pricingRegistry: registry,
	}
}

// Calculate computes the total cost based on token usage and model pricing.
func (c *StandardCostCalculator) Calculate(
	ctx context.Context,
	model string,
	usage Usage,
) (float64, string, error) {
	if model == "" {
		return 0, "", errors.New("model cannot be empty")
	}

	pricing, err := c.pricingRegistry.GetPricing(ctx, model)
	if err != nil {
		// Unknown pricing is not an error for the request; the invocation
		// simply carries no cost figure.
		return 0, "", nil
	}

	inputCost := float64(usage.PromptTokens) * pricing.InputPrice * pricing.Unit
	outputCost := float64(usage.CompletionTokens) * pricing.OutputPrice * pricing.Unit

	return inputCost + outputCost, pricing.Currency, nil
}

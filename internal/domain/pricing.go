package domain

import "context"

// PricingConfig contains model pricing information. Prices are expressed per
// Unit tokens in the configured currency: the cost of N prompt tokens is
// N * InputPrice * Unit (a Unit of 0.001 means the price is quoted per 1K
// tokens).
type PricingConfig struct {
	InputPrice  float64
	OutputPrice float64
	Unit        float64
	Currency    string
}

// CostCalculator calculates cost based on token usage.
type CostCalculator interface {
	// Calculate returns the total cost and currency for a given model and
	// usage.
	Calculate(ctx context.Context, model string, usage Usage) (float64, string, error)
}

// PricingRegistry maintains pricing information for models.
type PricingRegistry interface {
	// GetPricing returns pricing config for a model.
	GetPricing(ctx context.Context, model string) (PricingConfig, error)

	// RegisterPricing adds pricing for a model.
	RegisterPricing(ctx context.Context, model string, config PricingConfig) error
}

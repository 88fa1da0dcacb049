package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lanternai/lantern/internal/observability"
)

const cacheTTL = 1 * time.Hour

// GatewayService orchestrates invocations: it routes a request to the
// provider serving its model, attaches cost to the returned usage, and
// consults the invocation cache for non-streaming requests.
type GatewayService struct {
	registry       ProviderRegistry
	costCalculator CostCalculator
	cache          InvocationCache
	events         EventPublisher
}

// NewGatewayService creates a new gateway service (DI constructor).
func NewGatewayService(
	registry ProviderRegistry,
	costCalculator CostCalculator,
	cache InvocationCache,
	events EventPublisher,
) *GatewayService {
	return &GatewayService{
		registry:       registry,
		costCalculator: costCalculator,
		cache:          cache,
		events:         events,
	}
}

// Invoke handles a blocking invocation with provider routing by model.
func (g *GatewayService) Invoke(ctx context.Context, req *InvokeRequest) (*Result, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	logger := observability.FromContext(ctx)

	if g.cache != nil {
		cached, cacheErr := g.cache.Get(ctx, req)
		if cacheErr != nil && !errors.Is(cacheErr, ErrCacheMiss) {
			logger.Warn("cache get failed, continuing without cache",
				observability.Error(cacheErr))
		}
		if cached != nil {
			logger.Info("cache hit",
				observability.String("model", req.Model))
			return cached, nil
		}
	}

	provider, err := g.registry.GetByModel(ctx, req.Model)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	result, err := provider.Invoke(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("invocation failed: %w", err)
	}

	g.attachCost(ctx, result)

	if g.cache != nil {
		if setErr := g.cache.Set(ctx, req, result, cacheTTL); setErr != nil {
			logger.Warn("failed to store in cache", observability.Error(setErr))
		}
	}

	g.publish(ctx, "invocation.completed", provider.Name(), result)

	return result, nil
}

// InvokeStream handles a streaming invocation with provider routing by
// model. Streaming results bypass the cache.
func (g *GatewayService) InvokeStream(ctx context.Context, req *InvokeRequest) (ChunkStream, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	provider, err := g.registry.GetByModel(ctx, req.Model)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	stream, err := provider.InvokeStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to stream from provider: %w", err)
	}
	return stream, nil
}

// CountTokens estimates prompt tokens for the given messages via the
// provider serving the model.
func (g *GatewayService) CountTokens(
	ctx context.Context,
	model string,
	messages []PromptMessage,
	tools []Tool,
) (int, error) {
	if model == "" {
		return 0, errors.New("model cannot be empty")
	}

	provider, err := g.registry.GetByModel(ctx, model)
	if err != nil {
		return 0, fmt.Errorf("provider routing failed: %w", err)
	}

	return provider.CountTokens(ctx, model, messages, tools)
}

func (g *GatewayService) attachCost(ctx context.Context, result *Result) {
	cost, currency, err := g.costCalculator.Calculate(ctx, result.Model, result.Usage)
	if err != nil {
		return
	}
	result.Usage.Cost = cost
	if currency != "" {
		result.Usage.Currency = currency
	}
}

func (g *GatewayService) publish(ctx context.Context, eventType, provider string, result *Result) {
	if g.events == nil {
		return
	}
	g.events.Publish(ctx, eventType, map[string]interface{}{
		"provider":          provider,
		"model":             result.Model,
		"prompt_tokens":     result.Usage.PromptTokens,
		"completion_tokens": result.Usage.CompletionTokens,
		"cost":              result.Usage.Cost,
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/lanternai/lantern/internal/cache/redis"
	"github.com/lanternai/lantern/internal/config"
	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/http"
	"github.com/lanternai/lantern/internal/http/middleware"
	"github.com/lanternai/lantern/internal/observability"
	"github.com/lanternai/lantern/internal/provider/echo"
	"github.com/lanternai/lantern/internal/provider/openai"
	"github.com/lanternai/lantern/internal/provider/registry"
)

// ErrProviderNotConfigured indicates that a provider is not configured and
// should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewEventBus); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}
	if err := container.Provide(func(bus *observability.EventBus) domain.EventPublisher {
		return bus
	}); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// OpenAI Provider
	if err := container.Provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Pricing
	if err := container.Provide(func() domain.PricingRegistry {
		return domain.NewInMemoryPricingRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}
	if err := container.Provide(func(pricing domain.PricingRegistry) domain.CostCalculator {
		return domain.NewStandardCostCalculator(pricing)
	}); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}

	// Invocation cache (optional)
	if err := container.Provide(func(cfg *config.CacheConfig) domain.InvocationCache {
		if !cfg.Enabled {
			return nil
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return redis.NewInvocationCache(client)
	}); err != nil {
		log.Fatalf("Failed to provide invocation cache: %v", err)
	}

	// Register providers and pricing (invoked for side effects)
	if err := container.Invoke(func(reg domain.ProviderRegistry) error {
		if err := reg.Register(context.Background(), echo.NewProvider()); err != nil {
			return fmt.Errorf("failed to register echo provider: %w", err)
		}
		return nil
	}); err != nil {
		log.Fatalf("Failed to register echo provider: %v", err)
	}

	if err := container.Invoke(func(
		reg domain.ProviderRegistry,
		pricing domain.PricingRegistry,
		openaiProvider *openai.Provider,
	) error {
		ctx := context.Background()

		if openaiProvider != nil {
			if err := reg.Register(ctx, openaiProvider); err != nil {
				return fmt.Errorf("failed to register OpenAI provider: %w", err)
			}
			if err := openai.RegisterPricing(ctx, pricing); err != nil {
				return fmt.Errorf("failed to register OpenAI pricing: %w", err)
			}
		}
		return nil
	}); err != nil {
		// Unconfigured optional providers are expected.
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register providers: %v", err)
		}
	}

	// Domain Services
	if err := container.Provide(domain.NewGatewayService); err != nil {
		log.Fatalf("Failed to provide gateway service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(cfg *config.CORSConfig) middleware.Middleware {
		return middleware.Chain(middleware.Trace(), middleware.CORS(cfg))
	}); err != nil {
		log.Fatalf("Failed to provide middleware: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

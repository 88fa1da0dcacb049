package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanternai/lantern/internal/domain"
	"github.com/lanternai/lantern/internal/provider/echo"
	"github.com/lanternai/lantern/internal/provider/registry"
)

// prefixProvider is a stub that supports every model with a given prefix.
type prefixProvider struct {
	name   string
	prefix string
	models []string
}

func (p *prefixProvider) Invoke(_ context.Context, _ *domain.InvokeRequest) (*domain.Result, error) {
	return &domain.Result{}, nil
}

func (p *prefixProvider) InvokeStream(_ context.Context, _ *domain.InvokeRequest) (domain.ChunkStream, error) {
	return nil, nil
}

func (p *prefixProvider) CountTokens(_ context.Context, _ string, _ []domain.PromptMessage, _ []domain.Tool) (int, error) {
	return 0, nil
}

func (p *prefixProvider) Name() string { return p.name }

func (p *prefixProvider) IsModelSupported(_ context.Context, model string) bool {
	return len(model) >= len(p.prefix) && model[:len(p.prefix)] == p.prefix
}

func (p *prefixProvider) SupportedModels(_ context.Context) []string { return p.models }

func TestRegister_And_Get(t *testing.T) {
	reg := registry.NewRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, echo.NewProvider()))

	provider, err := reg.Get(ctx, "echo")
	require.NoError(t, err)
	require.Equal(t, "echo", provider.Name())

	_, err = reg.Get(ctx, "absent")
	require.Error(t, err)

	_, err = reg.Get(ctx, "")
	require.Error(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	reg := registry.NewRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, echo.NewProvider()))
	require.Error(t, reg.Register(ctx, echo.NewProvider()))
}

func TestRegister_NilProvider(t *testing.T) {
	reg := registry.NewRegistry()

	require.Error(t, reg.Register(context.Background(), nil))
}

func TestGetByModel_UsesReverseIndex(t *testing.T) {
	reg := registry.NewRegistry()
	ctx := context.Background()

	stub := &prefixProvider{name: "stub", prefix: "stub-", models: []string{"stub-small"}}
	require.NoError(t, reg.Register(ctx, stub))
	require.NoError(t, reg.Register(ctx, echo.NewProvider()))

	provider, err := reg.GetByModel(ctx, "stub-small")
	require.NoError(t, err)
	require.Equal(t, "stub", provider.Name())

	provider, err = reg.GetByModel(ctx, "echo4")
	require.NoError(t, err)
	require.Equal(t, "echo", provider.Name())
}

func TestGetByModel_FallbackScanForUnindexedModels(t *testing.T) {
	reg := registry.NewRegistry()
	ctx := context.Background()

	stub := &prefixProvider{name: "stub", prefix: "stub-", models: []string{"stub-small"}}
	require.NoError(t, reg.Register(ctx, stub))

	// Not in the index, but the provider claims the prefix.
	provider, err := reg.GetByModel(ctx, "stub-experimental")
	require.NoError(t, err)
	require.Equal(t, "stub", provider.Name())

	_, err = reg.GetByModel(ctx, "unknown-model")
	require.Error(t, err)

	_, err = reg.GetByModel(ctx, "")
	require.Error(t, err)
}

func TestList(t *testing.T) {
	reg := registry.NewRegistry()
	ctx := context.Background()

	names, err := reg.List(ctx)
	require.NoError(t, err)
	require.Empty(t, names)

	require.NoError(t, reg.Register(ctx, echo.NewProvider()))

	names, err = reg.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"echo"}, names)
}

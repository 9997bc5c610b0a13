package conversation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/engigen-agent/internal/adapters/llm"
	"github.com/PabloGalante/engigen-agent/internal/app/conversation"
	"github.com/PabloGalante/engigen-agent/internal/domain"
)

func TestRegistryCreatesLazilyAndCaches(t *testing.T) {
	ctx := context.Background()
	factory := llm.NewMockFactory()
	reg := conversation.NewAgentRegistry(factory)

	assert.Zero(t, reg.Len())
	assert.Empty(t, factory.Created())

	c1, err := reg.GetOrCreate(ctx, "s1", domain.DomainSoftware)
	require.NoError(t, err)
	c2, err := reg.GetOrCreate(ctx, "s1", domain.DomainSoftware)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Len(t, factory.Created(), 1)
	assert.Equal(t, 1, reg.Len())

	_, err = reg.GetOrCreate(ctx, "s2", domain.DomainCivil)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryKeepsConnectorOnDomainMismatch(t *testing.T) {
	ctx := context.Background()
	factory := llm.NewMockFactory()
	reg := conversation.NewAgentRegistry(factory)

	c1, err := reg.GetOrCreate(ctx, "s1", domain.DomainSoftware)
	require.NoError(t, err)
	c2, err := reg.GetOrCreate(ctx, "s1", domain.DomainChemical)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	require.Len(t, factory.Created(), 1)
	assert.Equal(t, domain.DomainSoftware, factory.Created()[0].Domain)
}

func TestRegistryReset(t *testing.T) {
	ctx := context.Background()
	factory := llm.NewMockFactory()
	reg := conversation.NewAgentRegistry(factory)

	_, _ = reg.GetOrCreate(ctx, "s1", domain.DomainSoftware)
	_, _ = reg.GetOrCreate(ctx, "s2", domain.DomainSoftware)
	assert.Equal(t, 2, reg.Len())

	reg.Reset()
	assert.Zero(t, reg.Len())

	_, _ = reg.GetOrCreate(ctx, "s1", domain.DomainSoftware)
	assert.Len(t, factory.Created(), 3, "a reset session gets a fresh connector")
}

func TestRegistryFactoryError(t *testing.T) {
	factory := llm.NewMockFactory()
	factory.CreateErr = assert.AnError
	reg := conversation.NewAgentRegistry(factory)

	_, err := reg.GetOrCreate(context.Background(), "s1", domain.DomainSoftware)
	var rse *domain.RemoteServiceError
	require.ErrorAs(t, err, &rse)
	assert.Zero(t, reg.Len())
}

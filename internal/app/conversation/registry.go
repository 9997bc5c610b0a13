package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/PabloGalante/engigen-agent/internal/domain"
	"github.com/PabloGalante/engigen-agent/internal/metrics"
	"github.com/PabloGalante/engigen-agent/internal/observability"
)

type registryEntry struct {
	connector domain.Connector
	domain    domain.EngineeringDomain
}

// AgentRegistry caches one connector per session for the life of the process.
// Connectors are never persisted, so a restored session starts a fresh
// conversation on the model side.
type AgentRegistry struct {
	factory domain.ConnectorFactory

	mu      sync.Mutex
	entries map[domain.SessionID]registryEntry
}

func NewAgentRegistry(factory domain.ConnectorFactory) *AgentRegistry {
	return &AgentRegistry{
		factory: factory,
		entries: make(map[domain.SessionID]registryEntry),
	}
}

// GetOrCreate returns the session's connector, building it on first use.
// An existing connector is returned as-is even when d differs from the
// domain it was built with.
func (r *AgentRegistry) GetOrCreate(
	ctx context.Context,
	sessionID domain.SessionID,
	d domain.EngineeringDomain,
) (domain.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sessionID]; ok {
		if e.domain != d {
			observability.LoggerFromContext(ctx).Warn("connector domain mismatch, keeping existing persona",
				"session_id", sessionID,
				"connector_domain", e.domain,
				"requested_domain", d,
			)
		}
		return e.connector, nil
	}

	c, err := r.factory.NewConnector(ctx, sessionID, d)
	if err != nil {
		return nil, fmt.Errorf("creating connector for session %s: %w", sessionID, err)
	}

	r.entries[sessionID] = registryEntry{connector: c, domain: d}
	metrics.LiveConnectors.Set(float64(len(r.entries)))
	return c, nil
}

// Reset drops every connector.
func (r *AgentRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[domain.SessionID]registryEntry)
	metrics.LiveConnectors.Set(0)
}

func (r *AgentRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

package usecase

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"conductor/internal/domain"
)

// RegisteredAgent bundles an agent descriptor with its executor.
type RegisteredAgent struct {
	Descriptor domain.AgentDescriptor
	Executor   domain.AgentExecutor
}

// Registry holds every available agent. Agents register once at startup; after
// Seal the registry is immutable and safe for unsynchronized concurrent reads.
type Registry struct {
	mu     sync.Mutex
	agents map[domain.AgentID]*RegisteredAgent
	order  []domain.AgentID // registration order, used for deterministic capability lookup
	sealed atomic.Bool
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[domain.AgentID]*RegisteredAgent),
		logger: logger,
	}
}

// Register adds an agent. Returns ErrAgentDuplicate if the ID is taken and
// ErrRegistrySealed after Seal.
func (r *Registry) Register(desc domain.AgentDescriptor, exec domain.AgentExecutor) error {
	if r.sealed.Load() {
		return domain.WrapOp("Registry.Register", domain.ErrRegistrySealed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[desc.ID]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrAgentDuplicate, string(desc.ID))
	}
	r.agents[desc.ID] = &RegisteredAgent{Descriptor: desc, Executor: exec}
	r.order = append(r.order, desc.ID)
	r.logger.Info("agent registered", "agent_id", desc.ID, "capabilities", desc.Capabilities)
	return nil
}

// Seal freezes the registry. Reads after Seal take no locks.
func (r *Registry) Seal() {
	r.sealed.Store(true)
	r.logger.Debug("registry sealed", "agents", len(r.agents))
}

// Get returns the registered agent for the given ID, or ErrAgentNotFound.
func (r *Registry) Get(id domain.AgentID) (*RegisteredAgent, error) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	a, ok := r.agents[id]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound, string(id))
	}
	return a, nil
}

// Has reports whether an agent with the given ID is registered.
func (r *Registry) Has(id domain.AgentID) bool {
	_, err := r.Get(id)
	return err == nil
}

// FindByCapability returns the first registered agent carrying the capability,
// in registration order, or ErrAgentNotFound.
func (r *Registry) FindByCapability(capability string) (*RegisteredAgent, error) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	for _, id := range r.order {
		if r.agents[id].Descriptor.HasCapability(capability) {
			return r.agents[id], nil
		}
	}
	return nil, domain.NewDomainError("Registry.FindByCapability", domain.ErrAgentNotFound, capability)
}

// List returns descriptors for every registered agent in registration order.
func (r *Registry) List() []domain.AgentDescriptor {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	out := make([]domain.AgentDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Descriptor)
	}
	return out
}

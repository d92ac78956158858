package usecase

import (
	"errors"
	"testing"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry(logger.Discard())
	desc := domain.AgentDescriptor{ID: "a1", Capabilities: []string{domain.CapabilityGeneral}}

	if err := r.Register(desc, okExecutor("x")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(desc, okExecutor("x"))
	if !errors.Is(err, domain.ErrAgentDuplicate) {
		t.Errorf("duplicate register error = %v, want ErrAgentDuplicate", err)
	}
}

func TestRegistrySealRejectsRegistration(t *testing.T) {
	r := NewRegistry(logger.Discard())
	r.Seal()
	err := r.Register(domain.AgentDescriptor{ID: "late"}, okExecutor("x"))
	if !errors.Is(err, domain.ErrRegistrySealed) {
		t.Errorf("register after seal error = %v, want ErrRegistrySealed", err)
	}
}

func TestRegistryGet(t *testing.T) {
	r := newTestRegistry(t)

	agent, err := r.Get("research_agent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if agent.Descriptor.ID != "research_agent" {
		t.Errorf("ID = %s, want research_agent", agent.Descriptor.ID)
	}

	_, err = r.Get("nope")
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("missing agent error = %v, want ErrAgentNotFound", err)
	}
}

func TestRegistryFindByCapabilityRegistrationOrder(t *testing.T) {
	r := newTestRegistry(t)

	// Every agent carries "general"; the first registered must win.
	agent, err := r.FindByCapability(domain.CapabilityGeneral)
	if err != nil {
		t.Fatalf("FindByCapability: %v", err)
	}
	if agent.Descriptor.ID != "research_agent" {
		t.Errorf("first general agent = %s, want research_agent", agent.Descriptor.ID)
	}

	qa, err := r.FindByCapability(domain.CapabilityQA)
	if err != nil {
		t.Fatalf("FindByCapability qa: %v", err)
	}
	if qa.Descriptor.ID != "qa_agent" {
		t.Errorf("qa agent = %s, want qa_agent", qa.Descriptor.ID)
	}
}

func TestRegistryList(t *testing.T) {
	r := newTestRegistry(t)
	descs := r.List()
	if len(descs) != 7 {
		t.Fatalf("List len = %d, want 7", len(descs))
	}
	if descs[0].ID != "research_agent" || descs[6].ID != "general_agent" {
		t.Errorf("List order wrong: first=%s last=%s", descs[0].ID, descs[6].ID)
	}
}

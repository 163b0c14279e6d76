package auth

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ashita-ai/cortex/internal/model"
)

// CredentialStore holds agent credentials in memory: agent_id to an Argon2id
// hash of the agent's API key plus its role. Registered at startup from
// configuration; there is no self-service signup surface.
type CredentialStore struct {
	mu     sync.RWMutex
	agents map[string]credential
}

type credential struct {
	id      uuid.UUID
	keyHash string
	role    model.Role
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{agents: make(map[string]credential)}
}

// Register adds an agent with the given API key and role. The key is hashed
// before storage; the plaintext is never retained.
func (s *CredentialStore) Register(agentID, apiKey string, role model.Role) error {
	if agentID == "" || apiKey == "" {
		return fmt.Errorf("auth: agent id and api key are required")
	}
	if !model.ValidRole(role) {
		return fmt.Errorf("auth: unknown role %q", role)
	}
	hash, err := HashAPIKey(apiKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.agents[agentID] = credential{id: uuid.New(), keyHash: hash, role: role}
	s.mu.Unlock()
	return nil
}

// Authenticate verifies an agent's API key and returns the agent on success.
// Unknown agents burn a dummy hash so response timing does not reveal whether
// the agent id exists.
func (s *CredentialStore) Authenticate(agentID, apiKey string) (model.Agent, error) {
	s.mu.RLock()
	cred, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		DummyVerify()
		return model.Agent{}, fmt.Errorf("auth: invalid credentials")
	}

	match, err := VerifyAPIKey(apiKey, cred.keyHash)
	if err != nil {
		return model.Agent{}, err
	}
	if !match {
		return model.Agent{}, fmt.Errorf("auth: invalid credentials")
	}

	return model.Agent{ID: cred.id, AgentID: agentID, Role: cred.role}, nil
}

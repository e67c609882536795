package config

import (
	"fmt"
	"sort"
	"sync"
)

// PersonaStore holds the system-prompt personas. Mutation goes through
// defined operations under a lock rather than ad hoc writes to a shared map,
// so UI glue and the query path can share one instance safely.
type PersonaStore struct {
	mu      sync.RWMutex
	active  string
	prompts map[string]string
}

func NewPersonaStore(cfg PersonasConfig) *PersonaStore {
	prompts := make(map[string]string, len(cfg.Prompts))
	for name, prompt := range cfg.Prompts {
		prompts[name] = prompt
	}

	active := cfg.Active
	if _, ok := prompts[active]; !ok {
		active = "default"
	}
	if _, ok := prompts[active]; !ok && len(prompts) == 0 {
		prompts[active] = "You are a careful assistant answering questions about the user's personal notes."
	}

	return &PersonaStore{
		active:  active,
		prompts: prompts,
	}
}

// Active returns the current persona's system prompt.
func (s *PersonaStore) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompts[s.active]
}

// ActiveName returns the current persona's name.
func (s *PersonaStore) ActiveName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive switches the current persona.
func (s *PersonaStore) SetActive(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prompts[name]; !ok {
		return fmt.Errorf("unknown persona: %s", name)
	}
	s.active = name
	return nil
}

// Set creates or replaces a persona prompt.
func (s *PersonaStore) Set(name, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[name] = prompt
}

// Delete removes a persona. The active persona cannot be removed.
func (s *PersonaStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.active {
		return fmt.Errorf("cannot delete the active persona %q", name)
	}
	delete(s.prompts, name)
	return nil
}

// Names lists persona names, sorted.
func (s *PersonaStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.prompts))
	for name := range s.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

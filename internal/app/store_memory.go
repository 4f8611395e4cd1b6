package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pscheid92/dashpulse/internal/domain"
)

// MemoryStore is a process-local DashboardStore.
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[string]domain.Workflow
	tasks       map[string]domain.Task
	agents      map[string]domain.Agent
	suggestions map[string]domain.Suggestion
}

var _ domain.DashboardStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[string]domain.Workflow),
		tasks:       make(map[string]domain.Task),
		agents:      make(map[string]domain.Agent),
		suggestions: make(map[string]domain.Suggestion),
	}
}

// NewSeededMemoryStore returns a store holding the demo dashboard data.
func NewSeededMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	for _, w := range seedWorkflows() {
		s.workflows[w.ID] = w
	}
	for _, t := range seedTasks() {
		s.tasks[t.ID] = t
	}
	for _, a := range seedAgents() {
		s.agents[a.ID] = a
	}
	for _, sg := range seedSuggestions() {
		s.suggestions[sg.ID] = sg
	}
	return s
}

func (s *MemoryStore) ListWorkflows(_ context.Context) ([]domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, cloneWorkflow(w))
	}
	sortByCreated(out, func(w domain.Workflow) (time.Time, string) { return w.CreatedAt, w.ID })
	return out, nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	w = cloneWorkflow(w)
	return &w, nil
}

func (s *MemoryStore) SaveWorkflow(_ context.Context, w domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = cloneWorkflow(w)
	return nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryStore) ListTasks(_ context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sortByCreated(out, func(t domain.Task) (time.Time, string) { return t.CreatedAt, t.ID })
	return out, nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (s *MemoryStore) SaveTask(_ context.Context, t domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Agent) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) SaveAgent(_ context.Context, a domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *MemoryStore) UpdateAgent(_ context.Context, id string, update func(a *domain.Agent) bool) (*domain.Agent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, false, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if !update(&a) {
		return &a, false, nil
	}
	s.agents[id] = a
	return &a, true, nil
}

func (s *MemoryStore) ListSuggestions(_ context.Context) ([]domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Suggestion, 0, len(s.suggestions))
	for _, sg := range s.suggestions {
		out = append(out, sg)
	}
	sortByCreated(out, func(sg domain.Suggestion) (time.Time, string) { return sg.CreatedAt, sg.ID })
	return out, nil
}

func (s *MemoryStore) GetSuggestion(_ context.Context, id string) (*domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, domain.ErrNotFound)
	}
	return &sg, nil
}

func (s *MemoryStore) SaveSuggestion(_ context.Context, sg domain.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions[sg.ID] = sg
	return nil
}

func cloneWorkflow(w domain.Workflow) domain.Workflow {
	w.AgentIDs = slices.Clone(w.AgentIDs)
	return w
}

func sortByCreated[T any](items []T, key func(T) (time.Time, string)) {
	slices.SortFunc(items, func(a, b T) int {
		ta, ida := key(a)
		tb, idb := key(b)
		if c := ta.Compare(tb); c != 0 {
			return c
		}
		return cmp.Compare(ida, idb)
	})
}

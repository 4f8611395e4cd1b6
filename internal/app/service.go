package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/domain"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Service is the dashboard application layer. Every mutation is persisted
// first and then announced through the event publisher; a failed publish is
// logged and never fails the mutation.
type Service struct {
	store     domain.DashboardStore
	publisher domain.EventPublisher
	clock     clockwork.Clock
}

func NewService(store domain.DashboardStore, publisher domain.EventPublisher, clock clockwork.Clock) *Service {
	return &Service{store: store, publisher: publisher, clock: clock}
}

// List is one page of a list endpoint. Total counts the filtered set.
type List[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

func paginate[T any](items []T, page domain.Page) List[T] {
	if page.Skip < 0 {
		page.Skip = 0
	}
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	page.Limit = min(page.Limit, maxPageLimit)

	start := min(page.Skip, len(items))
	end := min(start+page.Limit, len(items))
	return List[T]{
		Total: len(items),
		Items: append([]T{}, items[start:end]...),
		Skip:  page.Skip,
		Limit: page.Limit,
	}
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrInvalidInput)
}

func validProgress(p int) bool { return p >= 0 && p <= 100 }

// publish announces event on every channel. Failures are logged.
func (s *Service) publish(ctx context.Context, eventType domain.EventType, data any, channels ...string) {
	event := domain.Event{Type: eventType, Data: data, Timestamp: s.clock.Now().UTC()}
	for _, channel := range channels {
		if err := s.publisher.Publish(ctx, channel, event); err != nil {
			slog.WarnContext(ctx, "Failed to publish event", "event_type", eventType, "channel", channel, "error", err)
		}
	}
}

// --- Workflows ---

type NewWorkflow struct {
	Name        string
	Description string
	AgentIDs    []string
}

type WorkflowUpdate struct {
	Name        *string
	Description *string
	Status      *domain.WorkflowStatus
	Progress    *int
}

func (s *Service) ListWorkflows(ctx context.Context, page domain.Page) (List[domain.Workflow], error) {
	workflows, err := s.store.ListWorkflows(ctx)
	if err != nil {
		return List[domain.Workflow]{}, fmt.Errorf("list workflows: %w", err)
	}
	return paginate(workflows, page), nil
}

func (s *Service) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

func (s *Service) CreateWorkflow(ctx context.Context, in NewWorkflow) (*domain.Workflow, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("workflow name is required")
	}

	now := s.clock.Now().UTC()
	w := domain.Workflow{
		ID:          "wf-" + uuid.NewString(),
		Name:        name,
		Description: in.Description,
		Status:      domain.WorkflowPending,
		AgentIDs:    append([]string{}, in.AgentIDs...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveWorkflow(ctx, w); err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}

	slog.InfoContext(ctx, "Workflow created", "workflow_id", w.ID, "name", w.Name)
	s.publish(ctx, domain.EventWorkflowUpdate, w, domain.ChannelWorkflows)
	return &w, nil
}

func (s *Service) UpdateWorkflow(ctx context.Context, id string, in WorkflowUpdate) (*domain.Workflow, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, invalid("unknown workflow status %q", *in.Status)
	}
	if in.Progress != nil && !validProgress(*in.Progress) {
		return nil, invalid("progress must be between 0 and 100")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, invalid("workflow name must not be empty")
	}

	w, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		w.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		w.Description = *in.Description
	}
	if in.Status != nil {
		w.Status = *in.Status
	}
	if in.Progress != nil {
		w.Progress = *in.Progress
	}
	w.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.SaveWorkflow(ctx, *w); err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}

	s.publish(ctx, domain.EventWorkflowUpdate, w, domain.ChannelWorkflows, domain.WorkflowChannel(w.ID))
	return w, nil
}

func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Workflow deleted", "workflow_id", id)
	s.publish(ctx, domain.EventWorkflowDeleted, map[string]string{"id": id}, domain.ChannelWorkflows, domain.WorkflowChannel(id))
	return nil
}

// --- Tasks ---

type NewTask struct {
	Name       string
	WorkflowID string
	AgentID    string
	Priority   domain.Priority
}

type TaskUpdate struct {
	Status   *domain.TaskStatus
	Progress *int
}

func (s *Service) ListTasks(ctx context.Context, page domain.Page, status domain.TaskStatus) (List[domain.Task], error) {
	if status != "" && !status.Valid() {
		return List[domain.Task]{}, invalid("unknown task status %q", status)
	}
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return List[domain.Task]{}, fmt.Errorf("list tasks: %w", err)
	}
	if status != "" {
		tasks = filter(tasks, func(t domain.Task) bool { return t.Status == status })
	}
	return paginate(tasks, page), nil
}

func (s *Service) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.store.GetTask(ctx, id)
}

func (s *Service) CreateTask(ctx context.Context, in NewTask) (*domain.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("task name is required")
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalid("unknown priority %q", in.Priority)
	}
	if _, err := s.store.GetWorkflow(ctx, in.WorkflowID); err != nil {
		return nil, invalid("workflow %q does not exist", in.WorkflowID)
	}

	t := domain.Task{
		ID:         "task-" + uuid.NewString(),
		Name:       name,
		WorkflowID: in.WorkflowID,
		AgentID:    in.AgentID,
		Status:     domain.TaskPending,
		Priority:   in.Priority,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	slog.InfoContext(ctx, "Task created", "task_id", t.ID, "workflow_id", t.WorkflowID)
	s.publish(ctx, domain.EventTaskUpdate, t, domain.ChannelTasks, domain.WorkflowChannel(t.WorkflowID))
	return &t, nil
}

// UpdateTask applies a status or progress change. Entering in_progress
// stamps StartedAt once; entering completed stamps CompletedAt and sets
// progress to 100.
func (s *Service) UpdateTask(ctx context.Context, id string, in TaskUpdate) (*domain.Task, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, invalid("unknown task status %q", *in.Status)
	}
	if in.Progress != nil && !validProgress(*in.Progress) {
		return nil, invalid("progress must be between 0 and 100")
	}

	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if in.Progress != nil {
		t.Progress = *in.Progress
	}
	if in.Status != nil {
		t.Status = *in.Status
		switch t.Status {
		case domain.TaskInProgress:
			if t.StartedAt == nil {
				t.StartedAt = &now
			}
		case domain.TaskCompleted:
			t.CompletedAt = &now
			t.Progress = 100
		}
	}

	if err := s.store.SaveTask(ctx, *t); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	s.publish(ctx, domain.EventTaskUpdate, t, domain.ChannelTasks, domain.WorkflowChannel(t.WorkflowID))
	return t, nil
}

// --- Agents ---

func (s *Service) ListAgents(ctx context.Context, page domain.Page) (List[domain.Agent], error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return List[domain.Agent]{}, fmt.Errorf("list agents: %w", err)
	}
	return paginate(agents, page), nil
}

func (s *Service) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// UpdateAgentStatus records a reported status and refreshes LastSeen.
func (s *Service) UpdateAgentStatus(ctx context.Context, id string, status domain.AgentStatus, currentTaskID string) (*domain.Agent, error) {
	if !status.Valid() {
		return nil, invalid("unknown agent status %q", status)
	}

	now := s.clock.Now().UTC()
	a, _, err := s.store.UpdateAgent(ctx, id, func(a *domain.Agent) bool {
		a.Status = status
		a.CurrentTaskID = currentTaskID
		a.LastSeen = now
		return true
	})
	if err != nil {
		return nil, err
	}

	s.publishAgentStatus(ctx, a)
	return a, nil
}

// Heartbeat refreshes LastSeen. An offline agent comes back online.
func (s *Service) Heartbeat(ctx context.Context, id string) (*domain.Agent, error) {
	now := s.clock.Now().UTC()
	var wasOffline bool
	a, _, err := s.store.UpdateAgent(ctx, id, func(a *domain.Agent) bool {
		wasOffline = a.Status == domain.AgentOffline
		if wasOffline {
			a.Status = domain.AgentOnline
		}
		a.LastSeen = now
		return true
	})
	if err != nil {
		return nil, err
	}
	if wasOffline {
		s.publishAgentStatus(ctx, a)
	}
	return a, nil
}

func (s *Service) publishAgentStatus(ctx context.Context, a *domain.Agent) {
	s.publish(ctx, domain.EventAgentStatus, domain.AgentStatusData{
		AgentID:     a.ID,
		Status:      a.Status,
		CurrentTask: a.CurrentTaskID,
		Timestamp:   a.LastSeen,
	}, domain.ChannelAgents)
}

// --- Suggestions ---

type NewSuggestion struct {
	TaskID     string
	AgentID    string
	Action     string
	Reasoning  string
	Confidence *float64
}

func (s *Service) ListSuggestions(ctx context.Context, page domain.Page, status domain.SuggestionStatus) (List[domain.Suggestion], error) {
	suggestions, err := s.store.ListSuggestions(ctx)
	if err != nil {
		return List[domain.Suggestion]{}, fmt.Errorf("list suggestions: %w", err)
	}
	if status != "" {
		suggestions = filter(suggestions, func(sg domain.Suggestion) bool { return sg.Status == status })
	}
	return paginate(suggestions, page), nil
}

func (s *Service) GetSuggestion(ctx context.Context, id string) (*domain.Suggestion, error) {
	return s.store.GetSuggestion(ctx, id)
}

func (s *Service) CreateSuggestion(ctx context.Context, in NewSuggestion) (*domain.Suggestion, error) {
	if in.TaskID == "" || in.AgentID == "" || strings.TrimSpace(in.Action) == "" {
		return nil, invalid("task_id, agent_id and action are required")
	}
	confidence := 0.5
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return nil, invalid("confidence must be between 0 and 1")
	}

	sg := domain.Suggestion{
		ID:         "sugg-" + uuid.NewString(),
		TaskID:     in.TaskID,
		AgentID:    in.AgentID,
		Action:     strings.TrimSpace(in.Action),
		Reasoning:  in.Reasoning,
		Confidence: confidence,
		Status:     domain.SuggestionPending,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.store.SaveSuggestion(ctx, sg); err != nil {
		return nil, fmt.Errorf("save suggestion: %w", err)
	}

	s.publish(ctx, domain.EventSuggestionCreated, sg, domain.ChannelSuggestions)
	return &sg, nil
}

func (s *Service) ApproveSuggestion(ctx context.Context, id, by string) (*domain.Suggestion, error) {
	return s.decide(ctx, id, domain.SuggestionApproved, by, "")
}

func (s *Service) RejectSuggestion(ctx context.Context, id, by, reason string) (*domain.Suggestion, error) {
	return s.decide(ctx, id, domain.SuggestionRejected, by, reason)
}

func (s *Service) decide(ctx context.Context, id string, status domain.SuggestionStatus, by, reason string) (*domain.Suggestion, error) {
	sg, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sg.Status != domain.SuggestionPending {
		return nil, fmt.Errorf("suggestion %s already %s: %w", id, sg.Status, domain.ErrConflict)
	}

	now := s.clock.Now().UTC()
	sg.Status = status
	sg.DecidedAt = &now
	sg.DecidedBy = by
	sg.Reason = reason

	if err := s.store.SaveSuggestion(ctx, *sg); err != nil {
		return nil, fmt.Errorf("save suggestion: %w", err)
	}

	eventType := domain.EventSuggestionApproved
	if status == domain.SuggestionRejected {
		eventType = domain.EventSuggestionRejected
	}
	slog.InfoContext(ctx, "Suggestion decided", "suggestion_id", id, "status", status, "by", by)
	s.publish(ctx, eventType, sg, domain.ChannelSuggestions)
	return sg, nil
}

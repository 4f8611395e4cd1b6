package domain

import (
	"context"
	"time"
)

type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowPaused    WorkflowStatus = "paused"
)

func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowPending, WorkflowRunning, WorkflowCompleted, WorkflowFailed, WorkflowPaused:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
	AgentIdle    AgentStatus = "idle"
)

func (s AgentStatus) Valid() bool {
	switch s {
	case AgentOnline, AgentOffline, AgentBusy, AgentIdle:
		return true
	}
	return false
}

type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"`
	Progress    int            `json:"progress"`
	AgentIDs    []string       `json:"agent_ids"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	WorkflowID  string     `json:"workflow_id"`
	AgentID     string     `json:"agent_id,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Agent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Status        AgentStatus `json:"status"`
	SuccessRate   float64     `json:"success_rate"`
	TotalTasks    int         `json:"total_tasks"`
	FailedTasks   int         `json:"failed_tasks"`
	CurrentTaskID string      `json:"current_task_id,omitempty"`
	LastSeen      time.Time   `json:"last_seen"`
}

type Suggestion struct {
	ID         string           `json:"id"`
	TaskID     string           `json:"task_id"`
	AgentID    string           `json:"agent_id"`
	Action     string           `json:"action"`
	Reasoning  string           `json:"reasoning"`
	Confidence float64          `json:"confidence"`
	Status     SuggestionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	DecidedAt  *time.Time       `json:"decided_at,omitempty"`
	DecidedBy  string           `json:"decided_by,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Page is a window over a list endpoint.
type Page struct {
	Skip  int
	Limit int
}

// DashboardStore holds dashboard records. Implementations must be safe for
// concurrent use.
type DashboardStore interface {
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	SaveWorkflow(ctx context.Context, w Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	ListTasks(ctx context.Context) ([]Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	SaveTask(ctx context.Context, t Task) error

	ListAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	SaveAgent(ctx context.Context, a Agent) error
	// UpdateAgent applies update to the stored agent atomically. The change is
	// saved only if update returns true.
	UpdateAgent(ctx context.Context, id string, update func(a *Agent) bool) (agent *Agent, saved bool, err error)

	ListSuggestions(ctx context.Context) ([]Suggestion, error)
	GetSuggestion(ctx context.Context, id string) (*Suggestion, error)
	SaveSuggestion(ctx context.Context, s Suggestion) error
}

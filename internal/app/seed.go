package app

import (
	"time"

	"github.com/pscheid92/dashpulse/internal/domain"
)

func at(day, hour, minute, second int) time.Time {
	return time.Date(2026, time.February, day, hour, minute, second, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func seedWorkflows() []domain.Workflow {
	return []domain.Workflow{
		{
			ID:          "wf-001",
			Name:        "Customer Support Automation",
			Description: "Automated ticket analysis and response",
			Status:      domain.WorkflowRunning,
			Progress:    65,
			AgentIDs:    []string{"agent-001-ta", "agent-002-er", "agent-003-em"},
			CreatedAt:   at(9, 9, 0, 0),
			UpdatedAt:   at(9, 19, 20, 0),
		},
		{
			ID:          "wf-002",
			Name:        "Data Migration Pipeline",
			Description: "Migrate customer data between systems",
			Status:      domain.WorkflowCompleted,
			Progress:    100,
			AgentIDs:    []string{"agent-004-dc"},
			CreatedAt:   at(8, 10, 0, 0),
			UpdatedAt:   at(9, 15, 30, 0),
		},
		{
			ID:          "wf-003",
			Name:        "Quality Control Review",
			Description: "Automated quality checks on content",
			Status:      domain.WorkflowRunning,
			Progress:    30,
			AgentIDs:    []string{"agent-005-qc"},
			CreatedAt:   at(9, 18, 0, 0),
			UpdatedAt:   at(9, 19, 15, 0),
		},
	}
}

func seedTasks() []domain.Task {
	return []domain.Task{
		{
			ID: "task-001", Name: "Analyze Support Ticket", WorkflowID: "wf-001", AgentID: "agent-001-ta",
			Status: domain.TaskInProgress, Priority: domain.PriorityHigh, Progress: 75,
			CreatedAt: at(9, 19, 15, 0), StartedAt: ptr(at(9, 19, 16, 0)),
		},
		{
			ID: "task-002", Name: "Draft Response Email", WorkflowID: "wf-001", AgentID: "agent-002-er",
			Status: domain.TaskPending, Priority: domain.PriorityHigh,
			CreatedAt: at(9, 19, 16, 0),
		},
		{
			ID: "task-003", Name: "Evaluate Escalation Need", WorkflowID: "wf-001", AgentID: "agent-003-em",
			Status: domain.TaskPending, Priority: domain.PriorityHigh,
			CreatedAt: at(9, 19, 16, 0),
		},
		{
			ID: "task-100", Name: "Validate Customer Data", WorkflowID: "wf-002", AgentID: "agent-004-dc",
			Status: domain.TaskCompleted, Priority: domain.PriorityHigh, Progress: 100,
			CreatedAt: at(8, 10, 0, 0), CompletedAt: ptr(at(8, 12, 30, 0)),
		},
		{
			ID: "task-200", Name: "Quality Check: Articles", WorkflowID: "wf-003", AgentID: "agent-005-qc",
			Status: domain.TaskInProgress, Priority: domain.PriorityMedium, Progress: 30,
			CreatedAt: at(9, 18, 0, 0),
		},
	}
}

func seedAgents() []domain.Agent {
	return []domain.Agent{
		{ID: "agent-001-ta", Name: "TicketAnalyzer", Status: domain.AgentOnline, SuccessRate: 0.98, TotalTasks: 1247, FailedTasks: 25, LastSeen: at(9, 19, 20, 0)},
		{ID: "agent-002-er", Name: "EmailResponder", Status: domain.AgentOnline, SuccessRate: 0.96, TotalTasks: 856, FailedTasks: 34, LastSeen: at(9, 19, 19, 0)},
		{ID: "agent-003-em", Name: "EscalationManager", Status: domain.AgentOnline, SuccessRate: 0.99, TotalTasks: 1247, FailedTasks: 12, LastSeen: at(9, 19, 18, 0)},
		{ID: "agent-004-dc", Name: "DataConverter", Status: domain.AgentOffline, SuccessRate: 0.94, TotalTasks: 543, FailedTasks: 33, LastSeen: at(9, 18, 0, 0)},
		{ID: "agent-005-qc", Name: "QualityChecker", Status: domain.AgentBusy, SuccessRate: 0.97, TotalTasks: 892, FailedTasks: 27, CurrentTaskID: "task-200", LastSeen: at(9, 19, 15, 0)},
	}
}

func seedSuggestions() []domain.Suggestion {
	return []domain.Suggestion{
		{
			ID: "sugg-001", TaskID: "task-002", AgentID: "agent-002-er",
			Action:     "send_response_email",
			Reasoning:  "Email response is drafted and ready. High confidence.",
			Confidence: 0.95, Status: domain.SuggestionPending,
			CreatedAt: at(9, 19, 18, 30),
		},
		{
			ID: "sugg-002", TaskID: "task-003", AgentID: "agent-003-em",
			Action:     "close_ticket_with_solution",
			Reasoning:  "No escalation needed. Issue is straightforward.",
			Confidence: 0.99, Status: domain.SuggestionPending,
			CreatedAt: at(9, 19, 19, 0),
		},
		{
			ID: "sugg-100", TaskID: "task-100", AgentID: "agent-004-dc",
			Action:     "proceed_with_migration",
			Reasoning:  "Data validation passed. Ready for next stage.",
			Confidence: 0.98, Status: domain.SuggestionApproved,
			CreatedAt: at(8, 12, 30, 0), DecidedAt: ptr(at(8, 12, 35, 0)), DecidedBy: "human-001",
		},
	}
}

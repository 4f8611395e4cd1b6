package domain

import "time"

// Channels the dashboard publishes to.
const (
	ChannelWorkflows   = "workflows"
	ChannelTasks       = "tasks"
	ChannelAgents      = "agents"
	ChannelSuggestions = "suggestions"
)

// WorkflowChannel is the per-workflow channel carrying that workflow's task updates.
func WorkflowChannel(workflowID string) string {
	return "workflow:" + workflowID
}

type EventType string

const (
	EventWorkflowUpdate     EventType = "workflow_update"
	EventWorkflowDeleted    EventType = "workflow_deleted"
	EventTaskUpdate         EventType = "task_update"
	EventAgentStatus        EventType = "agent_status"
	EventSuggestionCreated  EventType = "suggestion_created"
	EventSuggestionApproved EventType = "suggestion_approved"
	EventSuggestionRejected EventType = "suggestion_rejected"
)

// Event is the envelope pushed to websocket clients.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentStatusData is the payload of an agent_status event.
type AgentStatusData struct {
	AgentID     string      `json:"agent_id"`
	Status      AgentStatus `json:"status"`
	CurrentTask string      `json:"current_task,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

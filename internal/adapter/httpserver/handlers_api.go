package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/dashpulse/internal/app"
	"github.com/pscheid92/dashpulse/internal/domain"
	apperrors "github.com/pscheid92/dashpulse/internal/platform/errors"
)

func (s *Server) registerAPIRoutes(api *echo.Group) {
	api.GET("/workflows", s.handleListWorkflows)
	api.POST("/workflows", s.handleCreateWorkflow)
	api.GET("/workflows/:id", s.handleGetWorkflow)
	api.PUT("/workflows/:id", s.handleUpdateWorkflow)
	api.DELETE("/workflows/:id", s.handleDeleteWorkflow)

	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.PUT("/tasks/:id", s.handleUpdateTask)

	api.GET("/agents", s.handleListAgents)
	api.GET("/agents/:id", s.handleGetAgent)
	api.PUT("/agents/:id/status", s.handleUpdateAgentStatus)
	api.POST("/agents/:id/heartbeat", s.handleAgentHeartbeat)

	api.GET("/suggestions", s.handleListSuggestions)
	api.POST("/suggestions", s.handleCreateSuggestion)
	api.GET("/suggestions/:id", s.handleGetSuggestion)
	api.POST("/suggestions/:id/approve", s.handleApproveSuggestion)
	api.POST("/suggestions/:id/reject", s.handleRejectSuggestion)
}

type createWorkflowRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	AgentIDs    []string `json:"agent_ids" validate:"dive,required"`
}

type updateWorkflowRequest struct {
	Name        *string                `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string                `json:"description" validate:"omitempty,max=2000"`
	Status      *domain.WorkflowStatus `json:"status" validate:"omitempty,oneof=pending running completed failed paused"`
	Progress    *int                   `json:"progress" validate:"omitempty,min=0,max=100"`
}

type createTaskRequest struct {
	Name       string          `json:"name" validate:"required,max=200"`
	WorkflowID string          `json:"workflow_id" validate:"required"`
	AgentID    string          `json:"agent_id"`
	Priority   domain.Priority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

type updateTaskRequest struct {
	Status   *domain.TaskStatus `json:"status" validate:"omitempty,oneof=pending in_progress completed failed skipped"`
	Progress *int               `json:"progress" validate:"omitempty,min=0,max=100"`
}

type updateAgentStatusRequest struct {
	Status        domain.AgentStatus `json:"status" validate:"required,oneof=online offline busy idle"`
	CurrentTaskID string             `json:"current_task_id"`
}

type createSuggestionRequest struct {
	TaskID     string   `json:"task_id" validate:"required"`
	AgentID    string   `json:"agent_id" validate:"required"`
	Action     string   `json:"action" validate:"required,max=500"`
	Reasoning  string   `json:"reasoning" validate:"max=5000"`
	Confidence *float64 `json:"confidence" validate:"omitempty,min=0,max=1"`
}

type approveSuggestionRequest struct {
	ApprovedBy string `json:"approved_by" validate:"max=200"`
}

type rejectSuggestionRequest struct {
	RejectedBy string `json:"rejected_by" validate:"max=200"`
	Reason     string `json:"reason" validate:"max=2000"`
}

// bindAndValidate decodes the request body into req and runs the struct
// validator over it.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	return c.Validate(req)
}

// bindListQuery reads skip, limit and the optional status filter.
func bindListQuery(c echo.Context) (domain.Page, string, error) {
	var page domain.Page
	var status string
	err := echo.QueryParamsBinder(c).
		Int("skip", &page.Skip).
		Int("limit", &page.Limit).
		String("status", &status).
		BindError()
	if err != nil {
		return domain.Page{}, "", apperrors.ValidationError("skip and limit must be integers")
	}
	if page.Skip < 0 || page.Limit < 0 {
		return domain.Page{}, "", apperrors.ValidationError("skip and limit must not be negative")
	}
	return page, status, nil
}

func respond(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// --- Workflows ---

func (s *Server) handleListWorkflows(c echo.Context) error {
	page, _, err := bindListQuery(c)
	if err != nil {
		return err
	}
	list, err := s.app.ListWorkflows(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	wf, err := s.app.GetWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, wf)
}

func (s *Server) handleCreateWorkflow(c echo.Context) error {
	var req createWorkflowRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	wf, err := s.app.CreateWorkflow(c.Request().Context(), app.NewWorkflow{
		Name:        req.Name,
		Description: req.Description,
		AgentIDs:    req.AgentIDs,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, wf)
}

func (s *Server) handleUpdateWorkflow(c echo.Context) error {
	var req updateWorkflowRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	wf, err := s.app.UpdateWorkflow(c.Request().Context(), c.Param("id"), app.WorkflowUpdate{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Progress:    req.Progress,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, wf)
}

func (s *Server) handleDeleteWorkflow(c echo.Context) error {
	id := c.Param("id")
	if err := s.app.DeleteWorkflow(c.Request().Context(), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// --- Tasks ---

func (s *Server) handleListTasks(c echo.Context) error {
	page, status, err := bindListQuery(c)
	if err != nil {
		return err
	}
	list, err := s.app.ListTasks(c.Request().Context(), page, domain.TaskStatus(status))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) handleGetTask(c echo.Context) error {
	task, err := s.app.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, task)
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := s.app.CreateTask(c.Request().Context(), app.NewTask{
		Name:       req.Name,
		WorkflowID: req.WorkflowID,
		AgentID:    req.AgentID,
		Priority:   req.Priority,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	var req updateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := s.app.UpdateTask(c.Request().Context(), c.Param("id"), app.TaskUpdate{
		Status:   req.Status,
		Progress: req.Progress,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, task)
}

// --- Agents ---

func (s *Server) handleListAgents(c echo.Context) error {
	page, _, err := bindListQuery(c)
	if err != nil {
		return err
	}
	list, err := s.app.ListAgents(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) handleGetAgent(c echo.Context) error {
	agent, err := s.app.GetAgent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgentStatus(c echo.Context) error {
	var req updateAgentStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	agent, err := s.app.UpdateAgentStatus(c.Request().Context(), c.Param("id"), req.Status, req.CurrentTaskID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, agent)
}

func (s *Server) handleAgentHeartbeat(c echo.Context) error {
	agent, err := s.app.Heartbeat(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, agent)
}

// --- Suggestions ---

func (s *Server) handleListSuggestions(c echo.Context) error {
	page, status, err := bindListQuery(c)
	if err != nil {
		return err
	}
	list, err := s.app.ListSuggestions(c.Request().Context(), page, domain.SuggestionStatus(status))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) handleGetSuggestion(c echo.Context) error {
	sugg, err := s.app.GetSuggestion(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, sugg)
}

func (s *Server) handleCreateSuggestion(c echo.Context) error {
	var req createSuggestionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sugg, err := s.app.CreateSuggestion(c.Request().Context(), app.NewSuggestion{
		TaskID:     req.TaskID,
		AgentID:    req.AgentID,
		Action:     req.Action,
		Reasoning:  req.Reasoning,
		Confidence: req.Confidence,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, sugg)
}

func (s *Server) handleApproveSuggestion(c echo.Context) error {
	var req approveSuggestionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sugg, err := s.app.ApproveSuggestion(c.Request().Context(), c.Param("id"), req.ApprovedBy)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, sugg)
}

func (s *Server) handleRejectSuggestion(c echo.Context) error {
	var req rejectSuggestionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sugg, err := s.app.RejectSuggestion(c.Request().Context(), c.Param("id"), req.RejectedBy, req.Reason)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, sugg)
}

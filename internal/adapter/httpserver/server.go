package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/app"
	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/platform/config"
)

type dashboardService interface {
	ListWorkflows(ctx context.Context, page domain.Page) (app.List[domain.Workflow], error)
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)
	CreateWorkflow(ctx context.Context, in app.NewWorkflow) (*domain.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, in app.WorkflowUpdate) (*domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	ListTasks(ctx context.Context, page domain.Page, status domain.TaskStatus) (app.List[domain.Task], error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, in app.NewTask) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, in app.TaskUpdate) (*domain.Task, error)

	ListAgents(ctx context.Context, page domain.Page) (app.List[domain.Agent], error)
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status domain.AgentStatus, currentTaskID string) (*domain.Agent, error)
	Heartbeat(ctx context.Context, id string) (*domain.Agent, error)

	ListSuggestions(ctx context.Context, page domain.Page, status domain.SuggestionStatus) (app.List[domain.Suggestion], error)
	GetSuggestion(ctx context.Context, id string) (*domain.Suggestion, error)
	CreateSuggestion(ctx context.Context, in app.NewSuggestion) (*domain.Suggestion, error)
	ApproveSuggestion(ctx context.Context, id, by string) (*domain.Suggestion, error)
	RejectSuggestion(ctx context.Context, id, by, reason string) (*domain.Suggestion, error)
}

type hubStats interface {
	Stats() broadcast.Stats
}

// Dependencies are the collaborators the HTTP surface is wired to.
// MetricsHandler and HTTPMetrics may be nil.
type Dependencies struct {
	App              dashboardService
	Broadcaster      domain.Broadcaster
	Hub              hubStats
	WebSocketHandler http.Handler
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	HealthChecks     []HealthCheck
	Clock            clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app              dashboardService
	broadcaster      domain.Broadcaster
	hub              hubStats
	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
	e.HTTPErrorHandler = handleHTTPError

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		app:              deps.App,
		broadcaster:      deps.Broadcaster,
		hub:              deps.Hub,
		websocketHandler: deps.WebSocketHandler,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		healthChecks:     deps.HealthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

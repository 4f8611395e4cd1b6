package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/dashpulse/internal/platform/errors"
)

func (s *Server) registerBroadcastRoutes(api *echo.Group) {
	api.POST("/broadcast", s.handleBroadcast)
	api.GET("/channels", s.handleChannels)
}

type broadcastRequest struct {
	Channel string          `json:"channel" validate:"max=200"`
	Message json.RawMessage `json:"message"`
}

// handleBroadcast pushes an operator message to this instance's connections.
// An empty channel reaches every connection.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if len(req.Message) == 0 {
		return apperrors.ValidationError("message is required")
	}

	result, err := s.broadcaster.Broadcast(c.Request().Context(), req.Message, req.Channel)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result)
}

func (s *Server) handleChannels(c echo.Context) error {
	return respond(c, http.StatusOK, s.hub.Stats())
}

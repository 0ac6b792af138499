// Package v1 is the thin HTTP surface over the chat router: one chat
// endpoint and the cache statistics read endpoint.
package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/freshcoop/coopchat/server/chat"
	"github.com/freshcoop/coopchat/store/cache"
)

// APIV1Service serves the /api/v1 routes.
type APIV1Service struct {
	Router *chat.Router
	Cache  *cache.Manager
	Logger *slog.Logger
}

// NewAPIV1Service wires the service.
func NewAPIV1Service(router *chat.Router, cacheManager *cache.Manager, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIV1Service{Router: router, Cache: cacheManager, Logger: logger}
}

// Register mounts the routes on the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/chat", s.handleChat)
	g.GET("/cache/stats", s.handleCacheStats)
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (s *APIV1Service) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	resp := s.Router.HandleMessage(c.Request().Context(), req.Message, req.UserID)
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) handleCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Cache.Snapshot())
}

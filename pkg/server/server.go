// Package server exposes reconciled thread views over HTTP: REST for the
// current state and interactions, SSE for live updates.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agentdeck/agentdeck/pkg/store"
	"github.com/agentdeck/agentdeck/pkg/view"
)

type Server struct {
	e     *echo.Echo
	vm    *view.Manager
	cache store.Store
}

// New wires the HTTP API around a view manager and an optional cache for
// the thread list.
func New(vm *view.Manager, cache store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("Request", "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	s := &Server{
		e:     e,
		vm:    vm,
		cache: cache,
	}

	group := e.Group("/api")

	// List cached threads
	group.GET("/threads", s.getThreads)
	// Get the reconciled view for a thread
	group.GET("/threads/:id/view", s.getView)
	// Stream view updates
	group.GET("/threads/:id/events", s.streamView)
	// Move panel focus manually
	group.POST("/threads/:id/navigate", s.navigate)
	// Focus the tool call behind a clicked message
	group.POST("/threads/:id/click", s.click)
	// Toggle the side panel
	group.POST("/threads/:id/panel/toggle", s.togglePanel)

	// Health check endpoint
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler: s.e,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		slog.Error("Failed to serve", "error", err)
		return err
	}

	return nil
}

func (s *Server) getThreads(c echo.Context) error {
	if s.cache == nil {
		return c.JSON(http.StatusOK, []ThreadsResponse{})
	}

	threads, err := s.cache.ListThreads(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list threads: %v", err))
	}

	responses := make([]ThreadsResponse, len(threads))
	for i, t := range threads {
		responses[i] = ThreadsResponse{
			ThreadID:     t.ThreadID,
			ProjectID:    t.ProjectID,
			MessageCount: t.MessageCount,
			UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
			SyncedAt:     t.SyncedAt.Format(time.RFC3339),
		}
	}
	return c.JSON(http.StatusOK, responses)
}

func (s *Server) getView(c echo.Context) error {
	v := s.vm.View(c.Param("id"), c.QueryParam("project_id"))
	return c.JSON(http.StatusOK, ViewResponse{Snapshot: v.Snapshot()})
}

func (s *Server) navigate(c echo.Context) error {
	var req NavigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	v, ok := s.vm.Lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active view for thread")
	}

	v.Navigate(req.Index)
	return c.JSON(http.StatusOK, ViewResponse{Snapshot: v.Snapshot()})
}

func (s *Server) click(c echo.Context) error {
	var req ClickRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	v, ok := s.vm.Lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active view for thread")
	}

	notice := v.Click(req.AssistantMessageID, req.ToolName)
	return c.JSON(http.StatusOK, ViewResponse{Snapshot: v.Snapshot(), Notice: notice})
}

func (s *Server) togglePanel(c echo.Context) error {
	v, ok := s.vm.Lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active view for thread")
	}

	v.TogglePanel()
	return c.JSON(http.StatusOK, ViewResponse{Snapshot: v.Snapshot()})
}

func (s *Server) streamView(c echo.Context) error {
	v := s.vm.View(c.Param("id"), c.QueryParam("project_id"))

	updates, unsubscribe := v.Subscribe()
	defer unsubscribe()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	// Send the current state first so the consumer never starts blank.
	if err := writeSSE(c, v.Snapshot()); err != nil {
		return err
	}

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeSSE(c, snap); err != nil {
				return err
			}
		}
	}
}

func writeSSE(c echo.Context, snap view.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to marshal snapshot: %v", err))
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

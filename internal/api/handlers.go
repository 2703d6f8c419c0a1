package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Chative-triage/server/internal/a2a"
	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
	logx "github.com/Chative-triage/server/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) startRun(c echo.Context) error {
	var in model.RunInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	in.AdminAgentKey = strings.TrimSpace(c.Request().Header.Get(AdminKeyHeader))

	res, err := s.engine.Start(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusFor(res), res)
}

func (s *Server) resumeRun(c echo.Context) error {
	var decision model.ReviewDecision
	if err := c.Bind(&decision); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	if key := strings.TrimSpace(c.Request().Header.Get(AdminKeyHeader)); key != "" {
		ctx = a2a.WithCredential(ctx, key)
	}
	res, err := s.engine.Resume(ctx, c.Param("id"), decision)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusFor(res), res)
}

func (s *Server) getRun(c echo.Context) error {
	st, err := s.engine.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) getTransitions(c echo.Context) error {
	ts, err := s.engine.Transitions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run_id":      c.Param("id"),
		"transitions": ts,
	})
}

// statusFor reports suspended runs as 202: the run is waiting on a decision.
func statusFor(res *model.RunResult) int {
	if res.Status == model.RunSuspended {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func writeError(c echo.Context, err error) error {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, errorResponse{Error: errx.MessageOf(err)})
}

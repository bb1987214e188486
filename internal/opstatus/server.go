// Package opstatus is a small read-only Echo HTTP server the LobbyServer
// optionally exposes for operator introspection. It never participates in
// the game protocol; it only reads the directory for display.
package opstatus

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"lobbygame/internal/lobby"
)

// SessionSource supplies the data opstatus reports; lobbyserver.Server
// satisfies this.
type SessionSource interface {
	SessionCount() int
	Sessions() []lobby.Session
}

// Server is the Echo application.
type Server struct {
	echo *echo.Echo
	src  SessionSource
}

// New constructs the operator status app with its two routes.
func New(src SessionSource) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, src: src}
	e.GET("/healthz", s.handleHealthz)
	e.GET("/sessions", s.handleSessions)
	return s
}

// Echo exposes the underlying app for http.Server wiring or httptest.
func (s *Server) Echo() *echo.Echo { return s.echo }

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Debug("opstatus request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

type sessionView struct {
	SessionKey uint64 `json:"session_key"`
	GamePort   uint16 `json:"game_port"`
	CurPlayers uint8  `json:"cur_players"`
	MaxPlayers uint8  `json:"max_players"`
	State      string `json:"state"`
	Name       string `json:"name"`
}

func (s *Server) handleSessions(c echo.Context) error {
	sessions := s.src.Sessions()
	out := make([]sessionView, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionView{
			SessionKey: sess.SessionKey,
			GamePort:   sess.GamePort,
			CurPlayers: sess.CurPlayers,
			MaxPlayers: sess.MaxPlayers,
			State:      sess.State.String(),
			Name:       sess.Name,
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":    s.src.SessionCount(),
		"sessions": out,
	})
}

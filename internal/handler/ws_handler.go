package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hskprep/hsk-backend/internal/middleware"
	"github.com/hskprep/hsk-backend/internal/service"
	ws "github.com/hskprep/hsk-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the session clock over WebSocket.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionClockStream godoc
// WS /ws/v1/sessions/:session_id/clock
// Pushes a tick with the remaining seconds once per second, finishing with
// an expired event when the window elapses. The lazy per-request check on
// the HTTP endpoints stays authoritative; this stream only keeps frontends
// from drifting.
func (h *WSHandler) SessionClockStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()

	remaining, err := h.sessionService.TimeRemaining(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		ws.WriteError(conn, clockError(err))
		return
	}

	wsLog.Info().Float64("remaining_seconds", remaining).Msg("clock stream connected")

	// Reader goroutine: consume pings and detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				return
			}
			if msg.Action == ws.ActionPing {
				_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			wsLog.Debug().Msg("clock stream closed by client")
			return
		case <-ticker.C:
			remaining, err := h.sessionService.TimeRemaining(c.Request.Context(), sessionID, claims.UserID)
			if err != nil {
				ws.WriteError(conn, clockError(err))
				return
			}
			if remaining <= 0 {
				_ = ws.WriteTyped(conn, ws.ExpiredResponse{Event: ws.EventExpired})
				wsLog.Info().Msg("clock stream ended, session window elapsed")
				return
			}
			if err := ws.WriteTyped(conn, ws.TickResponse{Event: ws.EventTick, RemainingSeconds: remaining}); err != nil {
				return
			}
		}
	}
}

func clockError(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, service.ErrNotSessionOwner):
		return "session belongs to another user"
	default:
		return "clock unavailable"
	}
}

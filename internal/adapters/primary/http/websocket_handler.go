package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	mw "github.com/lorrc/pipeline-snapshots/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/lorrc/pipeline-snapshots/internal/adapters/primary/websocket"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
)

// WebSocketHandler handles WebSocket connection upgrades. It runs behind
// the JWT middleware, which accepts the token as a query parameter on
// upgrade requests.
type WebSocketHandler struct {
	hub          *wsAdapter.Hub
	upgrader     websocket.Upgrader
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// WebSocketConfig holds configuration for the WebSocket handler
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	IsDevelopment   bool
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	cfg WebSocketConfig,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:          hub,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg WebSocketConfig) func(r *http.Request) bool {
	allowedOrigins := cfg.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		if originAllowed(parsedOrigin.Host, allowedOrigins) {
			return true
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// originAllowed matches a host against allowed hosts, supporting wildcard
// subdomains like "*.example.com".
func originAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if strings.HasPrefix(a, "*.") {
			if strings.HasSuffix(host, a[1:]) || host == a[2:] {
				return true
			}
		} else if host == a {
			return true
		}
	}
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	// 1. Upgrade the connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection", "error", err)
		return
	}

	// 2. Register the client and start its pumps
	client := wsAdapter.NewClient(h.hub, conn, claims.UserID, claims.SectorID, h.logger)
	client.Start()

	h.logger.InfoContext(r.Context(), "websocket connection established",
		"client_id", client.ID,
		"remote_addr", r.RemoteAddr,
	)
}

package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler serves the status stream.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleStatusConnection upgrades GET /ws/status. An optional client_id
// query parameter tags the connection in logs.
func (h *WebSocketHandler) HandleStatusConnection(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "anonymous"
	}

	// The upgrader has already written an error response on failure.
	if err := h.connectionManager.UpgradeConnection(w, r, clientID); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("status stream rejected")
	}
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/status", h.HandleStatusConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

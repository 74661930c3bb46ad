// ABOUTME: Liveness and tool discovery endpoints
// ABOUTME: GET /health and GET /tools, both outside bearer auth

package gateway

import (
	"net/http"
	"time"

	"github.com/2389/maps-gateway/internal/mcp"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Sessions  int    `json:"sessions"`
}

// handleHealth returns 200 OK while the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Sessions:  g.sessions.Len(),
	})
}

// handleTools returns the tool catalog in the tools/list shape.
func (g *Gateway) handleTools(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, mcp.ListToolsResult{Tools: g.dispatcher.Tools()})
}

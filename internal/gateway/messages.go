// ABOUTME: Message endpoints of the HTTP binding
// ABOUTME: POST/DELETE /mcp and the legacy POST /messages with implicit session resolution

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/2389/maps-gateway/internal/mcp"
	"github.com/2389/maps-gateway/internal/session"
)

// handleMCPPost handles POST /mcp. With a session header the session must be
// live; the response is always written to the POST body.
func (g *Gateway) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	if id := sessionIDFromHeaders(r); id != "" {
		if _, ok := g.sessions.Get(id); !ok {
			g.sendJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		w.Header().Set(HeaderSessionID, id)
	}

	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	req, err := mcp.ParseRequest(body)
	if err != nil {
		g.sendJSONRPC(w, http.StatusBadRequest, g.dispatcher.Reject(req, err))
		return
	}

	resp := g.dispatcher.HandleRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	g.sendJSONRPC(w, http.StatusOK, resp)
}

// handleMCPDelete handles DELETE /mcp, closing the named session.
func (g *Gateway) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromHeaders(r)
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "missing "+HeaderSessionID+" header")
		return
	}

	if !g.sessions.Remove(id) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	g.logger.Info("session deleted", "session_id", id)
	g.sendJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "closed"})
}

// handleLegacyMessage handles POST /messages. The response travels over the
// session's stream; the POST itself is only acknowledged.
func (g *Gateway) handleLegacyMessage(w http.ResponseWriter, r *http.Request) {
	sess, status, msg := g.resolveLegacySession(r)
	if sess == nil {
		g.sendJSONError(w, status, msg)
		return
	}

	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	req, err := mcp.ParseRequest(body)
	if err != nil {
		g.sendJSONRPC(w, http.StatusBadRequest, g.dispatcher.Reject(req, err))
		return
	}

	if resp := g.dispatcher.HandleRequest(r.Context(), req); resp != nil {
		if err := sess.Send(r.Context(), resp); err != nil {
			if errors.Is(err, session.ErrChannelClosed) {
				g.logger.Info("dropped response for closed session", "session_id", sess.ID(), "method", req.Method)
				g.sendJSONError(w, http.StatusNotFound, "session not found")
				return
			}
			g.logger.Error("failed to deliver response", "session_id", sess.ID(), "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	w.Header().Set(HeaderSessionID, sess.ID())
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
}

// resolveLegacySession finds the target of a legacy post: an explicit id from
// either header spelling or the sessionId query parameter, otherwise the
// store's implicit choice.
func (g *Gateway) resolveLegacySession(r *http.Request) (*session.Session, int, string) {
	id := sessionIDFromHeaders(r)
	if id == "" {
		id = r.URL.Query().Get("sessionId")
	}

	if id != "" {
		sess, ok := g.sessions.Get(id)
		if !ok {
			return nil, http.StatusNotFound, "session not found"
		}
		return sess, 0, ""
	}

	sess, ok := g.sessions.ResolveImplicit()
	if !ok {
		return nil, http.StatusNotFound, "no active session found"
	}
	return sess, 0, ""
}

// readBody reads at most mcp.MaxRequestBodySize bytes, answering 413 or 400
// itself on failure.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, mcp.MaxRequestBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			g.sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		g.sendJSONError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (g *Gateway) sendJSONRPC(w http.ResponseWriter, status int, resp *mcp.Response) {
	g.sendJSON(w, status, resp)
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

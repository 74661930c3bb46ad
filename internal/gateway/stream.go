// ABOUTME: Server-sent event streams that carry one session each
// ABOUTME: Handles GET /mcp and the legacy GET /sse with keep-alive comments

package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/maps-gateway/internal/session"
)

// legacyMessagesPath is announced to legacy clients in the endpoint event.
const legacyMessagesPath = "/messages"

type streamKind int

const (
	streamUnified streamKind = iota
	streamLegacy
)

func (k streamKind) String() string {
	if k == streamLegacy {
		return "legacy"
	}
	return "unified"
}

// handleStreamOpen handles GET /mcp. Only event-stream clients may open a
// stream here; everything else is told to POST.
func (g *Gateway) handleStreamOpen(w http.ResponseWriter, r *http.Request) {
	if !acceptsEventStream(r) {
		w.Header().Set("Allow", "POST, DELETE")
		g.sendJSONError(w, http.StatusMethodNotAllowed, "GET /mcp requires Accept: text/event-stream")
		return
	}
	g.serveStream(w, r, streamUnified)
}

// handleLegacyStream handles GET /sse.
func (g *Gateway) handleLegacyStream(w http.ResponseWriter, r *http.Request) {
	g.serveStream(w, r, streamLegacy)
}

// serveStream creates a session for this connection and relays its queued
// messages until the client disconnects or the session is closed.
func (g *Gateway) serveStream(w http.ResponseWriter, r *http.Request, kind streamKind) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	queue := session.NewQueue(g.config.Server.SessionQueueSize)
	sess, err := g.sessions.Create(uuid.NewString(), queue)
	if err != nil {
		g.logger.Error("failed to create session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer sess.Close()

	// Checked after Create: either this sees the flag or CloseAll sees the session.
	if g.shuttingDown.Load() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	logger := g.logger.With("session_id", sess.ID(), "stream", kind.String())
	logger.Info("stream opened", "remote_addr", r.RemoteAddr, "active_sessions", g.sessions.Len())

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(HeaderSessionID, sess.ID())
	w.WriteHeader(http.StatusOK)

	if kind == streamLegacy {
		endpoint := legacyMessagesPath + "?sessionId=" + sess.ID()
		if err := writeSSEEvent(w, "endpoint", []byte(endpoint)); err != nil {
			logger.Debug("failed to write endpoint event", "error", err)
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(g.config.Server.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("stream closed by client")
			return

		case <-sess.Done():
			logger.Info("stream closed by server")
			return

		case msg := <-queue.Messages():
			if err := writeSSEEvent(w, "message", msg); err != nil {
				logger.Debug("failed to write event", "error", err)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event. Multi-line data is split across data fields.
func writeSSEEvent(w http.ResponseWriter, event string, data []byte) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := w.Write([]byte(b.String()))
	return err
}

// acceptsEventStream reports whether the Accept header admits text/event-stream.
func acceptsEventStream(r *http.Request) bool {
	for _, value := range r.Header.Values("Accept") {
		for _, part := range strings.Split(value, ",") {
			mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
			if strings.EqualFold(mediaType, "text/event-stream") {
				return true
			}
		}
	}
	return false
}

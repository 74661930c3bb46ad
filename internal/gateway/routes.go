// ABOUTME: HTTP route table and cross-origin handling for the gateway
// ABOUTME: chi router with go-chi/cors, a permissive fallback and optional bearer auth

package gateway

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/2389/maps-gateway/internal/auth"
)

// Session header spellings. The legacy spelling is accepted everywhere the
// current one is.
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderLegacySessionID = "X-Session-Id"
	HeaderProtocolVersion = "Mcp-Protocol-Version"
)

var (
	allowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodDelete}
	allowedHeaders = []string{"Content-Type", "Accept", "Authorization", "Last-Event-ID", HeaderSessionID, HeaderLegacySessionID, HeaderProtocolVersion}
	exposedHeaders = []string{HeaderSessionID, HeaderLegacySessionID}
)

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     allowedMethods,
		AllowedHeaders:     []string{"*"},
		ExposedHeaders:     exposedHeaders,
		AllowCredentials:   false,
		MaxAge:             300,
		OptionsPassthrough: true,
	}))
	r.Use(permissiveCORS)

	r.Get("/health", g.handleHealth)
	r.Get("/tools", g.handleTools)

	r.Group(func(r chi.Router) {
		if g.verifier != nil {
			r.Use(auth.Middleware(g.verifier, g.logger))
		}

		r.Get("/mcp", g.handleStreamOpen)
		r.Post("/mcp", g.handleMCPPost)
		r.Delete("/mcp", g.handleMCPDelete)

		r.Get("/sse", g.handleLegacyStream)
		r.Post("/messages", g.handleLegacyMessage)
	})

	return r
}

// permissiveCORS puts the allow headers on every response, cross-origin or
// not, and answers every OPTIONS request with 200 and an empty body. A
// preflight gets back whatever headers it asked for.
func permissiveCORS(next http.Handler) http.Handler {
	methods := strings.Join(allowedMethods, ", ")
	headers := strings.Join(allowedHeaders, ", ")
	exposed := strings.Join(exposedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Expose-Headers", exposed)
		if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
		} else {
			h.Set("Access-Control-Allow-Headers", headers)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionIDFromHeaders returns the session id from either header spelling.
func sessionIDFromHeaders(r *http.Request) string {
	if id := r.Header.Get(HeaderSessionID); id != "" {
		return id
	}
	return r.Header.Get(HeaderLegacySessionID)
}

// Package auth provides optional bearer-token authentication for maps-gateway.
//
// # JWT Tokens
//
// Clients authenticate with HS256 JWTs signed with auth.jwt_secret. Tokens
// carry the issuer "maps-gateway", a subject and an expiry; all three are
// required on verification. The "maps-gateway token" command mints tokens.
//
// # HTTP Middleware
//
// Middleware guards the MCP routes (/mcp, /sse, /messages) when a secret is
// configured:
//
//	r.Use(auth.Middleware(verifier, logger))
//
// Failures answer 401 with a JSON body {"error": "..."} and are logged with a
// reason of token_extraction_failed or token_verification_failed. Health and
// tool discovery stay open.
//
// # Context
//
// The verified subject is available to handlers:
//
//	subject := auth.SubjectFromContext(r.Context())
package auth

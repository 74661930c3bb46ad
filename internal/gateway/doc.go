// Package gateway serves the MCP protocol over HTTP for maps-gateway.
//
// # Overview
//
// The Gateway owns the session store and the HTTP server. Requests are
// handled by a stateless Dispatcher; the gateway decides only where each
// response goes: into the POST body, or onto the stream of a session.
//
// # Routes
//
//	GET    /mcp       open an event stream (requires Accept: text/event-stream)
//	POST   /mcp       send a request; answered in the response body
//	DELETE /mcp       close the session named by the session header
//	GET    /sse       legacy event stream, announces /messages?sessionId=<id>
//	POST   /messages  legacy request; answered on the session's stream
//	GET    /tools     tool catalog
//	GET    /health    liveness
//	OPTIONS *         200 with an empty body
//
// The session header is Mcp-Session-Id; X-Session-Id is accepted as a legacy
// spelling. A legacy POST with no session id goes to the most recently opened
// session, which misroutes messages when several legacy clients are connected
// at once.
//
// # Sessions and Streams
//
// Each stream request creates one session whose channel is a buffered queue.
// The stream handler is the only writer to its connection: it drains the
// queue, emits keep-alive comments every server.keepalive_interval and closes
// the session when the client disconnects. DELETE and shutdown close the
// session from the other side, which ends the stream.
//
// # Authentication
//
// When auth.jwt_secret is set, the MCP routes require a bearer token (see
// package auth). /health and /tools stay open.
//
// # Tailscale
//
// With tailscale.enabled the gateway joins the tailnet through tsnet and
// serves plain HTTP on port 80 of the node instead of server.host:port.
package gateway

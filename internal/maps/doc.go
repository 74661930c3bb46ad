// ABOUTME: Package documentation for the Yandex Maps collaborator.
// ABOUTME: Describes the client, its cache and the tool executor adapter.

// Package maps implements the map tools on top of the Yandex Geocoder and
// Static Maps HTTP APIs.
//
// Client performs the upstream calls. Responses are cached in a bounded
// ccache keyed by the request URL without the api key, and every uncached
// call waits on a token-bucket limiter that honours the caller's context.
//
// Executor adapts a Client to the tool executor contract of the dispatcher:
// it decodes tool arguments, runs the call and renders the outcome as a tool
// result. It never returns a Go error; validation failures, empty results and
// upstream errors all become results with isError set.
package maps

// Package mcp implements the protocol side of the Model Context Protocol gateway:
// the JSON-RPC 2.0 envelope and the stateless request dispatcher.
//
// # Envelope
//
// Requests are decoded with ParseRequest, which distinguishes two failure kinds:
//
//   - *ParseError: the bytes are not a JSON object (answered with -32603)
//   - *ValidationError: the object is not a valid request (answered with -32600)
//
// Responses are built with NewResult or NewError. The Response type has no
// exported result or error fields, so a response with both or neither cannot be
// constructed or decoded.
//
// # Methods
//
//   - initialize: fixed capability descriptor, protocol version negotiation
//   - ping: empty result
//   - tools/list: the tool catalog
//   - tools/call: runs maps_geocode, maps_reverse_geocode or maps_render
//
// Anything else is answered with -32601 and the method name in error.data.
//
// # Tool Errors
//
// Tool failures never become protocol errors. An unknown tool name, bad params,
// an upstream failure or a panic in the executor all produce a successful
// response whose result has isError set:
//
//	{
//	  "jsonrpc": "2.0",
//	  "id": 7,
//	  "result": {
//	    "content": [{"type": "text", "text": "Unknown tool: maps_teleport"}],
//	    "isError": true
//	  }
//	}
//
// This lets the calling agent read the failure as ordinary text.
//
// # Usage
//
//	dispatcher, err := mcp.NewDispatcher(mcp.DispatcherConfig{
//	    Registry: tools.NewCatalog(),
//	    Executor: mapsClient.Tools(),
//	    Logger:   logger,
//	})
//	resp := dispatcher.Handle(ctx, line) // nil for notifications
package mcp

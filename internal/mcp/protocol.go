// ABOUTME: JSON-RPC 2.0 envelope types for the Model Context Protocol.
// ABOUTME: Responses are a sealed variant: exactly one of result or error.

package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONRPCVersion is the only protocol version tag accepted on requests.
const JSONRPCVersion = "2.0"

// MaxRequestBodySize is the maximum allowed size for one protocol message (1MB).
const MaxRequestBodySize = 1 << 20

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no correlation id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// outcome is implemented by exactly two types: success and *Error.
type outcome interface {
	isOutcome()
}

type success struct {
	value any
}

func (success) isOutcome() {}
func (*Error) isOutcome()  {}

// Response is a JSON-RPC 2.0 response. It can only be built through NewResult
// or NewError, so it always carries exactly one of a result or an error.
type Response struct {
	ID      json.RawMessage
	outcome outcome
}

// NewResult builds a success response. A nil result is encoded as {}.
func NewResult(id json.RawMessage, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{ID: id, outcome: success{value: result}}
}

// NewError builds an error response.
func NewError(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{ID: id, outcome: &Error{Code: code, Message: message, Data: data}}
}

// Result returns the success payload and true, or nil and false for error responses.
func (r *Response) Result() (any, bool) {
	s, ok := r.outcome.(success)
	if !ok {
		return nil, false
	}
	return s.value, true
}

// Err returns the error object, or nil for success responses.
func (r *Response) Err() *Error {
	e, _ := r.outcome.(*Error)
	return e
}

// DecodeResult unmarshals the success payload into v.
func (r *Response) DecodeResult(v any) error {
	value, ok := r.Result()
	if !ok {
		return fmt.Errorf("response is an error: %w", r.Err())
	}
	raw, ok := value.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(value); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	}
	return json.Unmarshal(raw, v)
}

// wireResponse is the on-the-wire shape of Response.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// MarshalJSON encodes the response with exactly one of result or error.
func (r *Response) MarshalJSON() ([]byte, error) {
	wire := wireResponse{JSONRPC: JSONRPCVersion, ID: r.ID}
	if len(wire.ID) == 0 {
		wire.ID = json.RawMessage("null")
	}

	switch o := r.outcome.(type) {
	case success:
		raw, err := json.Marshal(o.value)
		if err != nil {
			return nil, fmt.Errorf("encoding result: %w", err)
		}
		wire.Result = raw
	case *Error:
		wire.Error = o
	default:
		return nil, errors.New("response has neither result nor error")
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a response and rejects envelopes carrying both or
// neither of result and error.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	hasResult := len(wire.Result) > 0
	hasError := wire.Error != nil
	if hasResult == hasError {
		return errors.New("response must carry exactly one of result or error")
	}

	r.ID = wire.ID
	if hasError {
		r.outcome = wire.Error
	} else {
		r.outcome = success{value: wire.Result}
	}
	return nil
}

// ParseError reports a message that could not be decoded at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports a decodable message with an invalid envelope.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// ParseRequest decodes one protocol message. It returns a *ParseError when the
// bytes are not a JSON object, and a *ValidationError together with the partially
// decoded request when the envelope is malformed.
func ParseRequest(data []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Err: errors.New("empty message")}
	}
	if trimmed[0] == '[' {
		return nil, &ValidationError{Field: "message", Reason: "batches are not supported"}
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, &ParseError{Err: err}
	}

	if !validID(req.ID) {
		return &Request{JSONRPC: req.JSONRPC, Method: req.Method},
			&ValidationError{Field: "id", Reason: "must be a string, number or null"}
	}
	if req.JSONRPC != JSONRPCVersion {
		return &req, &ValidationError{Field: "jsonrpc", Reason: `must be "2.0"`}
	}
	if req.Method == "" {
		return &req, &ValidationError{Field: "method", Reason: "is required"}
	}
	return &req, nil
}

func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch c := id[0]; {
	case c == '"', c == 'n', c == '-', c >= '0' && c <= '9':
		return true
	default:
		return false
	}
}

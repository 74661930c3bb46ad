// ABOUTME: In-band tool result shape shared by the dispatcher and tool implementations.
// ABOUTME: Domain failures are successful envelopes with isError set.

package tools

import "encoding/base64"

// Content is one item of a tool result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Result is the payload of a tools/call response.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// TextResult wraps text as a successful result.
func TextResult(text string) Result {
	return Result{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult wraps a human readable failure as an in-band error result.
func ErrorResult(message string) Result {
	return Result{
		Content: []Content{{Type: "text", Text: message}},
		IsError: true,
	}
}

// ImageResult wraps raw image bytes, base64-encoded, with an optional caption.
func ImageResult(data []byte, mimeType, caption string) Result {
	res := Result{
		Content: []Content{{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(data),
			MimeType: mimeType,
		}},
	}
	if caption != "" {
		res.Content = append(res.Content, Content{Type: "text", Text: caption})
	}
	return res
}

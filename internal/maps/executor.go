// ABOUTME: Adapts the maps Client to the dispatcher's tool executor contract.
// ABOUTME: Decodes tool arguments and turns every failure into an in-band error result.

package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/2389/maps-gateway/internal/tools"
)

// Executor runs the map tools against a Client.
type Executor struct {
	client *Client
	logger *slog.Logger
}

// NewExecutor wraps client. Pass nil logger for default.
func NewExecutor(client *Client, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		client: client,
		logger: logger.With("component", "maps-tools"),
	}
}

// Geocode runs maps_geocode.
func (e *Executor) Geocode(ctx context.Context, args json.RawMessage) tools.Result {
	var req GeocodeRequest
	if err := decodeArgs(args, &req); err != nil {
		return tools.ErrorResult("Invalid arguments: " + err.Error())
	}

	result, err := e.client.Geocode(ctx, req)
	if err != nil {
		return e.failure(tools.NameGeocode, fmt.Sprintf("for address %q", req.Query()), err)
	}
	return jsonResult(result)
}

// ReverseGeocode runs maps_reverse_geocode.
func (e *Executor) ReverseGeocode(ctx context.Context, args json.RawMessage) tools.Result {
	var req ReverseGeocodeRequest
	if err := decodeArgs(args, &req); err != nil {
		return tools.ErrorResult("Invalid arguments: " + err.Error())
	}

	result, err := e.client.ReverseGeocode(ctx, req)
	if err != nil {
		where := ""
		if req.Latitude != nil && req.Longitude != nil {
			where = fmt.Sprintf("at %s, %s", formatCoord(*req.Latitude), formatCoord(*req.Longitude))
		}
		return e.failure(tools.NameReverseGeocode, where, err)
	}
	return jsonResult(result)
}

// Render runs maps_render.
func (e *Executor) Render(ctx context.Context, args json.RawMessage) tools.Result {
	var req RenderRequest
	if err := decodeArgs(args, &req); err != nil {
		return tools.ErrorResult("Invalid arguments: " + err.Error())
	}

	img, err := e.client.RenderMap(ctx, req)
	if err != nil {
		return e.failure(tools.NameRender, "", err)
	}

	caption := fmt.Sprintf("Map centered at %s, %s spanning %s x %s degrees",
		formatCoord(*req.Latitude), formatCoord(*req.Longitude),
		formatCoord(*req.LatitudeSpan), formatCoord(*req.LongitudeSpan))
	if n := len(req.Placemarks); n > 0 {
		caption += fmt.Sprintf(" with %d placemark(s)", n)
	}
	return tools.ImageResult(img.Data, img.MimeType, caption)
}

func (e *Executor) failure(tool, where string, err error) tools.Result {
	var validationErr *ValidationError
	var upstreamErr *UpstreamError

	switch {
	case errors.As(err, &validationErr):
		return tools.ErrorResult("Invalid arguments: " + validationErr.Error())
	case errors.Is(err, ErrNoResults):
		msg := "No results found"
		if where != "" {
			msg += " " + where
		}
		return tools.ErrorResult(msg)
	case errors.As(err, &upstreamErr):
		e.logger.Warn("upstream error", "tool", tool, "status", upstreamErr.StatusCode)
		return tools.ErrorResult(upstreamErr.Error())
	default:
		e.logger.Warn("tool call failed", "tool", tool, "error", err)
		return tools.ErrorResult("Request failed: " + err.Error())
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return json.Unmarshal(args, v)
}

func jsonResult(v any) tools.Result {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return tools.ErrorResult("encoding result: " + err.Error())
	}
	return tools.TextResult(string(data))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ABOUTME: Static map rendering against the Yandex Static API.
// ABOUTME: Returns the PNG bytes for a center, span and optional placemarks.

package maps

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// placemarkStyle is the Yandex marker style used for every placemark.
const placemarkStyle = "pm2rdm"

// maxPlacemarks is the Static API limit on points per map.
const maxPlacemarks = 100

// RenderRequest describes the map area to draw.
type RenderRequest struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	LatitudeSpan  *float64 `json:"latitude_span"`
	LongitudeSpan *float64 `json:"longitude_span"`
	Lang          string   `json:"lang"`
	Placemarks    []Point  `json:"placemarks,omitempty"`
}

// Image is a rendered map.
type Image struct {
	Data     []byte
	MimeType string
}

func (r RenderRequest) validate() error {
	if err := checkLatitude("latitude", r.Latitude); err != nil {
		return err
	}
	if err := checkLongitude("longitude", r.Longitude); err != nil {
		return err
	}
	if err := checkSpan("latitude_span", r.LatitudeSpan, 180); err != nil {
		return err
	}
	if err := checkSpan("longitude_span", r.LongitudeSpan, 360); err != nil {
		return err
	}
	if strings.TrimSpace(r.Lang) == "" {
		return &ValidationError{Field: "lang", Reason: "is required"}
	}
	if len(r.Placemarks) > maxPlacemarks {
		return &ValidationError{Field: "placemarks", Reason: fmt.Sprintf("must not exceed %d points", maxPlacemarks)}
	}
	for i, p := range r.Placemarks {
		lat, lon := p.Latitude, p.Longitude
		if err := checkLatitude(fmt.Sprintf("placemarks[%d].latitude", i), &lat); err != nil {
			return err
		}
		if err := checkLongitude(fmt.Sprintf("placemarks[%d].longitude", i), &lon); err != nil {
			return err
		}
	}
	return nil
}

func checkSpan(field string, v *float64, limit float64) error {
	if v == nil {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	if *v <= 0 || *v > limit {
		return &ValidationError{Field: field, Reason: "must be greater than 0 and at most " + strconv.FormatFloat(limit, 'f', -1, 64)}
	}
	return nil
}

// RenderMap fetches a static map image.
func (c *Client) RenderMap(ctx context.Context, req RenderRequest) (*Image, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("ll", formatLonLat(*req.Longitude, *req.Latitude))
	params.Set("spn", formatLonLat(*req.LongitudeSpan, *req.LatitudeSpan))
	params.Set("lang", req.Lang)
	if len(req.Placemarks) > 0 {
		marks := make([]string, len(req.Placemarks))
		for i, p := range req.Placemarks {
			marks[i] = formatLonLat(p.Longitude, p.Latitude) + "," + placemarkStyle
		}
		params.Set("pt", strings.Join(marks, "~"))
	}

	resp, err := c.get(ctx, "Static", c.staticURL, params, c.staticAPIKey)
	if err != nil {
		return nil, err
	}

	mime := resp.contentType
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: static api returned %q instead of an image", ErrUpstream, resp.contentType)
	}

	return &Image{Data: resp.body, MimeType: mime}, nil
}

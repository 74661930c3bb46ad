// ABOUTME: Forward and reverse geocoding against the Yandex Geocoder API.
// ABOUTME: Extracts the first GeoObject of the response with gjson.

package maps

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// GeocodeRequest is a structured address. Country and Lang are required.
type GeocodeRequest struct {
	Country     string `json:"country"`
	State       string `json:"state,omitempty"`
	City        string `json:"city,omitempty"`
	District    string `json:"district,omitempty"`
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	Lang        string `json:"lang"`
}

// ReverseGeocodeRequest is a coordinate pair to resolve to an address.
type ReverseGeocodeRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lang      string   `json:"lang"`
}

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AddressComponent is one level of a resolved address, e.g. country or street.
type AddressComponent struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// GeocodeResult is the first match returned by the geocoder.
type GeocodeResult struct {
	Location          Point              `json:"location"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []AddressComponent `json:"address_components"`
}

// Query joins the non-empty address parts, most specific first.
func (r GeocodeRequest) Query() string {
	street := strings.TrimSpace(strings.TrimSpace(r.Street) + " " + strings.TrimSpace(r.HouseNumber))
	var parts []string
	for _, p := range []string{street, r.District, r.City, r.State, r.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (r GeocodeRequest) validate() error {
	if strings.TrimSpace(r.Country) == "" {
		return &ValidationError{Field: "country", Reason: "is required"}
	}
	if strings.TrimSpace(r.Lang) == "" {
		return &ValidationError{Field: "lang", Reason: "is required"}
	}
	return nil
}

func (r ReverseGeocodeRequest) validate() error {
	if err := checkLatitude("latitude", r.Latitude); err != nil {
		return err
	}
	if err := checkLongitude("longitude", r.Longitude); err != nil {
		return err
	}
	if strings.TrimSpace(r.Lang) == "" {
		return &ValidationError{Field: "lang", Reason: "is required"}
	}
	return nil
}

// Geocode resolves a structured address to coordinates.
func (c *Client) Geocode(ctx context.Context, req GeocodeRequest) (*GeocodeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("geocode", req.Query())
	params.Set("lang", req.Lang)
	params.Set("format", "json")
	params.Set("results", "1")

	return c.geocode(ctx, params)
}

// ReverseGeocode resolves coordinates to the nearest address.
func (c *Client) ReverseGeocode(ctx context.Context, req ReverseGeocodeRequest) (*GeocodeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("geocode", formatLonLat(*req.Longitude, *req.Latitude))
	params.Set("sco", "longlat")
	params.Set("lang", req.Lang)
	params.Set("format", "json")
	params.Set("results", "1")

	return c.geocode(ctx, params)
}

func (c *Client) geocode(ctx context.Context, params url.Values) (*GeocodeResult, error) {
	resp, err := c.get(ctx, "Geocoder", c.geocoderURL, params, c.apiKey)
	if err != nil {
		return nil, err
	}
	return parseGeocodeResponse(resp.body)
}

func parseGeocodeResponse(body []byte) (*GeocodeResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: geocoder response is not valid JSON", ErrUpstream)
	}

	obj := gjson.GetBytes(body, "response.GeoObjectCollection.featureMember.0.GeoObject")
	if !obj.Exists() {
		return nil, ErrNoResults
	}

	pos := strings.Fields(obj.Get("Point.pos").String())
	if len(pos) != 2 {
		return nil, fmt.Errorf("%w: geocoder result has no position", ErrUpstream)
	}
	lon, err := strconv.ParseFloat(pos[0], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad longitude %q", ErrUpstream, pos[0])
	}
	lat, err := strconv.ParseFloat(pos[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad latitude %q", ErrUpstream, pos[1])
	}

	meta := obj.Get("metaDataProperty.GeocoderMetaData")
	formatted := meta.Get("Address.formatted").String()
	if formatted == "" {
		formatted = meta.Get("text").String()
	}

	components := []AddressComponent{}
	meta.Get("Address.Components").ForEach(func(_, v gjson.Result) bool {
		components = append(components, AddressComponent{
			Kind: v.Get("kind").String(),
			Name: v.Get("name").String(),
		})
		return true
	})

	return &GeocodeResult{
		Location:          Point{Latitude: lat, Longitude: lon},
		FormattedAddress:  formatted,
		AddressComponents: components,
	}, nil
}

func checkLatitude(field string, v *float64) error {
	if v == nil {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	if *v < -90 || *v > 90 {
		return &ValidationError{Field: field, Reason: "must be between -90 and 90"}
	}
	return nil
}

func checkLongitude(field string, v *float64) error {
	if v == nil {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	if *v < -180 || *v > 180 {
		return &ValidationError{Field: field, Reason: "must be between -180 and 180"}
	}
	return nil
}

// formatLonLat renders a coordinate pair in the longitude-first order Yandex expects.
func formatLonLat(lon, lat float64) string {
	return strconv.FormatFloat(lon, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
}

// ABOUTME: The fixed Yandex Maps tool catalog: geocode, reverse geocode, render.
// ABOUTME: Schemas mirror the argument structs decoded by internal/maps.

package tools

import "encoding/json"

// Tool names exposed by the gateway.
const (
	NameGeocode        = "maps_geocode"
	NameReverseGeocode = "maps_reverse_geocode"
	NameRender         = "maps_render"
)

var geocodeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"country": {"type": "string", "description": "Country name, e.g. Germany"},
		"state": {"type": "string", "description": "State, region or province"},
		"city": {"type": "string", "description": "City or settlement"},
		"district": {"type": "string", "description": "District within the city"},
		"street": {"type": "string", "description": "Street name"},
		"house_number": {"type": "string", "description": "House number"},
		"lang": {"type": "string", "description": "Response language, e.g. en_US or ru_RU"}
	},
	"required": ["country", "lang"]
}`)

var reverseGeocodeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"latitude": {"type": "number", "minimum": -90, "maximum": 90},
		"longitude": {"type": "number", "minimum": -180, "maximum": 180},
		"lang": {"type": "string", "description": "Response language, e.g. en_US or ru_RU"}
	},
	"required": ["latitude", "longitude", "lang"]
}`)

var renderSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"latitude": {"type": "number", "description": "Latitude of the map center"},
		"longitude": {"type": "number", "description": "Longitude of the map center"},
		"latitude_span": {"type": "number", "description": "Vertical extent of the map in degrees"},
		"longitude_span": {"type": "number", "description": "Horizontal extent of the map in degrees"},
		"lang": {"type": "string", "description": "Map label language, e.g. en_US or ru_RU"},
		"placemarks": {
			"type": "array",
			"description": "Points to mark on the map",
			"items": {
				"type": "object",
				"properties": {
					"latitude": {"type": "number"},
					"longitude": {"type": "number"}
				},
				"required": ["latitude", "longitude"]
			}
		}
	},
	"required": ["latitude", "longitude", "latitude_span", "longitude_span", "lang"]
}`)

// Descriptors returns the catalog entries in their canonical order.
func Descriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        NameGeocode,
			Description: "Convert a structured address into geographic coordinates and a normalized address using the Yandex Geocoder.",
			InputSchema: geocodeSchema,
		},
		{
			Name:        NameReverseGeocode,
			Description: "Convert geographic coordinates into the nearest address using the Yandex Geocoder.",
			InputSchema: reverseGeocodeSchema,
		},
		{
			Name:        NameRender,
			Description: "Render a static map image for an area, optionally with placemarks, using the Yandex Static API.",
			InputSchema: renderSchema,
		},
	}
}

// NewCatalog returns the registry of all map tools.
func NewCatalog() *Registry {
	r, err := NewRegistry(Descriptors()...)
	if err != nil {
		// Descriptors is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// ABOUTME: Tests for the Yandex Maps client against an httptest upstream.
// ABOUTME: Covers request building, parsing, caching, rate limiting and upstream errors.

package maps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const moscowResponse = `{
  "response": {
    "GeoObjectCollection": {
      "metaDataProperty": {"GeocoderResponseMetaData": {"found": "1"}},
      "featureMember": [{
        "GeoObject": {
          "metaDataProperty": {
            "GeocoderMetaData": {
              "kind": "house",
              "text": "Russia, Moscow, Tverskaya Street, 7",
              "Address": {
                "formatted": "Russia, Moscow, Tverskaya Street, 7",
                "Components": [
                  {"kind": "country", "name": "Russia"},
                  {"kind": "locality", "name": "Moscow"},
                  {"kind": "street", "name": "Tverskaya Street"},
                  {"kind": "house", "name": "7"}
                ]
              }
            }
          },
          "Point": {"pos": "37.611347 55.757718"}
        }
      }]
    }
  }
}`

const emptyResponse = `{"response":{"GeoObjectCollection":{"metaDataProperty":{"GeocoderResponseMetaData":{"found":"0"}},"featureMember":[]}}}`

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// upstream is a fake Yandex API that records the queries it saw.
type upstream struct {
	*httptest.Server
	hits atomic.Int32

	mu      sync.Mutex
	queries []url.Values
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.mu.Lock()
		u.queries = append(u.queries, r.URL.Query())
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) lastQuery(t *testing.T) url.Values {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.queries, "upstream was never called")
	return u.queries[len(u.queries)-1]
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func pngHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(pngBytes)
}

func newTestClient(t *testing.T, geocoderURL, staticURL string, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		APIKey:      "geo-key",
		GeocoderURL: geocoderURL,
		StaticURL:   staticURL,
		Timeout:     2 * time.Second,
		CacheTTL:    time.Minute,
		CacheSize:   100,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func ptr(v float64) *float64 { return &v }

func TestNewClientRejectsBadURLs(t *testing.T) {
	_, err := NewClient(Config{GeocoderURL: "not a url", StaticURL: "https://static.example"})
	assert.Error(t, err)

	_, err = NewClient(Config{GeocoderURL: "https://geo.example", StaticURL: ""})
	assert.Error(t, err)
}

func TestGeocode(t *testing.T) {
	geo := newUpstream(t, jsonHandler(moscowResponse))
	client := newTestClient(t, geo.URL+"/1.x/", "https://static.invalid")

	result, err := client.Geocode(context.Background(), GeocodeRequest{
		Country:     "Russia",
		City:        "Moscow",
		Street:      "Tverskaya Street",
		HouseNumber: "7",
		Lang:        "en_US",
	})
	require.NoError(t, err)

	q := geo.lastQuery(t)
	assert.Equal(t, "geo-key", q.Get("apikey"))
	assert.Equal(t, "Tverskaya Street 7, Moscow, Russia", q.Get("geocode"))
	assert.Equal(t, "en_US", q.Get("lang"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("results"))

	assert.InDelta(t, 55.757718, result.Location.Latitude, 1e-9)
	assert.InDelta(t, 37.611347, result.Location.Longitude, 1e-9)
	assert.Equal(t, "Russia, Moscow, Tverskaya Street, 7", result.FormattedAddress)
	require.Len(t, result.AddressComponents, 4)
	assert.Equal(t, AddressComponent{Kind: "country", Name: "Russia"}, result.AddressComponents[0])
}

func TestGeocodeValidation(t *testing.T) {
	geo := newUpstream(t, jsonHandler(moscowResponse))
	client := newTestClient(t, geo.URL, "https://static.invalid")

	tests := []struct {
		name  string
		req   GeocodeRequest
		field string
	}{
		{"missing country", GeocodeRequest{City: "Moscow", Lang: "en_US"}, "country"},
		{"blank country", GeocodeRequest{Country: "  ", Lang: "en_US"}, "country"},
		{"missing lang", GeocodeRequest{Country: "Russia"}, "lang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Geocode(context.Background(), tt.req)
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
	assert.Equal(t, int32(0), geo.hits.Load(), "invalid requests must not reach upstream")
}

func TestGeocodeQuery(t *testing.T) {
	assert.Equal(t, "Germany", GeocodeRequest{Country: "Germany"}.Query())
	assert.Equal(t, "Mitte, Berlin, Germany", GeocodeRequest{Country: "Germany", City: "Berlin", District: "Mitte"}.Query())
	assert.Equal(t, "12, Bavaria, Germany", GeocodeRequest{Country: "Germany", State: "Bavaria", HouseNumber: "12"}.Query())
}

func TestReverseGeocode(t *testing.T) {
	geo := newUpstream(t, jsonHandler(moscowResponse))
	client := newTestClient(t, geo.URL, "https://static.invalid")

	result, err := client.ReverseGeocode(context.Background(), ReverseGeocodeRequest{
		Latitude:  ptr(55.7558),
		Longitude: ptr(37.6173),
		Lang:      "ru_RU",
	})
	require.NoError(t, err)

	q := geo.lastQuery(t)
	assert.Equal(t, "37.6173,55.7558", q.Get("geocode"))
	assert.Equal(t, "longlat", q.Get("sco"))
	assert.Equal(t, "ru_RU", q.Get("lang"))
	assert.Equal(t, "Russia, Moscow, Tverskaya Street, 7", result.FormattedAddress)
}

func TestReverseGeocodeValidation(t *testing.T) {
	client := newTestClient(t, "https://geo.invalid", "https://static.invalid")

	tests := []struct {
		name  string
		req   ReverseGeocodeRequest
		field string
	}{
		{"missing latitude", ReverseGeocodeRequest{Longitude: ptr(1), Lang: "en_US"}, "latitude"},
		{"latitude too high", ReverseGeocodeRequest{Latitude: ptr(90.5), Longitude: ptr(1), Lang: "en_US"}, "latitude"},
		{"longitude too low", ReverseGeocodeRequest{Latitude: ptr(0), Longitude: ptr(-180.1), Lang: "en_US"}, "longitude"},
		{"missing lang", ReverseGeocodeRequest{Latitude: ptr(0), Longitude: ptr(0)}, "lang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ReverseGeocode(context.Background(), tt.req)
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestGeocodeNoResults(t *testing.T) {
	geo := newUpstream(t, jsonHandler(emptyResponse))
	client := newTestClient(t, geo.URL, "https://static.invalid")

	_, err := client.Geocode(context.Background(), GeocodeRequest{Country: "Atlantis", Lang: "en_US"})
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestGeocodeUpstreamStatus(t *testing.T) {
	geo := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	client := newTestClient(t, geo.URL, "https://static.invalid")

	_, err := client.Geocode(context.Background(), GeocodeRequest{Country: "Russia", Lang: "en_US"})
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, upstreamErr.StatusCode)
	assert.Equal(t, "Yandex Geocoder API error: 403 Forbidden", upstreamErr.Error())
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestGeocodeMalformedBody(t *testing.T) {
	geo := newUpstream(t, jsonHandler(`{"response":`))
	client := newTestClient(t, geo.URL, "https://static.invalid")

	_, err := client.Geocode(context.Background(), GeocodeRequest{Country: "Russia", Lang: "en_US"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestGeocodeCachesByURLWithoutKey(t *testing.T) {
	geo := newUpstream(t, jsonHandler(moscowResponse))
	client := newTestClient(t, geo.URL, "https://static.invalid")

	req := GeocodeRequest{Country: "Russia", City: "Moscow", Lang: "en_US"}
	for i := 0; i < 3; i++ {
		_, err := client.Geocode(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), geo.hits.Load())

	_, err := client.Geocode(context.Background(), GeocodeRequest{Country: "Russia", City: "Kazan", Lang: "en_US"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), geo.hits.Load())

	keyless := url.Values{}
	keyless.Set("geocode", "Moscow, Russia")
	keyless.Set("lang", "en_US")
	keyless.Set("format", "json")
	keyless.Set("results", "1")
	assert.NotNil(t, client.cache.Get(geo.URL+"?"+keyless.Encode()), "cache key must not carry the api key")
	assert.Equal(t, "geo-key", geo.lastQuery(t).Get("apikey"))
}

func TestGeocodeErrorsAreNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	geo := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		jsonHandler(moscowResponse)(w, r)
	})
	client := newTestClient(t, geo.URL, "https://static.invalid")
	req := GeocodeRequest{Country: "Russia", Lang: "en_US"}

	_, err := client.Geocode(context.Background(), req)
	require.Error(t, err)

	fail.Store(false)
	_, err = client.Geocode(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), geo.hits.Load())
}

func TestCacheDisabled(t *testing.T) {
	geo := newUpstream(t, jsonHandler(moscowResponse))
	client := newTestClient(t, geo.URL, "https://static.invalid", func(c *Config) {
		c.CacheSize = 0
	})

	req := GeocodeRequest{Country: "Russia", Lang: "en_US"}
	for i := 0; i < 2; i++ {
		_, err := client.Geocode(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), geo.hits.Load())
}

func TestRateLimiterHonoursContext(t *testing.T) {
	geo := newUpstream(t, jsonHandler(moscowResponse))
	client := newTestClient(t, geo.URL, "https://static.invalid", func(c *Config) {
		c.CacheSize = 0
		c.RateLimit = 0.01 // one token, refilled every 100s
	})
	req := GeocodeRequest{Country: "Russia", Lang: "en_US"}

	_, err := client.Geocode(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Geocode(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, int32(1), geo.hits.Load())
}

func TestRenderMap(t *testing.T) {
	static := newUpstream(t, pngHandler)
	client := newTestClient(t, "https://geo.invalid", static.URL+"/v1", func(c *Config) {
		c.StaticAPIKey = "static-key"
	})

	img, err := client.RenderMap(context.Background(), RenderRequest{
		Latitude:      ptr(55.75),
		Longitude:     ptr(37.62),
		LatitudeSpan:  ptr(0.05),
		LongitudeSpan: ptr(0.1),
		Lang:          "en_US",
		Placemarks: []Point{
			{Latitude: 55.75, Longitude: 37.62},
			{Latitude: 55.76, Longitude: 37.6},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Data)
	assert.Equal(t, "image/png", img.MimeType)

	q := static.lastQuery(t)
	assert.Equal(t, "static-key", q.Get("apikey"))
	assert.Equal(t, "37.62,55.75", q.Get("ll"))
	assert.Equal(t, "0.1,0.05", q.Get("spn"))
	assert.Equal(t, "en_US", q.Get("lang"))
	assert.Equal(t, "37.62,55.75,pm2rdm~37.6,55.76,pm2rdm", q.Get("pt"))
}

func TestRenderMapStaticKeyFallback(t *testing.T) {
	static := newUpstream(t, pngHandler)
	client := newTestClient(t, "https://geo.invalid", static.URL)

	_, err := client.RenderMap(context.Background(), RenderRequest{
		Latitude: ptr(0), Longitude: ptr(0), LatitudeSpan: ptr(1), LongitudeSpan: ptr(1), Lang: "en_US",
	})
	require.NoError(t, err)
	assert.Equal(t, "geo-key", static.lastQuery(t).Get("apikey"))
	assert.Empty(t, static.lastQuery(t).Get("pt"))
}

func TestRenderMapValidation(t *testing.T) {
	client := newTestClient(t, "https://geo.invalid", "https://static.invalid")
	valid := func() RenderRequest {
		return RenderRequest{
			Latitude: ptr(10), Longitude: ptr(20), LatitudeSpan: ptr(1), LongitudeSpan: ptr(1), Lang: "en_US",
		}
	}

	tests := []struct {
		name   string
		mutate func(*RenderRequest)
		field  string
	}{
		{"zero latitude span", func(r *RenderRequest) { r.LatitudeSpan = ptr(0) }, "latitude_span"},
		{"negative longitude span", func(r *RenderRequest) { r.LongitudeSpan = ptr(-1) }, "longitude_span"},
		{"missing span", func(r *RenderRequest) { r.LatitudeSpan = nil }, "latitude_span"},
		{"bad center", func(r *RenderRequest) { r.Latitude = ptr(-91) }, "latitude"},
		{"bad placemark", func(r *RenderRequest) {
			r.Placemarks = []Point{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 200}}
		}, "placemarks[1].longitude"},
		{"missing lang", func(r *RenderRequest) { r.Lang = "" }, "lang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			_, err := client.RenderMap(context.Background(), req)
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestRenderMapRejectsNonImage(t *testing.T) {
	static := newUpstream(t, jsonHandler(`{"error":"bad key"}`))
	client := newTestClient(t, "https://geo.invalid", static.URL)

	_, err := client.RenderMap(context.Background(), RenderRequest{
		Latitude: ptr(0), Longitude: ptr(0), LatitudeSpan: ptr(1), LongitudeSpan: ptr(1), Lang: "en_US",
	})
	assert.ErrorIs(t, err, ErrUpstream)
}

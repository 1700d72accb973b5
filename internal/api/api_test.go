package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"darkstore-coverage/internal/cachestore"
	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/isochrone"
	"darkstore-coverage/internal/refdata"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

// squareAPI 返回以请求点为中心、半边长 0.01° 的正方形
type squareAPI struct{}

func (squareAPI) Isoline(_ context.Context, r geoapify.IsolineRequest) (json.RawMessage, error) {
	d := 0.01
	return json.RawMessage(fmt.Sprintf(
		`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[%[1]f,%[2]f],[%[3]f,%[2]f],[%[3]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[2]f]]]},"properties":{}}]}`,
		r.Lng-d, r.Lat-d, r.Lng+d, r.Lat+d)), nil
}

type fakeGeocoder struct {
	place *geoapify.Place
	err   error
	bias  [2]float64
}

func (g *fakeGeocoder) Geocode(_ context.Context, _ string, lat, lng float64) (*geoapify.Place, error) {
	g.bias = [2]float64{lat, lng}
	return g.place, g.err
}

type fakeLocator map[string][2]float64

func (f fakeLocator) Locate(ip net.IP) (float64, float64, bool) {
	p, ok := f[ip.String()]
	return p[0], p[1], ok
}

var testStores = []darkstore.Store{
	{ID: 1, Name: "Blinkit Koramangala", Lat: 12.9345, Lng: 77.6200, Brand: "blinkit"},
	{ID: 2, Name: "Zepto Koramangala", Lat: 12.9360, Lng: 77.6210, Brand: "zepto"},
	{ID: 3, Name: "Instamart Whitefield", Lat: 12.9698, Lng: 77.7499, Brand: "instamart"},
	{ID: 4, Name: "Blinkit Andheri", Lat: 19.1136, Lng: 72.8697, Brand: "blinkit"},
}

type env struct {
	r   *gin.Engine
	geo *fakeGeocoder
}

func newEnv(t *testing.T, online bool) env {
	t.Helper()
	ref := refdata.Default()
	var src isochrone.Isoliner
	if online {
		src = squareAPI{}
	}
	p := isochrone.New(context.Background(), src, ref, cachestore.NewMemory(), isochrone.Options{ChunkSize: 5})
	g := &fakeGeocoder{place: &geoapify.Place{Lat: 12.93, Lng: 77.62, Formatted: "Koramangala, Bengaluru"}}
	h := NewHandler(Options{
		Ref:      ref,
		Stores:   testStores,
		Provider: p,
		Geocoder: g,
		Locator:  fakeLocator{"203.0.113.9": {19.07, 72.88}},
		Online:   online,
	})
	r := NewRouter(RouterConfig{APIBase: "/api", UIDir: t.TempDir(), AdminToken: "s3cret"}, h)
	return env{r: r, geo: g}
}

func (e env) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestReferenceEndpoints(t *testing.T) {
	e := newEnv(t, false)

	w := e.do(http.MethodGet, "/api/v1/cities", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cities struct {
		Cities []refdata.City `json:"cities"`
	}
	decode(t, w, &cities)
	require.Len(t, cities.Cities, 5)
	assert.Equal(t, "bangalore", cities.Cities[0].Key)

	w = e.do(http.MethodGet, "/api/v1/brands", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "#F8C823")
}

func TestStoresFilters(t *testing.T) {
	e := newEnv(t, false)

	var out struct {
		Total       int                    `json:"total"`
		Stores      []darkstore.Store      `json:"stores"`
		BrandCounts []darkstore.BrandCount `json:"brand_counts"`
	}
	w := e.do(http.MethodGet, "/api/v1/stores", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	assert.Equal(t, 4, out.Total)
	assert.Equal(t, darkstore.BrandCount{Brand: "blinkit", Count: 2}, out.BrandCounts[0])

	w = e.do(http.MethodGet, "/api/v1/stores?city=bangalore&brands=blinkit,zepto", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	require.Equal(t, 2, out.Total)
	assert.Equal(t, 1, out.Stores[0].ID)
	assert.Equal(t, 2, out.Stores[1].ID)

	w = e.do(http.MethodGet, "/api/v1/stores?city=chennai", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoresKML(t *testing.T) {
	e := newEnv(t, false)
	w := e.do(http.MethodGet, "/api/v1/stores.kml?city=mumbai", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "kml")
	assert.Contains(t, w.Body.String(), "Blinkit Andheri")
	assert.NotContains(t, w.Body.String(), "Whitefield")
}

func TestDefaultCity(t *testing.T) {
	e := newEnv(t, false)

	w := e.do(http.MethodGet, "/api/v1/default-city", "", map[string]string{"x-forwarded-for": "203.0.113.9, 10.0.0.1"})
	require.Equal(t, http.StatusOK, w.Code)
	var out struct{ City, Source string }
	decode(t, w, &out)
	assert.Equal(t, "mumbai", out.City)
	assert.Equal(t, "geoip", out.Source)

	w = e.do(http.MethodGet, "/api/v1/default-city", "", nil)
	decode(t, w, &out)
	assert.Equal(t, "bangalore", out.City)
	assert.Equal(t, "default", out.Source)
}

func TestDegradedModeReturns503(t *testing.T) {
	e := newEnv(t, false)
	cases := []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/isochrone?lat=12.9&lng=77.6", ""},
		{http.MethodPost, "/api/v1/zones", `{"city":"bangalore"}`},
		{http.MethodPost, "/api/v1/accessibility", `{"lat":12.93,"lng":77.62}`},
		{http.MethodGet, "/api/v1/geocode?text=koramangala", ""},
	}
	for _, c := range cases {
		w := e.do(c.method, c.path, c.body, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, c.path)
	}
}

func TestIsochrone(t *testing.T) {
	e := newEnv(t, true)

	w := e.do(http.MethodGet, "/api/v1/isochrone?lat=12.9345&lng=77.62&minutes=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out isochrone.Isochrone
	decode(t, w, &out)
	assert.False(t, out.Fallback)
	assert.False(t, out.Cached)

	w = e.do(http.MethodGet, "/api/v1/isochrone?lat=12.9345&lng=77.62&minutes=10", "", nil)
	decode(t, w, &out)
	assert.True(t, out.Cached)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/isochrone?lat=x&lng=77.62", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/isochrone?lat=12.9&lng=77.6&minutes=0", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/isochrone?lat=12.9&lng=77.6&mode=car", "", nil).Code)
}

func TestZones(t *testing.T) {
	e := newEnv(t, true)

	w := e.do(http.MethodPost, "/api/v1/zones", `{"city":"bangalore","minutes":10}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Results     []isochrone.Result     `json:"results"`
		Redundancy  int                    `json:"redundancy"`
		BrandCounts []darkstore.BrandCount `json:"brand_counts"`
	}
	decode(t, w, &out)
	require.Len(t, out.Results, 3)
	// 两家 Koramangala 门店互为近邻
	assert.Equal(t, 67, out.Redundancy)
	assert.Len(t, out.BrandCounts, 3)

	w = e.do(http.MethodPost, "/api/v1/zones", `{"city":"bangalore","limit":1,"center":{"lat":12.97,"lng":77.75}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	require.Len(t, out.Results, 1)
	assert.Equal(t, 3, out.Results[0].Store.ID)
	assert.Equal(t, 0, out.Redundancy)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/v1/zones", `{}`, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/v1/zones", `{"city":"chennai"}`, nil).Code)
}

func TestAccessibility(t *testing.T) {
	e := newEnv(t, true)

	w := e.do(http.MethodPost, "/api/v1/accessibility", `{"lat":12.9345,"lng":77.62,"city":"bangalore"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Nearby []struct {
			Store     darkstore.Store `json:"store"`
			Reachable bool            `json:"reachable"`
		} `json:"nearby"`
		Reachable int `json:"reachable"`
	}
	decode(t, w, &out)
	require.Len(t, out.Nearby, 2)
	assert.Equal(t, 2, out.Reachable)

	w = e.do(http.MethodPost, "/api/v1/accessibility", `{"lat":12.9345,"lng":77.62,"brands":["instamart"]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	assert.Empty(t, out.Nearby)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/v1/accessibility", `{"lng":77.62}`, nil).Code)
}

func TestGeocode(t *testing.T) {
	e := newEnv(t, true)

	w := e.do(http.MethodGet, "/api/v1/geocode?text=koramangala&city=bangalore", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Koramangala")
	assert.Equal(t, [2]float64{12.9716, 77.5946}, e.geo.bias)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/v1/geocode", "", nil).Code)

	e.geo.err = geoapify.ErrNoResult
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/v1/geocode?text=nowhere", "", nil).Code)

	e.geo.err = &geoapify.StatusError{Op: "geocode", Code: 500}
	assert.Equal(t, http.StatusBadGateway, e.do(http.MethodGet, "/api/v1/geocode?text=x", "", nil).Code)
}

func TestClearCacheRequiresToken(t *testing.T) {
	e := newEnv(t, true)
	e.do(http.MethodGet, "/api/v1/isochrone?lat=12.9&lng=77.6", "", nil)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/api/v1/cache", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/v1/cache", "", map[string]string{"x-admin-token": "s3cret"}).Code)

	w := e.do(http.MethodGet, "/api/v1/status", "", nil)
	assert.Contains(t, w.Body.String(), `"cache_entries":0`)
}

func TestMetricsAndConfig(t *testing.T) {
	e := newEnv(t, false)

	w := e.do(http.MethodGet, "/api/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = e.do(http.MethodGet, "/config.js", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "window.__API_BASE__='/api'\n", w.Body.String())
}

func TestVisitorIP(t *testing.T) {
	cases := []struct {
		name   string
		target string
		header map[string]string
		remote string
		want   string
	}{
		{"query", "/?ip=198.51.100.7", nil, "10.0.0.1:1234", "198.51.100.7"},
		{"xff first hop", "/", map[string]string{"x-forwarded-for": "203.0.113.9, 10.0.0.2"}, "10.0.0.1:1234", "203.0.113.9"},
		{"forwarded", "/", map[string]string{"forwarded": `for="[2001:db8::1]";proto=https`}, "10.0.0.1:1234", "2001:db8::1"},
		{"remote", "/", nil, "192.0.2.10:5555", "192.0.2.10"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, c.target, nil)
			r.RemoteAddr = c.remote
			for k, v := range c.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, c.want, visitorIP(r).String())
		})
	}
}

func TestOpenGeoIPMissingFile(t *testing.T) {
	_, err := OpenGeoIP(t.TempDir() + "/missing.mmdb")
	assert.Error(t, err)
}

package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOrder(t *testing.T) {
	d := Default()
	keys := make([]string, 0, len(d.Cities))
	for _, c := range d.Cities {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"bangalore", "mumbai", "delhi", "hyderabad", "pune"}, keys)
	assert.Equal(t, []string{"blinkit", "zepto", "instamart"}, d.BrandKeys())
	assert.Equal(t, 20.0, d.DefaultSpeedKmh)
	b, ok := d.Brand("zepto")
	require.True(t, ok)
	assert.Equal(t, "#8B5CF6", b.Color)
}

func TestClassify(t *testing.T) {
	d := Default()
	cases := map[string]string{
		"Blinkit Koramangala":  "blinkit",
		"ZEPTO dark store":     "zepto",
		"Swiggy Instamart HSR": "instamart",
		"swiggy hub":           "instamart",
		"Blinkit x Zepto":      "blinkit",
		"Unbranded Store":      Unknown,
		"":                     Unknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, d.Classify(name), name)
	}
}

func TestSpeedFor(t *testing.T) {
	d := Default()
	assert.Equal(t, 15.0, d.SpeedFor("bangalore", 12.9346, 77.6201))
	assert.Equal(t, 24.0, d.SpeedFor("bangalore", 12.84, 77.66))
	assert.Equal(t, 20.0, d.SpeedFor("atlantis", 12.93, 77.62))
}

func TestCityFor(t *testing.T) {
	d := Default()
	assert.Equal(t, "mumbai", d.CityFor(19.1, 72.85).Key)
	assert.Equal(t, "pune", d.CityFor(18.52, 73.85).Key)
	// 不在任何包围盒内，取最近中心
	assert.Equal(t, "hyderabad", d.CityFor(17.0, 78.9).Key)
	assert.True(t, d.Cities[0].Bounds.Contains(12.75, 77.85))
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "refdata.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
cities:
  - key: chennai
    name: Chennai
    center: { lat: 13.0827, lng: 80.2707 }
    bounds: { min_lat: 12.9, max_lat: 13.25, min_lng: 80.1, max_lng: 80.35 }
    areas:
      - { name: T Nagar, lat: 13.0418, lng: 80.2341, speed_kmh: 13 }
`), 0o644))
	d, err := Load(p)
	require.NoError(t, err)
	require.Len(t, d.Cities, 1)
	assert.Equal(t, "chennai", d.Cities[0].Key)
	assert.Equal(t, 13.0, d.SpeedFor("chennai", 13.04, 80.23))
	// 未覆盖的品牌保留默认值
	assert.Equal(t, "zepto", d.Classify("zepto"))
}

func TestLoadRejectsBadOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "refdata.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
brands:
  - key: unknown
    keywords: [x]
`), 0o644))
	_, err := Load(p)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

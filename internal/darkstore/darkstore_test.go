package darkstore

import (
	"testing"

	"darkstore-coverage/internal/refdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []Store {
	return []Store{
		{ID: 1, Name: "a", Lat: 12.93, Lng: 77.62, Brand: "blinkit"},
		{ID: 2, Name: "b", Lat: 19.07, Lng: 72.87, Brand: "zepto"},
		{ID: 3, Name: "c", Lat: 12.75, Lng: 77.85, Brand: "zepto"},
		{ID: 4, Name: "d", Lat: 12.97, Lng: 77.59, Brand: "unknown"},
	}
}

func TestInCity(t *testing.T) {
	c, ok := refdata.Default().City("bangalore")
	require.True(t, ok)
	got := InCity(sample(), c)
	ids := []int{}
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int{1, 3, 4}, ids)
}

func TestWithBrands(t *testing.T) {
	assert.Len(t, WithBrands(sample(), nil), 4)
	got := WithBrands(sample(), []string{"zepto"})
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ID)
	assert.Equal(t, 3, got[1].ID)
	assert.Empty(t, WithBrands(sample(), []string{"instamart"}))
}

func TestCountBrands(t *testing.T) {
	assert.Equal(t, []BrandCount{
		{Brand: "zepto", Count: 2},
		{Brand: "blinkit", Count: 1},
		{Brand: "unknown", Count: 1},
	}, CountBrands(sample()))
}

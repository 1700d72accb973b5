package isochrone

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/geo"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/kml"
	"darkstore-coverage/internal/refdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesN(n int) []darkstore.Store {
	out := make([]darkstore.Store, n)
	for i := range out {
		out[i] = darkstore.Store{ID: i + 1, Name: fmt.Sprintf("s%d", i+1), Lat: 12.9 + float64(i)*0.001, Lng: 77.6, Brand: "zepto"}
	}
	return out
}

func TestBatchPreservesOrder(t *testing.T) {
	api := &fakeAPI{fn: func(r geoapify.IsolineRequest) (json.RawMessage, error) {
		time.Sleep(time.Duration(rand.Intn(15)) * time.Millisecond)
		// 响应中带上请求纬度，便于核对结果归属
		return json.RawMessage(fmt.Sprintf(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[77.6,%[1]v],[77.7,%[1]v],[77.7,13.5],[77.6,%[1]v]]]}}]}`, r.Lat)), nil
	}}
	p := New(context.Background(), api, refdata.Default(), nil, Options{ChunkSize: 5, Concurrency: 5, Delay: time.Millisecond})

	var progress []int
	stores := storesN(12)
	results, err := p.BatchFetch(context.Background(), stores, 10, ModeWalk, func(pct int) { progress = append(progress, pct) })
	require.NoError(t, err)
	require.Len(t, results, 12)
	for i, r := range results {
		assert.Equal(t, stores[i].ID, r.Store.ID)
		ring := ringOf(t, r.Polygon)
		assert.InDelta(t, stores[i].Lat, ring[0][1], 1e-9)
	}
	assert.Equal(t, []int{42, 83, 100}, progress)
	assert.Equal(t, 12, api.calls())
}

func TestBatchEmpty(t *testing.T) {
	p := New(context.Background(), &fakeAPI{}, refdata.Default(), nil, Options{})
	called := false
	results, err := p.BatchFetch(context.Background(), nil, 10, ModeWalk, func(int) { called = true })
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, called)
}

func TestBatchRejectsInvalidArgs(t *testing.T) {
	api := &fakeAPI{}
	p := New(context.Background(), api, refdata.Default(), nil, Options{})
	_, err := p.BatchFetch(context.Background(), storesN(3), 0, ModeWalk, nil)
	assert.Error(t, err)
	_, err = p.BatchFetch(context.Background(), storesN(3), 10, "car", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, api.calls())
}

func TestBatchRejectsNonFiniteStore(t *testing.T) {
	api := &fakeAPI{}
	p := New(context.Background(), api, refdata.Default(), nil, Options{})
	for _, bad := range []darkstore.Store{
		{ID: 9, Lat: math.NaN(), Lng: 77.6},
		{ID: 9, Lat: 12.9, Lng: math.Inf(1)},
	} {
		stores := append(storesN(6), bad)
		results, err := p.BatchFetch(context.Background(), stores, 10, ModeWalk, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store 9")
		assert.Nil(t, results)
	}
	assert.Equal(t, 0, api.calls())
}

func TestBatchJoinsChunkBeforeNext(t *testing.T) {
	var inflight, maxInflight int32
	var mu sync.Mutex
	var order []float64
	api := &fakeAPI{fn: func(r geoapify.IsolineRequest) (json.RawMessage, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		mu.Lock()
		order = append(order, r.Lat)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return json.RawMessage(squareFC), nil
	}}
	p := New(context.Background(), api, refdata.Default(), nil, Options{ChunkSize: 5, Concurrency: 2})
	stores := storesN(11)
	_, err := p.BatchFetch(context.Background(), stores, 10, ModeWalk, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, int(maxInflight), 2)

	// 第 N+1 块的请求不会早于第 N 块的任何请求
	chunkOf := func(lat float64) int {
		for i, s := range stores {
			if math.Abs(s.Lat-lat) < 1e-9 {
				return i / 5
			}
		}
		return -1
	}
	for i := 1; i < len(order); i++ {
		assert.LessOrEqual(t, chunkOf(order[i-1]), chunkOf(order[i]))
	}
}

func TestBatchWaitsBetweenChunksOnly(t *testing.T) {
	p := New(context.Background(), &fakeAPI{}, refdata.Default(), nil, Options{ChunkSize: 5, Delay: 40 * time.Millisecond})
	t0 := time.Now()
	_, err := p.BatchFetch(context.Background(), storesN(10), 10, ModeWalk, nil)
	require.NoError(t, err)
	elapsed := time.Since(t0)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 80*time.Millisecond+200*time.Millisecond)
}

func TestBatchCancelBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{}
	p := New(context.Background(), api, refdata.Default(), nil, Options{ChunkSize: 5, Delay: 5 * time.Second})
	t0 := time.Now()
	results, err := p.BatchFetch(ctx, storesN(12), 10, ModeWalk, func(int) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 5)
	assert.Equal(t, 5, api.calls())
	assert.Less(t, time.Since(t0), time.Second)
}

func TestBatchAllFailuresDegrade(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := geoapify.New(srv.URL, "k", srv.Client())
	p := New(context.Background(), client, refdata.Default(), nil, Options{ChunkSize: 5, Delay: time.Millisecond})
	var progress []int
	results, err := p.BatchFetch(context.Background(), storesN(7), 10, ModeWalk, func(pct int) { progress = append(progress, pct) })
	require.NoError(t, err)
	require.Len(t, results, 7)
	for _, r := range results {
		assert.True(t, r.Fallback)
		ring := ringOf(t, r.Polygon)
		require.Len(t, ring, 33)
		assert.Equal(t, ring[0], ring[32])
	}
	assert.Equal(t, []int{71, 100}, progress)
	assert.Equal(t, int32(7), atomic.LoadInt32(&hits))
	assert.Equal(t, 0, p.Len())
}

func TestKMLToFallbackEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	doc := `<kml><Document><Placemark><name>Zepto Test</name><Point><coordinates>77.61,12.93</coordinates></Point></Placemark></Document></kml>`
	stores, err := kml.Parse(doc, refdata.Default())
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, "zepto", stores[0].Brand)

	p := New(context.Background(), geoapify.New(srv.URL, "k", srv.Client()), refdata.Default(), nil, Options{})
	results, err := p.BatchFetch(context.Background(), stores, 10, ModeWalk, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Fallback)

	ring := ringOf(t, results[0].Polygon)
	require.Len(t, ring, 33)
	dLat := 10 * geo.WalkMetersPerMinute / geo.MetersPerDegreeLat
	dLng := 10 * geo.WalkMetersPerMinute / (geo.MetersPerDegreeLat * math.Cos(12.93*math.Pi/180))
	// 第 0 点在正东，第 8 点在正北
	assert.InDelta(t, 77.61+dLng, ring[0][0], 1e-9)
	assert.InDelta(t, 12.93, ring[0][1], 1e-9)
	assert.InDelta(t, 77.61, ring[8][0], 1e-9)
	assert.InDelta(t, 12.93+dLat, ring[8][1], 1e-9)

	var sumLat, sumLng float64
	for _, pt := range ring[:32] {
		sumLng += pt[0]
		sumLat += pt[1]
	}
	assert.InDelta(t, 12.93, sumLat/32, 1e-9)
	assert.InDelta(t, 77.61, sumLng/32, 1e-9)
}

// 包 geoapify：Geoapify REST 接入（等时线、地理编码、批量任务）
package geoapify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/metrics"

	"github.com/pkg/errors"
)

const maxBody = 32 << 20

var (
	// ErrMissingKey：未配置 API Key
	ErrMissingKey = errors.New("geoapify: missing api key")
	// ErrNoResult：地理编码无候选
	ErrNoResult = errors.New("geoapify: no result")
)

// StatusError：服务返回非 2xx
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geoapify %s: status %d: %s", e.Op, e.Code, e.Body)
}

// Client：Geoapify 客户端，可并发使用
type Client struct {
	baseURL string
	key     string
	http    *http.Client
}

// New：baseURL 为空时使用官方地址；httpClient 为空时使用 15s 超时的默认客户端
func New(baseURL, key string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = "https://api.geoapify.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), key: key, http: httpClient}
}

// IsolineRequest：单点等时线参数
// 约束：Type 取 time|distance；Range 单位为秒或米
type IsolineRequest struct {
	Lat   float64
	Lng   float64
	Type  string
	Mode  string
	Range int
}

// 文档注释：请求单点等时线
// 返回：服务原始 JSON（FeatureCollection），由调用方决定是否缓存与如何解析。
// 约束：非 2xx 返回 *StatusError；网络错误与解码错误原样包装返回，不做降级。
func (c *Client) Isoline(ctx context.Context, r IsolineRequest) (json.RawMessage, error) {
	if c.key == "" {
		return nil, ErrMissingKey
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(r.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(r.Lng, 'f', -1, 64))
	q.Set("type", r.Type)
	q.Set("mode", r.Mode)
	q.Set("range", strconv.Itoa(r.Range))
	q.Set("apiKey", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/isoline?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build isoline request")
	}
	t0 := time.Now()
	metrics.IsolineRequestsTotal.WithLabelValues(r.Mode).Inc()
	logger.L().Debug("isoline_req", "lat", r.Lat, "lng", r.Lng, "type", r.Type, "mode", r.Mode, "range", r.Range)
	body, err := c.do(req, "isoline")
	dur := time.Since(t0).Milliseconds()
	metrics.IsolineDurationMs.Observe(float64(dur))
	if err != nil {
		metrics.IsolineFailTotal.WithLabelValues(r.Mode).Inc()
		return nil, err
	}
	if !json.Valid(body) {
		metrics.IsolineFailTotal.WithLabelValues(r.Mode).Inc()
		return nil, errors.New("geoapify isoline: invalid json")
	}
	metrics.IsolineSuccessTotal.WithLabelValues(r.Mode).Inc()
	logger.L().Debug("isoline_resp", "lat", r.Lat, "lng", r.Lng, "bytes", len(body), "duration_ms", dur)
	return body, nil
}

// Place：地理编码命中
type Place struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Formatted string  `json:"formatted,omitempty"`
}

// Geocode：地址检索，以 (biasLat, biasLng) 作为位置偏好，返回首个候选
func (c *Client) Geocode(ctx context.Context, text string, biasLat, biasLng float64) (*Place, error) {
	if c.key == "" {
		return nil, ErrMissingKey
	}
	q := url.Values{}
	q.Set("text", text)
	q.Set("lat", strconv.FormatFloat(biasLat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(biasLng, 'f', -1, 64))
	q.Set("apiKey", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/geocode/search?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build geocode request")
	}
	metrics.GeocodeRequestsTotal.Inc()
	body, err := c.do(req, "geocode")
	if err != nil {
		return nil, err
	}
	var r struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties struct {
				Formatted string `json:"formatted"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.Wrap(err, "decode geocode response")
	}
	for _, f := range r.Features {
		if len(f.Geometry.Coordinates) >= 2 {
			return &Place{Lat: f.Geometry.Coordinates[1], Lng: f.Geometry.Coordinates[0], Formatted: f.Properties.Formatted}, nil
		}
	}
	return nil, ErrNoResult
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		logger.L().Warn("geoapify_http_error", "op", op, "err", err)
		return nil, errors.Wrapf(err, "geoapify %s", op)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrapf(err, "read geoapify %s response", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		logger.L().Warn("geoapify_status", "op", op, "status", resp.StatusCode)
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, v any, op string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s body", op)
	}
	q := url.Values{}
	q.Set("apiKey", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+q.Encode(), bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", op)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op)
}

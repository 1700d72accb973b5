package geoapify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// 批量任务状态
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFinished  = "finished"
	StatusFailed    = "failed"
)

// BatchInput：批量任务中的单项，ID 用于回填结果
type BatchInput struct {
	ID     string         `json:"id"`
	Params map[string]any `json:"params"`
}

// BatchRequest：批量任务提交体；Params 为所有输入共享的参数
type BatchRequest struct {
	API    string         `json:"api"`
	Params map[string]any `json:"params"`
	Inputs []BatchInput   `json:"inputs"`
}

// BatchResult：单项结果，Result 为对应 API 的原始响应
type BatchResult struct {
	ID     string          `json:"id"`
	Params map[string]any  `json:"params,omitempty"`
	Result json.RawMessage `json:"result"`
}

// BatchJob：任务状态；URL 非空时结果需另行下载
type BatchJob struct {
	ID      string        `json:"id"`
	Status  string        `json:"status"`
	URL     string        `json:"url,omitempty"`
	Results []BatchResult `json:"results,omitempty"`
	// Raw 为服务返回的原始响应体
	Raw json.RawMessage `json:"-"`
}

// Done：任务已完成（含仅返回结果而无状态的情形）
func (j *BatchJob) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFinished || (j.Status == "" && (len(j.Results) > 0 || j.URL != ""))
}

// Failed：任务失败
func (j *BatchJob) Failed() bool { return j.Status == StatusFailed }

// SubmitBatch：提交批量任务
func (c *Client) SubmitBatch(ctx context.Context, r BatchRequest) (*BatchJob, error) {
	if c.key == "" {
		return nil, ErrMissingKey
	}
	body, err := c.postJSON(ctx, "/v1/batch", r, "batch_submit")
	if err != nil {
		return nil, err
	}
	return decodeJob(body)
}

// BatchStatus：查询任务状态；服务直接返回结果数组时视为已完成
func (c *Client) BatchStatus(ctx context.Context, id string) (*BatchJob, error) {
	if c.key == "" {
		return nil, ErrMissingKey
	}
	q := url.Values{}
	q.Set("id", id)
	q.Set("apiKey", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/batch?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build batch status request")
	}
	body, err := c.do(req, "batch_status")
	if err != nil {
		return nil, err
	}
	job, err := decodeJob(body)
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = id
	}
	return job, nil
}

// FetchResults：下载 URL 形式给出的任务结果
func (c *Client) FetchResults(ctx context.Context, resultURL string) ([]BatchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build batch results request")
	}
	body, err := c.do(req, "batch_results")
	if err != nil {
		return nil, err
	}
	var out []BatchResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, "decode batch results")
	}
	return out, nil
}

func decodeJob(body []byte) (*BatchJob, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var results []BatchResult
		if err := json.Unmarshal(body, &results); err != nil {
			return nil, errors.Wrap(err, "decode batch results")
		}
		return &BatchJob{Status: StatusCompleted, Results: results, Raw: body}, nil
	}
	var job BatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, errors.Wrap(err, "decode batch job")
	}
	job.Raw = body
	return &job, nil
}

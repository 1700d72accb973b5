package bake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/isochrone"
	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/refdata"

	"github.com/google/uuid"
)

// BatchClient：批量任务接口，*geoapify.Client 即为实现
type BatchClient interface {
	SubmitBatch(ctx context.Context, r geoapify.BatchRequest) (*geoapify.BatchJob, error)
	BatchStatus(ctx context.Context, id string) (*geoapify.BatchJob, error)
	FetchResults(ctx context.Context, url string) ([]geoapify.BatchResult, error)
}

// ErrJobFailed：批量任务返回 failed
var ErrJobFailed = errors.New("batch job failed")

const inputPrefix = "store-"

// BuildBatchRequest：城市门店的等时线批量任务
// 约束：步行方式共享 range（秒）；骑行方式按门店所在片区车速各自给出 range（米）
func BuildBatchRequest(ref *refdata.Data, city string, stores []darkstore.Store, minutes int, mode string) geoapify.BatchRequest {
	req := geoapify.BatchRequest{API: "/v1/isoline", Params: map[string]any{"type": "time", "mode": "walk"}}
	if mode == isochrone.ModeWalk {
		req.Params["range"] = minutes * 60
	} else {
		req.Params = map[string]any{"type": "distance", "mode": "motorcycle"}
	}
	for i, s := range stores {
		params := map[string]any{
			"lat": strconv.FormatFloat(s.Lat, 'f', 6, 64),
			"lon": strconv.FormatFloat(s.Lng, 'f', 6, 64),
		}
		if mode != isochrone.ModeWalk {
			params["range"] = isochrone.DistanceMeters(ref.SpeedFor(city, s.Lat, s.Lng), minutes)
		}
		req.Inputs = append(req.Inputs, geoapify.BatchInput{ID: inputPrefix + strconv.Itoa(i), Params: params})
	}
	return req
}

// 文档注释：通过批量任务生成城市预计算文件
// 背景：提交任务后按 poll 间隔轮询，完成后按输入 ID 回填到门店；结果以 URL 给出时另行下载。
// 返回：文件路径；城市内无门店时返回空路径；任务失败返回 ErrJobFailed。
func RunBatch(ctx context.Context, c BatchClient, ref *refdata.Data, stores []darkstore.Store, city refdata.City, minutes int, mode, outDir string, poll time.Duration) (string, error) {
	mode, err := isochrone.NormalizeMode(mode)
	if err != nil {
		return "", err
	}
	runID := uuid.NewString()
	l := logger.L().With("run_id", runID, "city", city.Key, "minutes", minutes, "mode", mode)
	inCity := darkstore.InCity(stores, city)
	if len(inCity) == 0 {
		l.Warn("batch_bake_no_stores")
		return "", nil
	}
	job, err := c.SubmitBatch(ctx, BuildBatchRequest(ref, city.Key, inCity, minutes, mode))
	if err != nil {
		return "", fmt.Errorf("submit batch: %w", err)
	}
	l.Info("batch_bake_submitted", "job_id", job.ID, "stores", len(inCity))

	for !job.Done() {
		if job.Failed() {
			l.Error("batch_bake_job_failed", "job_id", job.ID, "status", job.Status, "response", jobResponse(job))
			return "", ErrJobFailed
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		id := job.ID
		job, err = c.BatchStatus(ctx, id)
		if err != nil {
			return "", fmt.Errorf("batch status: %w", err)
		}
		l.Info("batch_bake_status", "job_id", id, "status", job.Status)
	}

	results := job.Results
	if job.URL != "" {
		if results, err = c.FetchResults(ctx, job.URL); err != nil {
			return "", fmt.Errorf("fetch batch results: %w", err)
		}
	}

	byIndex := make([]*geoapify.BatchResult, len(inCity))
	for i := range results {
		idx, ok := inputIndex(results[i].ID)
		if !ok {
			idx = i
		}
		if idx >= 0 && idx < len(inCity) && byIndex[idx] == nil {
			byIndex[idx] = &results[i]
		}
	}
	a := Artifact{City: city.Key, Time: minutes, Mode: mode, Data: make([]Entry, 0, len(inCity))}
	skipped := 0
	for i, r := range byIndex {
		if r == nil {
			skipped++
			l.Warn("batch_bake_missing_result", "store", inCity[i].Name)
			continue
		}
		raw, err := truncate(r.Result)
		if err != nil {
			skipped++
			l.Warn("batch_bake_invalid_result", "store", inCity[i].Name, "err", err)
			continue
		}
		a.Data = append(a.Data, Entry{Store: inCity[i], Isochrone: raw})
	}
	path, err := Write(outDir, a)
	if err != nil {
		return "", err
	}
	l.Info("batch_bake_done", "path", path, "written", len(a.Data), "skipped", skipped)
	return path, nil
}

func inputIndex(id string) (int, bool) {
	if !strings.HasPrefix(id, inputPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, inputPrefix))
	return n, err == nil
}

// jobResponse：失败任务的完整响应，优先取原始响应体
func jobResponse(job *geoapify.BatchJob) string {
	if len(job.Raw) > 0 {
		return string(job.Raw)
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Sprintf("%+v", *job)
	}
	return string(b)
}

package isochrone

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/metrics"
)

// Result：门店与其等时圈
type Result struct {
	Store darkstore.Store `json:"store"`
	Isochrone
}

// 文档注释：分批获取一组门店的等时圈
// 背景：按 ChunkSize 切块，块内并发（宽度受 Concurrency 限制），整块完成后回调累计进度（百分比，封顶 100），
// 非最后一块之后等待 Delay 再发下一块。
// 返回：与输入同序的结果；单项请求失败已在 Fetch 中降级为近似圆。
// 约束：ctx 在块间被取消时返回已完成部分与 ctx.Err()；参数非法（含门店坐标非有限值）时不发出任何请求。
func (p *Provider) BatchFetch(ctx context.Context, stores []darkstore.Store, minutes int, mode string, onProgress func(pct int)) ([]Result, error) {
	mode, err := NormalizeMode(mode)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, fmt.Errorf("minutes must be positive, got %d", minutes)
	}
	for _, s := range stores {
		if !finite(s.Lat) || !finite(s.Lng) {
			return nil, fmt.Errorf("store %d has invalid coordinate %v,%v", s.ID, s.Lat, s.Lng)
		}
	}
	n := len(stores)
	results := make([]Result, n)
	sem := make(chan struct{}, p.opts.Concurrency)
	t0 := time.Now()
	fallbacks := 0
	var (
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < n; start += p.opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return results[:start], err
		}
		end := start + p.opts.ChunkSize
		if end > n {
			end = n
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				s := stores[i]
				iso, err := p.Fetch(ctx, Query{Lat: s.Lat, Lng: s.Lng, Minutes: minutes, Mode: mode})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("store %d: %w", s.ID, err)
					}
					return
				}
				if iso.Fallback {
					fallbacks++
				}
				results[i] = Result{Store: s, Isochrone: iso}
			}(i)
		}
		wg.Wait()
		if firstErr != nil {
			return results[:start], firstErr
		}
		metrics.BatchItemsTotal.Add(float64(end - start))
		if onProgress != nil {
			pct := int(math.Round(float64(end) / float64(n) * 100))
			if pct > 100 {
				pct = 100
			}
			onProgress(pct)
		}
		if end < n && p.opts.Delay > 0 {
			timer := time.NewTimer(p.opts.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return results[:end], ctx.Err()
			case <-timer.C:
			}
		}
	}
	logger.L().Info("isochrone_batch_done", "stores", n, "minutes", minutes, "mode", mode, "fallbacks", fallbacks, "duration_ms", time.Since(t0).Milliseconds())
	return results, nil
}

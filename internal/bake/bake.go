// 包 bake：离线预计算城市等时圈并写出 JSON 文件
package bake

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/geo"
	"darkstore-coverage/internal/isochrone"
	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/refdata"

	"github.com/google/uuid"
)

// CoordDecimals：预计算文件中多边形坐标保留的小数位（约 1.1 m）
const CoordDecimals = 5

// Entry：单个门店的预计算结果
type Entry struct {
	Store     darkstore.Store `json:"store"`
	Isochrone json.RawMessage `json:"isochrone"`
}

// Artifact：预计算文件内容
type Artifact struct {
	City string  `json:"city"`
	Time int     `json:"time"`
	Mode string  `json:"mode"`
	Data []Entry `json:"data"`
}

// FileName：{city}_{minutes}m.json，非步行方式追加 _{mode}
func FileName(city string, minutes int, mode string) string {
	suffix := ""
	if mode != isochrone.ModeWalk {
		suffix = "_" + mode
	}
	return fmt.Sprintf("%s_%dm%s.json", city, minutes, suffix)
}

// truncate：多边形坐标截断到 CoordDecimals 位
func truncate(raw json.RawMessage) (json.RawMessage, error) {
	fc, err := geo.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !fc.Valid() {
		return nil, fmt.Errorf("no polygon in isochrone")
	}
	fc.Truncate(CoordDecimals)
	return json.Marshal(fc)
}

// Write：写出预计算文件，返回文件路径
func Write(outDir string, a Artifact) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create out dir: %w", err)
	}
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	p := filepath.Join(outDir, FileName(a.City, a.Time, a.Mode))
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return p, nil
}

// 文档注释：逐店请求等时圈并写出城市预计算文件
// 背景：通过 Provider 分批获取（块间延迟由 Provider 配置决定），命中缓存的门店不再请求。
// 返回：文件路径；城市内无门店时返回空路径且不写文件。
// 约束：降级为近似圆的门店不写入文件，只记录日志。
func Run(ctx context.Context, p *isochrone.Provider, stores []darkstore.Store, city refdata.City, minutes int, mode, outDir string) (string, error) {
	mode, err := isochrone.NormalizeMode(mode)
	if err != nil {
		return "", err
	}
	runID := uuid.NewString()
	l := logger.L().With("run_id", runID, "city", city.Key, "minutes", minutes, "mode", mode)
	inCity := darkstore.InCity(stores, city)
	if len(inCity) == 0 {
		l.Warn("bake_no_stores")
		return "", nil
	}
	l.Info("bake_start", "stores", len(inCity))
	t0 := time.Now()
	results, err := p.BatchFetch(ctx, inCity, minutes, mode, func(pct int) {
		l.Info("bake_progress", "pct", pct)
	})
	if err != nil {
		return "", err
	}
	a := Artifact{City: city.Key, Time: minutes, Mode: mode, Data: make([]Entry, 0, len(results))}
	skipped := 0
	for _, r := range results {
		if r.Fallback {
			skipped++
			l.Warn("bake_store_failed", "store", r.Store.Name)
			continue
		}
		raw, err := truncate(r.Polygon)
		if err != nil {
			skipped++
			l.Warn("bake_store_invalid", "store", r.Store.Name, "err", err)
			continue
		}
		a.Data = append(a.Data, Entry{Store: r.Store, Isochrone: raw})
	}
	path, err := Write(outDir, a)
	if err != nil {
		return "", err
	}
	l.Info("bake_done", "path", path, "written", len(a.Data), "skipped", skipped, "duration_ms", time.Since(t0).Milliseconds())
	return path, nil
}

// Args：离线工具的位置参数 [minutes] [mode] [city]
type Args struct {
	Minutes int
	Mode    string
	City    string
	// BadMinutes 为无法解析而被忽略的时长参数原文
	BadMinutes string
}

// ParseArgs：解析位置参数；时长非数字或非正数时回退到 10 分钟
func ParseArgs(argv []string, defaultCity string) Args {
	a := Args{Minutes: 10, Mode: isochrone.ModeWalk, City: defaultCity}
	if len(argv) > 0 {
		if n, err := strconv.Atoi(argv[0]); err == nil && n > 0 {
			a.Minutes = n
		} else {
			a.BadMinutes = argv[0]
		}
	}
	if len(argv) > 1 && argv[1] != "" {
		a.Mode = argv[1]
	}
	if len(argv) > 2 && argv[2] != "" {
		a.City = argv[2]
	}
	return a
}

// 离线工具：通过批量任务接口生成预计算文件；未指定城市时按参考数据顺序处理全部城市
// 用法：batch-bake [minutes=10] [mode=walk] [city]
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"darkstore-coverage/internal/bake"
	"darkstore-coverage/internal/config"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/kml"
	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/refdata"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run：执行烘焙并返回进程退出码
func run(argv []string) int {
	cfg := config.Load()
	l := logger.Setup()
	if !cfg.Geoapify.Enabled() {
		l.Error("geoapify_key_missing")
		return 1
	}

	args := bake.ParseArgs(argv, "")
	if args.BadMinutes != "" {
		l.Warn("bad_minutes", "arg", args.BadMinutes, "use", args.Minutes)
	}
	minutes, mode, cityKey := args.Minutes, args.Mode, args.City

	ref, err := refdata.Load(cfg.RefDataPath)
	if err != nil {
		l.Error("refdata_load_error", "err", err)
		return 1
	}
	cities := ref.Cities
	if cityKey != "" {
		c, ok := ref.City(cityKey)
		if !ok {
			l.Error("unknown_city", "city", cityKey)
			return 1
		}
		cities = []refdata.City{c}
	}
	stores, err := kml.ParseFile(cfg.KMLPath, ref)
	if err != nil {
		l.Error("kml_load_error", "path", cfg.KMLPath, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	client := geoapify.New(cfg.Geoapify.BaseURL, cfg.Geoapify.Key, &http.Client{Timeout: cfg.Geoapify.Timeout})
	for _, c := range cities {
		path, err := bake.RunBatch(ctx, client, ref, stores, c, minutes, mode, cfg.Bake.OutDir, cfg.Bake.PollInterval)
		switch {
		case errors.Is(err, bake.ErrJobFailed):
			// 单个城市任务失败不影响其余城市
			continue
		case err != nil:
			l.Error("batch_bake_error", "city", c.Key, "err", err)
			if ctx.Err() != nil {
				return 1
			}
			continue
		case path != "":
			l.Info("batch_bake_written", "city", c.Key, "path", path)
		}
	}
	return 0
}

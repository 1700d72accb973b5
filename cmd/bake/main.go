// 离线工具：逐店请求等时圈并写出单个城市的预计算文件
// 用法：bake [minutes=10] [mode=walk] [city=bangalore]
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"darkstore-coverage/internal/bake"
	"darkstore-coverage/internal/cachestore"
	"darkstore-coverage/internal/config"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/isochrone"
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

	args := bake.ParseArgs(argv, "bangalore")
	if args.BadMinutes != "" {
		l.Warn("bad_minutes", "arg", args.BadMinutes, "use", args.Minutes)
	}
	minutes, mode, cityKey := args.Minutes, args.Mode, args.City

	ref, err := refdata.Load(cfg.RefDataPath)
	if err != nil {
		l.Error("refdata_load_error", "err", err)
		return 1
	}
	city, ok := ref.City(cityKey)
	if !ok {
		l.Error("unknown_city", "city", cityKey)
		return 1
	}
	stores, err := kml.ParseFile(cfg.KMLPath, ref)
	if err != nil {
		l.Error("kml_load_error", "path", cfg.KMLPath, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cs, err := cachestore.Open(ctx, cfg.Cache)
	if err != nil {
		l.Error("cache_store_error", "backend", cfg.Cache.Backend, "err", err)
		return 1
	}
	defer cs.Close()

	client := geoapify.New(cfg.Geoapify.BaseURL, cfg.Geoapify.Key, &http.Client{Timeout: cfg.Geoapify.Timeout})
	p := isochrone.New(ctx, client, ref, cs, isochrone.Options{
		Version:     cfg.Cache.Version,
		ChunkSize:   cfg.Batch.ChunkSize,
		Concurrency: cfg.Batch.Concurrency,
		Delay:       cfg.Bake.Delay,
		RatePerSec:  cfg.Batch.RatePerSec,
	})
	path, err := bake.Run(ctx, p, stores, city, minutes, mode, cfg.Bake.OutDir)
	if err != nil {
		l.Error("bake_error", "err", err)
		return 1
	}
	if path != "" {
		l.Info("bake_written", "path", path)
	}
	return 0
}

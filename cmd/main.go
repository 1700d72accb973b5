// 程序入口：读取配置、加载门店与参考数据、初始化等时圈缓存并启动 HTTP 服务
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"darkstore-coverage/internal/api"
	"darkstore-coverage/internal/cachestore"
	"darkstore-coverage/internal/config"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/isochrone"
	"darkstore-coverage/internal/kml"
	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/refdata"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	l := logger.Setup()
	l.Debug("log_init_ok")
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ref, err := refdata.Load(cfg.RefDataPath)
	if err != nil {
		l.Error("refdata_load_error", "err", err)
		os.Exit(1)
	}
	stores, err := kml.ParseFile(cfg.KMLPath, ref)
	if err != nil {
		l.Error("kml_load_error", "path", cfg.KMLPath, "err", err)
		os.Exit(1)
	}
	l.Info("kml_load_ok", "path", cfg.KMLPath, "stores", len(stores))

	ctx := context.Background()
	cs, err := cachestore.Open(ctx, cfg.Cache)
	if err != nil {
		l.Error("cache_store_error", "backend", cfg.Cache.Backend, "err", err)
		os.Exit(1)
	}
	defer cs.Close()

	// 背景：未配置密钥时进入降级模式，参考数据与门店接口照常提供
	var (
		source   isochrone.Isoliner
		geocoder api.Geocoder
	)
	if cfg.Geoapify.Enabled() {
		c := geoapify.New(cfg.Geoapify.BaseURL, cfg.Geoapify.Key, &http.Client{Timeout: cfg.Geoapify.Timeout})
		source, geocoder = c, c
	} else {
		l.Warn("geoapify_key_missing", "mode", "degraded")
	}
	provider := isochrone.New(ctx, source, ref, cs, isochrone.Options{
		Version:     cfg.Cache.Version,
		ChunkSize:   cfg.Batch.ChunkSize,
		Concurrency: cfg.Batch.Concurrency,
		Delay:       cfg.Batch.Delay,
		RatePerSec:  cfg.Batch.RatePerSec,
	})

	var locator api.Locator
	if cfg.GeoIPPath != "" {
		g, err := api.OpenGeoIP(cfg.GeoIPPath)
		if err != nil {
			l.Warn("geoip_open_error", "path", cfg.GeoIPPath, "err", err)
		} else {
			defer g.Close()
			locator = g
		}
	}

	h := api.NewHandler(api.Options{
		Ref:       ref,
		Stores:    stores,
		Provider:  provider,
		Geocoder:  geocoder,
		Locator:   locator,
		Online:    cfg.Geoapify.Enabled(),
		ZoneLimit: cfg.Batch.ZoneLimit,
	})
	qps := 0
	if cfg.RateLimitEnabled {
		qps = cfg.RateLimitQPS
	}
	router := api.NewRouter(api.RouterConfig{
		APIBase:      cfg.APIBase,
		UIDir:        cfg.UIDir,
		AdminToken:   cfg.AdminToken,
		RateLimitQPS: qps,
	}, h)

	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		l.Info("server_start", "addr", cfg.Addr, "api_base", cfg.APIBase)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server_error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		l.Error("server_shutdown_error", "err", err)
	}
}

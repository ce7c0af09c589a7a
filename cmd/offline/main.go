package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"bailacheck/cmd/buildcfg"
	"bailacheck/internal/offline"
)

const syncInterval = 30 * time.Second

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	offlineCfg, err := buildcfg.BuildOfflineConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build offline config")
	}

	queue, err := offline.OpenActionQueue(offlineCfg.QueuePath, &log)
	if err != nil {
		log.Fatal().Msgf("failed to open action queue: %v", err)
	}
	defer queue.Close()

	proxy, err := offline.NewProxy(offline.Config{
		Upstream:     offlineCfg.Upstream,
		APIPrefix:    offlineCfg.APIPrefix,
		BackendHost:  offlineCfg.BackendHost,
		CacheVersion: offlineCfg.CacheVersion,
		ShellRoutes:  offlineCfg.ShellRoutes,
	}, queue, &log)
	if err != nil {
		log.Fatal().Msgf("failed to build proxy: %v", err)
	}

	installCtx, cancelInstall := context.WithTimeout(context.Background(), 30*time.Second)
	proxy.Install(installCtx)
	cancelInstall()
	proxy.Activate()

	syncCtx, cancelSync := context.WithCancel(context.Background())
	queue.StartSync(syncCtx, &http.Client{Timeout: 15 * time.Second}, syncInterval)

	server := &http.Server{
		Addr:    ":" + offlineCfg.Port,
		Handler: proxy,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting offline proxy on %s", offlineCfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("failed to start proxy: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Proxy error: %v", err)
	}

	cancelSync()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down proxy: %v", err)
	}

	log.Info().Msg("Shutdown complete")
}

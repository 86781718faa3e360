package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"Replaya/internal/api"
	"Replaya/internal/config"
	"Replaya/internal/history"
	"Replaya/internal/logbuffer"
	"Replaya/internal/logging"
	"Replaya/internal/progress"
	"Replaya/internal/replay"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logrus.Warnf("Failed to load configuration, using defaults: %v", err)
		}
		cfg = config.Default()
	}

	if err := logging.Init(cfg.Log); err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	logbuf := logbuffer.New(0)
	logrus.AddHook(logbuffer.NewHook(logbuf))

	store, err := history.New(cfg.History)
	if err != nil {
		logrus.Fatalf("Failed to initialize history store: %v", err)
	}

	sup := replay.NewSupervisor(cfg.Replay)
	sup.SetRecorder(store)

	fanout := progress.NewFanout()
	sup.AddSink(fanout)

	if cfg.NATS.Enabled {
		publisher, err := progress.NewNATSPublisher(cfg.NATS)
		if err != nil {
			logrus.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer publisher.Close()
		sup.AddSink(publisher)
	}

	if util := replay.CheckUtility(cfg.Replay.TcpreplayPath); !util.Available {
		logrus.Warnf("tcpreplay is not available, replay requests will fail: %s", util.Error)
	}

	srv := api.NewServer(cfg, sup, store, logbuf, fanout)
	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		logrus.Infof("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("API server shutting down...")

	sup.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}
	logrus.Info("API server exited.")
}

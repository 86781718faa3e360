package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"Replaya/internal/config"
	"Replaya/internal/logging"
	"Replaya/internal/replay"
)

// consoleSink prints progress to stdout for interactive use.
type consoleSink struct{}

func (consoleSink) PublishProgress(snap replay.Snapshot) error {
	fmt.Printf("\rloop %d  %3d%%  %d packets", snap.LoopCount, snap.Progress, snap.PacketsSent)
	return nil
}

func (consoleSink) PublishStatus(snap replay.Snapshot) error {
	if snap.Status == replay.StatusRunning || snap.Status == replay.StatusStarting {
		return nil
	}
	fmt.Printf("\nreplay %s: %s", snap.ReplayID, snap.Status)
	if snap.Error != "" {
		fmt.Printf(" (%s)", snap.Error)
	}
	fmt.Println()
	return nil
}

func main() {
	file := flag.String("file", "", "capture file to replay")
	iface := flag.String("iface", "", "network interface")
	speed := flag.Float64("speed", 1.0, "replay speed")
	unit := flag.String("unit", replay.SpeedUnitMultiplier, "speed unit (multiplier or pps)")
	continuous := flag.Bool("continuous", false, "loop the capture until interrupted")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if err := logging.Init(config.LogConfig{Level: *logLevel}); err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	if *file == "" || *iface == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if util := replay.CheckUtility(cfg.Replay.TcpreplayPath); !util.Available {
		logrus.Fatalf("tcpreplay is not available: %s", util.Error)
	}

	sup := replay.NewSupervisor(cfg.Replay)
	sup.AddSink(consoleSink{})

	id, err := sup.Start(context.Background(), replay.Request{
		File:       *file,
		Interface:  *iface,
		Speed:      *speed,
		SpeedUnit:  *unit,
		Continuous: *continuous,
	})
	if err != nil {
		logrus.Fatalf("Failed to start replay: %v", err)
	}
	fmt.Printf("replay %s started on %s\n", id, *iface)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			fmt.Println("\nstopping...")
			sup.Stop()
			return
		case <-time.After(500 * time.Millisecond):
			snap := sup.Status()
			switch snap.Status {
			case replay.StatusStarting, replay.StatusRunning:
			default:
				if snap.Status == replay.StatusFailed || snap.Status == replay.StatusError {
					os.Exit(1)
				}
				return
			}
		}
	}
}

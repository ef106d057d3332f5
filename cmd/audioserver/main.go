// Command audioserver is the process-wide audio mediation service (spec
// §1): it wires configuration, the hardware abstraction, the server
// core, the RPC listener, and DNS-SD discovery together, matching the
// teacher's cmd/direwolf/main.go top-level orchestration shape (flags via
// github.com/spf13/pflag, a single long-running process, signal-driven
// graceful shutdown).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/samoyed-audioserver/internal/audit"
	"github.com/doismellburning/samoyed-audioserver/internal/config"
	"github.com/doismellburning/samoyed-audioserver/internal/diag"
	"github.com/doismellburning/samoyed-audioserver/internal/discovery"
	"github.com/doismellburning/samoyed-audioserver/internal/engine"
	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/rpc"
	"github.com/doismellburning/samoyed-audioserver/internal/server"
)

// auditObserver adapts audit.Log to server.Observer, recording every
// dispatched config event to the durable CSV trail (SPEC_FULL.md §D.4)
// in addition to the in-memory RPC fan-out every other observer gets.
type auditObserver struct {
	log *audit.Log
}

func (a auditObserver) IOConfigChanged(kind engine.ConfigEventKind, endpoint int, payload any) {
	a.log.Write(kind.String(), endpoint, fmt.Sprint(payload))
}

func main() {
	var (
		configFile = pflag.StringP("config-file", "c", "", "Server configuration YAML file.")
		debugLevel = pflag.StringP("debug", "d", "info", "Log level: debug, info, warn, error.")
		plainText  = pflag.BoolP("plain", "t", false, "Disable ANSI colour in log output.")
		fakeDevice = pflag.Bool("fake-device", false, "Use the in-memory fake hardware device instead of portaudio (for development/CI).")
		diagSocket = pflag.String("diag", "", "If set, open an interactive diagnostic console pty and print its slave path here.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	logger := log.New(os.Stderr)
	if lvl, err := log.ParseLevel(*debugLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if *plainText {
		logger.SetFormatter(log.TextFormatter)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal("config load failed", "error", err)
	}

	device, closeDevice := openDevice(*fakeDevice, logger)
	defer closeDevice()

	srv := server.New(device, logger)

	auditLog, err := audit.Open(cfg.AuditDir)
	if err != nil {
		logger.Fatal("audit log open failed", "error", err)
	}
	defer auditLog.Close()
	srv.RegisterClient(auditObserver{auditLog})

	if err := openConfiguredEndpoints(srv, cfg, logger); err != nil {
		logger.Error("failed to open one or more configured endpoints", "error", err)
	}

	listener, err := rpc.Listen(cfg.RPCSocket, srv, logger)
	if err != nil {
		logger.Fatal("rpc listen failed", "socket", cfg.RPCSocket, "error", err)
	}
	go listener.Serve()
	defer listener.Close()
	logger.Info("rpc listening", "socket", cfg.RPCSocket)

	var announcer *discovery.Announcer
	if cfg.DiscoveryName != "" {
		announcer, err = discovery.Announce(cfg.DiscoveryName, 0, logger)
		if err != nil {
			logger.Warn("discovery announce failed", "error", err)
		}
	}
	defer announcer.Stop()

	if cfg.SilentMode {
		srv.SetMasterMute()
	}

	if *diagSocket != "" {
		console, err := diag.Open()
		if err != nil {
			logger.Warn("diag console open failed", "error", err)
		} else {
			fmt.Fprintf(os.Stdout, "diag console attached at %s\n", console.SlavePath())
			go func() {
				defer console.Close()
				_ = console.Run(srv)
			}()
		}
	}

	waitForShutdown(logger)
}

func openDevice(useFake bool, logger *log.Logger) (hal.Device, func()) {
	if useFake {
		logger.Info("using fake hardware device")
		return hal.NewFakeDevice(), func() {}
	}

	dev, err := hal.NewPortaudioDevice()
	if err != nil {
		logger.Fatal("portaudio device init failed", "error", err)
	}
	return dev, func() { dev.Close() }
}

func openConfiguredEndpoints(srv *server.Server, cfg *config.Config, logger *log.Logger) error {
	var firstErr error
	for _, ep := range cfg.Endpoints {
		var err error
		switch ep.Kind {
		case "output":
			_, err = srv.OpenOutput(ep.Devices, ep.SampleRate, ep.Channels, ep.Format, msToDuration(ep.LatencyMS))
		case "input":
			_, err = srv.OpenInput(ep.Devices, ep.SampleRate, ep.Channels, ep.Format)
		default:
			logger.Warn("unknown endpoint kind in config", "name", ep.Name, "kind", ep.Kind)
			continue
		}
		if err != nil {
			logger.Error("failed to open configured endpoint", "name", ep.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func waitForShutdown(logger *log.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig)
}

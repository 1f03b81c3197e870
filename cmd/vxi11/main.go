package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/pkg/capture"
	"github.com/marmos91/vxi11/pkg/config"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	debug := flag.Bool("d", false, "enable debug messages")
	verbose := flag.Bool("v", false, "be more verbose")
	showVersion := flag.Bool("V", false, "show version")
	configPath := flag.String("config", "", "path to config file (default $XDG_CONFIG_HOME/vxi11/config.yaml)")
	initConfig := flag.Bool("init", false, "write a sample config file and exit")
	force := flag.Bool("force", false, "overwrite an existing config file with -init")
	noCapture := flag.Bool("no-capture", false, "disable the capture store (%SAVE)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [options] <host>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", filepath.Base(os.Args[0]), version)
		return
	}

	if *initConfig {
		path, err := config.InitConfig(*force)
		if err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Config written to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	switch {
	case *debug:
		logger.SetLevel("DEBUG")
	case *verbose:
		logger.SetLevel("INFO")
	}

	host := cfg.Device.Host
	if flag.NArg() > 0 {
		host = flag.Arg(0)
	}
	if host == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		go func() {
			if err := m.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = m.Server.Stop(stopCtx)
		}()
	}

	var store capture.Store
	if !*noCapture {
		store, err = config.CreateCaptureStore(ctx, &cfg.Capture)
		if err != nil {
			log.Fatalf("Failed to create capture store: %v", err)
		}
		defer config.CloseCaptureStore(store)
	}

	dev, err := vxi11.Dial(ctx, host, config.CreateDeviceConfig(cfg, m))
	if err != nil {
		log.Fatalf("Failed to open %s on %s: %v", cfg.Device.Name, host, err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("Close: %v", err)
		}
	}()

	sh := &shell{
		dev:         dev,
		out:         os.Stdout,
		store:       store,
		portmapPort: cfg.Portmap.Port,
		rpcOpts: []rpc.Option{
			rpc.WithTimeout(cfg.Device.SocketTimeout),
			rpc.WithDialTimeout(cfg.Device.DialTimeout),
			rpc.WithMetrics(m.RPCMetrics),
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- sh.Run(ctx, os.Stdin)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Signal received, closing link...")
		cancel()
	case err := <-done:
		if err != nil {
			logger.Error("Session ended: %v", err)
		}
	}
}

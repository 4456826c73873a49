// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/tcsync/internal/config"
	"github.com/petervdpas/tcsync/internal/server"
)

var (
	flagConfig   = flag.String("config", "", "Path to a JSON config file (optional)")
	flagHost     = flag.String("host", "", "Listen host (overrides config and TCSYNC_HOST)")
	flagPort     = flag.Int("port", 0, "Listen port (overrides config and TCSYNC_PORT)")
	flagWS       = flag.String("ws", "", "WebSocket bridge address, e.g. 127.0.0.1:8081 (overrides config)")
	flagNoStatus = flag.Bool("no-status", false, "Disable periodic status reporting")
	flagLogLevel = flag.String("log-level", "", "Log level: debug, info, warn, error")
	flagVersion  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

// Exit codes: 0 clean shutdown, 1 bind failure, 2 configuration error.
func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *flagVersion {
		fmt.Printf("tcsync v%s\n", appVersion)
		return 0
	}

	cfg, err := resolveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 2
	}

	lvl, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 2
	}
	logging.SetAllLoggers(lvl)

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	srv := server.New(cfg)
	if err := srv.Listen(); err != nil {
		fmt.Fprintf(os.Stderr, "Bind failed: %v\n", err)
		return 1
	}
	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}

// resolveConfig layers flags over environment variables over an optional
// config file over defaults.
func resolveConfig() (config.Config, error) {
	cfg := config.Default()

	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if v := os.Getenv("TCSYNC_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("TCSYNC_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config.Config{}, fmt.Errorf("TCSYNC_PORT: %v", err)
		}
		cfg.Port = n
	}
	if v := os.Getenv("TCSYNC_WS_ADDR"); v != "" {
		cfg.WSAddr = v
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *flagHost
		case "port":
			cfg.Port = *flagPort
		case "ws":
			cfg.WSAddr = *flagWS
		case "no-status":
			cfg.StatusReporting = !*flagNoStatus
		case "log-level":
			cfg.LogLevel = *flagLogLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func printBanner(cfg config.Config) {
	fmt.Println("SMPTE Timecode Server")
	fmt.Println("=====================")
	fmt.Printf("Host:             %s\n", cfg.Host)
	fmt.Printf("Port:             %d\n", cfg.Port)
	if cfg.WSAddr != "" {
		fmt.Printf("WebSocket:        %s\n", cfg.WSAddr)
	}
	fmt.Printf("Status Reporting: %v\n", cfg.StatusReporting)
	fmt.Println()
	fmt.Println("Starting server... (Press Ctrl+C to stop)")
	fmt.Println()
}

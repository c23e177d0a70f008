package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/spf13/pflag"

	"github.com/VanDung-dev/colblob/internal/fixture"
	"github.com/VanDung-dev/colblob/metrics"
	"github.com/VanDung-dev/colblob/network"
)

func main() {
	address := pflag.String("addr", "tcp://127.0.0.1:5570", "address to serve containers on")
	metricsAddr := pflag.String("metrics-addr", ":9090", "address for /metrics and /health, empty to disable")
	auth := pflag.Bool("auth", false, "require a token (COLBLOB_AUTH_TOKEN, generated when unset)")
	fixtureRows := pflag.Int("fixture-rows", 0, "also serve generated events.parquet and events.arrow with this many rows")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [file...]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := network.DefaultServerConfig()
	cfg.Address = *address
	cfg.Logger = logger
	if *metricsAddr != "" {
		cfg.Metrics = metrics.Default()
	}
	if *auth {
		cfg.AuthToken = os.Getenv("COLBLOB_AUTH_TOKEN")
		if cfg.AuthToken == "" {
			token, err := network.GenerateToken()
			if err != nil {
				log.Fatalf("Failed to generate token: %v", err)
			}
			cfg.AuthToken = token
			log.Printf("Generated auth token: %s", token)
		}
	}

	server, err := network.NewContainerServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	for _, path := range pflag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		server.Register(filepath.Base(path), data)
	}

	if *fixtureRows > 0 {
		if err := registerFixtures(server, *fixtureRows); err != nil {
			log.Fatalf("Failed to build fixtures: %v", err)
		}
	}

	var ms *metrics.MetricsServer
	if *metricsAddr != "" {
		ms = metrics.NewMetricsServer(*metricsAddr)
		ms.StartAsync()
	}

	log.Printf("Starting blob server on %s...", *address)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	server.Stop()
	if ms != nil {
		_ = ms.Stop()
	}
	log.Println("Server stopped.")
}

func registerFixtures(server *network.ContainerServer, rows int) error {
	events := fixture.Events(rows)

	pq, err := fixture.WriteParquet(events, 1024, compress.Codecs.Zstd)
	if err != nil {
		return err
	}
	server.Register("events.parquet", pq)

	ipc, err := fixture.WriteIPC(events, 1024)
	if err != nil {
		return err
	}
	server.Register("events.arrow", ipc)
	return nil
}

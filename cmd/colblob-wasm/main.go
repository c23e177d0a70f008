//go:build js && wasm

package main

import (
	"log/slog"
	"os"
	"syscall/js"

	"github.com/VanDung-dev/colblob/host"
	"github.com/VanDung-dev/colblob/jsbridge"
	"github.com/VanDung-dev/colblob/surface"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("colblob-wasm starting")

	loop := host.NewLoop("js", logger)

	cfg := surface.DefaultConfig()
	cfg.Logger = logger
	if _, err := jsbridge.Register(js.Global(), loop, cfg); err != nil {
		logger.Error("Failed to register", "error", err)
		return
	}

	// Keep the runtime alive for callbacks from JS.
	select {}
}

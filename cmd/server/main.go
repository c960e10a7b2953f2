package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/copilot-dashboard/backend/internal/config"
	"github.com/copilot-dashboard/backend/internal/events"
	"github.com/copilot-dashboard/backend/internal/frontend"
	"github.com/copilot-dashboard/backend/internal/grouping"
	"github.com/copilot-dashboard/backend/internal/store"
	"github.com/copilot-dashboard/backend/internal/tracker"
	"github.com/copilot-dashboard/backend/internal/web"
)

func main() {
	devMode := flag.Bool("dev", false, "Development mode (serve frontend from filesystem)")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	st := store.New(cfg.Paths.SessionStoreDB)
	reader := events.NewReader(cfg.Paths.SessionStateDir, cfg.Monitor.EventTailBuffer, cfg.Monitor.OutputTailBuffer)
	tr := tracker.New(cfg, reader, tracker.PSUtilLister{})
	grouper := grouping.Load(cfg.Paths.GroupingConfig)

	frontendDir := ""
	if *devMode {
		exe, _ := os.Executable()
		frontendDir = filepath.Join(filepath.Dir(exe), "..", "..", "internal", "frontend", "static")
		// If running with go run, the exe path is in a temp dir, use CWD instead
		if _, err := os.Stat(frontendDir); os.IsNotExist(err) {
			cwd, _ := os.Getwd()
			frontendDir = filepath.Join(cwd, "internal", "frontend", "static")
		}
	}

	// Embedded frontend handler: when built with -tags embed, serves from binary.
	// Otherwise falls back to serving from the filesystem.
	var embeddedHandler http.Handler
	if !*devMode {
		embeddedHandler = frontend.Handler()
		if embeddedHandler == nil {
			cwd, _ := os.Getwd()
			fallback := filepath.Join(cwd, "internal", "frontend", "static")
			if _, err := os.Stat(fallback); err == nil {
				log.Printf("No embedded frontend, falling back to: %s", fallback)
				embeddedHandler = http.FileServer(http.Dir(fallback))
			}
		}
	}

	server := web.NewServer(cfg, st, tr, reader, grouper, frontendDir, *devMode, embeddedHandler)
	broadcaster := web.NewBroadcaster(server.BuildSessions, cfg.Monitor.RunningCacheTTL)
	server.SetBroadcaster(broadcaster)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = web.Serve(ctx, cfg.Server.Host, cfg.Server.Port, mux)
	broadcaster.Stop()
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

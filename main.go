package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"tunebridge/api"
	"tunebridge/config"
	"tunebridge/handlers"
	"tunebridge/internal/probe"
	"tunebridge/services/cache"
	"tunebridge/services/catalog"
	"tunebridge/services/download"
	"tunebridge/services/extractor"
	"tunebridge/services/formathistory"
	"tunebridge/services/resolver"
	"tunebridge/services/streaming"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("tunebridge starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("TUNEBRIDGE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	mediaDir := filepath.Join(settings.Cache.Directory, "media")
	fsys := afero.NewOsFs()

	cacheIndex, err := cache.NewIndex(fsys, mediaDir)
	if err != nil {
		log.Fatalf("failed to init cache index: %v", err)
	}

	historySvc, err := formathistory.NewService(settings.Cache.Directory)
	if err != nil {
		log.Fatalf("failed to init format history: %v", err)
	}

	catalogSvc, err := catalog.NewService(settings.Cache.Directory)
	if err != nil {
		log.Fatalf("failed to init catalog: %v", err)
	}

	extractorSvc := extractor.NewService(mediaDir)
	resolverSvc := resolver.NewService(extractorSvc, historySvc, settings.Resolver)
	coordinator := download.NewCoordinator(extractorSvc, historySvc, cacheIndex, resolverSvc)
	streamer := streaming.NewStreamer(fsys)
	prober := probe.NewProber()
	if !prober.Available() {
		log.Println("ffprobe not found, duration probing disabled")
	}

	streamHandler := handlers.NewStreamHandler(resolverSvc, coordinator, cacheIndex, catalogSvc, prober, extractorSvc)
	mediaHandler := handlers.NewMediaHandler(cacheIndex, streamer)
	healthHandler := handlers.NewHealthHandler(prober)

	r := mux.NewRouter()
	api.Register(r, streamHandler, mediaHandler, healthHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Drain background downloads before closing the listener
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		log.Printf("Download coordinator shutdown error: %v", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}

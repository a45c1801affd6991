package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/detection"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
)

var (
	httpAddr       = flag.String("http", ":5000", "HTTP server address")
	scriptPath     = flag.String("script", "", "YAML frame script (default: built-in demo)")
	loop           = flag.Bool("loop", false, "Restart the script after the last frame (overrides the script's loop)")
	failActivation = flag.Bool("fail-activation", false, "Refuse activation with HTTP 500")
	logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor       = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logger.FormatConsole, *logColor)

	script := detection.DemoScript()
	if *scriptPath != "" {
		if script, err = detection.LoadScript(*scriptPath); err != nil {
			log.Fatalf("Failed to load script: %v", err)
		}
	}
	if flag.CommandLine.Changed("loop") {
		script.Loop = *loop
	}

	mock := detection.NewMockService(script.Frames, script.Loop)
	mock.SetFailActivation(*failActivation)

	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           mock.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("Main", "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("Main", "Mock detection service listening on %s (%d frames, loop=%v)", *httpAddr, len(script.Frames), script.Loop)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}

	activations, queries := mock.Counts()
	logger.Info("Main", "Served %d activation(s), %d status queries", activations, queries)
}

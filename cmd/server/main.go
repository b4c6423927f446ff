package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"live-hub/auth"
	"live-hub/infrastructure/ws"
	"live-hub/internal"
	"live-hub/moderation"
	"live-hub/observability"
	"live-hub/repositories"
	"live-hub/runtime"
	"live-hub/runtime/workers"
	"live-hub/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the transport and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation dictionaries
	wordlists, err := moderation.LoadWordlists(moderation.Dictionaries, "wordlists")
	if err != nil {
		return exitConfig, fmt.Errorf("wordlists: %w", err)
	}
	moderator, err := moderation.NewModerator(wordlists.Words, replacement, log)
	if err != nil {
		return exitConfig, fmt.Errorf("moderator: %w", err)
	}
	log.Info("Moderation ready", "languages", wordlists.Languages, "words", len(wordlists.Words))

	// 4. Core runtime
	metrics := observability.NewMetrics()
	registry := runtime.NewPresenceRegistry()
	router := runtime.NewRoomRouter()
	store := repositories.NewStore(db, log, config.LimitMessages)
	directory := auth.NewTokenDirectory(config.AuthTokenSecret, config.AuthTokenDuration)

	presence := services.NewPresenceService(log, registry, router, directory, store, metrics, config.SinkTimeout)
	chat := services.NewChatService(log, registry, router, store, &moderator, metrics)
	calls := services.NewCallService(log, registry, store, metrics)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Background workers under supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewHeartbeatWorker(log, registry, config.HeartbeatInterval),
		workers.NewHealthWorker(log, metrics, config.MetricInterval),
	)
	go sup.Run(ctx)

	// 7. Transport
	handler := ws.NewHandler(log, presence, chat, calls, metrics,
		config.ConnectionBufferSize, config.WriteTimeout, config.MaxContentLength)

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.DefaultMapper, metrics.Snapshot)

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return exitOK, nil
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/UnknownOlympus/strider/internal/config"
	"github.com/UnknownOlympus/strider/internal/controller"
	"github.com/UnknownOlympus/strider/internal/keypad"
	"github.com/gdamore/tcell/v2"
)

// main runs the terminal keypad against a running walker.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	// The terminal belongs to tcell, so the keypad logs to a file.
	logFile, err := os.OpenFile(
		filepath.Join(os.TempDir(), "strider-keypad.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600,
	)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client, err := keypad.Dial(ctx, cfg.Keypad.URL)
	if err != nil {
		log.Fatalf("Failed to reach the walker: %v", err)
	}
	defer client.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("Failed to create screen: %v", err)
	}
	if err = screen.Init(); err != nil {
		log.Fatalf("Failed to initialize screen: %v", err)
	}

	states := make(chan controller.State, 8)
	alerts := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- client.Listen(states, alerts) }()
	go func() {
		<-ctx.Done()
		done <- ctx.Err()
	}()

	logger.InfoContext(ctx, "Keypad connected", "url", cfg.Keypad.URL)
	err = keypad.NewPad(screen, client, logger).Run(states, alerts, done)
	screen.Fini()

	if err != nil && ctx.Err() == nil {
		logger.ErrorContext(ctx, "Keypad stopped", "error", err)
		log.Printf("Connection to the walker lost: %v", err)
	}
}

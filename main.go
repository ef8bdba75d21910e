package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moviecatalog/app"
	"moviecatalog/config"
	"moviecatalog/logger"
	"moviecatalog/server"
)

//go:embed static/*.txt
var staticEmbed embed.FS

func main() {
	var (
		cli     = kingpin.New("moviecatalog", "Movie catalog API server.")
		envFile = cli.Flag("env-file", "dotenv file to load before reading the environment").Default(".env").String()

		serveCmd = cli.Command("serve", "Migrate the database and serve the API.").Default()

		migrateCmd = cli.Command("migrate", "Create or update the database schema and exit.")

		sweepCmd    = cli.Command("sweep", "Delete staged uploads and posters no movie refers to.")
		sweepAge    = sweepCmd.Flag("older-than", "only touch files older than this").Default("1h").Duration()
		sweepDryRun = sweepCmd.Flag("dry-run", "report what would be deleted without deleting").Bool()
	)

	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create logger:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Failed to close application", zap.Error(err))
		}
	}()

	switch command {
	case serveCmd.FullCommand():
		err = serve(ctx, a)
	case migrateCmd.FullCommand():
		err = a.Migrate()
		if err == nil {
			log.Info("Database migrated")
		}
	case sweepCmd.FullCommand():
		err = sweep(ctx, a, *sweepAge, *sweepDryRun)
	}
	if err != nil {
		log.Error("Command failed", zap.String("command", command), zap.Error(err))
		stop()
		_ = a.Close()
		os.Exit(1)
	}
}

func serve(ctx context.Context, a *app.App) error {
	if err := a.Migrate(); err != nil {
		return err
	}

	static, err := fs.Sub(staticEmbed, "static")
	if err != nil {
		return fmt.Errorf("failed to load static files: %w", err)
	}

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err := server.New(a, static)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.Log.Info("Server exited")
	return nil
}

func sweep(ctx context.Context, a *app.App, olderThan time.Duration, dryRun bool) error {
	report, err := a.Catalog.Sweep(ctx, olderThan, dryRun)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inkboard/internal/blobstore"
	"inkboard/internal/config"
	"inkboard/internal/server"
	"inkboard/internal/services"
	"inkboard/internal/store"
)

const serviceShutdownTimeout = 15 * time.Second

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the inkboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, slog.Default())
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, base *slog.Logger) (err error) {
	logger := base.With("component", "server")

	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := blobstore.NewLocalCAS(cfg.BlobRoot())
	if err != nil {
		return err
	}

	manager, err := services.NewManager(services.Deps{
		Store:  st,
		Blobs:  blobs,
		Config: *cfg,
		Logger: base,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serviceShutdownTimeout)
		defer cancel()
		err = errors.Join(err, manager.Shutdown(shutdownCtx))
	}()

	if err := manager.Startup(ctx); err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Addr:           addr,
		DBPath:         cfg.DBPath,
		Store:          st,
		Manager:        manager,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxSceneBytes:  cfg.Sync.MaxSceneBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

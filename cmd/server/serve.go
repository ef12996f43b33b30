package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-advisor/internal/api"
	"go-advisor/internal/config"
	"go-advisor/internal/db"
	"go-advisor/internal/logging"
	redisdb "go-advisor/internal/redis"
	"go-advisor/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.Init(cfg, log)
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	rdb, err := redisdb.Connect(ctx, cfg, 5*time.Second)
	if err != nil {
		return err
	}
	defer rdb.Close()

	c, err := buildCore(ctx, cfg, database, log)
	if err != nil {
		return err
	}
	defer c.Close()

	deps := api.Deps{
		Config:        cfg,
		Engine:        c.engine,
		Conversations: session.NewRedisStore(rdb, cfg.StateTTL()),
		Locks:         session.NewLocker(),
		Archive:       session.NewArchive(database),
		Logger:        log,
	}
	if c.memory != nil {
		deps.Memory = c.memory
	}
	router := api.SetupRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr), zap.String("subpath", cfg.Server.Subpath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"libtrack/pkg/api"
)

const shutdownTimeout = 20 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API together with the overdue sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr: a.cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Store:          a.store,
			Lifecycle:      a.manager,
			Catalog:        a.catalog,
			Inbox:          a.inbox,
			Sweeper:        a.sweeper,
			Clock:          a.clock,
			Logger:         a.logger,
			RateLimitRPS:   a.cfg.RateLimitRPS,
			RateLimitBurst: a.cfg.RateLimitBurst,
		}),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	a.sweeper.Start(ctx)
	defer a.sweeper.Stop()
	go a.dispatcher.Run(ctx, a.cfg.EventRetryInterval)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "address", srv.Addr,
			"max_borrow_days", a.cfg.MaxBorrowDays, "max_books_per_user", a.cfg.MaxBooksPerUser)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	delivered, dropped := a.dispatcher.Flush(shutdownCtx)
	a.logger.Info("server stopped", "events_delivered", delivered, "events_dropped", dropped,
		"events_pending", a.dispatcher.Pending())
	return nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cesargomez89/keepoffline/internal/constants"
	httpapp "github.com/cesargomez89/keepoffline/internal/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation engine and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadServices()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *services) error {
	srv := &http.Server{
		Addr:    ":" + rt.cfg.Port,
		Handler: httpapp.NewRouter(httpapp.NewHandler(rt.jobs, rt.log)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.engine.Run(gctx)
	})
	g.Go(func() error {
		rt.log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	rt.log.Info("Server exiting")
	return err
}

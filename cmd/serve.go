package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/workless-ai/docscan/internal/auth"
	"github.com/workless-ai/docscan/internal/blob"
	"github.com/workless-ai/docscan/internal/pipeline"
	"github.com/workless-ai/docscan/internal/quota"
	"github.com/workless-ai/docscan/internal/ratelimit"
	"github.com/workless-ai/docscan/internal/scan"
	"github.com/workless-ai/docscan/internal/server"
	"github.com/workless-ai/docscan/pkg/anthropic"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document processing server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic key is required (DOCSCAN_ANTHROPIC_KEY)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		blobs, err := blob.NewLocal(cfg.Upload.Dir)
		if err != nil {
			return err
		}

		provider := anthropic.NewClient(cfg.Anthropic.Key, anthropic.Options{
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
		})

		pipe := pipeline.New(
			provider,
			blobs,
			quota.NewGate(st, cfg.Quota.BasicDailyLimit),
			scan.NewTracker(st),
			pipeline.Config{
				MaxFileSize:  cfg.Upload.MaxFileSize,
				AllowedTypes: cfg.Upload.AllowedTypes,
			},
		)

		srv := server.New(
			pipe,
			blobs,
			auth.NewJWTVerifier(cfg.Auth.JWTSecret),
			ratelimit.New(cfg.RateLimit.Calls, cfg.RateLimit.Period()),
			server.Options{
				CORSOrigins: cfg.Server.CORSOrigins,
				MaxFileSize: cfg.Upload.MaxFileSize,
			},
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

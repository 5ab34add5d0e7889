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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Conference/internal/adapters/http"
	"github.com/dkeye/Conference/internal/adapters/loopback"
	"github.com/dkeye/Conference/internal/adapters/rtc"
	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/app/orch"
	"github.com/dkeye/Conference/internal/app/session"
	"github.com/dkeye/Conference/internal/config"
	"github.com/dkeye/Conference/internal/core"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "conference",
		Short:         "Conference room server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.Int("port", 8080, "HTTP listen port")
	flags.String("mode", "release", "gin mode: release or debug")
	flags.String("log-level", "info", "log level")
	flags.String("token", "", "room service token clients must present")
	flags.String("room-kind", "mesh", "default room kind: mesh or relayed")
	flags.Int("max-subscribers", 99, "subscriber limit per audio publication")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	root.AddCommand(serve)
	root.RunE = serve.RunE
	return root
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func runServe(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	setupLogger("info")
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	setupLogger(cfg.LogLevel)

	hub := loopback.NewHub(ctx, cfg.Token)
	defer hub.Close()

	registry := session.NewRegistry(ctx, newCoordinatorFactory(cfg, hub))
	defer registry.Close()

	r := router.SetupRouter(ctx, cfg, hub, registry)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Conference server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

// newCoordinatorFactory gives every browser session its own transport,
// media sources and audio route.
func newCoordinatorFactory(cfg *config.Config, hub *loopback.Hub) session.Factory {
	return func(ctx context.Context, sid core.SessionID) (*orch.Coordinator, func()) {
		mic := rtc.NewMicrophone(ctx)
		camera := rtc.NewCamera(ctx, cfg.CameraDevices(), cfg.FrameInterval)
		coord := orch.New(hub.Transport(), mic, camera, rtc.NewAudioRoute(), orch.Options{
			Token:          cfg.Token,
			ContextOptions: core.ContextOptions{LogLevel: cfg.LogLevel},
			MaxSubscribers: cfg.MaxSubscribers,
			EventPolicy:    app.LossyPolicy{},
		})
		release := func() {
			camera.StopCapturing()
			mic.Close()
		}
		return coord, release
	}
}

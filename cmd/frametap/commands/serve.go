package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/api"
	"github.com/bryanchriswhite/FrameTap/internal/capture"
	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/output"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FrameTap server",
	Long: `Start the FrameTap HTTP server with a recorder attached.

The server exposes a REST API to start and stop the recorder, a websocket
feed of frame statistics and an MJPEG stream of the captured frames.`,
	Example: `  # Start server on default port (8090)
  frametap serve

  # Start server on custom port
  frametap serve --port 9090

  # Start without recording until POST /api/recorder/start
  frametap serve --start=false

  # Start with debug logging
  frametap serve --log-level debug`,
	RunE: runServe,
}

var serveStart bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveStart, "start", true, "start recording immediately")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")
	cfg := *configMgr.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pctx := platform.New()
	defer pctx.Close()

	log.Info().Str("session", string(pctx.SessionType())).Msg("Creating recorder")
	rec, frames, err := capture.NewVideoRecorder(ctx, pctx, capture.TargetFromConfig(cfg.Recorder), cfg)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	defer rec.Close()

	mjpeg := output.NewMJPEGOutput(output.Config{
		Width:   cfg.Output.Width,
		Height:  cfg.Output.Height,
		Quality: cfg.Output.JPEGQuality,
	})
	if err := mjpeg.Start(); err != nil {
		return err
	}
	defer mjpeg.Stop()

	go func() {
		if err := output.Consume(frames, mjpeg); err != nil {
			log.Debug().Err(err).Msg("Frame consumer stopped")
		}
	}()

	// Only the log level is applied live; capture settings need a restart.
	configMgr.Watch(func(c *config.Config) {
		logger.SetLevel(c.LogLevel)
	})

	if serveStart {
		if err := rec.Start(); err != nil {
			return fmt.Errorf("failed to start recorder: %w", err)
		}
	}

	server := api.NewServer(rec, configMgr, mjpeg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("backend", rec.Kind().String()).
		Str("stream", fmt.Sprintf("http://localhost:%d/stream", cfg.ServerPort)).
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Msg("FrameTap is running, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info().Msg("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	return nil
}

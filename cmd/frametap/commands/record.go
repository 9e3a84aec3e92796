package commands

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/capture"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record frames from a monitor or window",
	Long: `Start a recorder, collect a number of frames and print frame statistics.

The backend is chosen from recorder.backend in the config, or from the
platform when it is "auto".`,
	Example: `  # Collect 100 frames from the primary monitor
  frametap record --frames 100

  # Record the second monitor with the X11 poller
  frametap record --monitor 1 --backend raw

  # Save the last frame as a PNG
  frametap record --frames 10 --png last.png`,
	RunE: runRecord,
}

var (
	recordFrames   int
	recordMonitor  int
	recordWindow   uint32
	recordBackend  string
	recordPNG      string
	recordDuration time.Duration
)

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().IntVarP(&recordFrames, "frames", "n", 60, "number of frames to collect (0 = until interrupted)")
	recordCmd.Flags().IntVarP(&recordMonitor, "monitor", "m", -1, "monitor index (default from config)")
	recordCmd.Flags().Uint32Var(&recordWindow, "window", 0, "window id to capture (backend permitting)")
	recordCmd.Flags().StringVarP(&recordBackend, "backend", "b", "", "backend: auto, duplication, push, portal or raw")
	recordCmd.Flags().StringVar(&recordPNG, "png", "", "write the last frame to this PNG file")
	recordCmd.Flags().DurationVar(&recordDuration, "timeout", 0, "stop after this long even if fewer frames arrived")
}

// recordStats summarizes one recording run
type recordStats struct {
	Frames  int
	Width   uint32
	Height  uint32
	Elapsed time.Duration
	Sent    uint64
	Dropped uint64
}

func (s recordStats) fps() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

func (s recordStats) String() string {
	return fmt.Sprintf("frames=%d size=%dx%d elapsed=%s fps=%.1f sent=%d dropped=%d",
		s.Frames, s.Width, s.Height, s.Elapsed.Round(time.Millisecond), s.fps(), s.Sent, s.Dropped)
}

func runRecord(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	if recordBackend != "" {
		if err := configMgr.SetBackend(recordBackend); err != nil {
			return err
		}
	}
	if recordMonitor >= 0 {
		if err := configMgr.SetMonitor(recordMonitor); err != nil {
			return err
		}
	}
	cfg := *configMgr.Get()
	target := capture.TargetFromConfig(cfg.Recorder)
	if recordWindow != 0 {
		target.WindowID = recordWindow
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	pctx := platform.New()
	defer pctx.Close()

	rec, frames, err := capture.NewVideoRecorder(ctx, pctx, target, cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	if err := rec.Start(); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	stats, last := collect(ctx, frames, recordFrames)
	if err := rec.Stop(); err != nil && rec.Err() == nil {
		logger.WithComponent("cli").Warn().Err(err).Msg("Failed to stop recorder")
	}
	stats.Sent, stats.Dropped = rec.Stats()

	fmt.Printf("%s backend, session %s\n", rec.Kind(), rec.SessionID())
	fmt.Println(stats)

	if recordPNG != "" && last != nil {
		if err := writePNG(recordPNG, *last); err != nil {
			return err
		}
		fmt.Printf("last frame written to %s\n", recordPNG)
	}
	if err := rec.Err(); err != nil {
		return fmt.Errorf("recorder stopped: %w", err)
	}
	return nil
}

// collect reads up to n frames (unbounded when n <= 0) until ctx is done
// or the channel closes.
func collect(ctx context.Context, frames <-chan recorder.Frame, n int) (recordStats, *recorder.Frame) {
	var (
		stats recordStats
		last  *recorder.Frame
		start time.Time
	)
	for n <= 0 || stats.Frames < n {
		select {
		case <-ctx.Done():
			return stats, last
		case f, ok := <-frames:
			if !ok {
				return stats, last
			}
			if stats.Frames == 0 {
				start = time.Now()
			}
			stats.Frames++
			stats.Width, stats.Height = f.Width, f.Height
			stats.Elapsed = time.Since(start)
			last = &f
		}
	}
	return stats, last
}

func writePNG(path string, f recorder.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(file, f.Image()); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return file.Close()
}

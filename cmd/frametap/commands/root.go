package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "frametap",
		Short: "FrameTap - cross-platform screen frame recorder",
		Long: `FrameTap captures a monitor or window as a stream of RGBA frames using
the native capture API of the running platform.

Backends:
  • duplication  DXGI Desktop Duplication (Windows)
  • push         ScreenCaptureKit (macOS)
  • portal       xdg-desktop-portal + PipeWire (Wayland)
  • raw          X11 GetImage polling (X11)

Frames can be collected from the command line or served as an MJPEG
stream next to a small REST API.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/frametap/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8090)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config manager, applies flag overrides and
// initializes logging from the result.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}

	if port := viper.GetInt("server_port"); viper.IsSet("server_port") && port > 0 {
		if err := configMgr.SetPort(port); err != nil {
			return nil, err
		}
	}
	if level := viper.GetString("log_level"); viper.IsSet("log_level") && level != "" {
		if err := configMgr.SetLogLevel(level); err != nil {
			return nil, err
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("cli").Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")
	return configMgr, nil
}

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage FrameTap configuration",
	Long:  `View and manage FrameTap configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current FrameTap configuration.`,
	Example: `  # Show configuration as YAML (default)
  frametap config show

  # Show configuration as JSON
  frametap config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value.`,
	Example: `  # Force the X11 poller
  frametap config set recorder.backend raw

  # Wait longer for the portal dialog
  frametap config set portal.select_timeout 5m

  # Set log level
  frametap config set log_level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get server port
  frametap config get server_port

  # Get the recorder backend
  frametap config get recorder.backend`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

var (
	intKeys = map[string]bool{
		"server_port": true, "recorder.monitor": true, "recorder.window_id": true,
		"recorder.region.x": true, "recorder.region.y": true,
		"recorder.region.width": true, "recorder.region.height": true,
		"recorder.poll_buffer": true, "recorder.push_buffer": true,
		"recorder.max_consecutive_failures": true,
		"stream.max_width": true, "stream.max_height": true, "stream.framerate": true,
		"output.width": true, "output.height": true, "output.jpeg_quality": true,
	}
	durationKeys = map[string]bool{
		"recorder.acquire_timeout": true, "recorder.retry_delay": true, "recorder.poll_interval": true,
		"portal.request_timeout": true, "portal.select_timeout": true,
		"stream.negotiate_timeout": true,
	}
	enumKeys = map[string][]string{
		"log_level":           {"trace", "debug", "info", "warn", "error"},
		"portal.cursor_mode":  {"hidden", "embedded", "metadata"},
		"portal.persist_mode": {"none", "application", "session"},
		"stream.client":       {"gst", "launch"},
	}
)

// parseConfigValue converts a command-line value to the type stored
// under key.
func parseConfigValue(key, value string) (interface{}, error) {
	switch {
	case intKeys[key]:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		if n < 0 && key != "recorder.region.x" && key != "recorder.region.y" {
			return nil, fmt.Errorf("%s must not be negative", key)
		}
		return n, nil
	case durationKeys[key]:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %s (e.g. 250ms, 30s)", key, value)
		}
		return d, nil
	case key == "log_pretty":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		return b, nil
	case key == "recorder.backend":
		if !strings.EqualFold(value, "auto") {
			kind, err := recorder.ParseKind(value)
			if err != nil {
				return nil, err
			}
			return kind.String(), nil
		}
		return "auto", nil
	}
	if allowed, ok := enumKeys[key]; ok {
		for _, a := range allowed {
			if value == a {
				return value, nil
			}
		}
		return nil, fmt.Errorf("invalid value for %s: %s (use: %s)", key, value, strings.Join(allowed, ", "))
	}
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	parsed, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	v.Set(key, parsed)

	if err := configMgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Configuration updated: %s = %v\n", key, parsed)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Println(v.Get(key))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}

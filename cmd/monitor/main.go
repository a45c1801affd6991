package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/config"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"detection-url": "detection.base_url",
	"poll-interval": "session.poll_interval",
	"grace-window":  "session.grace_window",
	"http":          "http.addr",
	"assets":        "http.assets_dir",
	"alarm-sound":   "alarm.sound_file",
	"no-alarm":      "alarm.enabled",
	"mute":          "alarm.muted",
	"volume":        "alarm.volume",
	"notify-url":    "notify.urls",
	"mqtt-broker":   "mqtt.broker",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-color":     "log.color",
}

type rootOptions struct {
	configFile string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cctv-monitor",
		Short: "CCTV threat monitor",
		Long: `Polls the detection service once per second while a session is active,
classifies each snapshot as safe, warning or danger, drives the alarm and
serves the dashboard, state stream and control API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), settings)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Config file (default ./config.yaml or ~/.config/cctv-monitor/config.yaml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Environment file")
	pf.String("detection-url", "", "Detection service base URL")
	pf.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	pf.String("log-format", "", "Log format (console, json)")
	pf.Bool("log-color", true, "Enable colored console output")

	f := cmd.Flags()
	f.Duration("poll-interval", 0, "Status poll interval")
	f.Duration("grace-window", 0, "Weapon alert grace window")
	f.String("http", "", "HTTP server address")
	f.String("assets", "", "Static assets directory")
	f.String("alarm-sound", "", "Alarm WAV file")
	f.Bool("no-alarm", false, "Disable audio playback")
	f.Bool("mute", false, "Start with the alarm muted")
	f.Float64("volume", 0, "Initial alarm volume (0-1)")
	f.StringSlice("notify-url", nil, "Push notification service URL (repeatable)")
	f.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")

	cmd.AddCommand(newProbeCommand(opts), newNotifyCommand(opts))
	return cmd
}

// loadSettings resolves config and initializes the global logger. Only
// flags set on the command line override file and environment values.
func loadSettings(cmd *cobra.Command, opts *rootOptions) (*config.Settings, error) {
	flags := make(map[string]*pflag.Flag)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			flags[key] = f
		}
	})
	if f, ok := flags["alarm.enabled"]; ok {
		// --no-alarm inverts the key it sets.
		delete(flags, "alarm.enabled")
		if f.Value.String() == "true" {
			flags["alarm.enabled"] = disabledFlag()
		}
	}

	settings, err := config.Load(config.Options{
		ConfigFile: opts.configFile,
		EnvFile:    opts.envFile,
		Flags:      flags,
	})
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(settings.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(settings.Log.Format)
	if err != nil {
		return nil, err
	}
	logger.Init(level, os.Stderr, format, settings.Log.Color)
	return settings, nil
}

func disabledFlag() *pflag.Flag {
	fs := pflag.NewFlagSet("derived", pflag.ContinueOnError)
	fs.Bool("alarm-enabled", false, "")
	_ = fs.Set("alarm-enabled", "false")
	return fs.Lookup("alarm-enabled")
}

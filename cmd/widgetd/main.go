// Package main runs the embeddable avatar widget server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/config"
	"github.com/normanking/consultavatar/internal/logging"
	"github.com/normanking/consultavatar/internal/voice"
	"github.com/normanking/consultavatar/internal/widget"
)

// Version information (set at build time)
var version = "dev"

var (
	configDir string
	logLevel  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "widgetd",
		Short:   "Serve the animated consultant avatar to web pages",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.consultavatar)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd(), clipsCmd(), checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env files and the config file. Flags override both.
func loadConfig() (*config.Config, *viper.Viper, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	dir := configDir
	if dir == "" {
		var err error
		if dir, err = config.GetConfigDir(); err != nil {
			return nil, nil, err
		}
	}
	cfg, v, err := config.LoadFrom(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, v, nil
}

func serveCmd() *cobra.Command {
	var (
		addr      string
		staticDir string
		metrics   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket widget server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Widget.ListenAddr = addr
			}
			if cmd.Flags().Changed("static") {
				cfg.Widget.StaticDir = staticDir
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Widget.Metrics = metrics
			}

			logCfg := logging.DefaultConfig()
			logCfg.Level = logging.LogLevel(cfg.Log.Level)
			logCfg.Console = os.Stderr
			syslog, err := logging.New(logCfg)
			if err != nil {
				return err
			}
			defer syslog.Close()
			zlogger := syslog.Zerolog()

			config.Watch(v, zlogger, func(updated *config.Config) {
				syslog.SetLevel(updated.Log.Level)
			})

			server := widget.NewServer(widget.Config{
				AllowedOrigins: cfg.Widget.AllowedOrigins,
				StaticDir:      cfg.Widget.StaticDir,
				Metrics:        cfg.Widget.Metrics,
			}, cfg.PageDeps(zlogger), cfg.PageOptions(), zlogger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			syslog.Info("main", "Widget server starting", map[string]any{
				"addr":    cfg.Widget.ListenAddr,
				"api":     cfg.API.BaseURL,
				"model":   cfg.Avatar.ModelPath,
				"metrics": cfg.Widget.Metrics,
			})
			return server.ListenAndServe(ctx, cfg.Widget.ListenAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&staticDir, "static", "", "directory served at /")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "expose Prometheus metrics at /metrics")
	return cmd
}

func clipsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "clips [model]",
		Short: "Show which animations of a model play for each state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Avatar.ModelPath
			if len(args) == 1 {
				path = args[0]
			}

			lib, err := animation.LoadLibrary(path, cfg.AnimationKeywords())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(lib.Clips())
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tPRIORITY\tANIMATION\tDURATION\tLOOP")
			for _, c := range lib.Clips() {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", c.State, c.State.Priority(), c.Source, c.Duration.Round(time.Millisecond), c.Loop)
			}
			for _, s := range lib.Missing() {
				fmt.Fprintf(w, "%s\t%d\t-\t-\t-\n", s, s.Priority())
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the consultant API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			logCfg := logging.DefaultConfig()
			logCfg.NoFile = true
			logCfg.Console = nil
			syslog, err := logging.New(logCfg)
			if err != nil {
				return err
			}
			defer syslog.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			out := cmd.OutOrStdout()

			health, err := chat.NewClient(cfg.ChatClientConfig(), syslog.Zerolog()).Health(ctx)
			if err != nil {
				return fmt.Errorf("chat API at %s: %w", cfg.API.BaseURL, err)
			}
			fmt.Fprintf(out, "chat:  ok %v\n", health)

			status, err := voice.NewClient(cfg.VoiceClientConfig(), syslog.Zerolog()).Status(ctx)
			if err != nil {
				fmt.Fprintf(out, "voice: unavailable (%v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "voice: stt=%t tts=%t voice_chat=%t\n", status.STTAvailable, status.TTSAvailable, status.VoiceChatAvailable)
			return nil
		},
	}
}

// Package config provides configuration management for the consultant avatar
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	appDir    = ".consultavatar"
	envPrefix = "CONSULTAVATAR"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// Config holds all application configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Avatar   AvatarConfig   `mapstructure:"avatar"`
	Activity ActivityConfig `mapstructure:"activity"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Voice    VoiceConfig    `mapstructure:"voice"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Widget   WidgetConfig   `mapstructure:"widget"`
	Window   WindowConfig   `mapstructure:"window"`
	Log      LogConfig      `mapstructure:"log"`
}

// APIConfig points at the consultant backend
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AvatarConfig configures the model and its mix loop
type AvatarConfig struct {
	ModelPath    string              `mapstructure:"model_path"`
	FrameRate    int                 `mapstructure:"frame_rate"`
	PollInterval time.Duration       `mapstructure:"poll_interval"`
	MaxAttempts  int                 `mapstructure:"max_attempts"`
	Crossfade    time.Duration       `mapstructure:"crossfade"`
	Keywords     map[string][]string `mapstructure:"keywords"` // state -> animation name substrings
}

// ActivityConfig configures the page activity timers
type ActivityConfig struct {
	MessageIdleDelay  time.Duration `mapstructure:"message_idle_delay"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	FarewellCooldown  time.Duration `mapstructure:"farewell_cooldown"`
}

// ChatConfig configures the message log
type ChatConfig struct {
	Welcome     string `mapstructure:"welcome"`
	NoAnswer    string `mapstructure:"no_answer"`
	ErrorNotice string `mapstructure:"error_notice"`
	MaxMessages int    `mapstructure:"max_messages"`
}

// VoiceConfig configures speech recognition and synthesis
type VoiceConfig struct {
	Speaker   string `mapstructure:"speaker"`
	Enhanced  bool   `mapstructure:"enhanced"`
	Denoise   bool   `mapstructure:"denoise"`
	RoundTrip bool   `mapstructure:"round_trip"` // enable the server-side voice chat endpoint
}

// AudioConfig configures local playback
type AudioConfig struct {
	SampleRate   int     `mapstructure:"sample_rate"`
	BufferMs     int     `mapstructure:"buffer_ms"`
	OutputVolume float64 `mapstructure:"output_volume"` // 0.0-1.0
}

// WidgetConfig configures the embeddable page server
type WidgetConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // empty allows any origin
	StaticDir      string   `mapstructure:"static_dir"`
	Metrics        bool     `mapstructure:"metrics"`
}

// WindowConfig configures the desktop window
type WindowConfig struct {
	Title       string `mapstructure:"title"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	AlwaysOnTop bool   `mapstructure:"always_on_top"`
	Frameless   bool   `mapstructure:"frameless"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 120 * time.Second,
		},
		Avatar: AvatarConfig{
			ModelPath:    "assets/consultant.glb",
			FrameRate:    60,
			PollInterval: 500 * time.Millisecond,
			MaxAttempts:  30,
			Crossfade:    200 * time.Millisecond,
			Keywords: map[string][]string{
				"greeting":   {"greet", "hello"},
				"idle":       {"idle"},
				"engagement": {"engage", "offer", "ask"},
				"farewell":   {"fare", "bye", "goodbye"},
			},
		},
		Activity: ActivityConfig{
			MessageIdleDelay:  5 * time.Second,
			InactivityTimeout: 20 * time.Second,
			FarewellCooldown:  3 * time.Second,
		},
		Chat: ChatConfig{
			Welcome:     "Hello! I am your virtual consultant. Ask me anything about our documents.",
			NoAnswer:    "No answer",
			ErrorNotice: "An error occurred while contacting the server.",
			MaxMessages: 200,
		},
		Voice: VoiceConfig{
			Speaker:   "xenia",
			Enhanced:  true,
			Denoise:   false,
			RoundTrip: true,
		},
		Audio: AudioConfig{
			SampleRate:   48000,
			BufferMs:     100,
			OutputVolume: 0.8,
		},
		Widget: WidgetConfig{
			ListenAddr: "127.0.0.1:8090",
			Metrics:    true,
		},
		Window: WindowConfig{
			Title:  "Consultant",
			Width:  420,
			Height: 720,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from ~/.consultavatar and the environment.
func Load() (*Config, *viper.Viper, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return DefaultConfig(), nil, err
	}
	return LoadFrom(configDir)
}

// LoadFrom reads config.yaml from configDir (or the working directory),
// writing the defaults there on first run. Environment variables prefixed
// CONSULTAVATAR_ override file values, e.g. CONSULTAVATAR_API_BASE_URL.
func LoadFrom(configDir string) (*Config, *viper.Viper, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, v, err
		}
		// Config file not found, use defaults and create one
		if err := SaveTo(cfg, filepath.Join(configDir, "config.yaml")); err != nil {
			return cfg, v, err
		}
		if err := v.ReadInConfig(); err != nil {
			return cfg, v, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, v, err
	}
	return cfg, v, nil
}

// SaveTo writes cfg to path as YAML.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// setDefaults registers every key so environment overrides apply to keys
// missing from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range settings(cfg) {
		v.SetDefault(key, value)
	}
}

// settings flattens cfg into viper keys. Durations are written in their
// string form so the YAML stays readable.
func settings(cfg *Config) map[string]any {
	return map[string]any{
		"api.base_url": cfg.API.BaseURL,
		"api.timeout":  cfg.API.Timeout.String(),

		"avatar.model_path":    cfg.Avatar.ModelPath,
		"avatar.frame_rate":    cfg.Avatar.FrameRate,
		"avatar.poll_interval": cfg.Avatar.PollInterval.String(),
		"avatar.max_attempts":  cfg.Avatar.MaxAttempts,
		"avatar.crossfade":     cfg.Avatar.Crossfade.String(),
		"avatar.keywords":      cfg.Avatar.Keywords,

		"activity.message_idle_delay": cfg.Activity.MessageIdleDelay.String(),
		"activity.inactivity_timeout": cfg.Activity.InactivityTimeout.String(),
		"activity.farewell_cooldown":  cfg.Activity.FarewellCooldown.String(),

		"chat.welcome":      cfg.Chat.Welcome,
		"chat.no_answer":    cfg.Chat.NoAnswer,
		"chat.error_notice": cfg.Chat.ErrorNotice,
		"chat.max_messages": cfg.Chat.MaxMessages,

		"voice.speaker":    cfg.Voice.Speaker,
		"voice.enhanced":   cfg.Voice.Enhanced,
		"voice.denoise":    cfg.Voice.Denoise,
		"voice.round_trip": cfg.Voice.RoundTrip,

		"audio.sample_rate":   cfg.Audio.SampleRate,
		"audio.buffer_ms":     cfg.Audio.BufferMs,
		"audio.output_volume": cfg.Audio.OutputVolume,

		"widget.listen_addr":     cfg.Widget.ListenAddr,
		"widget.allowed_origins": cfg.Widget.AllowedOrigins,
		"widget.static_dir":      cfg.Widget.StaticDir,
		"widget.metrics":         cfg.Widget.Metrics,

		"window.title":         cfg.Window.Title,
		"window.width":         cfg.Window.Width,
		"window.height":        cfg.Window.Height,
		"window.always_on_top": cfg.Window.AlwaysOnTop,
		"window.frameless":     cfg.Window.Frameless,

		"log.level": cfg.Log.Level,
	}
}

// Watch reloads the configuration whenever the file changes and hands the
// new value to onChange. Unparseable edits are logged and skipped.
func Watch(v *viper.Viper, logger zerolog.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := DefaultConfig()
		if err := v.Unmarshal(cfg); err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		logger.Info().Str("file", e.Name).Msg("Config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
}

// LoadEnv loads .env files into the process environment. Missing files are
// skipped; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		if dir, err := GetConfigDir(); err == nil {
			paths = append(paths, filepath.Join(dir, ".env"))
		}
		paths = append(paths, ".env")
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, appDir), nil
}

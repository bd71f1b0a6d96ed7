package bridge

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/config"
	"github.com/normanking/consultavatar/internal/page"
	"github.com/normanking/consultavatar/internal/tts"
)

// SettingsData represents the settings the frontend can change
type SettingsData struct {
	ServerURL    string `json:"serverUrl"`
	Speaker      string `json:"speaker"`
	Enhanced     bool   `json:"enhanced"`     // server-side speech enhancement
	Denoise      bool   `json:"denoise"`      // server-side noise reduction
	RoundTrip    bool   `json:"roundTrip"`    // takes effect on restart
	OutputVolume int    `json:"outputVolume"` // 0-100
	Welcome      string `json:"welcome"`
	LogLevel     string `json:"logLevel"`
}

// LevelSetter changes the log level. *logging.Logger implements it.
type LevelSetter interface {
	SetLevel(level string)
}

// SettingsBridge exposes settings methods to the frontend
type SettingsBridge struct {
	ctx    context.Context
	page   *page.Session
	levels LevelSetter
	path   string
	emit   Emitter
	logger zerolog.Logger

	mu  sync.Mutex
	cfg *config.Config
}

// NewSettingsBridge creates a new settings bridge. Saved settings are
// written to path.
func NewSettingsBridge(cfg *config.Config, path string, p *page.Session, levels LevelSetter, emit Emitter, logger zerolog.Logger) *SettingsBridge {
	return &SettingsBridge{
		cfg:    cfg,
		path:   path,
		page:   p,
		levels: levels,
		emit:   emit,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Bind sets the Wails runtime context
func (b *SettingsBridge) Bind(ctx context.Context) {
	b.ctx = ctx
}

// GetSettings returns current settings
func (b *SettingsBridge) GetSettings() SettingsData {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SettingsData{
		ServerURL:    b.cfg.API.BaseURL,
		Speaker:      b.cfg.Voice.Speaker,
		Enhanced:     b.cfg.Voice.Enhanced,
		Denoise:      b.cfg.Voice.Denoise,
		RoundTrip:    b.cfg.Voice.RoundTrip,
		OutputVolume: int(b.cfg.Audio.OutputVolume*100 + 0.5),
		Welcome:      b.cfg.Chat.Welcome,
		LogLevel:     b.cfg.Log.Level,
	}
}

// SaveSettings validates, applies and saves all settings. The server URL
// and the round trip switch take effect on restart.
func (b *SettingsBridge) SaveSettings(settings SettingsData) error {
	speaker, err := tts.ResolveVoice(settings.Speaker)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.cfg.API.BaseURL = settings.ServerURL
	b.cfg.Voice.Speaker = speaker
	b.cfg.Voice.Enhanced = settings.Enhanced
	b.cfg.Voice.Denoise = settings.Denoise
	b.cfg.Voice.RoundTrip = settings.RoundTrip
	b.cfg.Audio.OutputVolume = volumeFraction(settings.OutputVolume)
	b.cfg.Chat.Welcome = settings.Welcome
	b.cfg.Log.Level = settings.LogLevel
	err = config.SaveTo(b.cfg, b.path)
	cfg := *b.cfg
	b.mu.Unlock()

	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to save settings")
		return err
	}
	b.apply(&cfg)
	b.logger.Info().Str("speaker", speaker).Msg("Settings saved")
	b.emit(b.ctx, "settings:saved", b.GetSettings())
	return nil
}

// SetVolume sets the output volume (0-100) without saving
func (b *SettingsBridge) SetVolume(volume int) {
	b.mu.Lock()
	b.cfg.Audio.OutputVolume = volumeFraction(volume)
	vol := b.cfg.Audio.OutputVolume
	b.mu.Unlock()

	b.page.Audio().SetVolume(vol)
	b.emit(b.ctx, "settings:volume_changed", volume)
}

// Reload adopts a configuration read from disk, e.g. after the file was
// edited by hand.
func (b *SettingsBridge) Reload(cfg *config.Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()

	b.apply(cfg)
	b.emit(b.ctx, "settings:saved", b.GetSettings())
}

// apply pushes the settings that can change at runtime to the page.
func (b *SettingsBridge) apply(cfg *config.Config) {
	if b.levels != nil && cfg.Log.Level != "" {
		b.levels.SetLevel(cfg.Log.Level)
	}
	if speaker, err := tts.ResolveVoice(cfg.Voice.Speaker); err == nil {
		b.page.Voice().SetVoice(speaker)
	}
	b.page.Audio().SetVolume(cfg.Audio.OutputVolume)
}

func volumeFraction(volume int) float64 {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return float64(volume) / 100
}

package config

import (
	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/activity"
	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/audio"
	"github.com/normanking/consultavatar/internal/avatar"
	"github.com/normanking/consultavatar/internal/chat"
	"github.com/normanking/consultavatar/internal/page"
	"github.com/normanking/consultavatar/internal/stt"
	"github.com/normanking/consultavatar/internal/tts"
	"github.com/normanking/consultavatar/internal/voice"
)

// AnimationKeywords returns the clip keywords keyed by state. Unknown
// state names are ignored; an empty table falls back to the defaults.
func (c *Config) AnimationKeywords() map[animation.State][]string {
	out := make(map[animation.State][]string, len(c.Avatar.Keywords))
	for name, keys := range c.Avatar.Keywords {
		s := animation.State(name)
		if s.Valid() && len(keys) > 0 {
			out[s] = keys
		}
	}
	if len(out) == 0 {
		return animation.DefaultKeywords()
	}
	return out
}

// RuntimeConfig returns the session loop settings.
func (c *Config) RuntimeConfig() avatar.RuntimeConfig {
	rc := avatar.DefaultRuntimeConfig()
	rc.FrameRate = c.Avatar.FrameRate
	if c.Avatar.PollInterval > 0 {
		rc.PollInterval = c.Avatar.PollInterval
	}
	if c.Avatar.MaxAttempts > 0 {
		rc.MaxAttempts = c.Avatar.MaxAttempts
	}
	return rc
}

// MixerOptions returns the mixer settings.
func (c *Config) MixerOptions() []animation.MixerOption {
	var opts []animation.MixerOption
	if c.Avatar.Crossfade > 0 {
		opts = append(opts, animation.WithCrossfade(c.Avatar.Crossfade))
	}
	return opts
}

// Timings returns the page activity timers.
func (c *Config) Timings() activity.Timings {
	t := activity.DefaultTimings()
	if c.Activity.MessageIdleDelay > 0 {
		t.MessageIdleDelay = c.Activity.MessageIdleDelay
	}
	if c.Activity.InactivityTimeout > 0 {
		t.InactivityTimeout = c.Activity.InactivityTimeout
	}
	if c.Activity.FarewellCooldown > 0 {
		t.FarewellCooldown = c.Activity.FarewellCooldown
	}
	return t
}

// ChatClientConfig returns the question answering client settings.
func (c *Config) ChatClientConfig() chat.ClientConfig {
	return chat.ClientConfig{BaseURL: c.API.BaseURL, Timeout: c.API.Timeout}
}

// ChatServiceConfig returns the chat texts.
func (c *Config) ChatServiceConfig() chat.ServiceConfig {
	return chat.ServiceConfig{
		Welcome:     c.Chat.Welcome,
		NoAnswer:    c.Chat.NoAnswer,
		ErrorNotice: c.Chat.ErrorNotice,
	}
}

// HistoryConfig returns the message log settings.
func (c *Config) HistoryConfig() chat.HistoryConfig {
	return chat.HistoryConfig{MaxMessages: c.Chat.MaxMessages}
}

// STTConfig returns the speech recognition settings.
func (c *Config) STTConfig() *stt.Config {
	cfg := stt.DefaultConfig()
	cfg.BaseURL = c.API.BaseURL
	cfg.Timeout = c.API.Timeout
	cfg.Enhanced = c.Voice.Enhanced
	cfg.Denoise = c.Voice.Denoise
	return cfg
}

// TTSConfig returns the speech synthesis settings.
func (c *Config) TTSConfig() *tts.Config {
	cfg := tts.DefaultConfig()
	cfg.BaseURL = c.API.BaseURL
	cfg.Timeout = c.API.Timeout
	if c.Voice.Speaker != "" {
		cfg.DefaultVoice = c.Voice.Speaker
	}
	return cfg
}

// VoiceClientConfig returns the voice round trip settings.
func (c *Config) VoiceClientConfig() voice.ClientConfig {
	return voice.ClientConfig{
		BaseURL:  c.API.BaseURL,
		Timeout:  c.API.Timeout,
		Speaker:  c.Voice.Speaker,
		Enhanced: c.Voice.Enhanced,
		Denoise:  c.Voice.Denoise,
	}
}

// AudioConfig returns the playback settings.
func (c *Config) AudioConfig() *audio.AudioConfig {
	return &audio.AudioConfig{
		SampleRate:   c.Audio.SampleRate,
		BufferMs:     c.Audio.BufferMs,
		OutputVolume: c.Audio.OutputVolume,
	}
}

// PageOptions returns the per-page settings.
func (c *Config) PageOptions() page.Options {
	opts := page.DefaultOptions()
	opts.Runtime = c.RuntimeConfig()
	opts.Timings = c.Timings()
	opts.Mixer = c.MixerOptions()
	opts.Chat = c.ChatServiceConfig()
	opts.History = c.HistoryConfig()
	opts.Audio = c.AudioConfig()
	if id, err := tts.ResolveVoice(c.Voice.Speaker); err == nil {
		opts.VoiceID = id
	}
	return opts
}

// PageDeps builds the backend clients shared by every page and loads the
// avatar model. A model that fails to load is logged and left out; pages
// then run without animations.
func (c *Config) PageDeps(logger zerolog.Logger) page.Deps {
	deps := page.Deps{
		Asker: chat.NewClient(c.ChatClientConfig(), logger),
		STT:   stt.NewConsultantProvider(c.STTConfig(), logger),
		TTS:   tts.NewConsultantProvider(c.TTSConfig(), logger),
	}
	if c.Voice.RoundTrip {
		deps.RoundTrip = voice.NewClient(c.VoiceClientConfig(), logger)
	}

	if c.Avatar.ModelPath == "" {
		return deps
	}
	lib, err := animation.LoadLibrary(c.Avatar.ModelPath, c.AnimationKeywords())
	if err != nil {
		logger.Warn().Err(err).Str("model", c.Avatar.ModelPath).Msg("Avatar model unavailable, animations disabled")
		return deps
	}
	deps.Library = lib
	return deps
}

package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/audio"
	"github.com/normanking/consultavatar/internal/metrics"
)

// ConsultantProvider synthesizes speech through POST /api/voice/tts.
type ConsultantProvider struct {
	config     *Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewConsultantProvider creates a new consultant TTS provider
func NewConsultantProvider(config *Config, logger zerolog.Logger) *ConsultantProvider {
	if config == nil {
		config = DefaultConfig()
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &ConsultantProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With().Str("provider", "consultant_tts").Logger(),
	}
}

// Name returns the provider identifier
func (p *ConsultantProvider) Name() string {
	return "consultant"
}

// SetDefaultVoice changes the speaker used when a request names none.
func (p *ConsultantProvider) SetDefaultVoice(id string) error {
	voice, err := ResolveVoice(id)
	if err != nil {
		return err
	}
	p.config.DefaultVoice = voice
	return nil
}

// DefaultVoice returns the configured speaker.
func (p *ConsultantProvider) DefaultVoice() string {
	return p.config.DefaultVoice
}

// Synthesize converts text to WAV audio.
func (p *ConsultantProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if p.config.MaxTextLength > 0 && utf8.RuneCountInString(text) > p.config.MaxTextLength {
		return nil, fmt.Errorf("%w: %d characters", ErrTextTooLong, utf8.RuneCountInString(text))
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.DefaultVoice
	}
	voice, err := ResolveVoice(voiceID)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	query := url.Values{}
	query.Set("text", text)
	query.Set("speaker", voice)
	query.Set("return_file", strconv.FormatBool(p.config.ReturnFile))
	endpoint := p.config.BaseURL + "/api/voice/tts?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	p.logger.Debug().Str("speaker", voice).Int("chars", utf8.RuneCountInString(text)).Msg("Sending TTS request")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		metrics.VoiceRequests.WithLabelValues("tts", "error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	metrics.VoiceRequests.WithLabelValues("tts", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusServiceUnavailable {
			return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("TTS service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := p.readAudio(resp)
	if err != nil {
		return nil, err
	}

	info, err := audio.Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("TTS returned unplayable audio: %w", err)
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("speaker", voice).
		Dur("duration", info.Duration).
		Dur("processing_time", processingTime).
		Msg("TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          data,
		Format:         string(audio.FormatWAV),
		SampleRate:     info.SampleRate,
		Duration:       info.Duration,
		ProcessingTime: processingTime,
		VoiceID:        voice,
		Provider:       p.Name(),
	}, nil
}

func (p *ConsultantProvider) readAudio(resp *http.Response) ([]byte, error) {
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read audio: %w", err)
		}
		return data, nil
	}

	var body struct {
		AudioBase64 string `json:"audio_base64"`
		SampleRate  int    `json:"sample_rate"`
		Speaker     string `json:"speaker"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(body.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}
	return data, nil
}

// ListVoices returns the service's speakers.
func (p *ConsultantProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	voices := make([]Voice, len(Voices))
	copy(voices, Voices)
	return voices, nil
}

// Health checks GET /api/voice/status for TTS availability.
func (p *ConsultantProvider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/voice/status", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("voice service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("voice service unhealthy (status %d)", resp.StatusCode)
	}

	var status struct {
		TTSAvailable bool `json:"tts_available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	if !status.TTSAvailable {
		return ErrProviderUnavailable
	}
	return nil
}

package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/audio"
	"github.com/normanking/consultavatar/internal/metrics"
)

// ConsultantProvider transcribes through POST /api/voice/stt.
type ConsultantProvider struct {
	config     *Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewConsultantProvider creates a new consultant STT provider
func NewConsultantProvider(config *Config, logger zerolog.Logger) *ConsultantProvider {
	if config == nil {
		config = DefaultConfig()
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &ConsultantProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With().Str("provider", "consultant_stt").Logger(),
	}
}

// Name returns the provider identifier
func (p *ConsultantProvider) Name() string {
	return "consultant"
}

// Transcribe converts audio to text. Raw PCM is wrapped in a WAV container
// first; other formats are uploaded as recorded.
func (p *ConsultantProvider) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error) {
	if len(req.Audio) < p.config.MinBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrAudioTooShort, len(req.Audio))
	}
	startTime := time.Now()

	payload := req.Audio
	filename := "recording.wav"
	switch strings.ToLower(req.Format) {
	case "pcm":
		payload = audio.EncodeWAV(req.Audio, req.SampleRate, req.Channels)
	case "", "wav":
	default:
		filename = "recording." + strings.ToLower(req.Format)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	query := url.Values{}
	query.Set("enhanced", strconv.FormatBool(p.config.Enhanced))
	query.Set("denoise", strconv.FormatBool(p.config.Denoise))
	endpoint := p.config.BaseURL + "/api/voice/stt?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	p.logger.Debug().Str("url", endpoint).Int("bytes", len(payload)).Msg("Sending STT request")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		metrics.VoiceRequests.WithLabelValues("stt", "error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	metrics.VoiceRequests.WithLabelValues("stt", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var sttResp struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Segments int    `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sttResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	processingTime := time.Since(startTime)
	p.logger.Info().
		Str("text", sttResp.Text).
		Str("language", sttResp.Language).
		Dur("processing_time", processingTime).
		Msg("STT transcription complete")

	return &TranscribeResponse{
		Text:           strings.TrimSpace(sttResp.Text),
		Language:       sttResp.Language,
		Segments:       sttResp.Segments,
		ProcessingTime: processingTime,
	}, nil
}

// Health checks GET /api/voice/status for STT availability.
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
		STTAvailable bool `json:"stt_available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	if !status.STTAvailable {
		return ErrProviderUnavailable
	}
	return nil
}

// statusError maps the API's {"detail": ...} errors onto sentinels.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(raw))

	var body struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Detail != "" {
		detail = body.Detail
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrNoSpeech, detail)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrProviderUnavailable, detail)
	default:
		return fmt.Errorf("voice service returned status %d: %s", resp.StatusCode, detail)
	}
}

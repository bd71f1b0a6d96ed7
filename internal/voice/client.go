package voice

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

	"github.com/normanking/consultavatar/internal/metrics"
)

// Status is the availability report of GET /api/voice/status.
type Status struct {
	STTAvailable            bool `json:"stt_available"`
	TTSAvailable            bool `json:"tts_available"`
	RAGAvailable            bool `json:"rag_available"`
	AudioConverterAvailable bool `json:"audio_converter_available"`
	NoiseReduceAvailable    bool `json:"noise_reduce_available"`
	VoiceChatAvailable      bool `json:"voice_chat_available"`
}

// RoundTrip is the result of one spoken question.
type RoundTrip struct {
	Question string
	Answer   string
	Audio    []byte // WAV
}

// ClientConfig configures the voice chat client.
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Speaker  string
	Enhanced bool
	Denoise  bool
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:  "http://127.0.0.1:8000",
		Timeout:  120 * time.Second,
		Speaker:  "xenia",
		Enhanced: true,
	}
}

// Client calls the voice round trip and status endpoints.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a voice chat client.
func NewClient(config ClientConfig, logger zerolog.Logger) *Client {
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With().Str("component", "voice_client").Logger(),
	}
}

// SetSpeaker changes the voice of round trip answers.
func (c *Client) SetSpeaker(speaker string) {
	c.config.Speaker = speaker
}

// Ask uploads a recorded question to POST /api/voice/voice-chat and returns
// the spoken answer with both texts.
func (c *Client) Ask(ctx context.Context, recording []byte, filename string) (*RoundTrip, error) {
	if filename == "" {
		filename = "question.wav"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(recording); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	query := url.Values{}
	query.Set("speaker", c.config.Speaker)
	query.Set("enhanced", strconv.FormatBool(c.config.Enhanced))
	query.Set("denoise", strconv.FormatBool(c.config.Denoise))
	endpoint := c.config.BaseURL + "/api/voice/voice-chat?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.VoiceRequests.WithLabelValues("voice_chat", "error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	metrics.VoiceRequests.WithLabelValues("voice_chat", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	rt := &RoundTrip{
		Question: headerText(resp.Header.Get("X-Question-Text")),
		Answer:   headerText(resp.Header.Get("X-Answer-Text")),
		Audio:    data,
	}
	c.logger.Info().
		Str("question", rt.Question).
		Int("audio_bytes", len(data)).
		Dur("latency", time.Since(start)).
		Msg("Voice chat complete")
	return rt, nil
}

// Status fetches GET /api/voice/status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/voice/status", nil)
	if err != nil {
		return Status{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("voice service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, readError(resp)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, nil
}

// headerText undoes the percent-encoding of the text headers. Values that
// do not decode are returned as sent.
func headerText(v string) string {
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

// APIError carries the detail of a failed voice request.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voice service returned status %d: %s", e.StatusCode, e.Detail)
}

func readError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}

	var body struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Detail != "" {
		apiErr.Detail = body.Detail
	}
	return apiErr
}

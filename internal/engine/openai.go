package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// OpenAIConfig configures the Whisper-compatible client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string        // e.g. https://api.openai.com/v1
	Model      string        // e.g. whisper-1
	Timeout    time.Duration // per attempt
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// OpenAI calls POST {BaseURL}/audio/transcriptions with verbose_json so the
// response carries the duration and detected language.
type OpenAI struct {
	cfg  OpenAIConfig
	http *http.Client
}

// NewOpenAI validates cfg and returns a client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("engine: api key cannot be empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &OpenAI{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// StatusError is a non-2xx answer from the engine.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine http %d: %s", e.Code, e.Body)
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Transcribe sends audio, retrying transient failures with exponential backoff.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, fileName string) (*Result, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if fileName == "" {
		fileName = "audio"
	}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := o.cfg.Backoff << (attempt - 1)
			if delay > o.cfg.MaxBackoff || delay <= 0 {
				delay = o.cfg.MaxBackoff
			}
			log.Debug().Int("attempt", attempt).Dur("backoff", delay).Err(lastErr).Msg("engine retry")
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			}
		}

		res, err := o.do(ctx, audio, fileName)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return nil, fmt.Errorf("transcription failed: %w", lastErr)
}

func (o *OpenAI) do(ctx context.Context, audio []byte, fileName string) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"model":           o.cfg.Model,
		"response_format": "verbose_json",
	} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(fileName))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var vr verboseResponse
	if err := json.Unmarshal(raw, &vr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Result{
		Text:            strings.TrimSpace(vr.Text),
		Language:        vr.Language,
		DurationSeconds: vr.Duration,
	}, nil
}

// retryable reports whether another attempt could succeed: transport errors
// and 429/5xx answers, unless the caller's context is done.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ue interface{ Timeout() bool }
	if errors.As(err, &ue) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "connection") || strings.Contains(low, "eof")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

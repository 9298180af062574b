package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
)

// Sidecar endpoints.
const (
	audioAnalyzePath = "/analyze/audio"
	videoAnalyzePath = "/analyze/video"
)

// analyzeRequest is the sidecar request body. Data marshals to base64.
type analyzeRequest struct {
	Data []byte `json:"data"`
}

// HTTPConfig configures the HTTP engine.
type HTTPConfig struct {
	// BaseURL of the model sidecar, e.g. "http://inference:8500".
	BaseURL string

	// Timeout per analyze call. Defaults to 30s.
	Timeout time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// HTTPEngine calls the model sidecar with JSON POSTs. The sidecar owns
// the models; this side only moves bytes and classifies failures.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ Engine = (*HTTPEngine)(nil)

// NewHTTPEngine creates an engine for the given sidecar.
func NewHTTPEngine(cfg HTTPConfig) (*HTTPEngine, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPEngine", "NewHTTPEngine", "base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.WrapInvalid(err, "HTTPEngine", "NewHTTPEngine", "invalid base url")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPEngine{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// AnalyzeAudio implements Engine.
func (e *HTTPEngine) AnalyzeAudio(ctx context.Context, payload []byte) (*message.AudioResult, error) {
	var result message.AudioResult
	if err := e.analyze(ctx, audioAnalyzePath, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AnalyzeVideo implements Engine.
func (e *HTTPEngine) AnalyzeVideo(ctx context.Context, payload []byte) (*message.VideoResult, error) {
	var result message.VideoResult
	if err := e.analyze(ctx, videoAnalyzePath, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (e *HTTPEngine) analyze(ctx context.Context, path string, payload []byte, dest any) error {
	body, err := json.Marshal(analyzeRequest{Data: payload})
	if err != nil {
		return errors.WrapInvalid(err, "HTTPEngine", "analyze", "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.WrapInvalid(err, "HTTPEngine", "analyze", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "HTTPEngine", "analyze", "call model sidecar")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)

		statusErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return errors.WrapInvalid(statusErr, "HTTPEngine", "analyze", "sidecar rejected request")
		}
		return errors.WrapTransient(statusErr, "HTTPEngine", "analyze", "sidecar call")
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.WrapInvalid(err, "HTTPEngine", "analyze", "decode response")
	}
	return nil
}

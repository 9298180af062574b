package inference

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, baseURL string) *HTTPEngine {
	t.Helper()

	engine, err := NewHTTPEngine(HTTPConfig{BaseURL: baseURL, Logger: discardLogger()})
	require.NoError(t, err)
	return engine
}

func TestHTTPEngineAnalyzeAudio(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, audioAnalyzePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, payload, req.Data)

		result := message.AudioResult{
			IsCrying:         true,
			Confidence:       0.93,
			InferenceTimeMs:  18.2,
			AudioDurationSec: 1.0,
			ModelUsed:        ModelONNX,
		}
		require.NoError(t, json.NewEncoder(w).Encode(result))
	}))
	defer server.Close()

	// Trailing slash must not produce a double-slash path.
	engine := newTestEngine(t, server.URL+"/")

	result, err := engine.AnalyzeAudio(context.Background(), payload)
	require.NoError(t, err)

	assert.True(t, result.IsCrying)
	assert.InDelta(t, 0.93, result.Confidence, 1e-9)
	assert.Equal(t, ModelONNX, result.ModelUsed)
}

func TestHTTPEngineAnalyzeVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, videoAnalyzePath, r.URL.Path)

		result := message.VideoResult{
			FrameNumber: 42,
			Detections: []message.Detection{
				{ClassID: 0, ClassName: "person", Confidence: 0.88, Area: 12000},
			},
			Analysis: message.SceneAnalysis{
				PersonDetected: true,
				BabyLikely:     true,
				ActivityLevel:  message.ActivityLevelMedium,
			},
			ModelUsed: ModelYOLO,
		}
		require.NoError(t, json.NewEncoder(w).Encode(result))
	}))
	defer server.Close()

	engine := newTestEngine(t, server.URL)

	result, err := engine.AnalyzeVideo(context.Background(), []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)

	assert.Equal(t, 42, result.FrameNumber)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "person", result.Detections[0].ClassName)
	assert.True(t, result.Analysis.BabyLikely)
	assert.Equal(t, ModelYOLO, result.ModelUsed)
}

func TestHTTPEngineErrorClassification(t *testing.T) {
	t.Run("server error is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model loading", http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := newTestEngine(t, server.URL).AnalyzeAudio(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	})

	t.Run("rejected request is invalid", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad payload", http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := newTestEngine(t, server.URL).AnalyzeVideo(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("malformed response body is invalid", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := newTestEngine(t, server.URL).AnalyzeAudio(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("unreachable sidecar is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		_, err := newTestEngine(t, server.URL).AnalyzeAudio(context.Background(), []byte{0x01})
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	})
}

func TestNewHTTPEngineRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPEngine(HTTPConfig{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

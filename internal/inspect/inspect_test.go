package inspect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/arbitrage-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/arbitrage-cli/pkg/anthropic/mocks"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/silver.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>not an image</body></html>"))
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write(pngBytes)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestInspect_Success(t *testing.T) {
	srv := imageServer(t)
	ai := anthropicmocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "sonnet" &&
			len(req.Messages) == 1 &&
			len(req.Messages[0].Images) == 1 &&
			req.Messages[0].Images[0].MediaType == "image/png"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"hallmarks_detected": true, "marks": ["STERLING", "lion passant"], "metal": "silver", "purity_mark": "925", "estimated_purity": 0.925, "maker": null, "confidence": 0.8, "notes": null}`}},
	}, nil).Once()

	got, err := New(ai, "sonnet", 0, time.Second, nil).Inspect(context.Background(), srv.URL+"/silver.png")
	require.NoError(t, err)

	assert.True(t, got.HallmarksDetected)
	assert.Equal(t, []string{"STERLING", "lion passant"}, got.Marks)
	assert.Equal(t, "silver", got.Metal)
	assert.Equal(t, "925", got.PurityMark)
	require.NotNil(t, got.EstimatedPurity)
	assert.InDelta(t, 0.925, *got.EstimatedPurity, 1e-9)
	assert.Empty(t, got.Maker)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
}

func TestInspect_ProviderError(t *testing.T) {
	srv := imageServer(t)
	ai := anthropicmocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key")).Once()

	_, err := New(ai, "sonnet", 0, time.Second, nil).Inspect(context.Background(), srv.URL+"/silver.png")
	require.Error(t, err)
}

func TestInspect_BadFindings(t *testing.T) {
	srv := imageServer(t)
	ai := anthropicmocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"hallmarks_detected": "maybe"}`}},
	}, nil).Once()

	_, err := New(ai, "sonnet", 0, time.Second, nil).Inspect(context.Background(), srv.URL+"/silver.png")
	require.Error(t, err)
}

func TestInspect_NotAnImage(t *testing.T) {
	srv := imageServer(t)
	ai := anthropicmocks.NewMockClient(t)

	_, err := New(ai, "sonnet", 0, time.Second, nil).Inspect(context.Background(), srv.URL+"/page.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image type")
}

func TestInspect_DownloadTimeout(t *testing.T) {
	srv := imageServer(t)
	ai := anthropicmocks.NewMockClient(t)

	_, err := New(ai, "sonnet", 0, 50*time.Millisecond, nil).Inspect(context.Background(), srv.URL+"/slow.png")
	require.Error(t, err)
}

func TestInspect_MissingImage(t *testing.T) {
	srv := imageServer(t)
	ai := anthropicmocks.NewMockClient(t)

	_, err := New(ai, "sonnet", 0, time.Second, nil).Inspect(context.Background(), srv.URL+"/gone.png")
	require.Error(t, err)
}

func TestInspect_NoClient(t *testing.T) {
	_, err := New(nil, "sonnet", 0, time.Second, nil).Inspect(context.Background(), "https://x/1.png")
	require.Error(t, err)
}

func TestDetectMediaType(t *testing.T) {
	assert.Equal(t, "image/png", detectMediaType("application/octet-stream", pngBytes))
	assert.Equal(t, "image/webp", detectMediaType("image/webp", []byte("not sniffable")))
	assert.Equal(t, "text/plain; charset=utf-8", detectMediaType("", []byte("plain text")))
}

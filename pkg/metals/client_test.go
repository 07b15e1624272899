package metals

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpotPrice_USDRate(t *testing.T) {
	var gotKey, gotSymbols string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		gotKey = r.URL.Query().Get("access_key")
		gotSymbols = r.URL.Query().Get("symbols")
		_, _ = io.WriteString(w, `{"success": true, "base": "USD", "rates": {"XAG": 0.0333, "USDXAG": 30.0}}`)
	}))
	defer srv.Close()

	price, err := NewClient("k", WithBaseURL(srv.URL+"/")).SpotPrice(context.Background(), "xag")
	require.NoError(t, err)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "XAG", gotSymbols)
	assert.InDelta(t, 30.0, price, 1e-9)
}

func TestSpotPrice_InverseRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success": true, "base": "USD", "rates": {"XAG": 0.04}}`)
	}))
	defer srv.Close()

	price, err := NewClient("k", WithBaseURL(srv.URL)).SpotPrice(context.Background(), "XAG")
	require.NoError(t, err)
	assert.InDelta(t, 25.0, price, 1e-9)
}

func TestSpotPrice_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "error": {"code": 101, "type": "invalid_access_key", "info": "bad key"}}`)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).SpotPrice(context.Background(), "XAG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestSpotPrice_MissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success": true, "rates": {}}`)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).SpotPrice(context.Background(), "XAG")
	require.Error(t, err)
}

func TestSpotPrice_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "maintenance")
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).SpotPrice(context.Background(), "XAG")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "maintenance", se.Body)
}

func TestSpotPrice_NoKey(t *testing.T) {
	_, err := NewClient("").SpotPrice(context.Background(), "XAG")
	require.Error(t, err)
}

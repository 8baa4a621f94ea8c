package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
)

func newTestClient(retries int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Second},
		retryCount: retries,
		retryDelay: time.Millisecond,
		log:        logger.Get(),
	}
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out map[string]interface{}
	_, err := newTestClient(4).GetJSON(context.Background(), srv.URL, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, true, out["ok"])
}

func TestGetJSONGivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out map[string]interface{}
	_, err := newTestClient(2).GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exhausted")
	// Initial attempt plus two retries.
	assert.Equal(t, 3, calls)
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var out map[string]interface{}
	_, err := newTestClient(4).GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

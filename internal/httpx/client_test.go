package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(retries int) *Client {
	return New(Config{
		Timeout:          5 * time.Second,
		MaxRetries:       retries,
		RetryDelay:       time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
	})
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := fastClient(3).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := fastClient(3).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := fastClient(0)
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL)
		require.Error(t, err)
	}

	_, err := c.Get(context.Background(), srv.URL)
	require.ErrorContains(t, err, "circuit breaker open")

	// after the recovery window one attempt is allowed through
	time.Sleep(60 * time.Millisecond)
	_, err = c.Get(context.Background(), srv.URL)
	assert.NotContains(t, err.Error(), "circuit breaker open")
}

func TestGzipDecompression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte("compressed payload"))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	resp, err := fastClient(0).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "compressed payload", string(body))
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://www.okx.com")

		if c.baseURL != "https://www.okx.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://www.okx.com")
		}
		if c.httpClient.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 10*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.limiter.Burst() != 20 {
			t.Errorf("limiter burst = %d, want 20", c.limiter.Burst())
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://www.okx.com", WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("with rate limit option", func(t *testing.T) {
		c := NewClient("https://www.okx.com", WithRateLimit(10, time.Second))
		if c.limiter.Burst() != 10 {
			t.Errorf("limiter burst = %d, want 10", c.limiter.Burst())
		}
		if got := float64(c.limiter.Limit()); got != 10 {
			t.Errorf("limiter rate = %v, want 10/s", got)
		}
	})

	t.Run("with multiple options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		customClient := &http.Client{Timeout: 3 * time.Second}
		c := NewClient("https://www.okx.com",
			WithHTTPClient(customClient),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
			WithUserAgent("okx-stream/dev"),
		)
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
		if c.maxRetries != 10 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 10)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.userAgent != "okx-stream/dev" {
			t.Errorf("userAgent = %q", c.userAgent)
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("https://www.okx.com", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{StatusCode: 404, Message: "Not Found"}
		if got, want := err.Error(), "okx api error 404: Not Found"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}

		err = &APIError{StatusCode: 200, Code: "51001", Message: "Instrument ID does not exist"}
		if got, want := err.Error(), "okx api error 200 (code 51001): Instrument ID does not exist"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			err      APIError
			expected bool
		}{
			{APIError{StatusCode: 500}, true},
			{APIError{StatusCode: 503}, true},
			{APIError{StatusCode: 429}, true},
			{APIError{StatusCode: 200, Code: "50011"}, true},
			{APIError{StatusCode: 200, Code: "51001"}, false},
			{APIError{StatusCode: 400}, false},
			{APIError{StatusCode: 404}, false},
		}

		for _, tt := range tests {
			if got := tt.err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for %d/%q = %v, want %v", tt.err.StatusCode, tt.err.Code, got, tt.expected)
			}
		}
	})
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("successful request unwraps data", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if r.Header.Get("User-Agent") != "ua-test" {
				t.Errorf("User-Agent = %q, want %q", r.Header.Get("User-Agent"), "ua-test")
			}
			w.Write([]byte(`{"code":"0","msg":"","data":[1,2]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithUserAgent("ua-test"))
		data, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `[1,2]` {
			t.Errorf("data = %q, want %q", string(data), `[1,2]`)
		}
	})

	t.Run("request with query parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("instId") != "BTC-USDT" {
				t.Errorf("instId = %q, want %q", r.URL.Query().Get("instId"), "BTC-USDT")
			}
			w.Write([]byte(`{"code":"0","data":[]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		query := map[string][]string{"instId": {"BTC-USDT"}}
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", query); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("non-zero code returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T (%v)", err, err)
		}
		if apiErr.Code != "51001" || apiErr.StatusCode != 200 {
			t.Errorf("APIError = %+v", apiErr)
		}
	})

	t.Run("4xx error carries envelope code", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"51000","msg":"Parameter bar error"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 400 || apiErr.Code != "51000" || apiErr.Message != "Parameter bar error" {
			t.Errorf("APIError = %+v", apiErr)
		}
	})

	t.Run("5xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`internal error`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 500 || apiErr.Message != "Internal Server Error" {
			t.Errorf("APIError = %+v", apiErr)
		}
	})

	t.Run("invalid envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("error should contain 'context canceled', got %v", err)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"code":"0","data":{"ok":true}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		data, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"ok":true}` {
			t.Errorf("data = %q", string(data))
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on rate limit code", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.Write([]byte(`{"code":"50011","msg":"Too Many Requests"}`))
				return
			}
			w.Write([]byte(`{"code":"0","data":[]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(2, 5*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Fatalf("error = %v, want max retries exceeded", err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
			t.Errorf("wrapped error = %v, want 503 APIError", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("context canceled during backoff", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.doWithRetry(ctx, http.MethodGet, "/test", nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Write([]byte(`{"code":"0","data":[]}`))
	}))
	defer server.Close()

	// One request per 50ms with no burst beyond the first.
	c := NewClient(server.URL, WithRateLimit(1, 50*time.Millisecond))
	start := time.Now()
	for range 3 {
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 requests took %v, want >= 100ms of limiter spacing", elapsed)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

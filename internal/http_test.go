package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	pkgerrs "redveil/pkg/errors"
)

func newTestDispatcher(t *testing.T, baseURL string) *Client {
	t.Helper()
	store := &TokenStore{acquirer: &fakeAcquirer{token: "test-token"}}
	c, err := NewClient(
		http.DefaultClient,
		store,
		baseURL,
		"test-agent/1.0",
		&RateLimitConfig{RequestsPerMinute: 600000, Burst: 1000},
		&RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond},
		nil,
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestFetchJSONSuccess(t *testing.T) {
	var gotAuth, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)
	raw, err := c.FetchJSON(context.Background(), "r/golang/hot.json", false)
	if err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("payload = %s", raw)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAgent != "test-agent/1.0" {
		t.Errorf("User-Agent = %q", gotAgent)
	}
}

func TestFetchJSONRetriesTransientFailures(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)
	raw, err := c.FetchJSON(context.Background(), "r/golang/hot.json", false)
	if err != nil {
		t.Fatalf("FetchJSON after transient failures: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("payload = %s", raw)
	}
	if n := atomic.LoadInt64(&hits); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestFetchJSONRetryExhaustion(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)
	_, err := c.FetchJSON(context.Background(), "r/golang/hot.json", false)
	if !pkgerrs.IsKind(err, pkgerrs.KindUpstream) {
		t.Fatalf("error = %v, want upstream kind", err)
	}
	var fe *pkgerrs.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %v", err)
	}
	// Initial attempt plus MaxRetries.
	if n := atomic.LoadInt64(&hits); n != 4 {
		t.Errorf("server hit %d times, want 4", n)
	}
}

func TestFetchJSONRestrictionsArePermanent(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   pkgerrs.Kind
	}{
		{name: "quarantined", status: 403, body: `{"reason":"quarantined"}`, want: pkgerrs.KindQuarantined},
		{name: "private", status: 403, body: `{"reason":"private"}`, want: pkgerrs.KindPrivate},
		{name: "banned", status: 404, body: `{"reason":"banned"}`, want: pkgerrs.KindBanned},
		{name: "gated", status: 403, body: `{"reason":"gated"}`, want: pkgerrs.KindGated},
		{name: "plain 404", status: 404, body: `{}`, want: pkgerrs.KindNotFound},
		{name: "unstructured marker", status: 403, body: `this community is private`, want: pkgerrs.KindPrivate},
		{name: "opaque 403", status: 403, body: `nope`, want: pkgerrs.KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt64(&hits, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestDispatcher(t, server.URL)
			_, err := c.FetchJSON(context.Background(), "r/test/hot.json", false)
			if !pkgerrs.IsKind(err, tt.want) {
				t.Fatalf("error = %v, want kind %s", err, tt.want)
			}
			if n := atomic.LoadInt64(&hits); n != 1 {
				t.Errorf("restriction retried: %d hits", n)
			}
		})
	}
}

func TestFetchJSONQuarantineOverride(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.URL.Query().Get("quarantine_opt_in") == "true" {
			w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"reason":"quarantined"}`))
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)

	// Without the opt-in the rejection is surfaced.
	_, err := c.FetchJSON(context.Background(), "r/scary/hot.json", false)
	if !pkgerrs.IsQuarantined(err) {
		t.Fatalf("error = %v, want quarantined", err)
	}

	// With the opt-in the request is replayed once with the ack parameter.
	raw, err := c.FetchJSON(context.Background(), "r/scary/hot.json", true)
	if err != nil {
		t.Fatalf("FetchJSON with opt-in: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("payload = %s", raw)
	}
	if n := atomic.LoadInt64(&hits); n != 3 {
		t.Errorf("server hit %d times, want 3 (reject, reject, ack)", n)
	}
}

func TestFetchJSONRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)
	_, err := c.FetchJSON(context.Background(), "r/test/hot.json", false)
	if !pkgerrs.IsKind(err, pkgerrs.KindRateLimited) {
		t.Fatalf("error = %v, want rate limited", err)
	}
}

func TestFetchJSONUnauthorizedInvalidatesToken(t *testing.T) {
	acq := &fakeAcquirer{token: "tok-1"}
	store := &TokenStore{acquirer: acq}

	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c, err := NewClient(http.DefaultClient, store, server.URL, "ua",
		&RateLimitConfig{RequestsPerMinute: 600000, Burst: 1000},
		&RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.FetchJSON(context.Background(), "r/test/hot.json", false); err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if n := atomic.LoadInt64(&acq.calls); n != 2 {
		t.Errorf("Acquire called %d times, want 2 (initial + after 401)", n)
	}
}

func TestFetchJSONMalformedBody(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)
	_, err := c.FetchJSON(context.Background(), "r/test/hot.json", false)
	if !pkgerrs.IsKind(err, pkgerrs.KindDecode) {
		t.Fatalf("error = %v, want decode kind", err)
	}
	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("malformed 2xx retried: %d hits", n)
	}
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			w.Header().Set("Content-Range", "bytes 0-3/10")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("abcd"))
			return
		}
		w.Write([]byte("abcdefghij"))
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)

	resp, err := c.Stream(context.Background(), server.URL+"/video.mp4", "")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "abcdefghij" {
		t.Errorf("body = %q", body)
	}

	resp, err = c.Stream(context.Background(), server.URL+"/video.mp4", "bytes=0-3")
	if err != nil {
		t.Fatalf("Stream with range: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", resp.StatusCode)
	}
	if resp.Header.Get("Content-Range") == "" {
		t.Error("Content-Range header dropped")
	}
}

func TestStreamNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestDispatcher(t, server.URL)
	_, err := c.Stream(context.Background(), server.URL+"/gone.jpg", "")
	if !pkgerrs.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestApplyRateHeadersDefersRequests(t *testing.T) {
	c := newTestDispatcher(t, "http://example.invalid")

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-Ratelimit-Remaining", "0")
	resp.Header.Set("X-Ratelimit-Reset", "0.05")
	c.applyRateHeaders(resp)

	c.mu.Lock()
	until := c.forceWaitUntil
	c.mu.Unlock()
	if until.IsZero() {
		t.Fatal("forced delay not armed")
	}

	start := time.Now()
	if err := c.waitForForcedDelay(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("waited only %v", elapsed)
	}

	c.mu.Lock()
	cleared := c.forceWaitUntil.IsZero()
	c.mu.Unlock()
	if !cleared {
		t.Error("forced delay not cleared after waiting")
	}
}

func TestWaitForForcedDelayHonorsContext(t *testing.T) {
	c := newTestDispatcher(t, "http://example.invalid")
	c.deferRequests(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.waitForForcedDelay(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

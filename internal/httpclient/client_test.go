package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rsilvagit/go-rent/internal/logger"
)

func newTestClient(t *testing.T, delay time.Duration) *Client {
	t.Helper()
	c, err := New(Options{UserAgent: "go-rent-test/1.0", HostDelay: delay, Timeout: 2 * time.Second, Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGetSendsIdentifyingUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := newTestClient(t, 0).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Errorf("body: got %q", body)
	}
	if gotUA != "go-rent-test/1.0" {
		t.Errorf("User-Agent: got %q", gotUA)
	}
}

func TestGetNon2xxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, 0).Get(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d", se.StatusCode)
	}
}

func TestProbeFallsBackToGetOn405(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	code, err := newTestClient(t, 0).Probe(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if code != http.StatusNotFound {
		t.Errorf("code: got %d, want 404", code)
	}
	if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodGet {
		t.Errorf("methods: got %v", methods)
	}
}

func TestHostDelaySpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	delay := 80 * time.Millisecond
	c := newTestClient(t, delay)

	start := time.Now()
	for range 3 {
		if _, err := c.Probe(context.Background(), srv.URL); err != nil {
			t.Fatalf("Probe: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("3 requests took %v, want at least %v", elapsed, 2*delay)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newTestClient(t, time.Hour)
	if _, err := c.Probe(context.Background(), srv.URL); err != nil {
		t.Fatalf("first Probe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Probe(ctx, srv.URL); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

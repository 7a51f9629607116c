package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbe_HealthyFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","environment":"production"}`))
	}))
	defer srv.Close()

	resp, err := NewProber(srv.URL, 3, nil).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !resp.Healthy() {
		t.Errorf("resp = %+v, want healthy", resp)
	}
	if resp.Environment != "production" {
		t.Errorf("Environment = %q", resp.Environment)
	}
}

func TestProbe_HealthyAfterWarmup(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","error":"db not ready"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	resp, err := NewProber(srv.URL, 5, nil).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !resp.Healthy() {
		t.Errorf("resp = %+v, want healthy after warmup", resp)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestProbe_ExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unhealthy","error":"migrations pending"}`))
	}))
	defer srv.Close()

	resp, err := NewProber(srv.URL, 2, nil).Probe(context.Background())
	if err == nil {
		t.Fatal("Probe should fail when never healthy")
	}
	if resp == nil || resp.Error != "migrations pending" {
		t.Errorf("last response = %+v, want application error surfaced", resp)
	}
}

func TestProbe_Unreachable(t *testing.T) {
	resp, err := NewProber("http://127.0.0.1:1/health/", 1, nil).Probe(context.Background())
	if err == nil {
		t.Fatal("Probe against closed port should fail")
	}
	if resp != nil {
		t.Errorf("resp = %+v, want nil when never reached", resp)
	}
}

func TestProbe_EmptyURL(t *testing.T) {
	if _, err := NewProber("", 3, nil).Probe(context.Background()); err == nil {
		t.Error("empty URL should fail")
	}
}

func TestProbe_UnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>login page</html>"))
	}))
	defer srv.Close()

	if _, err := NewProber(srv.URL, 1, nil).Probe(context.Background()); err == nil {
		t.Error("non-JSON body should fail the probe")
	}
}

func TestProbe_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unhealthy"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := NewProber(srv.URL, 50, nil).Probe(ctx); err == nil {
		t.Fatal("Probe should stop on context cancellation")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Probe did not respect context deadline")
	}
}

func TestResponseHealthy(t *testing.T) {
	var nilResp *Response
	if nilResp.Healthy() {
		t.Error("nil response is not healthy")
	}
	if (&Response{Status: "unhealthy"}).Healthy() {
		t.Error("unhealthy status is not healthy")
	}
	if !(&Response{Status: "healthy"}).Healthy() {
		t.Error("healthy status should be healthy")
	}
}

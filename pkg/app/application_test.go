package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"reservo/pkg/config"
	"reservo/pkg/contracts"
	"reservo/pkg/logger"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

type routes func(*httprouter.Router)

func (r routes) RegisterRoutes(router *httprouter.Router) { r(router) }

func testConfig() *config.Config {
	return &config.Config{
		Log:               logger.Discard(),
		Port:              "0",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    5 * time.Second,
		IdempotencyTTL:    time.Hour,
		MaxRequestSize:    1 << 20,
		ShutdownTimeout:   time.Second,
	}
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	a := NewApplication(testConfig())
	health := routes(func(r *httprouter.Router) {
		r.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			_, _ = io.WriteString(w, "ok")
		})
		r.GET("/ready", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			_, _ = io.WriteString(w, "ready")
		})
	})
	api := routes(func(r *httprouter.Router) {
		r.GET("/api/v1/ping", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			_, _ = io.WriteString(w, "pong")
		})
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "metrics")
	})
	a.SetApp(health, api, metrics)
	return a
}

func get(t *testing.T, base, path string, headers map[string]string) (int, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, base+path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

func TestApplication_ServesAndShutsDown(t *testing.T) {
	a := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	base := "http://" + ln.Addr().String()

	var workerStopped atomic.Bool
	var stoppedAfterServer atomic.Bool
	a.AddWorker("probe", contracts.WorkerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		resp, err := http.Get(base + "/health")
		if err != nil {
			stoppedAfterServer.Store(true)
		} else {
			resp.Body.Close()
		}
		workerStopped.Store(true)
		return ctx.Err()
	}))

	cleaned := make(chan struct{})
	a.OnShutdown(func() { close(cleaned) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	if code, body := get(t, base, "/health", nil); code != http.StatusOK || body != "ok" {
		t.Fatalf("/health = %d %q", code, body)
	}
	if code, body := get(t, base, "/metrics", nil); code != http.StatusOK || body != "metrics" {
		t.Fatalf("/metrics = %d %q", code, body)
	}
	if code, _ := get(t, base, "/api/v1/ping", nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous API call = %d, want 401", code)
	}
	if code, body := get(t, base, "/api/v1/ping", map[string]string{"X-User-ID": "alice"}); code != http.StatusOK || body != "pong" {
		t.Fatalf("API call = %d %q", code, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if !workerStopped.Load() || !stoppedAfterServer.Load() {
		t.Errorf("worker stopped=%v after server=%v", workerStopped.Load(), stoppedAfterServer.Load())
	}
	select {
	case <-cleaned:
	default:
		t.Error("shutdown hook not run")
	}
}

func TestApplication_WorkerFailureStopsServer(t *testing.T) {
	a := newTestApp(t)
	boom := errors.New("boom")
	a.AddWorker("failing", contracts.WorkerFunc(func(ctx context.Context) error {
		return boom
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background(), ln) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("Serve returned %v, want boom", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after worker failure")
	}
}

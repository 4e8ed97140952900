package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avolkov/paperboy/internal/cache"
	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/worker"
)

func fastFetcher(c cache.Cache) *Fetcher {
	f := NewFetcher(model.HTTPConfig{
		Timeout:   5 * time.Second,
		UserAgent: "paperboy-test",
		CacheTTL:  time.Minute,
	}, c)
	f.limiter = worker.NewLimiter(1000, 10)
	f.retry = worker.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
	return f
}

func TestFetcher_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "paperboy-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	body, err := fastFetcher(nil).Get(context.Background(), "arxiv", server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("expected payload, got %q", body)
	}
}

func TestFetcher_CacheHitSkipsRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	f := fastFetcher(cache.NewMemoryCache(time.Minute, time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := f.Get(context.Background(), "arxiv", server.URL); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}

	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits)
	}
}

func TestFetcher_RetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	body, err := fastFetcher(nil).Get(context.Background(), "arxiv", server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("expected recovered, got %q", body)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestFetcher_NoRetryOnNotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := fastFetcher(nil).Get(context.Background(), "arxiv", server.URL); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestExists(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/api/v1/artifacts/art-1":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/artifacts/art-missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "art-1")
	if err != nil {
		t.Fatalf("Exists вернул ошибку: %v", err)
	}
	if !exists {
		t.Error("Exists(art-1): хотели true, получили false")
	}

	exists, err = c.Exists(ctx, "art-missing")
	if err != nil {
		t.Fatalf("Exists вернул ошибку: %v", err)
	}
	if exists {
		t.Error("Exists(art-missing): хотели false, получили true")
	}
}

func TestExistsCached(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := c.Exists(ctx, "art-1"); err != nil {
			t.Fatalf("Exists вернул ошибку: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("HTTP-вызовы: хотели 1 (остальные из кэша), получили %d", got)
	}
}

func TestExistsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	if _, err := c.Exists(context.Background(), "art-1"); err == nil {
		t.Error("Exists при 500: хотели ошибку, получили nil")
	}
}

func TestStatic(t *testing.T) {
	all := &Static{}
	if ok, _ := all.Exists(context.Background(), "любой"); !ok {
		t.Error("Static без списка: хотели true")
	}

	limited := &Static{Artifacts: map[string]bool{"art-1": true}}
	if ok, _ := limited.Exists(context.Background(), "art-1"); !ok {
		t.Error("Static: хотели true для известного артефакта")
	}
	if ok, _ := limited.Exists(context.Background(), "art-2"); ok {
		t.Error("Static: хотели false для неизвестного артефакта")
	}
}

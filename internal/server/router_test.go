package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fedutinova/narrator/internal/config"
	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/fedutinova/narrator/internal/registry"
	"github.com/fedutinova/narrator/internal/storage"
	httpapi "github.com/fedutinova/narrator/internal/transport/http"
	"github.com/fedutinova/narrator/internal/workers"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(dir, "artifacts"), "")
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	m := metrics.New()
	jobs := registry.New(registry.WithMetrics(m))
	h := &httpapi.Handlers{
		Jobs:       jobs,
		Dispatcher: workers.NewDispatcher(jobs, nil, workers.NewCatalog(dir)),
		Storage:    store,
		Metrics:    m,
		Config:     config.Config{StorageMode: "local"},
	}
	return NewRouter(h, m, []string{"https://app.example.com"})
}

func TestRouterCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no allow-origin header for unknown origin, got %q", got)
	}
}

func TestRouterExposesMetrics(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("Expected process collectors in metrics output")
	}
}

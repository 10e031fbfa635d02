package routing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRouter_RejectsUndeclaredRoutes(t *testing.T) {
	t.Parallel()
	r := NewRouter(newTestClassifier(t))

	if err := r.Handle(http.MethodGet, "/device/api/undeclared", http.NotFoundHandler()); err == nil {
		t.Fatal("expected undeclared path error")
	}
	if err := r.Handle(http.MethodPost, "/device/api/access", http.NotFoundHandler()); err == nil {
		t.Fatal("expected undeclared method error")
	}
}

func TestRouter_PanicBecomes500JSON(t *testing.T) {
	t.Parallel()
	r := NewRouter(newTestClassifier(t))
	if err := r.Handle(http.MethodGet, "/device/api/access", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/device/api/access", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"internal_error"`) {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	r := NewRouter(newTestClassifier(t))
	if err := r.Handle(http.MethodGet, "/device/api/access", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/device/api/access", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/device/api/access", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"method_not_allowed"`) {
		t.Fatalf("body=%q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/device/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content-type=%q", ct)
	}
}

func TestEntrypointClass_Fallback(t *testing.T) {
	t.Parallel()
	if got := entrypointClass(map[string]routeEntry{}, RouteClassUnknown); got != RouteClassUnknown {
		t.Fatalf("got=%q", got)
	}
}

package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anchordesk/backend/internal/models"
)

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req textRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(textResponse{Text: "[" + req.TargetLanguage + "] " + req.Text})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 1, 0, nil)
	got, err := c.Translate(context.Background(), "hello", "ja")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "[ja] hello" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateEmptyTextIsNoop(t *testing.T) {
	c := NewClient("http://unreachable.invalid", "", time.Second, 1, 0, nil)
	got, err := c.Translate(context.Background(), "", "ja")
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestTranslatePackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate-package" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req packageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := PackageResult{Title: "t", Script: "s"}
		for range req.Highlights {
			out.Highlights = append(out.Highlights, "h")
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 1, 0, nil)
	got, err := c.TranslatePackage(context.Background(), "title", "script", []string{"a", "b"}, "th")
	if err != nil {
		t.Fatalf("TranslatePackage: %v", err)
	}
	if got.Script != "s" || len(got.Highlights) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestTranslateRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(textResponse{Text: "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 3, time.Millisecond, nil)
	got, err := c.Translate(context.Background(), "x", "hi")
	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestTranslateFailureWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 2, time.Millisecond, nil)
	_, err := c.Translate(context.Background(), "x", "hi")
	if !errors.Is(err, models.ErrTranslation) {
		t.Fatalf("err = %v, want ErrTranslation", err)
	}
}

func TestTranslatePackageRejectsEmptyScript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PackageResult{Title: "t"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 1, 0, nil)
	_, err := c.TranslatePackage(context.Background(), "t", "s", nil, "ja")
	if !errors.Is(err, models.ErrTranslation) {
		t.Fatalf("err = %v, want ErrTranslation", err)
	}
}

package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anchordesk/backend/internal/models"
)

func TestDraft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.QuestionPersona != "cfo" {
			t.Errorf("persona = %q", req.QuestionPersona)
		}
		_ = json.NewEncoder(w).Encode(Result{
			Script:      "drafted script",
			Highlights:  []string{"h1", "h2"},
			Reflections: []string{"r1"},
			Questions:   []string{"q1"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 1, 0, nil)
	got, err := c.Draft(context.Background(), Request{SummaryRaw: "raw", QuestionPersona: "cfo"})
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if got.Script != "drafted script" || len(got.Highlights) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestDraftRejectsEmptySummary(t *testing.T) {
	c := NewClient("http://unreachable.invalid", "", time.Second, 1, 0, nil)
	_, err := c.Draft(context.Background(), Request{})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDraftFailureWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 2, time.Millisecond, nil)
	_, err := c.Draft(context.Background(), Request{SummaryRaw: "raw"})
	if !errors.Is(err, models.ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
}

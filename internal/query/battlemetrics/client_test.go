package battlemetrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"dayzmon/internal/monitor"
)

const doc = `{"data":{"id":"123","attributes":{"name":"DayZ EU","status":"online","players":40,"maxPlayers":60,"details":{"map":"chernarusplus","time":"12:34"}}}}`

func TestQuery_ETagReplay(t *testing.T) {
	t.Parallel()

	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/servers/123" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	c := NewClient("123", "tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	for i := 0; i < 2; i++ {
		raw, err := c.Query(context.Background())
		if err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
		if raw.Name != "DayZ EU" || raw.Map != "chernarusplus" || raw.Players != 40 || raw.MaxPlayers != 60 {
			t.Fatalf("query %d: unexpected raw %+v", i, raw)
		}
		if raw.Keywords == nil || *raw.Keywords != "12:34" {
			t.Fatalf("query %d: keywords %v", i, raw.Keywords)
		}
	}
	if hits.Load() != 2 || notModified.Load() != 1 {
		t.Fatalf("hits=%d notModified=%d", hits.Load(), notModified.Load())
	}
}

func TestQuery_MissingTimeGivesNilKeywords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"attributes":{"name":"x","players":1,"maxPlayers":2,"details":{}}}}`))
	}))
	defer srv.Close()

	raw, err := NewClient("1", "", WithBaseURL(srv.URL)).Query(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if raw.Keywords != nil {
		t.Fatalf("expected nil keywords")
	}
	if _, err := monitor.Extract(raw); !errors.Is(err, monitor.ErrMissingKeywords) {
		t.Fatalf("expected ErrMissingKeywords, got %v", err)
	}
}

func TestQuery_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusBadGateway, want: monitor.ErrNetwork},
		{name: "not found", status: http.StatusNotFound, want: monitor.ErrNetwork},
		{name: "bad json", status: http.StatusOK, body: `{"data":`, want: monitor.ErrProtocol},
		{name: "offline", status: http.StatusOK, body: `{"data":{"attributes":{"status":"offline"}}}`, want: monitor.ErrNetwork},
		{name: "304 without cache", status: http.StatusNotModified, want: monitor.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("1", "", WithBaseURL(srv.URL)).Query(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestQuery_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	_, err := NewClient("1", "", WithBaseURL(u)).Query(context.Background())
	if !errors.Is(err, monitor.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

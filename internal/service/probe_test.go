package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"streamhostd/pkg/types"
)

func newTestClient(t *testing.T, url string, probeTimeout time.Duration) *Client {
	t.Helper()
	return NewClient(url, probeTimeout, 500*time.Millisecond, zerolog.Nop())
}

func TestProbeOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"0.23.1"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	if got := c.Probe(context.Background()); got != types.StatusOnline {
		t.Fatalf("expected online, got %s", got)
	}
}

func TestProbeAuthRequired(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		c := newTestClient(t, srv.URL, time.Second)
		if got := c.Probe(context.Background()); got != types.StatusAuthRequired {
			t.Fatalf("code %d: expected auth_required, got %s", code, got)
		}
		srv.Close()
	}
}

func TestProbeOfflineWhenNoListener(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listening anymore

	c := newTestClient(t, url, time.Second)
	if got := c.Probe(context.Background()); got != types.StatusOffline {
		t.Fatalf("expected offline, got %s", got)
	}
}

func TestProbeUnknownOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 50*time.Millisecond)
	if got := c.Probe(context.Background()); got != types.StatusUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestProbeUnknownOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	if got := c.Probe(context.Background()); got != types.StatusUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestProbeUnknownOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	if got := c.Probe(context.Background()); got != types.StatusUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestProbeAttachesProvidedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "pw1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2*time.Second)
	if got := c.Probe(context.Background()); got != types.StatusAuthRequired {
		t.Fatalf("expected auth_required without provider, got %s", got)
	}

	c.SetCredentialsProvider(func() (types.Credentials, bool) {
		return types.Credentials{Username: "admin", Password: "pw1"}, true
	})
	if got := c.Probe(context.Background()); got != types.StatusOnline {
		t.Fatalf("expected online with credentials, got %s", got)
	}
}

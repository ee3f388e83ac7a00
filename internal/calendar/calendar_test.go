package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/events/evt_abc":
			w.WriteHeader(http.StatusOK)
		case "/events/evt_gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	v := &HTTPVerifier{BaseURL: srv.URL, APIKey: "secret"}

	found, err := v.VerifyEvent(context.Background(), "evt_abc")
	if err != nil || !found {
		t.Fatalf("expected evt_abc to verify, got found=%v err=%v", found, err)
	}
	found, err = v.VerifyEvent(context.Background(), "evt_gone")
	if err != nil || found {
		t.Fatalf("expected evt_gone to be missing, got found=%v err=%v", found, err)
	}
	if _, err = v.VerifyEvent(context.Background(), "evt_boom"); err == nil {
		t.Fatalf("expected error for unexpected status")
	}
	found, err = v.VerifyEvent(context.Background(), "")
	if err != nil || found {
		t.Fatalf("empty event id must report missing without a round trip")
	}
}

func TestMockVerifier(t *testing.T) {
	m := MockVerifier{Missing: map[string]bool{"evt_lost": true}}
	if found, _ := m.VerifyEvent(context.Background(), "evt_ok"); !found {
		t.Fatalf("expected evt_ok to verify")
	}
	if found, _ := m.VerifyEvent(context.Background(), "evt_lost"); found {
		t.Fatalf("expected evt_lost to be missing")
	}
}

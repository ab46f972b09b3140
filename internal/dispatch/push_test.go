package dispatch

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushChannelDeliversEnvelope(t *testing.T) {
	var got pushMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushChannel(srv.URL, "secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !p.Send("token-1", EventRideRequest, map[string]any{"ride_id": "r1"}) {
		t.Fatal("expected delivery to succeed")
	}
	if got.Token != "token-1" || got.Data.Event != EventRideRequest {
		t.Fatalf("bad message: %+v", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
}

func TestPushChannelReportsGatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such token", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewPushChannel(srv.URL, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if p.Send("token-1", EventRideTaken, nil) {
		t.Fatal("rejected push must report false")
	}
}

type recordingChannel struct {
	ok    bool
	calls int
}

func (r *recordingChannel) Send(connID, event string, payload any) bool {
	r.calls++
	return r.ok
}

func TestFallbackChannelTriesPrimaryFirst(t *testing.T) {
	primary := &recordingChannel{ok: true}
	fallback := &recordingChannel{ok: true}
	f := &FallbackChannel{Primary: primary, Fallback: fallback}

	if !f.Send("c1", EventRideRequest, nil) {
		t.Fatal("expected delivery")
	}
	if primary.calls != 1 || fallback.calls != 0 {
		t.Fatalf("fallback used despite live primary: %d/%d", primary.calls, fallback.calls)
	}

	primary.ok = false
	if !f.Send("c1", EventRideRequest, nil) {
		t.Fatal("expected fallback delivery")
	}
	if fallback.calls != 1 {
		t.Fatalf("expected one fallback send, got %d", fallback.calls)
	}
}

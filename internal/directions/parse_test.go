package directions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestParseDistanceKm(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"5.2 km", 5.2},
		{"870 m", 0.87},
		{"12 km", 12},
		{"3,4 km", 3.4},
	}
	for _, c := range cases {
		got, err := ParseDistanceKm(c.in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestParseDistanceRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "far away", "km 5", "5.2", "5.2 lightyears"} {
		_, err := ParseDistanceKm(in)
		if err == nil {
			t.Fatalf("%q: expected parse error", in)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%q: expected *ParseError, got %T", in, err)
		}
	}
}

func TestParseDurationMin(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"15 mins", 15},
		{"1 hour 5 mins", 65},
		{"2 hrs 30 mins", 150},
		{"1 min", 1},
	}
	for _, c := range cases {
		got, err := ParseDurationMin(c.in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestParseDurationRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "soon", "15", "mins 15"} {
		if _, err := ParseDurationMin(in); err == nil {
			t.Fatalf("%q: expected parse error", in)
		}
	}
}

func TestTextAPIProviderParsesEstimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"origin": {"lat": 12.90, "lng": 77.60},
			"destination": {"lat": 12.95, "lng": 77.65},
			"distance": "6.5 km",
			"duration": "18 mins",
			"status": "OK"
		}`))
	}))
	defer srv.Close()

	p := NewTextAPIProvider(srv.URL)
	route, err := p.Estimate(context.Background(), models.Address{Text: "MG Road"}, models.Address{Text: "Airport"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if route.DistanceKm != 6.5 || route.DurationMin != 18 {
		t.Fatalf("expected 6.5km/18min, got %v/%v", route.DistanceKm, route.DurationMin)
	}
	if route.Pickup.Lat != 12.90 || route.Dropoff.Lon != 77.65 {
		t.Fatalf("coordinates not resolved: %+v", route)
	}
}

func TestTextAPIProviderRejectsMalformedDistance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"distance": "unknown", "duration": "18 mins", "status": "OK"}`))
	}))
	defer srv.Close()

	p := NewTextAPIProvider(srv.URL)
	_, err := p.Estimate(context.Background(), models.Address{Text: "a"}, models.Address{Text: "b"})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestTextAPIProviderNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS"}`))
	}))
	defer srv.Close()

	p := NewTextAPIProvider(srv.URL)
	if _, err := p.Estimate(context.Background(), models.Address{Text: "a"}, models.Address{Text: "b"}); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

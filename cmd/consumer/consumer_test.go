package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// fakeUpdater implements PresenceUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastMeta = values
	return nil
}

func TestUpdatePresenceWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	p := &models.CaptainPresence{CaptainID: "c1", Loc: models.Coord{Lat: 1, Lon: 2}, ConnectionID: "conn1", Online: true}
	ctx := context.Background()
	start := time.Now()
	if err := updatePresenceWithRetry(ctx, f, "captains_geo", p, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastMeta["connection_id"] != "conn1" {
		t.Fatalf("expected connection id in meta, got %v", f.lastMeta)
	}
}

func TestUpdatePresenceWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	p := &models.CaptainPresence{CaptainID: "c1", Loc: models.Coord{Lat: 1, Lon: 2}, Online: true}
	ctx := context.Background()
	if err := updatePresenceWithRetry(ctx, f, "captains_geo", p, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestUpdatePresenceWithRetry_OmitsEmptyConnection(t *testing.T) {
	f := &fakeUpdater{}
	p := &models.CaptainPresence{CaptainID: "c1", Loc: models.Coord{Lat: 1, Lon: 2}, Online: true}
	if err := updatePresenceWithRetry(context.Background(), f, "captains_geo", p, 1, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.lastMeta["connection_id"]; ok {
		t.Fatalf("empty connection id must not overwrite meta, got %v", f.lastMeta)
	}
}

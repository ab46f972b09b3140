package geo

import (
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	if d := HaversineKm(models.Coord{}, models.Coord{}); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// One degree of longitude at the equator is ~111.19 km.
	d := HaversineKm(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0, Lon: 1})
	if d < 111.1 || d > 111.3 {
		t.Fatalf("expected ~111.19 km, got %f", d)
	}
}

func connected(id string, lat, lon float64) (string, models.Coord) {
	return id, models.Coord{Lat: lat, Lon: lon}
}

func TestFindWithinRadiusBoundary(t *testing.T) {
	g := NewMemIndex()
	center := models.Coord{Lat: 0, Lon: 0}
	captain := models.Coord{Lat: 0, Lon: 0.0449661} // ~5 km east

	g.UpdateLocation(connected("c1", captain.Lat, captain.Lon))
	g.SetConnection("c1", "conn-1")

	dist := HaversineKm(center, captain)

	if got := g.FindWithinRadius(center, dist); len(got) != 1 {
		t.Fatalf("captain at exactly radius should be included, got %d", len(got))
	}
	if got := g.FindWithinRadius(center, dist*0.999); len(got) != 0 {
		t.Fatalf("captain beyond radius should be excluded, got %d", len(got))
	}
}

func TestFindWithinRadiusExcludesUnreachable(t *testing.T) {
	g := NewMemIndex()
	center := models.Coord{Lat: 12.90, Lon: 77.60}

	// in range but offline
	g.UpdateLocation("offline", models.Coord{Lat: 12.91, Lon: 77.60})
	g.SetConnection("offline", "conn-a")
	g.SetOnline("offline", false)

	// in range but never connected
	g.UpdateLocation("ghost", models.Coord{Lat: 12.90, Lon: 77.61})

	// in range, reachable
	g.UpdateLocation("live", models.Coord{Lat: 12.89, Lon: 77.60})
	g.SetConnection("live", "conn-b")

	// reachable then disconnected; location survives, eligibility does not
	g.UpdateLocation("dropped", models.Coord{Lat: 12.90, Lon: 77.59})
	g.SetConnection("dropped", "conn-c")
	g.Disconnect("dropped")

	got := g.FindWithinRadius(center, 5)
	if len(got) != 1 || got[0].CaptainID != "live" {
		t.Fatalf("expected only live captain, got %+v", got)
	}
}

func TestFindWithinRadiusNearestFirst(t *testing.T) {
	g := NewMemIndex()
	center := models.Coord{Lat: 0, Lon: 0}
	g.UpdateLocation("far", models.Coord{Lat: 0, Lon: 0.03})
	g.SetConnection("far", "conn-1")
	g.UpdateLocation("near", models.Coord{Lat: 0, Lon: 0.01})
	g.SetConnection("near", "conn-2")
	g.UpdateLocation("mid", models.Coord{Lat: 0, Lon: 0.02})
	g.SetConnection("mid", "conn-3")

	got := g.FindWithinRadius(center, 5)
	if len(got) != 3 {
		t.Fatalf("expected 3 captains, got %d", len(got))
	}
	for i, want := range []string{"near", "mid", "far"} {
		if got[i].CaptainID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].CaptainID)
		}
	}
}

func TestFindWithinRadiusStaleCutoff(t *testing.T) {
	g := NewMemIndex()
	g.MaxAge = 30 * time.Second
	g.UpdateLocation("c1", models.Coord{Lat: 0, Lon: 0.01})
	g.SetConnection("c1", "conn-1")

	if got := g.FindWithinRadius(models.Coord{}, 5); len(got) != 1 {
		t.Fatalf("fresh captain should be included, got %d", len(got))
	}

	// age the report artificially
	g.mu.Lock()
	p := g.captains["c1"]
	p.Updated = time.Now().Add(-time.Minute)
	g.captains["c1"] = p
	g.mu.Unlock()

	if got := g.FindWithinRadius(models.Coord{}, 5); len(got) != 0 {
		t.Fatalf("stale captain should be excluded, got %d", len(got))
	}
}

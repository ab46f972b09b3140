package geo

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Index is the minimal surface the coordinator and handlers need from a
// captain presence store.
type Index interface {
	// FindWithinRadius returns reachable captains within radiusKm of center,
	// nearest first. A captain who is offline or has no live connection is
	// never returned, regardless of position.
	FindWithinRadius(center models.Coord, radiusKm float64) []models.CaptainPresence
	// Get returns the last-known presence for one captain, tracked or not.
	Get(captainID string) (models.CaptainPresence, bool)
	UpdateLocation(captainID string, loc models.Coord)
	SetConnection(captainID, connectionID string)
	SetOnline(captainID string, online bool)
	// Disconnect clears the connection but keeps the last location so a fast
	// reconnect does not need a fresh location report.
	Disconnect(captainID string)
}

// MemIndex tracks presence in-process. A naive scan is fine at fleet scale;
// swap in RedisGeo when multiple coordinator processes share the fleet.
type MemIndex struct {
	mu       sync.RWMutex
	captains map[string]models.CaptainPresence

	// MaxAge, when > 0, excludes captains whose last report is older.
	MaxAge time.Duration
}

func NewMemIndex() *MemIndex {
	return &MemIndex{captains: make(map[string]models.CaptainPresence)}
}

func (g *MemIndex) Get(captainID string) (models.CaptainPresence, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.captains[captainID]
	return p, ok
}

func (g *MemIndex) UpdateLocation(captainID string, loc models.Coord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.captains[captainID]
	p.CaptainID = captainID
	p.Loc = loc
	p.Updated = time.Now()
	g.captains[captainID] = p
}

func (g *MemIndex) SetConnection(captainID, connectionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.captains[captainID]
	p.CaptainID = captainID
	p.ConnectionID = connectionID
	p.Online = true
	p.Updated = time.Now()
	g.captains[captainID] = p
}

func (g *MemIndex) SetOnline(captainID string, online bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.captains[captainID]
	if !ok {
		p.CaptainID = captainID
	}
	p.Online = online
	p.Updated = time.Now()
	g.captains[captainID] = p
}

func (g *MemIndex) Disconnect(captainID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.captains[captainID]
	if !ok {
		return
	}
	p.ConnectionID = ""
	g.captains[captainID] = p
}

func (g *MemIndex) FindWithinRadius(center models.Coord, radiusKm float64) []models.CaptainPresence {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type scored struct {
		p    models.CaptainPresence
		dist float64
	}
	arr := make([]scored, 0, len(g.captains))
	now := time.Now()
	for _, p := range g.captains {
		if !p.Reachable() {
			continue
		}
		if g.MaxAge > 0 && now.Sub(p.Updated) > g.MaxAge {
			continue
		}
		dist := HaversineKm(center, p.Loc)
		if dist > radiusKm {
			continue
		}
		arr = append(arr, scored{p, dist})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	out := make([]models.CaptainPresence, 0, len(arr))
	for _, s := range arr {
		out = append(out, s.p)
	}
	return out
}

// HaversineKm is the great-circle distance in kilometers, Earth radius 6371 km.
func HaversineKm(a, b models.Coord) float64 {
	const R = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

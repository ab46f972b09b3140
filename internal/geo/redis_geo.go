package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisGeo implements Index on Redis GEO commands plus a per-captain meta
// hash. Required when multiple coordinator processes share one fleet.
type RedisGeo struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key, ctx: context.Background()}
}

// NewRedisGeoFromClient wires an existing client, mainly for tests.
func NewRedisGeoFromClient(c *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: c, key: key, ctx: context.Background()}
}

func (r *RedisGeo) UpdateLocation(captainID string, loc models.Coord) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: loc.Lon, Latitude: loc.Lat, Name: captainID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(captainID), map[string]interface{}{"updated": time.Now().Format(time.RFC3339)}).Err()
}

func (r *RedisGeo) SetConnection(captainID, connectionID string) {
	_ = r.client.HSet(r.ctx, metaKey(captainID), map[string]interface{}{
		"connection_id": connectionID,
		"online":        "true",
		"updated":       time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) SetOnline(captainID string, online bool) {
	_ = r.client.HSet(r.ctx, metaKey(captainID), map[string]interface{}{"online": strconv.FormatBool(online)}).Err()
}

func (r *RedisGeo) Disconnect(captainID string) {
	_ = r.client.HSet(r.ctx, metaKey(captainID), map[string]interface{}{"connection_id": ""}).Err()
}

func (r *RedisGeo) Get(captainID string) (models.CaptainPresence, bool) {
	pos, err := r.client.GeoPos(r.ctx, r.key, captainID).Result()
	if err != nil || len(pos) == 0 || pos[0] == nil {
		return models.CaptainPresence{}, false
	}
	p := models.CaptainPresence{CaptainID: captainID}
	p.Loc.Lat = pos[0].Latitude
	p.Loc.Lon = pos[0].Longitude
	if m, err := r.client.HGetAll(r.ctx, metaKey(captainID)).Result(); err == nil {
		p.Online = m["online"] == "true"
		p.ConnectionID = m["connection_id"]
		if v, ok := m["updated"]; ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				p.Updated = ts
			}
		}
	}
	return p, true
}

func (r *RedisGeo) FindWithinRadius(center models.Coord, radiusKm float64) []models.CaptainPresence {
	res, err := r.client.GeoRadius(r.ctx, r.key, center.Lon, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.CaptainPresence, 0, len(res))
	for _, g := range res {
		p := models.CaptainPresence{CaptainID: g.Name}
		p.Loc.Lat = g.Latitude
		p.Loc.Lon = g.Longitude
		m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		p.Online = m["online"] == "true"
		p.ConnectionID = m["connection_id"]
		if v, ok := m["updated"]; ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				p.Updated = ts
			}
		}
		if !p.Reachable() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func metaKey(id string) string { return "captain:meta:" + id }

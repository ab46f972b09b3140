package directions

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/ride-dispatch/internal/models"
)

// GoogleProvider resolves routes through the Google Maps Directions API.
type GoogleProvider struct {
	client *maps.Client
	region string
}

func NewGoogleProvider(apiKey, region string) (*GoogleProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &GoogleProvider{client: c, region: region}, nil
}

func (g *GoogleProvider) Estimate(ctx context.Context, origin, dest models.Address) (Route, error) {
	req := &maps.DirectionsRequest{
		Origin:      waypoint(origin),
		Destination: waypoint(dest),
		Mode:        maps.TravelModeDriving,
		Region:      g.region,
	}
	routes, _, err := g.client.Directions(ctx, req)
	if err != nil {
		return Route{}, fmt.Errorf("directions request: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, ErrNoRoute
	}
	leg := routes[0].Legs[0]
	return Route{
		Pickup:      models.Coord{Lat: leg.StartLocation.Lat, Lon: leg.StartLocation.Lng},
		Dropoff:     models.Coord{Lat: leg.EndLocation.Lat, Lon: leg.EndLocation.Lng},
		DistanceKm:  float64(leg.Distance.Meters) / 1000,
		DurationMin: leg.Duration.Minutes(),
	}, nil
}

func waypoint(a models.Address) string {
	if a.Coord != nil {
		return fmt.Sprintf("%.6f,%.6f", a.Coord.Lat, a.Coord.Lon)
	}
	return a.Text
}

// Package directions resolves pickup/dropoff addresses to coordinates and a
// road distance/duration estimate. Implementations wrap external routing
// providers; the coordinator only sees the Provider interface.
package directions

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	// ErrGeocode means an address could not be resolved to coordinates.
	ErrGeocode = errors.New("address could not be geocoded")
	// ErrNoRoute means both endpoints resolved but no route connects them.
	ErrNoRoute = errors.New("no route between points")
)

// Route is a resolved trip: endpoint coordinates plus the travel estimate.
type Route struct {
	Pickup      models.Coord
	Dropoff     models.Coord
	DistanceKm  float64
	DurationMin float64
}

type Provider interface {
	Estimate(ctx context.Context, origin, dest models.Address) (Route, error)
}

package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// TextAPIProvider wraps routing gateways that return human-readable distance
// and duration strings ("6.5 km", "18 mins"). The strings are run through the
// strict parsers; a response we cannot parse fails the estimate instead of
// quietly becoming a zero-distance trip.
type TextAPIProvider struct {
	Endpoint string
	Client   *http.Client
}

func NewTextAPIProvider(endpoint string) *TextAPIProvider {
	return &TextAPIProvider{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

type textAPIResponse struct {
	Origin struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"origin"`
	Destination struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"destination"`
	Distance string `json:"distance"`
	Duration string `json:"duration"`
	Status   string `json:"status"`
}

func (t *TextAPIProvider) Estimate(ctx context.Context, origin, dest models.Address) (Route, error) {
	q := url.Values{}
	q.Set("origin", origin.Text)
	q.Set("destination", dest.Text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()

	var out textAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, err
	}
	switch out.Status {
	case "OK":
	case "NOT_FOUND", "ZERO_RESULTS":
		return Route{}, ErrNoRoute
	default:
		return Route{}, fmt.Errorf("%w: gateway status %s", ErrGeocode, out.Status)
	}

	distanceKm, err := ParseDistanceKm(out.Distance)
	if err != nil {
		return Route{}, err
	}
	durationMin, err := ParseDurationMin(out.Duration)
	if err != nil {
		return Route{}, err
	}
	return Route{
		Pickup:      models.Coord{Lat: out.Origin.Lat, Lon: out.Origin.Lng},
		Dropoff:     models.Coord{Lat: out.Destination.Lat, Lon: out.Destination.Lng},
		DistanceKm:  distanceKm,
		DurationMin: durationMin,
	}, nil
}

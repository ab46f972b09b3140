package fare

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// Rate is the pricing tier for one vehicle class.
type Rate struct {
	Base   float64
	PerKm  float64
	PerMin float64
}

// Rates maps every vehicle class to its tier. Unknown classes fall back to
// the car tier.
type Rates map[models.VehicleClass]Rate

// DefaultRates are the launch-city tiers, in rupees.
func DefaultRates() Rates {
	return Rates{
		models.VehicleAuto: {Base: 30, PerKm: 10, PerMin: 2},
		models.VehicleCar:  {Base: 50, PerKm: 15, PerMin: 3},
		models.VehicleBike: {Base: 20, PerKm: 8, PerMin: 1.5},
	}
}

// Calculate quotes a fare from resolved distance and duration. It is pure and
// never errors: degenerate (zero or negative) distance/duration contribute
// nothing, so the result is at least the base fare. Callers are responsible
// for having validated that distance/duration resolution succeeded.
func (r Rates) Calculate(distanceKm, durationMin float64, class models.VehicleClass) float64 {
	rate, ok := r[class]
	if !ok {
		rate = r[models.VehicleCar]
	}
	if distanceKm < 0 {
		distanceKm = 0
	}
	if durationMin < 0 {
		durationMin = 0
	}
	return round2(rate.Base + distanceKm*rate.PerKm + durationMin*rate.PerMin)
}

// round2 rounds half-up to two decimal places. Fares are non-negative, so
// Floor(x*100+0.5) is exactly half-up here.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

package fare

import (
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestCalculateCarQuote(t *testing.T) {
	r := DefaultRates()
	got := r.Calculate(6.5, 18, models.VehicleCar)
	if got != 201.50 {
		t.Fatalf("expected 201.50, got %v", got)
	}
	// deterministic
	if again := r.Calculate(6.5, 18, models.VehicleCar); again != got {
		t.Fatalf("fare not deterministic: %v vs %v", got, again)
	}
}

func TestCalculateUnknownClassFallsBackToCar(t *testing.T) {
	r := DefaultRates()
	got := r.Calculate(10, 20, models.VehicleClass("rickshaw"))
	want := r.Calculate(10, 20, models.VehicleCar)
	if got != want {
		t.Fatalf("expected car fallback %v, got %v", want, got)
	}
}

func TestCalculateDegenerateInputs(t *testing.T) {
	r := DefaultRates()
	if got := r.Calculate(0, 0, models.VehicleCar); got != 50 {
		t.Fatalf("expected base fare 50, got %v", got)
	}
	if got := r.Calculate(-3, -10, models.VehicleBike); got != 20 {
		t.Fatalf("negative inputs should clamp to base fare, got %v", got)
	}
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	// 2.125 is exactly representable, so the intermediate is exactly 212.5
	// and half-up differs from banker's rounding here
	r := Rates{models.VehicleCar: {Base: 0, PerKm: 1, PerMin: 0}}
	if got := r.Calculate(2.125, 0, models.VehicleCar); got != 2.13 {
		t.Fatalf("expected 2.13, got %v", got)
	}
}

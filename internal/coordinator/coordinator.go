// Package coordinator orchestrates the ride dispatch flow: ride creation and
// fare quoting, offer fan-out to nearby captains, and the accept race.
package coordinator

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/directions"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

var (
	ErrValidation = errors.New("invalid request")
	ErrInvalidOTP = errors.New("otp does not match")
	// ErrCaptainBusy is the store's sentinel; the store enforces the
	// one-active-ride invariant inside the accept transition itself.
	ErrCaptainBusy = storage.ErrCaptainBusy
)

// UserDirectory supplies rider display info for offer payloads.
type UserDirectory interface {
	RiderProfile(ctx context.Context, riderID string) (models.RiderProfile, error)
}

// PaymentGateway captures deferred-method fares after completion.
type PaymentGateway interface {
	Capture(ctx context.Context, rideID string, amount int64) (string, error)
}

// EventPublisher receives ride lifecycle events, best-effort.
type EventPublisher interface {
	PublishRideEvent(e models.RideEvent) error
}

type Coordinator struct {
	Store      storage.RideStore
	Geo        geo.Index
	Rates      fare.Rates
	Directions directions.Provider
	Registry   *dispatch.Registry
	Channel    dispatch.Channel
	Users      UserDirectory
	Payments   PaymentGateway
	Events     EventPublisher // optional
	Logger     *slog.Logger

	RadiusKm    float64
	NotifyLimit int // 0 means notify every candidate in radius

	// offered tracks which captains were sent each pending ride's offer, so
	// losers get a close-out signal once the ride resolves.
	mu      sync.Mutex
	offered map[string][]string
}

func New(store storage.RideStore, idx geo.Index, rates fare.Rates, dir directions.Provider,
	reg *dispatch.Registry, ch dispatch.Channel, users UserDirectory, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		Store:      store,
		Geo:        idx,
		Rates:      rates,
		Directions: dir,
		Registry:   reg,
		Channel:    ch,
		Users:      users,
		Logger:     logger,
		RadiusKm:   5,
		offered:    make(map[string][]string),
	}
}

type RideRequest struct {
	RiderID       string
	PickupText    string
	DropoffText   string
	PickupCoord   *models.Coord // optional; lets coord-only providers skip geocoding
	DropoffCoord  *models.Coord
	VehicleClass  models.VehicleClass
	PaymentMethod models.PaymentMethod
}

func (rr RideRequest) validate() error {
	if rr.RiderID == "" {
		return fmt.Errorf("%w: rider id required", ErrValidation)
	}
	if rr.PickupText == "" {
		return fmt.Errorf("%w: pickup required", ErrValidation)
	}
	if rr.DropoffText == "" {
		return fmt.Errorf("%w: dropoff required", ErrValidation)
	}
	switch rr.VehicleClass {
	case models.VehicleAuto, models.VehicleCar, models.VehicleBike:
	default:
		return fmt.Errorf("%w: unknown vehicle class %q", ErrValidation, rr.VehicleClass)
	}
	return nil
}

// RequestRide resolves the route, quotes the fare, and persists the ride in
// pending state. Creation is all-or-nothing: a route failure means no ride.
// The rider-facing return never waits on captain search; offer fan-out runs
// in the background, and its failure leaves the ride pending with zero offers
// sent rather than surfacing to the caller.
func (c *Coordinator) RequestRide(ctx context.Context, req RideRequest) (*models.Ride, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentCash
	}

	route, err := c.Directions.Estimate(ctx,
		models.Address{Text: req.PickupText, Coord: req.PickupCoord},
		models.Address{Text: req.DropoffText, Coord: req.DropoffCoord})
	if err != nil {
		return nil, fmt.Errorf("resolve route: %w", err)
	}

	ride := &models.Ride{
		ID:      newID(),
		RiderID: req.RiderID,
		Pickup:  models.Address{Text: req.PickupText, Coord: &route.Pickup},
		Dropoff: models.Address{Text: req.DropoffText, Coord: &route.Dropoff},

		VehicleClass:  req.VehicleClass,
		Fare:          c.Rates.Calculate(route.DistanceKm, route.DurationMin, req.VehicleClass),
		OTP:           newOTP(),
		PaymentMethod: req.PaymentMethod,
		Status:        models.StatusPending,
		DistanceKm:    route.DistanceKm,
		DurationMin:   route.DurationMin,
		CreatedAt:     time.Now(),
	}
	if err := c.Store.Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("persist ride: %w", err)
	}
	observability.RidesRequested.Inc()
	c.publishEvent(ride)
	c.Logger.Info("ride created",
		"ride_id", ride.ID, "rider_id", ride.RiderID,
		"fare", ride.Fare, "distance_km", ride.DistanceKm)

	go c.fanOut(*ride)

	return ride, nil
}

// fanOut pushes the ride offer to every reachable candidate in radius. It is
// detached from the request: errors are logged and swallowed.
func (c *Coordinator) fanOut(ride models.Ride) {
	defer func() {
		if rec := recover(); rec != nil {
			c.Logger.Error("fan-out panic", "ride_id", ride.ID, "error", rec)
		}
	}()
	start := time.Now()

	candidates := c.Geo.FindWithinRadius(*ride.Pickup.Coord, c.RadiusKm)
	if c.NotifyLimit > 0 && len(candidates) > c.NotifyLimit {
		candidates = candidates[:c.NotifyLimit]
	}
	if len(candidates) == 0 {
		c.Logger.Warn("no captains in radius", "ride_id", ride.ID, "radius_km", c.RadiusKm)
		return
	}

	profile := models.RiderProfile{ID: ride.RiderID}
	if c.Users != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if p, err := c.Users.RiderProfile(ctx, ride.RiderID); err == nil {
			profile = p
		} else {
			c.Logger.Warn("rider profile lookup failed", "rider_id", ride.RiderID, "error", err)
		}
		cancel()
	}

	offer := models.RideOffer{
		Type: "newRide",
		Ride: models.OfferRide{
			ID:          ride.ID,
			Pickup:      ride.Pickup.Text,
			Dropoff:     ride.Dropoff.Text,
			Fare:        ride.Fare,
			DistanceKm:  ride.DistanceKm,
			DurationMin: ride.DurationMin,
			PickupCoord: ride.Pickup.Coord,
		},
		User: profile,
	}

	// Resolve live connections first and record them, so a racing accept's
	// close-out sees the candidate list even mid-fan-out. A close-out to a
	// captain whose offer was never delivered is harmless.
	type target struct{ captainID, connID string }
	var targets []target
	var notified []string
	for _, cand := range candidates {
		connID, ok := c.Registry.Lookup(cand.CaptainID)
		if !ok {
			observability.OffersDropped.Inc()
			continue
		}
		targets = append(targets, target{cand.CaptainID, connID})
		notified = append(notified, cand.CaptainID)
	}
	c.mu.Lock()
	c.offered[ride.ID] = notified
	c.mu.Unlock()

	sent := 0
	for _, tg := range targets {
		if !c.Channel.Send(tg.connID, dispatch.EventRideRequest, offer) {
			observability.OffersDropped.Inc()
			continue
		}
		observability.OffersSent.Inc()
		sent++
	}

	observability.FanoutLatency.Observe(time.Since(start).Seconds())
	c.Logger.Info("offers sent", "ride_id", ride.ID, "candidates", len(candidates), "delivered", sent)
}

// AcceptRide resolves the accept race. The store's conditional transition is
// the single arbiter: exactly one concurrent caller ever wins, everyone else
// sees ErrAlreadyTaken, and a captain racing accepts on two rides gets
// ErrCaptainBusy on the second from inside the same transition. A cancelled
// ride rejects like a taken one, since the ride left pending either way.
func (c *Coordinator) AcceptRide(ctx context.Context, captainID, rideID string) (*models.Ride, error) {
	if captainID == "" || rideID == "" {
		return nil, fmt.Errorf("%w: captain id and ride id required", ErrValidation)
	}
	ride, err := c.Store.Accept(ctx, rideID, captainID, time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyTaken) {
			observability.AcceptConflict.Inc()
		}
		return nil, err
	}
	observability.AcceptWins.Inc()
	c.publishEvent(ride)
	c.Logger.Info("ride accepted", "ride_id", rideID, "captain_id", captainID)

	captain := map[string]any{"id": captainID}
	payload := map[string]any{
		"ride":    riderView(ride),
		"captain": captain,
	}
	if p, ok := c.Geo.Get(captainID); ok && ride.Pickup.Coord != nil {
		captain["location"] = p.Loc
		payload["estimated_arrival_min"] = pickupETAMin(p.Loc, *ride.Pickup.Coord)
	}
	c.notifyRider(ride, dispatch.EventRideAccepted, payload)
	c.closeOut(rideID, captainID)

	return ride, nil
}

// pickupSpeedKmh is the assumed city traffic speed for the rider-facing
// arrival estimate. Advisory only.
const pickupSpeedKmh = 25.0

func pickupETAMin(from, to models.Coord) float64 {
	return math.Ceil(geo.HaversineKm(from, to) / pickupSpeedKmh * 60)
}

// closeOut tells losing candidates the ride is gone. Best-effort.
func (c *Coordinator) closeOut(rideID, winnerID string) {
	c.mu.Lock()
	notified := c.offered[rideID]
	delete(c.offered, rideID)
	c.mu.Unlock()

	for _, captainID := range notified {
		if captainID == winnerID {
			continue
		}
		if connID, ok := c.Registry.Lookup(captainID); ok {
			_ = c.Channel.Send(connID, dispatch.EventRideTaken, map[string]any{"ride_id": rideID})
		}
	}
}

// StartRide verifies the rider-supplied OTP and moves the ride to
// in_progress. The OTP guards physical pickup, so the comparison is
// constant-time even though brute force is not a realistic concern here.
func (c *Coordinator) StartRide(ctx context.Context, captainID, rideID, suppliedOTP string) (*models.Ride, error) {
	ride, err := c.Store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.StatusAccepted {
		return nil, storage.ErrInvalidState
	}
	if ride.CaptainID != captainID {
		return nil, storage.ErrWrongCaptain
	}
	if subtle.ConstantTimeCompare([]byte(suppliedOTP), []byte(ride.OTP)) != 1 {
		return nil, ErrInvalidOTP
	}

	ride, err = c.Store.Start(ctx, rideID, captainID)
	if err != nil {
		return nil, err
	}
	c.publishEvent(ride)
	c.Logger.Info("ride started", "ride_id", rideID, "captain_id", captainID)
	c.notifyRider(ride, dispatch.EventRideUpdate, map[string]any{"ride_id": rideID, "status": ride.Status})
	return ride, nil
}

// CompleteRide accepts the captain-supplied final figures as authoritative
// (the quoted fare stays on the record as the audit baseline) and, for
// deferred payment methods, triggers the capture collaborator.
func (c *Coordinator) CompleteRide(ctx context.Context, captainID, rideID string, finalFare, finalDistance, finalDuration float64) (*models.Ride, error) {
	ride, err := c.Store.Complete(ctx, rideID, captainID, finalFare, finalDistance, finalDuration, time.Now())
	if err != nil {
		return nil, err
	}
	c.publishEvent(ride)
	c.Logger.Info("ride completed", "ride_id", rideID, "captain_id", captainID, "final_fare", finalFare)

	if ride.PaymentMethod == models.PaymentUPI && c.Payments != nil {
		amount := int64(math.Round(finalFare * 100))
		if ref, err := c.Payments.Capture(ctx, rideID, amount); err != nil {
			// capture retries are the payment system's concern, not dispatch's
			c.Logger.Error("payment capture failed", "ride_id", rideID, "error", err)
		} else {
			c.Logger.Info("payment captured", "ride_id", rideID, "order_ref", ref)
		}
	}

	c.notifyRider(ride, dispatch.EventRideUpdate, map[string]any{"ride_id": rideID, "status": ride.Status, "final_fare": ride.FinalFare})
	return ride, nil
}

// CancelRide is allowed from pending or accepted only; an in_progress trip
// has no cancellation path. The rider may cancel their own ride, the holding
// captain an accepted one.
func (c *Coordinator) CancelRide(ctx context.Context, actorID, rideID, actorRole string) (*models.Ride, error) {
	ride, err := c.Store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	switch actorRole {
	case "rider":
		if ride.RiderID != actorID {
			return nil, fmt.Errorf("%w: ride belongs to another rider", ErrValidation)
		}
	case "captain":
		if ride.CaptainID != actorID {
			return nil, storage.ErrWrongCaptain
		}
	default:
		return nil, fmt.Errorf("%w: unknown actor role %q", ErrValidation, actorRole)
	}

	ride, err = c.Store.Cancel(ctx, rideID)
	if err != nil {
		return nil, err
	}
	c.publishEvent(ride)
	c.Logger.Info("ride cancelled", "ride_id", rideID, "actor_id", actorID, "role", actorRole)

	if actorRole == "captain" {
		c.notifyRider(ride, dispatch.EventRideUpdate, map[string]any{"ride_id": rideID, "status": ride.Status})
	} else if ride.CaptainID != "" {
		if connID, ok := c.Registry.Lookup(ride.CaptainID); ok {
			_ = c.Channel.Send(connID, dispatch.EventRideUpdate, map[string]any{"ride_id": rideID, "status": ride.Status})
		}
	}
	c.closeOut(rideID, "")
	return ride, nil
}

func (c *Coordinator) notifyRider(ride *models.Ride, event string, payload any) {
	connID, ok := c.Registry.Lookup(ride.RiderID)
	if !ok {
		return
	}
	_ = c.Channel.Send(connID, event, payload)
}

func (c *Coordinator) publishEvent(ride *models.Ride) {
	if c.Events == nil {
		return
	}
	err := c.Events.PublishRideEvent(models.RideEvent{
		RideID:    ride.ID,
		Status:    ride.Status,
		CaptainID: ride.CaptainID,
		At:        time.Now(),
	})
	if err != nil {
		c.Logger.Warn("ride event publish failed", "ride_id", ride.ID, "error", err)
	}
}

// riderView strips fields the rider-facing payload must not carry beyond the
// JSON tags (the OTP is already json:"-"; this keeps payloads small).
func riderView(r *models.Ride) map[string]any {
	return map[string]any{
		"id":      r.ID,
		"pickup":  r.Pickup.Text,
		"dropoff": r.Dropoff.Text,
		"fare":    r.Fare,
		"status":  r.Status,
	}
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// newOTP draws a 4-digit code from crypto/rand so codes are unpredictable.
func newOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// rand.Reader failure is unrecoverable; fall back to a fixed-width
		// read so the process can still limp along.
		var b [2]byte
		_, _ = rand.Read(b[:])
		n = big.NewInt(int64(b[0])<<8 | int64(b[1]))
	}
	return fmt.Sprintf("%04d", n.Int64()%10000)
}

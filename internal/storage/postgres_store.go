package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore persists rides in Postgres. Transitions are single
// conditional UPDATEs matching the expected prior state, so the database is
// the arbiter of the accept race even with several coordinator processes
// behind a load balancer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(
		id, rider_id, captain_id, pickup_text, pickup_lat, pickup_lon,
		dropoff_text, dropoff_lat, dropoff_lon, vehicle_class, fare, otp,
		payment_method, status, distance_km, duration_min, created_at)
		VALUES($1,$2,NULL,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		r.ID, r.RiderID, r.Pickup.Text, coordLat(r.Pickup.Coord), coordLon(r.Pickup.Coord),
		r.Dropoff.Text, coordLat(r.Dropoff.Coord), coordLon(r.Dropoff.Coord),
		string(r.VehicleClass), r.Fare, r.OTP, string(r.PaymentMethod),
		string(r.Status), r.DistanceKm, r.DurationMin, r.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT
		id, rider_id, COALESCE(captain_id,''), pickup_text, pickup_lat, pickup_lon,
		dropoff_text, dropoff_lat, dropoff_lon, vehicle_class, fare, otp,
		payment_method, status, distance_km, duration_min,
		COALESCE(final_fare,0), COALESCE(final_distance,0), COALESCE(final_duration,0),
		created_at, COALESCE(accepted_at, 'epoch'::timestamptz), COALESCE(completed_at, 'epoch'::timestamptz)
		FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

func (p *PostgresStore) Accept(ctx context.Context, rideID, captainID string, at time.Time) (*models.Ride, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET captain_id=$1, status=$2, accepted_at=$3
		 WHERE id=$4 AND status=$5 AND captain_id IS NULL`,
		captainID, string(models.StatusAccepted), at, rideID, string(models.StatusPending))
	if err != nil {
		// the unique partial index on active captain rides rejects a captain
		// winning a second ride
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrCaptainBusy
		}
		return nil, err
	}
	if err := p.oneRowOr(ctx, res, rideID, ErrAlreadyTaken); err != nil {
		return nil, err
	}
	return p.Get(ctx, rideID)
}

func (p *PostgresStore) Start(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status=$1 WHERE id=$2 AND status=$3 AND captain_id=$4`,
		string(models.StatusInProgress), rideID, string(models.StatusAccepted), captainID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, p.classifyStartFailure(ctx, rideID, captainID)
	}
	return p.Get(ctx, rideID)
}

func (p *PostgresStore) Complete(ctx context.Context, rideID, captainID string, finalFare, finalDistance, finalDuration float64, at time.Time) (*models.Ride, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status=$1, final_fare=$2, final_distance=$3, final_duration=$4, completed_at=$5
		 WHERE id=$6 AND status=$7 AND captain_id=$8`,
		string(models.StatusCompleted), finalFare, finalDistance, finalDuration, at,
		rideID, string(models.StatusInProgress), captainID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, p.classifyCompleteFailure(ctx, rideID, captainID)
	}
	return p.Get(ctx, rideID)
}

func (p *PostgresStore) Cancel(ctx context.Context, rideID string) (*models.Ride, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status=$1 WHERE id=$2 AND status IN ($3,$4)`,
		string(models.StatusCancelled), rideID, string(models.StatusPending), string(models.StatusAccepted))
	if err != nil {
		return nil, err
	}
	if err := p.oneRowOr(ctx, res, rideID, ErrInvalidState); err != nil {
		return nil, err
	}
	return p.Get(ctx, rideID)
}

func (p *PostgresStore) HasActiveRide(ctx context.Context, captainID string) (bool, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM rides WHERE captain_id=$1 AND status IN ($2,$3)`,
		captainID, string(models.StatusAccepted), string(models.StatusInProgress)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// oneRowOr maps a zero-row conditional update to either ErrNotFound (ride
// does not exist) or the supplied conflict error (ride exists in another
// state).
func (p *PostgresStore) oneRowOr(ctx context.Context, res sql.Result, rideID string, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = p.db.QueryRowContext(ctx, `SELECT 1 FROM rides WHERE id=$1`, rideID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return conflict
}

func (p *PostgresStore) classifyStartFailure(ctx context.Context, rideID, captainID string) error {
	r, err := p.Get(ctx, rideID)
	if err != nil {
		return err
	}
	if r.Status != models.StatusAccepted {
		return ErrInvalidState
	}
	if r.CaptainID != captainID {
		return ErrWrongCaptain
	}
	return ErrInvalidState
}

func (p *PostgresStore) classifyCompleteFailure(ctx context.Context, rideID, captainID string) error {
	r, err := p.Get(ctx, rideID)
	if err != nil {
		return err
	}
	if r.Status != models.StatusInProgress {
		return ErrInvalidState
	}
	if r.CaptainID != captainID {
		return ErrWrongCaptain
	}
	return ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var pickupLat, pickupLon, dropoffLat, dropoffLon sql.NullFloat64
	var class, method, status string
	err := row.Scan(&r.ID, &r.RiderID, &r.CaptainID, &r.Pickup.Text, &pickupLat, &pickupLon,
		&r.Dropoff.Text, &dropoffLat, &dropoffLon, &class, &r.Fare, &r.OTP,
		&method, &status, &r.DistanceKm, &r.DurationMin,
		&r.FinalFare, &r.FinalDistance, &r.FinalDuration,
		&r.CreatedAt, &r.AcceptedAt, &r.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.VehicleClass = models.VehicleClass(class)
	r.PaymentMethod = models.PaymentMethod(method)
	r.Status = models.RideStatus(status)
	if pickupLat.Valid && pickupLon.Valid {
		r.Pickup.Coord = &models.Coord{Lat: pickupLat.Float64, Lon: pickupLon.Float64}
	}
	if dropoffLat.Valid && dropoffLon.Valid {
		r.Dropoff.Coord = &models.Coord{Lat: dropoffLat.Float64, Lon: dropoffLon.Float64}
	}
	return &r, nil
}

func coordLat(c *models.Coord) any {
	if c == nil {
		return nil
	}
	return c.Lat
}

func coordLon(c *models.Coord) any {
	if c == nil {
		return nil
	}
	return c.Lon
}

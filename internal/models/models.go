package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Address is a free-text location plus its resolved coordinate, if any.
type Address struct {
	Text  string `json:"text"`
	Coord *Coord `json:"coord,omitempty"`
}

type VehicleClass string

const (
	VehicleAuto VehicleClass = "auto"
	VehicleCar  VehicleClass = "car"
	VehicleBike VehicleClass = "bike"
)

type RideStatus string

const (
	StatusPending    RideStatus = "pending"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentUPI  PaymentMethod = "upi"
)

type Ride struct {
	ID            string        `json:"id"`
	RiderID       string        `json:"rider_id"`
	CaptainID     string        `json:"captain_id,omitempty"` // empty until accepted
	Pickup        Address       `json:"pickup"`
	Dropoff       Address       `json:"dropoff"`
	VehicleClass  VehicleClass  `json:"vehicle_class"`
	Fare          float64       `json:"fare"` // quoted at creation, 2dp
	OTP           string        `json:"-"`    // only the rider ever sees it
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        RideStatus    `json:"status"`

	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`

	// Set on completion; the quoted Fare stays as the audit baseline.
	FinalFare     float64 `json:"final_fare,omitempty"`
	FinalDistance float64 `json:"final_distance,omitempty"`
	FinalDuration float64 `json:"final_duration,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	AcceptedAt  time.Time `json:"accepted_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// CaptainPresence is the last-known state of a connected captain. It is
// ephemeral: held by the geo index, never persisted long-term.
type CaptainPresence struct {
	CaptainID    string    `json:"captain_id"`
	Loc          Coord     `json:"loc"`
	ConnectionID string    `json:"connection_id"` // empty means unreachable
	Online       bool      `json:"online"`
	Updated      time.Time `json:"updated"`
}

// Reachable reports whether the captain may receive ride offers.
func (p CaptainPresence) Reachable() bool {
	return p.Online && p.ConnectionID != ""
}

// RiderProfile is display-only info attached to ride offers.
type RiderProfile struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
	Photo  string  `json:"photo,omitempty"`
}

// RideOffer is the payload pushed to a candidate captain. The OTP is
// deliberately absent.
type RideOffer struct {
	Type string       `json:"type"` // always "newRide"
	Ride OfferRide    `json:"ride"`
	User RiderProfile `json:"user"`
}

type OfferRide struct {
	ID          string  `json:"id"`
	Pickup      string  `json:"pickup"`
	Dropoff     string  `json:"dropoff"`
	Fare        float64 `json:"fare"`
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	PickupCoord *Coord  `json:"pickup_coordinates,omitempty"`
}

// RideEvent is published to the event pipeline on every status transition.
type RideEvent struct {
	RideID    string     `json:"ride_id"`
	Status    RideStatus `json:"status"`
	CaptainID string     `json:"captain_id,omitempty"`
	At        time.Time  `json:"at"`
}

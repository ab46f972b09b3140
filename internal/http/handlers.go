package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/coordinator"
	"github.com/example/ride-dispatch/internal/directions"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

// CaptainDirectory verifies captain membership when a presence session
// registers. Implementations live outside the dispatch core.
type CaptainDirectory interface {
	CaptainExists(ctx context.Context, captainID string) (bool, error)
}

type Server struct {
	Coord    *coordinator.Coordinator
	Geo      geo.Index
	Hub      *dispatch.WSHub
	Registry *dispatch.Registry
	Kafka    *ingest.KafkaProducer // optional
	Captains CaptainDirectory      // optional; nil skips the membership check

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(coord *coordinator.Coordinator, idx geo.Index, hub *dispatch.WSHub,
	reg *dispatch.Registry, logger *slog.Logger) *Server {
	s := &Server{
		Coord:    coord,
		Geo:      idx,
		Hub:      hub,
		Registry: reg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.handleRequestRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/accept", s.handleAcceptRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/start", s.handleStartRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/complete", s.handleCompleteRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/cancel", s.handleCancelRide).Methods("POST")
	s.mux.HandleFunc("/internal/captain/locations", s.handleCaptainLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{role}/{id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type rideRequestBody struct {
	RiderID       string        `json:"rider_id"`
	Pickup        string        `json:"pickup"`
	Dropoff       string        `json:"dropoff"`
	PickupCoord   *models.Coord `json:"pickup_coord,omitempty"`
	DropoffCoord  *models.Coord `json:"dropoff_coord,omitempty"`
	VehicleClass  string        `json:"vehicle_class"`
	PaymentMethod string        `json:"payment_method"`
}

// rideResponse is the rider-facing view. The OTP appears here and nowhere
// else: only the rider learns it.
type rideResponse struct {
	*models.Ride
	OTP string `json:"otp,omitempty"`
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var body rideRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Coord.RequestRide(r.Context(), coordinator.RideRequest{
		RiderID:       body.RiderID,
		PickupText:    body.Pickup,
		DropoffText:   body.Dropoff,
		PickupCoord:   body.PickupCoord,
		DropoffCoord:  body.DropoffCoord,
		VehicleClass:  models.VehicleClass(body.VehicleClass),
		PaymentMethod: models.PaymentMethod(body.PaymentMethod),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rideResponse{Ride: ride, OTP: ride.OTP})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Coord.Store.Get(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CaptainID string `json:"captain_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Coord.AcceptRide(r.Context(), body.CaptainID, mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CaptainID string `json:"captain_id"`
		OTP       string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Coord.StartRide(r.Context(), body.CaptainID, mux.Vars(r)["ride_id"], body.OTP)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CaptainID     string  `json:"captain_id"`
		FinalFare     float64 `json:"final_fare"`
		FinalDistance float64 `json:"final_distance"`
		FinalDuration float64 `json:"final_duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Coord.CompleteRide(r.Context(), body.CaptainID, mux.Vars(r)["ride_id"],
		body.FinalFare, body.FinalDistance, body.FinalDuration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActorID string `json:"actor_id"`
		Role    string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Coord.CancelRide(r.Context(), body.ActorID, mux.Vars(r)["ride_id"], body.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

// handleCaptainLocation ingests location reports arriving over plain HTTP
// (the captain app's fallback when the socket is down). Reports are mirrored
// to Kafka when a producer is wired, so the presence consumer and any other
// process can follow.
func (s *Server) handleCaptainLocation(w http.ResponseWriter, r *http.Request) {
	var p models.CaptainPresence
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.CaptainID == "" {
		http.Error(w, "captain_id required", http.StatusBadRequest)
		return
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(p); err != nil {
			s.logger.Warn("location publish failed", "captain_id", p.CaptainID, "error", err)
		}
	}
	s.Geo.UpdateLocation(p.CaptainID, p.Loc)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var parseErr *directions.ParseError
	switch {
	case errors.Is(err, coordinator.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyTaken),
		errors.Is(err, storage.ErrInvalidState),
		errors.Is(err, coordinator.ErrCaptainBusy):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrWrongCaptain):
		status = http.StatusForbidden
	case errors.Is(err, coordinator.ErrInvalidOTP):
		status = http.StatusUnauthorized
	case errors.Is(err, directions.ErrGeocode),
		errors.Is(err, directions.ErrNoRoute),
		errors.As(err, &parseErr):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }

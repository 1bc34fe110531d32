// Package api is the thin HTTP layer over the scheduling engine.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/models"
	"washplan/internal/scheduling"
)

// AvailabilityService answers availability queries, cached or direct.
type AvailabilityService interface {
	FindAvailable(ctx context.Context, req scheduling.SearchRequest, customerID int64, prefs *models.SchedulingPreferences) (*scheduling.SearchResult, error)
}

// BookingService runs the confirm/cancel/reschedule lifecycle.
type BookingService interface {
	Confirm(ctx context.Context, bookingID int64) ([]models.SchedulingConflict, error)
	Cancel(ctx context.Context, bookingID int64) error
	Reschedule(ctx context.Context, bookingID int64, newStart time.Time, newResourceID *int64) ([]models.SchedulingConflict, error)
}

// WalkInService seats unscheduled arrivals.
type WalkInService interface {
	Seat(ctx context.Context, walkIn *models.Booking) (*scheduling.WalkInOutcome, error)
}

// BookingWriter persists new booking records.
type BookingWriter interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByReference(ctx context.Context, ref string) (*models.Booking, error)
}

// CacheInvalidator drops cached availability answers after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// Server wires the engine into an http.Handler.
type Server struct {
	availability AvailabilityService
	booker       BookingService
	walkIns      WalkInService
	bookings     BookingWriter
	cache        CacheInvalidator
	logger       zerolog.Logger
	mux          *http.ServeMux
}

// NewServer builds the API handler. cache may be nil when caching is off.
func NewServer(availability AvailabilityService, booker BookingService, walkIns WalkInService, bookings BookingWriter, cache CacheInvalidator, logger zerolog.Logger) *Server {
	s := &Server{
		availability: availability,
		booker:       booker,
		walkIns:      walkIns,
		bookings:     bookings,
		cache:        cache,
		logger:       logger.With().Str("component", "api").Logger(),
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/availability", s.handleAvailability)
	s.mux.HandleFunc("/api/bookings", s.handleCreateBooking)
	s.mux.HandleFunc("/api/bookings/cancel", s.handleCancelBooking)
	s.mux.HandleFunc("/api/bookings/reschedule", s.handleRescheduleBooking)
	s.mux.HandleFunc("/api/walkins", s.handleWalkIn)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody parses a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// writeEngineError maps engine error types onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case scheduling.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case scheduling.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

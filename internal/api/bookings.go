package api

import (
	"net/http"
	"time"

	"washplan/internal/metrics"
	"washplan/internal/models"
)

// CreateBookingRequest is the request body for POST /api/bookings.
type CreateBookingRequest struct {
	CustomerID      int64            `json:"customer_id"`
	ResourceID      int64            `json:"resource_id"`
	Start           string           `json:"start"` // RFC 3339
	DurationMinutes int              `json:"duration_minutes"`
	VehicleSize     string           `json:"vehicle_size,omitempty"`
	Equipment       []string         `json:"equipment,omitempty"`
	Mode            string           `json:"mode,omitempty"`
	Location        *models.GeoPoint `json:"location,omitempty"`
	Priority        int              `json:"priority,omitempty"`
}

// BookingResponse reports the booking and any conflicts found. Conflicts mean
// the booking stayed pending.
type BookingResponse struct {
	Booking   *models.Booking             `json:"booking,omitempty"`
	Conflicts []models.SchedulingConflict `json:"conflicts,omitempty"`
}

// handleCreateBooking creates and confirms a booking in one call. A conflict
// answer is 409 with the booking left pending for the client to retry.
// POST /api/bookings
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CreateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, err := parseRFC3339("start", req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "duration_minutes must be positive")
		return
	}
	if req.CustomerID == 0 || req.ResourceID == 0 {
		writeError(w, http.StatusBadRequest, "customer_id and resource_id are required")
		return
	}

	booking := &models.Booking{
		CustomerID:        req.CustomerID,
		ResourceID:        req.ResourceID,
		StartTime:         start,
		EndTime:           start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		RequiredEquipment: req.Equipment,
		Mode:              models.ModeStationary,
		Location:          req.Location,
		Priority:          req.Priority,
		Status:            models.BookingPending,
	}
	if req.Mode != "" {
		booking.Mode = models.ServiceMode(req.Mode)
	}
	if req.VehicleSize != "" {
		booking.VehicleSize = models.ParseVehicleSize(req.VehicleSize)
	} else {
		booking.VehicleSize = models.VehicleStandard
	}

	if err := s.bookings.Create(r.Context(), booking); err != nil {
		s.writeEngineError(w, err)
		return
	}

	conflicts, err := s.booker.Confirm(r.Context(), booking.ID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if len(conflicts) > 0 {
		writeJSON(w, http.StatusConflict, BookingResponse{Booking: booking, Conflicts: conflicts})
		return
	}

	s.invalidateCache(r.Context())
	booking.Status = models.BookingConfirmed
	writeJSON(w, http.StatusCreated, BookingResponse{Booking: booking})
}

// CancelBookingRequest is the request body for POST /api/bookings/cancel.
type CancelBookingRequest struct {
	BookingID int64  `json:"booking_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// handleCancelBooking frees the booking's slot and capacity.
// POST /api/bookings/cancel
func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_booking")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CancelBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := req.BookingID
	if id == 0 && req.Reference != "" {
		booking, err := s.bookings.GetByReference(r.Context(), req.Reference)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		id = booking.ID
	}
	if id == 0 {
		writeError(w, http.StatusBadRequest, "booking_id or reference is required")
		return
	}

	if err := s.booker.Cancel(r.Context(), id); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.invalidateCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"booking_id": id, "status": "canceled"})
}

// RescheduleBookingRequest is the request body for POST /api/bookings/reschedule.
type RescheduleBookingRequest struct {
	BookingID  int64  `json:"booking_id"`
	NewStart   string `json:"new_start"` // RFC 3339
	ResourceID *int64 `json:"resource_id,omitempty"`
}

// handleRescheduleBooking moves a booking, re-running conflict checks.
// POST /api/bookings/reschedule
func (s *Server) handleRescheduleBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reschedule_booking")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req RescheduleBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BookingID == 0 {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	newStart, err := parseRFC3339("new_start", req.NewStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conflicts, err := s.booker.Reschedule(r.Context(), req.BookingID, newStart, req.ResourceID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if len(conflicts) > 0 {
		writeJSON(w, http.StatusConflict, BookingResponse{Conflicts: conflicts})
		return
	}

	s.invalidateCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"booking_id": req.BookingID, "status": "rescheduled"})
}

package api

import (
	"net/http"
	"time"

	"washplan/internal/metrics"
	"washplan/internal/models"
)

// WalkInRequest is the request body for POST /api/walkins. The walk-in is
// seated immediately on the target resource; no start time is accepted.
type WalkInRequest struct {
	CustomerID      int64            `json:"customer_id"`
	ResourceID      int64            `json:"resource_id"`
	DurationMinutes int              `json:"duration_minutes"`
	VehicleSize     string           `json:"vehicle_size,omitempty"`
	Equipment       []string         `json:"equipment,omitempty"`
	Mode            string           `json:"mode,omitempty"`
	Location        *models.GeoPoint `json:"location,omitempty"`
	Priority        int              `json:"priority,omitempty"`
}

// handleWalkIn seats a walk-in, displacing confirmed bookings when needed.
// An escalated outcome is 409: the walk-in was not seated.
// POST /api/walkins
func (s *Server) handleWalkIn(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("walkin")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req WalkInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CustomerID == 0 || req.ResourceID == 0 {
		writeError(w, http.StatusBadRequest, "customer_id and resource_id are required")
		return
	}
	if req.DurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "duration_minutes must be positive")
		return
	}

	now := time.Now()
	booking := &models.Booking{
		CustomerID:        req.CustomerID,
		ResourceID:        req.ResourceID,
		StartTime:         now,
		EndTime:           now.Add(time.Duration(req.DurationMinutes) * time.Minute),
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

	outcome, err := s.walkIns.Seat(r.Context(), booking)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.invalidateCache(r.Context())
	status := http.StatusOK
	if len(outcome.Unresolved) > 0 {
		status = http.StatusConflict
	}
	writeJSON(w, status, outcome)
}

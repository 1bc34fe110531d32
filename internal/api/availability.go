package api

import (
	"fmt"
	"net/http"
	"time"

	"washplan/internal/metrics"
	"washplan/internal/models"
	"washplan/internal/scheduling"
)

// AvailabilityRequest is the request body for POST /api/availability.
type AvailabilityRequest struct {
	CustomerID      int64                         `json:"customer_id"`
	WindowStart     string                        `json:"window_start"` // RFC 3339
	WindowEnd       string                        `json:"window_end"`
	DurationMinutes int                           `json:"duration_minutes"`
	VehicleSize     string                        `json:"vehicle_size,omitempty"`
	Equipment       []string                      `json:"equipment,omitempty"`
	Mode            string                        `json:"mode,omitempty"`
	Location        *models.GeoPoint              `json:"location,omitempty"`
	RequestedStart  string                        `json:"requested_start,omitempty"`
	ExcludedRanges  []scheduling.Window           `json:"excluded_ranges,omitempty"`
	Preferences     *models.SchedulingPreferences `json:"preferences,omitempty"`
}

// handleAvailability returns open slots plus conflicts and suggestions.
// POST /api/availability
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req AvailabilityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	searchReq, err := req.toSearchRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.availability.FindAvailable(r.Context(), searchReq, req.CustomerID, req.Preferences)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (req *AvailabilityRequest) toSearchRequest() (scheduling.SearchRequest, error) {
	start, err := parseRFC3339("window_start", req.WindowStart)
	if err != nil {
		return scheduling.SearchRequest{}, err
	}
	end, err := parseRFC3339("window_end", req.WindowEnd)
	if err != nil {
		return scheduling.SearchRequest{}, err
	}

	out := scheduling.SearchRequest{
		WindowStart:       start,
		WindowEnd:         end,
		Duration:          time.Duration(req.DurationMinutes) * time.Minute,
		RequiredEquipment: req.Equipment,
		Location:          req.Location,
		Mode:              models.ServiceMode(req.Mode),
		ExcludedRanges:    req.ExcludedRanges,
	}
	if req.Mode == "" {
		out.Mode = models.ModeStationary
	}
	if req.VehicleSize != "" {
		size := models.ParseVehicleSize(req.VehicleSize)
		if size == 0 {
			return scheduling.SearchRequest{}, fmt.Errorf("unknown vehicle_size %q", req.VehicleSize)
		}
		out.VehicleSize = size
	}
	if req.RequestedStart != "" {
		requested, err := parseRFC3339("requested_start", req.RequestedStart)
		if err != nil {
			return scheduling.SearchRequest{}, err
		}
		out.RequestedStart = requested
	}
	return out, nil
}

func parseRFC3339(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; expected RFC 3339 timestamp", field)
	}
	return t, nil
}

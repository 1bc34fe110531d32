package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/metrics"
	"washplan/internal/models"
)

// MinServiceDuration is the shortest bookable service.
const MinServiceDuration = 15 * time.Minute

// SearchRequest describes an availability query.
type SearchRequest struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	Duration          time.Duration
	RequiredEquipment []string
	VehicleSize       models.VehicleSize
	Location          *models.GeoPoint
	Mode              models.ServiceMode
	// ExcludedRanges rejects any slot overlapping one of these intervals.
	ExcludedRanges []Window
	// RequestedStart is the customer's ideal time, used by the
	// closest-to-requested suggestion strategy. Zero means WindowStart.
	RequestedStart time.Time
}

// Window is an absolute time interval.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SearchResult is the availability answer: open slots, why parts of the
// request failed, and a short list of suggested times.
type SearchResult struct {
	Slots       []models.TimeSlot           `json:"slots"`
	Conflicts   []models.SchedulingConflict `json:"conflicts,omitempty"`
	Suggestions []time.Time                 `json:"suggestions,omitempty"`
}

// Search finds open slots across eligible resources. Read-heavy and free of
// side effects beyond idempotent slot generation, so it is safely retriable.
type Search struct {
	calendar    *Calendar
	resources   ResourceStore
	slots       TimeSlotStore
	generator   *Generator
	suggester   *Suggester
	conflictLog ConflictLogStore
	rules       Rules
	logger      zerolog.Logger
}

// NewSearch creates an availability search engine.
func NewSearch(calendar *Calendar, resources ResourceStore, slots TimeSlotStore, generator *Generator, suggester *Suggester, conflictLog ConflictLogStore, rules Rules, logger zerolog.Logger) *Search {
	return &Search{
		calendar:    calendar,
		resources:   resources,
		slots:       slots,
		generator:   generator,
		suggester:   suggester,
		conflictLog: conflictLog,
		rules:       rules,
		logger:      logger.With().Str("component", "availability_search").Logger(),
	}
}

// FindAvailable resolves eligible resources, pulls or generates slots in the
// window, applies preference filters, and returns a deduplicated ascending
// slot list. A request no resource can serve returns a ResourceUnavailable
// conflict, never a bare empty success.
func (s *Search) FindAvailable(ctx context.Context, req SearchRequest, customerID int64, prefs *models.SchedulingPreferences) (*SearchResult, error) {
	started := time.Now()
	defer func() {
		metrics.ObserveSearchDuration(time.Since(started).Seconds())
	}()
	metrics.IncSearch()

	if err := validateSearch(req); err != nil {
		return nil, err
	}

	eligible, err := s.resources.ListEligible(ctx, models.EligibilityCriteria{
		RequiredEquipment: req.RequiredEquipment,
		VehicleSize:       req.VehicleSize,
		Location:          req.Location,
		Mode:              req.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("list eligible resources: %w", err)
	}

	eligible = narrowToPreferred(eligible, prefs)

	if len(eligible) == 0 {
		conflict := models.SchedulingConflict{
			Kind:          models.ConflictResourceUnavailable,
			Message:       "no active resource matches the requested service",
			RequestedTime: req.WindowStart,
		}
		s.recordConflict(ctx, conflict, customerID)
		return &SearchResult{Conflicts: []models.SchedulingConflict{conflict}}, nil
	}

	candidates := s.collectSlots(ctx, req, eligible)
	candidates = s.applyFilters(candidates, req, prefs)
	deduped := dedupeAndSort(candidates)

	result := &SearchResult{Slots: deduped}
	if s.suggester != nil {
		result.Suggestions = s.suggester.Suggest(deduped, prefs, req)
	}
	return result, nil
}

func validateSearch(req SearchRequest) error {
	if req.Duration < MinServiceDuration {
		return newValidationError("duration", "must be at least %s", MinServiceDuration)
	}
	if !req.WindowEnd.After(req.WindowStart) {
		return newValidationError("window", "end must be after start")
	}
	for _, ex := range req.ExcludedRanges {
		if !ex.End.After(ex.Start) {
			return newValidationError("excluded_ranges", "range end must be after start")
		}
	}
	return nil
}

func narrowToPreferred(eligible []models.Resource, prefs *models.SchedulingPreferences) []models.Resource {
	if prefs == nil || len(prefs.PreferredResourceIDs) == 0 {
		return eligible
	}
	preferred := make(map[int64]struct{}, len(prefs.PreferredResourceIDs))
	for _, id := range prefs.PreferredResourceIDs {
		preferred[id] = struct{}{}
	}
	var narrowed []models.Resource
	for _, r := range eligible {
		if _, ok := preferred[r.ResourceID()]; ok {
			narrowed = append(narrowed, r)
		}
	}
	// Preferences shape, they never empty the result.
	if len(narrowed) == 0 {
		return eligible
	}
	return narrowed
}

// collectSlots generates and loads Available slots per resource. A resource
// that errors is excluded with a log line, never failing the whole search.
func (s *Search) collectSlots(ctx context.Context, req SearchRequest, eligible []models.Resource) []models.TimeSlot {
	var all []models.TimeSlot
	for _, r := range eligible {
		id := r.ResourceID()
		if _, err := s.generator.GenerateSlots(ctx, id, req.WindowStart, req.WindowEnd, s.rules.SlotGranularity); err != nil {
			s.logger.Warn().Err(err).Int64("resource_id", id).Msg("slot generation failed, excluding resource")
			continue
		}
		slots, err := s.slots.FindAvailable(ctx, req.WindowStart, req.WindowEnd, []int64{id}, req.Duration)
		if err != nil {
			s.logger.Warn().Err(err).Int64("resource_id", id).Msg("slot lookup failed, excluding resource")
			continue
		}
		all = append(all, slots...)
	}
	return all
}

func (s *Search) applyFilters(slots []models.TimeSlot, req SearchRequest, prefs *models.SchedulingPreferences) []models.TimeSlot {
	var kept []models.TimeSlot
	for _, slot := range slots {
		if slot.Status != models.SlotAvailable {
			continue
		}
		if slot.Duration() < req.Duration {
			continue
		}
		// Strictly within the search window.
		if slot.StartTime.Before(req.WindowStart) || slot.EndTime.After(req.WindowEnd) {
			continue
		}
		if overlapsExcluded(slot, req.ExcludedRanges) {
			continue
		}
		if !matchesPreferences(slot, prefs) {
			continue
		}
		kept = append(kept, slot)
	}
	return kept
}

func overlapsExcluded(slot models.TimeSlot, excluded []Window) bool {
	for _, ex := range excluded {
		if slot.Overlaps(ex.Start, ex.End) {
			return true
		}
	}
	return false
}

// matchesPreferences applies day-of-week and time-of-day shaping. Avoided
// times always reject; preferred days/times reject only when the customer
// stated some and the slot matches none.
func matchesPreferences(slot models.TimeSlot, prefs *models.SchedulingPreferences) bool {
	if prefs == nil {
		return true
	}

	for _, avoid := range prefs.AvoidTimes {
		if slotInRange(slot, avoid) {
			return false
		}
	}

	if len(prefs.PreferredDays) > 0 {
		matched := false
		for _, day := range prefs.PreferredDays {
			if slot.StartTime.Weekday() == day {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(prefs.PreferredTimes) > 0 {
		matched := false
		for _, tr := range prefs.PreferredTimes {
			if slotInRange(slot, tr) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func slotInRange(slot models.TimeSlot, tr models.TimeRange) bool {
	start, err := AtTimeOfDay(slot.StartTime, tr.Start)
	if err != nil {
		return false
	}
	end, err := AtTimeOfDay(slot.StartTime, tr.End)
	if err != nil {
		return false
	}
	return slot.Overlaps(start, end)
}

// dedupeAndSort collapses slots sharing (start, end) across resources, since
// a time is available if at least one resource can serve it, and orders the
// result ascending by start.
func dedupeAndSort(slots []models.TimeSlot) []models.TimeSlot {
	type key struct {
		start, end int64
	}
	seen := make(map[key]struct{}, len(slots))
	deduped := make([]models.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		k := key{start: slot.StartTime.Unix(), end: slot.EndTime.Unix()}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		deduped = append(deduped, slot)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].StartTime.Before(deduped[j].StartTime)
	})
	return deduped
}

func (s *Search) recordConflict(ctx context.Context, conflict models.SchedulingConflict, customerID int64) {
	if s.conflictLog == nil {
		return
	}
	if err := s.conflictLog.Record(ctx, conflict, customerID); err != nil {
		// Analytics only; never fail the caller's request over it.
		s.logger.Warn().Err(err).Msg("conflict log write failed")
	}
}

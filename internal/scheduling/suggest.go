package scheduling

import (
	"sort"
	"time"

	"washplan/internal/models"
)

// MaxSuggestions caps how many alternative times a search returns.
const MaxSuggestions = 5

// Suggester narrows available slots to a short ranked list of start times.
// Deterministic: identical inputs yield the identical ordered list, ties
// broken by start time.
type Suggester struct{}

// NewSuggester creates a suggestion engine.
func NewSuggester() *Suggester {
	return &Suggester{}
}

// Suggest applies the preference-selected strategy to the candidate slots.
// Falls back to earliest-available when no strategy is set.
func (s *Suggester) Suggest(slots []models.TimeSlot, prefs *models.SchedulingPreferences, req SearchRequest) []time.Time {
	if len(slots) == 0 {
		return nil
	}

	ordered := make([]models.TimeSlot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})

	strategy := models.StrategyEarliest
	if prefs != nil && prefs.Strategy != "" {
		strategy = prefs.Strategy
	}

	switch strategy {
	case models.StrategyClosest:
		return s.closestToRequested(ordered, req)
	case models.StrategyLoadBalance:
		return s.loadBalanced(ordered)
	case models.StrategyCustomerPref:
		return s.customerPreference(ordered, prefs)
	default:
		return s.earliest(ordered)
	}
}

func (s *Suggester) earliest(ordered []models.TimeSlot) []time.Time {
	return takeStarts(ordered, MaxSuggestions)
}

func (s *Suggester) closestToRequested(ordered []models.TimeSlot, req SearchRequest) []time.Time {
	target := req.RequestedStart
	if target.IsZero() {
		target = req.WindowStart
	}

	ranked := make([]models.TimeSlot, len(ordered))
	copy(ranked, ordered)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := absDuration(ranked[i].StartTime.Sub(target))
		dj := absDuration(ranked[j].StartTime.Sub(target))
		if di == dj {
			return ranked[i].StartTime.Before(ranked[j].StartTime)
		}
		return di < dj
	})
	return takeStarts(ranked, MaxSuggestions)
}

// loadBalanced spreads suggestions across hours of the day: group candidates
// by hour, then cycle the hour groups emitting one slot per group per round.
func (s *Suggester) loadBalanced(ordered []models.TimeSlot) []time.Time {
	groups := make(map[int][]models.TimeSlot)
	var hours []int
	for _, slot := range ordered {
		h := slot.StartTime.Hour()
		if _, ok := groups[h]; !ok {
			hours = append(hours, h)
		}
		groups[h] = append(groups[h], slot)
	}
	sort.Ints(hours)

	var picked []time.Time
	for round := 0; len(picked) < MaxSuggestions; round++ {
		emitted := false
		for _, h := range hours {
			if round < len(groups[h]) {
				picked = append(picked, groups[h][round].StartTime)
				emitted = true
				if len(picked) == MaxSuggestions {
					break
				}
			}
		}
		if !emitted {
			break
		}
	}
	return picked
}

// customerPreference keeps slots matching both a preferred day and a
// preferred time range; earliest-available when nothing survives the filter.
func (s *Suggester) customerPreference(ordered []models.TimeSlot, prefs *models.SchedulingPreferences) []time.Time {
	if prefs == nil || (len(prefs.PreferredDays) == 0 && len(prefs.PreferredTimes) == 0) {
		return s.earliest(ordered)
	}

	var filtered []models.TimeSlot
	for _, slot := range ordered {
		if prefersDay(slot, prefs.PreferredDays) && prefersTime(slot, prefs.PreferredTimes) {
			filtered = append(filtered, slot)
		}
	}
	if len(filtered) == 0 {
		return s.earliest(ordered)
	}
	return takeStarts(filtered, MaxSuggestions)
}

func prefersDay(slot models.TimeSlot, days []time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, day := range days {
		if slot.StartTime.Weekday() == day {
			return true
		}
	}
	return false
}

func prefersTime(slot models.TimeSlot, ranges []models.TimeRange) bool {
	if len(ranges) == 0 {
		return true
	}
	for _, tr := range ranges {
		if slotInRange(slot, tr) {
			return true
		}
	}
	return false
}

func takeStarts(slots []models.TimeSlot, n int) []time.Time {
	if len(slots) < n {
		n = len(slots)
	}
	starts := make([]time.Time, 0, n)
	for _, slot := range slots[:n] {
		starts = append(starts, slot.StartTime)
	}
	return starts
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

package scheduling

import "time"

// Rules carries the booking-window knobs. Loaded from config per process and
// passed explicitly so tests can supply isolated values.
type Rules struct {
	// MinAdvance is the shortest notice an advance booking may give.
	MinAdvance time.Duration
	// MaxAdvance is how far into the future bookings are accepted.
	MaxAdvance time.Duration
	// SlotGranularity is the generated slot length.
	SlotGranularity time.Duration
	// DefaultBufferMinutes separates consecutive bookings during cascade
	// adjustment when the customer supplied no preference.
	DefaultBufferMinutes int
	// MaxCascadeDepth bounds how many bookings one walk-in may push.
	MaxCascadeDepth int
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		MinAdvance:           2 * time.Hour,
		MaxAdvance:           30 * 24 * time.Hour,
		SlotGranularity:      30 * time.Minute,
		DefaultBufferMinutes: 10,
		MaxCascadeDepth:      16,
	}
}

// delayOffsets are the forward steps tried when delaying a displaced booking.
var delayOffsets = []time.Duration{
	30 * time.Minute,
	60 * time.Minute,
	90 * time.Minute,
	120 * time.Minute,
}

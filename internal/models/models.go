// Package models defines the scheduling domain types shared across the engine,
// stores and API layers.
package models

import (
	"fmt"
	"math"
	"time"
)

// ServiceMode distinguishes in-bay washes from mobile visits.
type ServiceMode string

const (
	ModeStationary ServiceMode = "stationary"
	ModeMobile     ServiceMode = "mobile"
)

// VehicleSize is an ordered size class; larger values mean bigger vehicles.
type VehicleSize int

const (
	VehicleCompact VehicleSize = iota + 1
	VehicleStandard
	VehicleLarge
	VehicleOversized
)

var vehicleSizeNames = map[VehicleSize]string{
	VehicleCompact:   "compact",
	VehicleStandard:  "standard",
	VehicleLarge:     "large",
	VehicleOversized: "oversized",
}

func (v VehicleSize) String() string {
	if name, ok := vehicleSizeNames[v]; ok {
		return name
	}
	return fmt.Sprintf("vehicle_size(%d)", int(v))
}

// ParseVehicleSize parses a size name; returns 0 for unknown values.
func ParseVehicleSize(s string) VehicleSize {
	for size, name := range vehicleSizeNames {
		if name == s {
			return size
		}
	}
	return 0
}

// BreakPeriod is a pause within a working day, times as "15:04" strings.
type BreakPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BusinessHours describes one day of the weekly schedule.
// DayOfWeek uses 1 = Monday .. 7 = Sunday.
type BusinessHours struct {
	ID        int64         `json:"id"`
	DayOfWeek int           `json:"day_of_week"`
	OpenTime  string        `json:"open_time"`  // "09:00"
	CloseTime string        `json:"close_time"` // "18:00"
	IsClosed  bool          `json:"is_closed"`
	Breaks    []BreakPeriod `json:"breaks,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ScheduleOverride replaces the weekly hours for a single date.
type ScheduleOverride struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	IsClosed  bool      `json:"is_closed"`
	OpenTime  string    `json:"open_time,omitempty"`
	CloseTime string    `json:"close_time,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WeekdayNumber converts time.Weekday to the 1..7 Monday-first convention.
func WeekdayNumber(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKm returns the planar approximation of the distance between two
// points, good enough for service-radius checks at city scale.
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	const kmPerDegree = 111.0
	dLat := (p.Lat - other.Lat) * kmPerDegree
	dLng := (p.Lng - other.Lng) * kmPerDegree * math.Cos(p.Lat*math.Pi/180)
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// ResourceKind tags the schedulable resource variants.
type ResourceKind string

const (
	KindFixedBay   ResourceKind = "fixed_bay"
	KindMobileTeam ResourceKind = "mobile_team"
)

// EligibilityCriteria narrows which resources may serve a request.
type EligibilityCriteria struct {
	RequiredEquipment []string
	VehicleSize       VehicleSize // 0 = unspecified
	Location          *GeoPoint   // required for mobile service
	Mode              ServiceMode // "" = any
}

// Resource is a schedulable capacity unit: a fixed wash bay or a mobile team.
type Resource interface {
	ResourceID() int64
	Kind() ResourceKind
	IsActive() bool
	EquipmentTags() []string
	Mode() ServiceMode
	// DailyCapacity is the number of concurrent or per-day vehicles the
	// resource can take on a single date.
	DailyCapacity() int
	// EligibleFor reports whether the resource can serve the criteria.
	EligibleFor(c EligibilityCriteria) bool
	// LocationKey identifies where service happens, for grouping and display.
	LocationKey() string
}

// FixedBay is an on-site wash bay with capacity 1.
type FixedBay struct {
	ID             int64       `json:"id"`
	BayNumber      int         `json:"bay_number"`
	Active         bool        `json:"active"`
	Equipment      []string    `json:"equipment"`
	MaxVehicleSize VehicleSize `json:"max_vehicle_size"`
	Covered        bool        `json:"covered"`
	HasPower       bool        `json:"has_power"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (b *FixedBay) ResourceID() int64       { return b.ID }
func (b *FixedBay) Kind() ResourceKind      { return KindFixedBay }
func (b *FixedBay) IsActive() bool          { return b.Active }
func (b *FixedBay) EquipmentTags() []string { return b.Equipment }
func (b *FixedBay) Mode() ServiceMode       { return ModeStationary }
func (b *FixedBay) DailyCapacity() int      { return 1 }

func (b *FixedBay) LocationKey() string {
	return fmt.Sprintf("bay-%d", b.BayNumber)
}

func (b *FixedBay) EligibleFor(c EligibilityCriteria) bool {
	if !b.Active {
		return false
	}
	if c.Mode != "" && c.Mode != ModeStationary {
		return false
	}
	if !hasAllTags(b.Equipment, c.RequiredEquipment) {
		return false
	}
	if c.VehicleSize != 0 && c.VehicleSize > b.MaxVehicleSize {
		return false
	}
	return true
}

// MobileTeam is a crew that drives out to the customer.
type MobileTeam struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Active            bool      `json:"active"`
	Equipment         []string  `json:"equipment"`
	TeamSize          int       `json:"team_size"`
	ServiceRadiusKm   float64   `json:"service_radius_km"`
	MaxVehiclesPerDay int       `json:"max_vehicles_per_day"`
	Base              GeoPoint  `json:"base"`
	HourlyRate        float64   `json:"hourly_rate"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (t *MobileTeam) ResourceID() int64       { return t.ID }
func (t *MobileTeam) Kind() ResourceKind      { return KindMobileTeam }
func (t *MobileTeam) IsActive() bool          { return t.Active }
func (t *MobileTeam) EquipmentTags() []string { return t.Equipment }
func (t *MobileTeam) Mode() ServiceMode       { return ModeMobile }

func (t *MobileTeam) DailyCapacity() int {
	if t.MaxVehiclesPerDay <= 0 {
		return 1
	}
	return t.MaxVehiclesPerDay
}

func (t *MobileTeam) LocationKey() string {
	return fmt.Sprintf("team-%d", t.ID)
}

func (t *MobileTeam) EligibleFor(c EligibilityCriteria) bool {
	if !t.Active {
		return false
	}
	if c.Mode != "" && c.Mode != ModeMobile {
		return false
	}
	if !hasAllTags(t.Equipment, c.RequiredEquipment) {
		return false
	}
	if c.Location != nil && t.Base.DistanceKm(*c.Location) > t.ServiceRadiusKm {
		return false
	}
	return true
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, tag := range have {
		set[tag] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	return true
}

// SlotStatus is the lifecycle state of a time slot. Slots are never deleted,
// only status-transitioned, so booking history stays auditable.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

// TimeSlot is a bookable interval on a resource.
type TimeSlot struct {
	ID          int64      `json:"id"`
	ResourceID  int64      `json:"resource_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Status      SlotStatus `json:"status"`
	BookingID   *int64     `json:"booking_id,omitempty"`
	BlockReason string     `json:"block_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Duration is the slot length.
func (s *TimeSlot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Overlaps reports whether the slot intersects [start, end).
func (s *TimeSlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// CapacityAllocation counts slots consumed on a (date, resource, mode) key.
// Created lazily on first allocation.
type CapacityAllocation struct {
	ID             int64       `json:"id"`
	Date           time.Time   `json:"date"` // midnight local
	ResourceID     int64       `json:"resource_id"`
	Mode           ServiceMode `json:"mode"`
	MaxCapacity    int         `json:"max_capacity"`
	AllocatedCount int         `json:"allocated_count"`
	BookingIDs     []int64     `json:"booking_ids"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// HasBooking reports whether the booking currently consumes a slot.
func (c *CapacityAllocation) HasBooking(bookingID int64) bool {
	for _, id := range c.BookingIDs {
		if id == bookingID {
			return true
		}
	}
	return false
}

// IsFull reports whether no further allocations fit.
func (c *CapacityAllocation) IsFull() bool {
	return c.AllocatedCount >= c.MaxCapacity
}

// ConflictKind classifies why a requested time cannot be booked.
type ConflictKind string

const (
	ConflictDoubleBooking       ConflictKind = "double_booking"
	ConflictOutsideHours        ConflictKind = "outside_business_hours"
	ConflictResourceUnavailable ConflictKind = "resource_unavailable"
	ConflictInsufficientNotice  ConflictKind = "insufficient_notice"
	ConflictMaintenanceWindow   ConflictKind = "maintenance_window"
)

// SchedulingConflict explains a business-rule mismatch. Conflicts are data,
// not errors: callers display them and may retry with another time.
type SchedulingConflict struct {
	Kind                 ConflictKind `json:"kind"`
	Message              string       `json:"message"`
	RequestedTime        time.Time    `json:"requested_time"`
	ConflictingBookingID *int64       `json:"conflicting_booking_id,omitempty"`
	ResourceID           *int64       `json:"resource_id,omitempty"`
	SuggestedTimes       []time.Time  `json:"suggested_times,omitempty"`
}

// SuggestionStrategy selects how candidate slots are ranked.
type SuggestionStrategy string

const (
	StrategyEarliest     SuggestionStrategy = "earliest_available"
	StrategyClosest      SuggestionStrategy = "closest_to_requested"
	StrategyLoadBalance  SuggestionStrategy = "load_balancing"
	StrategyCustomerPref SuggestionStrategy = "customer_preference"
)

// TimeRange is a time-of-day window, times as "15:04" strings.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SchedulingPreferences is optional customer-supplied shaping of search results.
type SchedulingPreferences struct {
	PreferredDays        []time.Weekday     `json:"preferred_days,omitempty"`
	PreferredTimes       []TimeRange        `json:"preferred_times,omitempty"`
	AvoidTimes           []TimeRange        `json:"avoid_times,omitempty"`
	PreferredResourceIDs []int64            `json:"preferred_resource_ids,omitempty"`
	BufferMinutes        int                `json:"buffer_minutes,omitempty"`
	Strategy             SuggestionStrategy `json:"strategy,omitempty"`
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCanceled   BookingStatus = "canceled"
)

// Booking priorities; displacement never moves a booking whose priority is
// higher than the walk-in's.
const (
	PriorityNormal = 0
	PriorityVIP    = 10
)

// Booking is a confirmed or pending reservation. The record is owned by the
// booking feature; the scheduling engine reads and moves it during walk-in
// displacement.
type Booking struct {
	ID                int64         `json:"id"`
	Reference         string        `json:"reference"` // uuid, stable across moves
	CustomerID        int64         `json:"customer_id"`
	ResourceID        int64         `json:"resource_id"`
	VehicleSize       VehicleSize   `json:"vehicle_size"`
	RequiredEquipment []string      `json:"required_equipment,omitempty"`
	Mode              ServiceMode   `json:"mode"`
	Location          *GeoPoint     `json:"location,omitempty"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	Status            BookingStatus `json:"status"`
	Priority          int           `json:"priority"`
	ReminderSent      bool          `json:"reminder_sent"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Duration is the booked service length.
func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// IsActive reports whether the booking still occupies its slot.
func (b *Booking) IsActive() bool {
	switch b.Status {
	case BookingPending, BookingConfirmed, BookingInProgress:
		return true
	default:
		return false
	}
}

// Criteria returns the eligibility criteria an alternative resource must meet
// to take this booking over.
func (b *Booking) Criteria() EligibilityCriteria {
	return EligibilityCriteria{
		RequiredEquipment: b.RequiredEquipment,
		VehicleSize:       b.VehicleSize,
		Location:          b.Location,
		Mode:              b.Mode,
	}
}

// DayKey normalizes a timestamp to its local midnight, the capacity
// allocation date key.
func DayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

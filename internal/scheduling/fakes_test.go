package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"washplan/internal/models"
)

// In-memory store implementations mirroring the sqlite stores' contracts,
// so engine behavior is testable without a database file.

type memHours struct {
	weekly    map[int]models.BusinessHours
	overrides map[string]models.ScheduleOverride
	err       error
}

func newMemHours() *memHours {
	return &memHours{
		weekly:    make(map[int]models.BusinessHours),
		overrides: make(map[string]models.ScheduleOverride),
	}
}

func (m *memHours) GetAll(ctx context.Context) (map[int]models.BusinessHours, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[int]models.BusinessHours, len(m.weekly))
	for k, v := range m.weekly {
		out[k] = v
	}
	return out, nil
}

func (m *memHours) Upsert(ctx context.Context, hours *models.BusinessHours) error {
	m.weekly[hours.DayOfWeek] = *hours
	return nil
}

func (m *memHours) GetOverride(ctx context.Context, date time.Time) (*models.ScheduleOverride, error) {
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.overrides[date.Format("2006-01-02")]
	if !ok {
		return nil, nil
	}
	copied := o
	return &copied, nil
}

func (m *memHours) UpsertOverride(ctx context.Context, o *models.ScheduleOverride) error {
	m.overrides[o.Date.Format("2006-01-02")] = *o
	return nil
}

type memResources struct {
	items   map[int64]models.Resource
	nextID  int64
	listErr error
}

func newMemResources() *memResources {
	return &memResources{items: make(map[int64]models.Resource)}
}

func (m *memResources) add(r models.Resource) {
	m.items[r.ResourceID()] = r
}

func (m *memResources) ListEligible(ctx context.Context, c models.EligibilityCriteria) ([]models.Resource, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]int64, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var eligible []models.Resource
	for _, id := range ids {
		r := m.items[id]
		if r.IsActive() && r.EligibleFor(c) {
			eligible = append(eligible, r)
		}
	}
	return eligible, nil
}

func (m *memResources) GetByID(ctx context.Context, id int64) (models.Resource, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, &NotFoundError{Entity: "resource", ID: id}
	}
	return r, nil
}

func (m *memResources) Create(ctx context.Context, r models.Resource) (int64, error) {
	m.nextID++
	switch v := r.(type) {
	case *models.FixedBay:
		v.ID = m.nextID
	case *models.MobileTeam:
		v.ID = m.nextID
	}
	m.items[m.nextID] = r
	return m.nextID, nil
}

func (m *memResources) Update(ctx context.Context, r models.Resource) error {
	if _, ok := m.items[r.ResourceID()]; !ok {
		return &NotFoundError{Entity: "resource", ID: r.ResourceID()}
	}
	m.items[r.ResourceID()] = r
	return nil
}

func (m *memResources) Deactivate(ctx context.Context, id int64) error {
	r, ok := m.items[id]
	if !ok {
		return &NotFoundError{Entity: "resource", ID: id}
	}
	switch v := r.(type) {
	case *models.FixedBay:
		v.Active = false
	case *models.MobileTeam:
		v.Active = false
	}
	return nil
}

type memSlots struct {
	nextID int64
	slots  map[int64]*models.TimeSlot
}

func newMemSlots() *memSlots {
	return &memSlots{slots: make(map[int64]*models.TimeSlot)}
}

func (m *memSlots) ordered() []*models.TimeSlot {
	out := make([]*models.TimeSlot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ResourceID < out[j].ResourceID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (m *memSlots) FindAvailable(ctx context.Context, from, to time.Time, resourceIDs []int64, minDuration time.Duration) ([]models.TimeSlot, error) {
	wanted := make(map[int64]struct{}, len(resourceIDs))
	for _, id := range resourceIDs {
		wanted[id] = struct{}{}
	}

	var out []models.TimeSlot
	for _, s := range m.ordered() {
		if s.Status != models.SlotAvailable {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[s.ResourceID]; !ok {
				continue
			}
		}
		if !s.Overlaps(from, to) {
			continue
		}
		if minDuration > 0 && s.Duration() < minDuration {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSlots) CheckOverlap(ctx context.Context, from, to time.Time, resourceID *int64, excludeBookingID *int64) ([]models.TimeSlot, error) {
	var out []models.TimeSlot
	for _, s := range m.ordered() {
		if s.Status != models.SlotBooked && s.Status != models.SlotBlocked {
			continue
		}
		if resourceID != nil && s.ResourceID != *resourceID {
			continue
		}
		if excludeBookingID != nil && s.BookingID != nil && *s.BookingID == *excludeBookingID {
			continue
		}
		if !s.Overlaps(from, to) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSlots) Create(ctx context.Context, slot *models.TimeSlot) error {
	for _, s := range m.slots {
		if s.ResourceID == slot.ResourceID && s.StartTime.Equal(slot.StartTime) && s.EndTime.Equal(slot.EndTime) {
			return ErrDuplicateSlot
		}
	}
	m.nextID++
	slot.ID = m.nextID
	copied := *slot
	m.slots[slot.ID] = &copied
	return nil
}

func (m *memSlots) UpdateStatus(ctx context.Context, id int64, status models.SlotStatus, bookingID *int64) error {
	s, ok := m.slots[id]
	if !ok {
		return &NotFoundError{Entity: "time slot", ID: id}
	}
	s.Status = status
	s.BookingID = bookingID
	return nil
}

func (m *memSlots) FindByBooking(ctx context.Context, bookingID int64) (*models.TimeSlot, error) {
	for _, s := range m.ordered() {
		if s.Status == models.SlotBooked && s.BookingID != nil && *s.BookingID == bookingID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

// get returns the stored slot for assertions.
func (m *memSlots) get(id int64) models.TimeSlot {
	return *m.slots[id]
}

type capKey struct {
	date     string
	resource int64
	mode     models.ServiceMode
}

type memCapacity struct {
	allocs map[capKey]*models.CapacityAllocation
}

func newMemCapacity() *memCapacity {
	return &memCapacity{allocs: make(map[capKey]*models.CapacityAllocation)}
}

func (m *memCapacity) key(date time.Time, resourceID int64, mode models.ServiceMode) capKey {
	return capKey{date: date.Format("2006-01-02"), resource: resourceID, mode: mode}
}

func (m *memCapacity) Get(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode) (*models.CapacityAllocation, error) {
	alloc, ok := m.allocs[m.key(date, resourceID, mode)]
	if !ok {
		return nil, nil
	}
	copied := *alloc
	copied.BookingIDs = append([]int64(nil), alloc.BookingIDs...)
	return &copied, nil
}

func (m *memCapacity) Reserve(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode, maxCapacity int, bookingID int64) (bool, error) {
	k := m.key(date, resourceID, mode)
	alloc, ok := m.allocs[k]
	if !ok {
		alloc = &models.CapacityAllocation{
			Date:        date,
			ResourceID:  resourceID,
			Mode:        mode,
			MaxCapacity: maxCapacity,
		}
		m.allocs[k] = alloc
	}
	if alloc.HasBooking(bookingID) {
		return true, nil
	}
	if alloc.IsFull() {
		return false, nil
	}
	alloc.AllocatedCount++
	alloc.BookingIDs = append(alloc.BookingIDs, bookingID)
	return true, nil
}

func (m *memCapacity) Release(ctx context.Context, date time.Time, resourceID int64, bookingID int64) (bool, error) {
	day := date.Format("2006-01-02")
	for k, alloc := range m.allocs {
		if k.date != day || k.resource != resourceID || !alloc.HasBooking(bookingID) {
			continue
		}
		kept := alloc.BookingIDs[:0]
		for _, id := range alloc.BookingIDs {
			if id != bookingID {
				kept = append(kept, id)
			}
		}
		alloc.BookingIDs = kept
		if alloc.AllocatedCount > 0 {
			alloc.AllocatedCount--
		}
		return true, nil
	}
	return false, nil
}

type memConflictLog struct {
	records []models.SchedulingConflict
	err     error
}

func (m *memConflictLog) Record(ctx context.Context, conflict models.SchedulingConflict, customerID int64) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, conflict)
	return nil
}

type memBookings struct {
	items map[int64]*models.Booking
}

func newMemBookings() *memBookings {
	return &memBookings{items: make(map[int64]*models.Booking)}
}

func (m *memBookings) add(b models.Booking) {
	copied := b
	m.items[b.ID] = &copied
}

func (m *memBookings) get(id int64) models.Booking {
	return *m.items[id]
}

func (m *memBookings) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	b, ok := m.items[id]
	if !ok {
		return nil, &NotFoundError{Entity: "booking", ID: id}
	}
	copied := *b
	return &copied, nil
}

func (m *memBookings) Update(ctx context.Context, b *models.Booking) error {
	if _, ok := m.items[b.ID]; !ok {
		return &NotFoundError{Entity: "booking", ID: b.ID}
	}
	copied := *b
	m.items[b.ID] = &copied
	return nil
}

type rescheduleNote struct {
	bookingID        int64
	oldTime, newTime time.Time
}

type bayChangeNote struct {
	bookingID     int64
	newResourceID int64
}

type memNotifier struct {
	rescheduled []rescheduleNote
	bayChanges  []bayChangeNote
	err         error
}

func (m *memNotifier) NotifyRescheduled(ctx context.Context, bookingID int64, oldTime, newTime time.Time) error {
	m.rescheduled = append(m.rescheduled, rescheduleNote{bookingID: bookingID, oldTime: oldTime, newTime: newTime})
	return m.err
}

func (m *memNotifier) NotifyBayChanged(ctx context.Context, bookingID int64, newResourceID int64) error {
	m.bayChanges = append(m.bayChanges, bayChangeNote{bookingID: bookingID, newResourceID: newResourceID})
	return m.err
}

// engineEnv wires the whole engine over in-memory stores with a fixed clock.
type engineEnv struct {
	hours     *memHours
	resources *memResources
	slots     *memSlots
	capacity  *memCapacity
	conflicts *memConflictLog
	bookings  *memBookings
	notifier  *memNotifier

	calendar  *Calendar
	generator *Generator
	detector  *Detector
	allocator *Allocator
	suggester *Suggester
	search    *Search
	booker    *Booker
	coord     *Coordinator

	rules Rules
	now   time.Time
}

// testNow is a Monday morning; every relative date in the tests hangs off it.
var testNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func newEngineEnv() *engineEnv {
	env := &engineEnv{
		hours:     newMemHours(),
		resources: newMemResources(),
		slots:     newMemSlots(),
		capacity:  newMemCapacity(),
		conflicts: &memConflictLog{},
		bookings:  newMemBookings(),
		notifier:  &memNotifier{},
		rules:     DefaultRules(),
		now:       testNow,
	}

	// Monday through Saturday 09:00-18:00, Sunday closed.
	for day := 1; day <= 6; day++ {
		env.hours.weekly[day] = models.BusinessHours{DayOfWeek: day, OpenTime: "09:00", CloseTime: "18:00"}
	}
	env.hours.weekly[7] = models.BusinessHours{DayOfWeek: 7, IsClosed: true}

	logger := zerolog.Nop()
	env.calendar = NewCalendar(env.hours, logger)
	env.generator = NewGenerator(env.calendar, env.slots, logger)
	env.detector = NewDetector(env.calendar, env.resources, env.slots, env.rules, logger)
	env.detector.now = func() time.Time { return env.now }
	env.allocator = NewAllocator(env.capacity, env.resources, logger)
	env.suggester = NewSuggester()
	env.search = NewSearch(env.calendar, env.resources, env.slots, env.generator, env.suggester, env.conflicts, env.rules, logger)
	env.booker = NewBooker(env.detector, env.allocator, env.slots, env.bookings, logger)
	env.coord = NewCoordinator(env.detector, env.booker, env.calendar, env.resources, env.slots, env.bookings, env.notifier, env.rules, logger)
	env.coord.now = func() time.Time { return env.now }
	return env
}

// at builds a time on the test Monday.
func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
}

func bay(id int64, equipment ...string) *models.FixedBay {
	return &models.FixedBay{
		ID:             id,
		BayNumber:      int(id),
		Active:         true,
		Equipment:      equipment,
		MaxVehicleSize: models.VehicleOversized,
	}
}

func int64Ptr(v int64) *int64 { return &v }

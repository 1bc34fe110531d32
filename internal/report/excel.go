// Package report builds the daily operations workbook: the schedule, bay and
// team utilization, and a conflict summary.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"washplan/internal/models"
)

// BookingLister feeds the schedule sheet.
type BookingLister interface {
	ListForDay(ctx context.Context, day time.Time) ([]models.Booking, error)
}

// ResourceLister feeds the capacity sheet.
type ResourceLister interface {
	ListEligible(ctx context.Context, c models.EligibilityCriteria) ([]models.Resource, error)
}

// CapacityReader resolves per-day counters.
type CapacityReader interface {
	Get(ctx context.Context, date time.Time, resourceID int64, mode models.ServiceMode) (*models.CapacityAllocation, error)
}

// ConflictCounter aggregates the conflict log.
type ConflictCounter interface {
	CountByKind(ctx context.Context, from, to time.Time) (map[models.ConflictKind]int, error)
}

// Generator renders the daily workbook.
type Generator struct {
	bookings  BookingLister
	resources ResourceLister
	capacity  CapacityReader
	conflicts ConflictCounter
	dir       string
	logger    zerolog.Logger
}

func NewGenerator(bookings BookingLister, resources ResourceLister, capacity CapacityReader, conflicts ConflictCounter, dir string, logger zerolog.Logger) *Generator {
	return &Generator{
		bookings:  bookings,
		resources: resources,
		capacity:  capacity,
		conflicts: conflicts,
		dir:       dir,
		logger:    logger.With().Str("component", "report").Logger(),
	}
}

// GenerateDaily writes the workbook for the given day and returns its path.
func (g *Generator) GenerateDaily(ctx context.Context, day time.Time) (string, error) {
	day = models.DayKey(day)

	w := newExcelWriter()

	if err := g.writeSchedule(ctx, w, day); err != nil {
		return "", fmt.Errorf("schedule sheet: %w", err)
	}
	if err := g.writeCapacity(ctx, w, day); err != nil {
		return "", fmt.Errorf("capacity sheet: %w", err)
	}
	if err := g.writeConflicts(ctx, w, day); err != nil {
		return "", fmt.Errorf("conflicts sheet: %w", err)
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(g.dir, fmt.Sprintf("daily_%s.xlsx", day.Format("2006-01-02")))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := w.save(f); err != nil {
		return "", err
	}

	g.logger.Info().Str("path", path).Msg("Daily report written")
	return path, nil
}

func (g *Generator) writeSchedule(ctx context.Context, w *excelWriter, day time.Time) error {
	if err := w.addSheet("Schedule"); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Reference", "Customer", "Resource", "Start", "End", "Vehicle", "Mode", "Status", "Priority"}); err != nil {
		return err
	}

	bookings, err := g.bookings.ListForDay(ctx, day)
	if err != nil {
		return err
	}
	for _, b := range bookings {
		row := []interface{}{
			b.Reference, b.CustomerID, b.ResourceID,
			b.StartTime.Format("15:04"), b.EndTime.Format("15:04"),
			b.VehicleSize.String(), string(b.Mode), string(b.Status), b.Priority,
		}
		if err := w.writeRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) writeCapacity(ctx context.Context, w *excelWriter, day time.Time) error {
	if err := w.addSheet("Capacity"); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Resource", "Kind", "Mode", "Allocated", "Max", "Utilization %"}); err != nil {
		return err
	}

	resources, err := g.resources.ListEligible(ctx, models.EligibilityCriteria{})
	if err != nil {
		return err
	}
	for _, r := range resources {
		alloc, err := g.capacity.Get(ctx, day, r.ResourceID(), r.Mode())
		if err != nil {
			return err
		}
		allocated := 0
		max := r.DailyCapacity()
		if alloc != nil {
			allocated = alloc.AllocatedCount
			max = alloc.MaxCapacity
		}
		utilization := 0.0
		if max > 0 {
			utilization = float64(allocated) / float64(max) * 100
		}
		row := []interface{}{
			r.ResourceID(), string(r.Kind()), string(r.Mode()),
			allocated, max, utilization,
		}
		if err := w.writeRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) writeConflicts(ctx context.Context, w *excelWriter, day time.Time) error {
	if err := w.addSheet("Conflicts"); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Kind", "Count"}); err != nil {
		return err
	}

	counts, err := g.conflicts.CountByKind(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	for _, kind := range []models.ConflictKind{
		models.ConflictDoubleBooking,
		models.ConflictOutsideHours,
		models.ConflictInsufficientNotice,
		models.ConflictResourceUnavailable,
		models.ConflictMaintenanceWindow,
	} {
		if err := w.writeRow([]interface{}{string(kind), counts[kind]}); err != nil {
			return err
		}
	}
	return nil
}

// excelWriter wraps excelize with a cursor per sheet.
type excelWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newExcelWriter() *excelWriter {
	return &excelWriter{file: excelize.NewFile()}
}

func (w *excelWriter) addSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		w.file.SetSheetName("Sheet1", name)
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *excelWriter) writeHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, col); err != nil {
			return err
		}
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}

	w.currentRow++
	return nil
}

func (w *excelWriter) writeRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

func (w *excelWriter) save(wr io.Writer) error {
	return w.file.Write(wr)
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"washplan/internal/models"
	"washplan/internal/scheduling"
)

// ResourceStore implements scheduling.ResourceStore on SQLite.
type ResourceStore struct {
	db *DB
}

const resourceColumns = `id, kind, name, bay_number, active, equipment, max_vehicle_size,
	covered, has_power, team_size, service_radius_km, max_vehicles_per_day,
	base_lat, base_lng, hourly_rate, created_at, updated_at`

// ListEligible returns active resources matching the criteria. Eligibility is
// evaluated in memory after a narrow DB filter; a row that fails to scan is
// skipped so one bad record never sinks the whole search.
func (s *ResourceStore) ListEligible(ctx context.Context, c models.EligibilityCriteria) ([]models.Resource, error) {
	query := "SELECT " + resourceColumns + " FROM resources WHERE active = 1"
	args := []interface{}{}
	if c.Mode == models.ModeStationary {
		query += " AND kind = ?"
		args = append(args, string(models.KindFixedBay))
	} else if c.Mode == models.ModeMobile {
		query += " AND kind = ?"
		args = append(args, string(models.KindMobileTeam))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eligible []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			continue
		}
		if r.EligibleFor(c) {
			eligible = append(eligible, r)
		}
	}
	return eligible, rows.Err()
}

// GetByID loads one resource.
func (s *ResourceStore) GetByID(ctx context.Context, id int64) (models.Resource, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+resourceColumns+" FROM resources WHERE id = ?", id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, &scheduling.NotFoundError{Entity: "resource", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Create persists a new resource and returns its id.
func (s *ResourceStore) Create(ctx context.Context, r models.Resource) (int64, error) {
	now := time.Now()
	switch v := r.(type) {
	case *models.FixedBay:
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO resources (kind, bay_number, active, equipment, max_vehicle_size, covered, has_power, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(models.KindFixedBay), v.BayNumber, v.Active, joinTags(v.Equipment),
			int(v.MaxVehicleSize), v.Covered, v.HasPower, now, now,
		)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err == nil {
			v.ID = id
		}
		return id, err
	case *models.MobileTeam:
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO resources (kind, name, active, equipment, team_size, service_radius_km, max_vehicles_per_day, base_lat, base_lng, hourly_rate, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(models.KindMobileTeam), v.Name, v.Active, joinTags(v.Equipment),
			v.TeamSize, v.ServiceRadiusKm, v.MaxVehiclesPerDay, v.Base.Lat, v.Base.Lng, v.HourlyRate, now, now,
		)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err == nil {
			v.ID = id
		}
		return id, err
	default:
		return 0, fmt.Errorf("unknown resource kind %T", r)
	}
}

// Update rewrites a resource's mutable fields.
func (s *ResourceStore) Update(ctx context.Context, r models.Resource) error {
	now := time.Now()
	switch v := r.(type) {
	case *models.FixedBay:
		_, err := s.db.ExecContext(ctx, `
			UPDATE resources SET bay_number = ?, active = ?, equipment = ?, max_vehicle_size = ?,
				covered = ?, has_power = ?, updated_at = ?
			WHERE id = ? AND kind = ?`,
			v.BayNumber, v.Active, joinTags(v.Equipment), int(v.MaxVehicleSize),
			v.Covered, v.HasPower, now, v.ID, string(models.KindFixedBay),
		)
		return err
	case *models.MobileTeam:
		_, err := s.db.ExecContext(ctx, `
			UPDATE resources SET name = ?, active = ?, equipment = ?, team_size = ?,
				service_radius_km = ?, max_vehicles_per_day = ?, base_lat = ?, base_lng = ?,
				hourly_rate = ?, updated_at = ?
			WHERE id = ? AND kind = ?`,
			v.Name, v.Active, joinTags(v.Equipment), v.TeamSize,
			v.ServiceRadiusKm, v.MaxVehiclesPerDay, v.Base.Lat, v.Base.Lng,
			v.HourlyRate, now, v.ID, string(models.KindMobileTeam),
		)
		return err
	default:
		return fmt.Errorf("unknown resource kind %T", r)
	}
}

// Deactivate retires a resource; history referencing it stays intact.
func (s *ResourceStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE resources SET active = 0, updated_at = ? WHERE id = ?",
		time.Now(), id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &scheduling.NotFoundError{Entity: "resource", ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row rowScanner) (models.Resource, error) {
	var (
		id                                      int64
		kind                                    string
		name                                    sql.NullString
		bayNumber, maxSize, teamSize, maxPerDay sql.NullInt64
		active, covered, hasPower               bool
		equipment                               string
		radius, lat, lng, rate                  sql.NullFloat64
		createdAt, updatedAt                    time.Time
	)
	if err := row.Scan(&id, &kind, &name, &bayNumber, &active, &equipment, &maxSize,
		&covered, &hasPower, &teamSize, &radius, &maxPerDay,
		&lat, &lng, &rate, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	switch models.ResourceKind(kind) {
	case models.KindFixedBay:
		return &models.FixedBay{
			ID:             id,
			BayNumber:      int(bayNumber.Int64),
			Active:         active,
			Equipment:      splitTags(equipment),
			MaxVehicleSize: models.VehicleSize(maxSize.Int64),
			Covered:        covered,
			HasPower:       hasPower,
			CreatedAt:      createdAt,
			UpdatedAt:      updatedAt,
		}, nil
	case models.KindMobileTeam:
		return &models.MobileTeam{
			ID:                id,
			Name:              name.String,
			Active:            active,
			Equipment:         splitTags(equipment),
			TeamSize:          int(teamSize.Int64),
			ServiceRadiusKm:   radius.Float64,
			MaxVehiclesPerDay: int(maxPerDay.Int64),
			Base:              models.GeoPoint{Lat: lat.Float64, Lng: lng.Float64},
			HourlyRate:        rate.Float64,
			CreatedAt:         createdAt,
			UpdatedAt:         updatedAt,
		}, nil
	default:
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
}

package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/lox/wxetl/internal/models"
)

type Store struct {
	db     *sql.DB
	loc    *time.Location
	logger *zap.Logger
	retry  RetryPolicy
}

func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		db:     db,
		loc:    loc,
		logger: zap.NewNop(),
		retry:  DefaultRetryPolicy,
	}
}

// SetLogger replaces the no-op logger.
func (s *Store) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetRetryPolicy configures how transient database failures are retried.
func (s *Store) SetRetryPolicy(p RetryPolicy) {
	s.retry = p
}

// Ping checks the database is reachable, retrying transient failures.
func (s *Store) Ping(ctx context.Context) error {
	return s.withRetry(ctx, "ping", func() error {
		return s.db.PingContext(ctx)
	})
}

// GetOrCreateLocation returns the id of the location keyed by name and
// country code, inserting it on first sight. An existing row only has its
// null optional columns filled in.
func (s *Store) GetOrCreateLocation(ctx context.Context, l models.Location) (int64, error) {
	var id int64
	err := s.withRetry(ctx, "get_or_create_location", func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO locations (name, country_code, latitude, longitude, timezone, population, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name, country_code) DO UPDATE SET
				latitude = COALESCE(locations.latitude, excluded.latitude),
				longitude = COALESCE(locations.longitude, excluded.longitude),
				timezone = COALESCE(locations.timezone, excluded.timezone),
				population = COALESCE(locations.population, excluded.population)
			RETURNING id
		`, l.Name, l.CountryCode, l.Latitude, l.Longitude, l.Timezone, l.Population, time.Now().UTC()).Scan(&id)
	})
	return id, err
}

func (s *Store) GetLocation(ctx context.Context, id int64) (*models.Location, error) {
	var l models.Location
	err := s.withRetry(ctx, "get_location", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, name, country_code, latitude, longitude, timezone, population, created_at
			FROM locations WHERE id = ?
		`, id).Scan(&l.ID, &l.Name, &l.CountryCode, &l.Latitude, &l.Longitude, &l.Timezone, &l.Population, &l.CreatedAt)
	})
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) FindLocation(ctx context.Context, name, countryCode string) (*models.Location, error) {
	var l models.Location
	err := s.withRetry(ctx, "find_location", func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, name, country_code, latitude, longitude, timezone, population, created_at
			FROM locations WHERE name = ? AND country_code = ?
		`, name, countryCode).Scan(&l.ID, &l.Name, &l.CountryCode, &l.Latitude, &l.Longitude, &l.Timezone, &l.Population, &l.CreatedAt)
	})
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	var locations []models.Location
	err := s.withRetry(ctx, "list_locations", func() error {
		locations = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, country_code, latitude, longitude, timezone, population, created_at
			FROM locations ORDER BY name, country_code
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var l models.Location
			if err := rows.Scan(&l.ID, &l.Name, &l.CountryCode, &l.Latitude, &l.Longitude, &l.Timezone, &l.Population, &l.CreatedAt); err != nil {
				return err
			}
			locations = append(locations, l)
		}
		return rows.Err()
	})
	return locations, err
}

// InsertObservation stores one observation. It returns 0 when an observation
// for the same location and time already exists.
func (s *Store) InsertObservation(ctx context.Context, obs models.CurrentObservation) (int64, error) {
	var id int64
	err := s.withRetry(ctx, "insert_observation", func() error {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO observations (location_id, observed_at, temperature_c, feels_like_c, humidity_pct, pressure_hpa,
				wind_speed_ms, wind_direction_deg, condition_code, condition_text, cloud_pct, visibility_m,
				precipitation_mm, heat_index_c, wind_chill_c, flags, raw_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(location_id, observed_at) DO NOTHING
		`, obs.LocationID, obs.ObservedAt.UTC(), obs.TemperatureC, obs.FeelsLikeC, obs.HumidityPct, obs.PressureHPa,
			obs.WindSpeedMS, obs.WindDirectionDeg, obs.ConditionCode, obs.ConditionText, obs.CloudPct, obs.VisibilityM,
			obs.PrecipitationMM, obs.HeatIndexC, obs.WindChillC, obs.Flags, obs.RawJSON, time.Now().UTC())
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil || n == 0 {
			id = 0
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

const observationColumns = `id, location_id, observed_at, temperature_c, feels_like_c, humidity_pct, pressure_hpa,
	wind_speed_ms, wind_direction_deg, condition_code, condition_text, cloud_pct, visibility_m,
	precipitation_mm, heat_index_c, wind_chill_c, COALESCE(flags, ''), COALESCE(raw_json, ''), created_at`

func scanObservation(row interface{ Scan(...any) error }) (models.CurrentObservation, error) {
	var o models.CurrentObservation
	err := row.Scan(&o.ID, &o.LocationID, &o.ObservedAt, &o.TemperatureC, &o.FeelsLikeC, &o.HumidityPct, &o.PressureHPa,
		&o.WindSpeedMS, &o.WindDirectionDeg, &o.ConditionCode, &o.ConditionText, &o.CloudPct, &o.VisibilityM,
		&o.PrecipitationMM, &o.HeatIndexC, &o.WindChillC, &o.Flags, &o.RawJSON, &o.CreatedAt)
	return o, err
}

func (s *Store) GetLatestObservation(ctx context.Context, locationID int64) (*models.CurrentObservation, error) {
	var obs models.CurrentObservation
	err := s.withRetry(ctx, "latest_observation", func() error {
		var err error
		obs, err = scanObservation(s.db.QueryRowContext(ctx, `
			SELECT `+observationColumns+`
			FROM observations
			WHERE location_id = ?
			ORDER BY observed_at DESC
			LIMIT 1
		`, locationID))
		return err
	})
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// GetObservations returns observations in [start, end) ordered by time.
func (s *Store) GetObservations(ctx context.Context, locationID int64, start, end time.Time) ([]models.CurrentObservation, error) {
	var observations []models.CurrentObservation
	err := s.withRetry(ctx, "get_observations", func() error {
		observations = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+observationColumns+`
			FROM observations
			WHERE location_id = ? AND observed_at >= ? AND observed_at < ?
			ORDER BY observed_at
		`, locationID, start.UTC(), end.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			obs, err := scanObservation(rows)
			if err != nil {
				return err
			}
			observations = append(observations, obs)
		}
		return rows.Err()
	})
	return observations, err
}

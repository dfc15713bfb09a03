package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas such as foreign_keys are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: utcNow}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS target_locations (
	id            TEXT PRIMARY KEY,
	city          TEXT NOT NULL,
	state         TEXT NOT NULL,
	zip_code      TEXT NOT NULL UNIQUE,
	slug          TEXT NOT NULL UNIQUE,
	lat           REAL,
	lon           REAL,
	neighborhoods TEXT NOT NULL DEFAULT '[]',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	CHECK ((lat IS NULL) = (lon IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_target_locations_state ON target_locations(state);

CREATE TABLE IF NOT EXISTS soil_cache (
	location_id       TEXT PRIMARY KEY REFERENCES target_locations(id) ON DELETE CASCADE,
	map_unit_symbol   TEXT NOT NULL DEFAULT '',
	map_unit_name     TEXT NOT NULL DEFAULT '',
	component_name    TEXT NOT NULL DEFAULT '',
	component_percent REAL NOT NULL DEFAULT 0,
	shrink_swell      REAL NOT NULL DEFAULT 0,
	plasticity_index  REAL NOT NULL DEFAULT 0,
	drainage_class    TEXT NOT NULL DEFAULT '',
	risk_level        TEXT NOT NULL,
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL,
	phone      TEXT NOT NULL,
	address    TEXT NOT NULL,
	zip_code   TEXT NOT NULL DEFAULT '',
	symptoms   TEXT NOT NULL DEFAULT '[]',
	status     TEXT NOT NULL DEFAULT 'new',
	source     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
`

func (s *SQLiteStore) clock() time.Time {
	if s.now == nil {
		return utcNow()
	}
	return s.now()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const sqliteUpsertLocation = `INSERT INTO target_locations (` + locationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (zip_code) DO UPDATE SET
		city = excluded.city,
		state = excluded.state,
		slug = excluded.slug,
		lat = excluded.lat,
		lon = excluded.lon,
		neighborhoods = excluded.neighborhoods,
		updated_at = excluded.updated_at`

func (s *SQLiteStore) upsertLocation(ctx context.Context, ex execer, loc *model.Location, now time.Time) error {
	hoods, err := prepareLocation(loc, now)
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, sqliteUpsertLocation,
		loc.ID, loc.City, loc.State, loc.PostalCode, loc.Slug,
		loc.Latitude, loc.Longitude, string(hoods), loc.CreatedAt, loc.UpdatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: upsert location %s", loc.PostalCode)
	}

	// The surviving row keeps its original id and created_at.
	err = ex.QueryRowContext(ctx,
		`SELECT id, created_at FROM target_locations WHERE zip_code = ?`, loc.PostalCode,
	).Scan(&loc.ID, &loc.CreatedAt)
	return eris.Wrapf(err, "sqlite: reload location %s", loc.PostalCode)
}

func (s *SQLiteStore) UpsertLocation(ctx context.Context, loc *model.Location) error {
	return s.upsertLocation(ctx, s.db, loc, s.clock())
}

func (s *SQLiteStore) UpsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	if len(locs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.clock()
	for i := range locs {
		if err := s.upsertLocation(ctx, tx, &locs[i], now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return int64(len(locs)), nil
}

func (s *SQLiteStore) GetLocationBySlug(ctx context.Context, slug string) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM target_locations WHERE slug = ?`, slug)
	loc, err := scanSQLiteLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return loc, eris.Wrapf(err, "sqlite: get location by slug %s", slug)
}

func (s *SQLiteStore) GetLocationByPostalCode(ctx context.Context, zip string) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM target_locations WHERE zip_code = ?`, zip)
	loc, err := scanSQLiteLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return loc, eris.Wrapf(err, "sqlite: get location by zip %s", zip)
}

func (s *SQLiteStore) ListLocations(ctx context.Context, filter LocationFilter) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM target_locations`
	var (
		where []string
		args  []any
	)
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, strings.ToUpper(filter.State))
	}
	if filter.WithCoordinates {
		where = append(where, "lat IS NOT NULL AND lon IS NOT NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY state, city, zip_code"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close() //nolint:errcheck

	var locs []model.Location
	for rows.Next() {
		loc, err := scanSQLiteLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		locs = append(locs, *loc)
	}
	return locs, eris.Wrap(rows.Err(), "sqlite: list locations rows")
}

func (s *SQLiteStore) UpdateNeighborhoods(ctx context.Context, locationID string, hoods []model.Neighborhood) error {
	b, err := marshalNeighborhoods(hoods)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE target_locations SET neighborhoods = ?, updated_at = ? WHERE id = ?`,
		string(b), s.clock(), locationID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update neighborhoods %s", locationID)
	}
	return checkRowsAffected(res, "location", locationID)
}

func (s *SQLiteStore) UpsertSoilRecord(ctx context.Context, rec *model.SoilRecord) error {
	if err := prepareSoil(rec, s.clock()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO soil_cache (`+soilColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET
			map_unit_symbol = excluded.map_unit_symbol,
			map_unit_name = excluded.map_unit_name,
			component_name = excluded.component_name,
			component_percent = excluded.component_percent,
			shrink_swell = excluded.shrink_swell,
			plasticity_index = excluded.plasticity_index,
			drainage_class = excluded.drainage_class,
			risk_level = excluded.risk_level,
			updated_at = excluded.updated_at`,
		rec.LocationID, rec.MapUnitSymbol, rec.MapUnitName, rec.ComponentName,
		rec.ComponentPercent, rec.ShrinkSwell, rec.PlasticityIndex, rec.DrainageClass,
		string(rec.RiskLevel), rec.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert soil %s", rec.LocationID)
}

func (s *SQLiteStore) GetSoilRecord(ctx context.Context, locationID string) (*model.SoilRecord, error) {
	var (
		rec  model.SoilRecord
		risk string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+soilColumns+` FROM soil_cache WHERE location_id = ?`, locationID,
	).Scan(&rec.LocationID, &rec.MapUnitSymbol, &rec.MapUnitName, &rec.ComponentName,
		&rec.ComponentPercent, &rec.ShrinkSwell, &rec.PlasticityIndex, &rec.DrainageClass,
		&risk, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get soil %s", locationID)
	}
	rec.RiskLevel = model.RiskLevel(risk)
	return &rec, nil
}

func (s *SQLiteStore) CountSoilByRisk(ctx context.Context) (map[model.RiskLevel]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT risk_level, count(*) FROM soil_cache GROUP BY risk_level`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count soil by risk")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.RiskLevel]int)
	for rows.Next() {
		var (
			risk string
			n    int
		)
		if err := rows.Scan(&risk, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan risk count")
		}
		counts[model.RiskLevel(risk)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count soil rows")
}

func (s *SQLiteStore) InsertLead(ctx context.Context, l *model.Lead) error {
	symptoms, err := prepareLead(l, s.clock())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.Email, l.Phone, l.Address, l.PostalCode,
		string(symptoms), string(l.Status), l.Source, l.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert lead")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		var (
			l        model.Lead
			symptoms string
			status   string
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Address, &l.PostalCode,
			&symptoms, &status, &l.Source, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l.Status = model.LeadStatus(status)
		if l.Symptoms, err = unmarshalSymptoms([]byte(symptoms)); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads rows")
}

func (s *SQLiteStore) CountLeadsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM leads WHERE created_at >= ?`, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count leads")
	}
	return n, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLocation(row scannable) (*model.Location, error) {
	var (
		loc      model.Location
		lat, lon sql.NullFloat64
		hoods    string
	)
	if err := row.Scan(&loc.ID, &loc.City, &loc.State, &loc.PostalCode, &loc.Slug,
		&lat, &lon, &hoods, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		loc.SetCoordinates(lat.Float64, lon.Float64)
	}
	var err error
	if loc.Neighborhoods, err = unmarshalNeighborhoods([]byte(hoods)); err != nil {
		return nil, err
	}
	return &loc, nil
}

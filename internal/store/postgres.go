package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/foundationrisk/soilrisk/internal/db"
	"github.com/foundationrisk/soilrisk/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS target_locations (
	id            TEXT PRIMARY KEY,
	city          TEXT NOT NULL,
	state         TEXT NOT NULL,
	zip_code      TEXT NOT NULL UNIQUE,
	slug          TEXT NOT NULL UNIQUE,
	lat           DOUBLE PRECISION,
	lon           DOUBLE PRECISION,
	neighborhoods JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK ((lat IS NULL) = (lon IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_target_locations_state ON target_locations(state);

CREATE TABLE IF NOT EXISTS soil_cache (
	location_id       TEXT PRIMARY KEY REFERENCES target_locations(id) ON DELETE CASCADE,
	map_unit_symbol   TEXT NOT NULL DEFAULT '',
	map_unit_name     TEXT NOT NULL DEFAULT '',
	component_name    TEXT NOT NULL DEFAULT '',
	component_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	shrink_swell      DOUBLE PRECISION NOT NULL DEFAULT 0,
	plasticity_index  DOUBLE PRECISION NOT NULL DEFAULT 0,
	drainage_class    TEXT NOT NULL DEFAULT '',
	risk_level        TEXT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_soil_cache_risk ON soil_cache(risk_level);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL,
	phone      TEXT NOT NULL,
	address    TEXT NOT NULL,
	zip_code   TEXT NOT NULL DEFAULT '',
	symptoms   JSONB NOT NULL DEFAULT '[]'::jsonb,
	status     TEXT NOT NULL DEFAULT 'new',
	source     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
`

const locationColumns = `id, city, state, zip_code, slug, lat, lon, neighborhoods, created_at, updated_at`

const soilColumns = `location_id, map_unit_symbol, map_unit_name, component_name, component_percent, shrink_swell, plasticity_index, drainage_class, risk_level, updated_at`

const leadColumns = `id, name, email, phone, address, zip_code, symptoms, status, source, created_at`

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return utcNow()
	}
	return s.now()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertLocation(ctx context.Context, loc *model.Location) error {
	hoods, err := prepareLocation(loc, s.clock())
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO target_locations (`+locationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (zip_code) DO UPDATE SET
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			slug = EXCLUDED.slug,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			neighborhoods = EXCLUDED.neighborhoods,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		loc.ID, loc.City, loc.State, loc.PostalCode, loc.Slug,
		loc.Latitude, loc.Longitude, hoods, loc.CreatedAt, loc.UpdatedAt,
	).Scan(&loc.ID, &loc.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert location %s", loc.PostalCode)
	}
	return nil
}

// UpsertLocations bulk-upserts locations keyed on postal code. Rows repeating
// a postal code within one call keep only the last occurrence.
func (s *PostgresStore) UpsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	now := s.clock()
	rows := make([][]any, 0, len(locs))
	for i := range locs {
		loc := &locs[i]
		hoods, err := prepareLocation(loc, now)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			loc.ID, loc.City, loc.State, loc.PostalCode, loc.Slug,
			loc.Latitude, loc.Longitude, string(hoods), loc.CreatedAt, loc.UpdatedAt,
		})
	}

	n, err := db.Merge{
		Table:   "target_locations",
		Columns: strings.Split(strings.ReplaceAll(locationColumns, " ", ""), ","),
		Key:     []string{"zip_code"},
		Update:  []string{"city", "state", "slug", "lat", "lon", "neighborhoods", "updated_at"},
	}.Exec(ctx, s.pool, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert locations")
	}
	return n, nil
}

func (s *PostgresStore) GetLocationBySlug(ctx context.Context, slug string) (*model.Location, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+locationColumns+` FROM target_locations WHERE slug = $1`, slug)
	loc, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get location by slug %s", slug)
	}
	return loc, nil
}

func (s *PostgresStore) GetLocationByPostalCode(ctx context.Context, zip string) (*model.Location, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+locationColumns+` FROM target_locations WHERE zip_code = $1`, zip)
	loc, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get location by zip %s", zip)
	}
	return loc, nil
}

func (s *PostgresStore) ListLocations(ctx context.Context, filter LocationFilter) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM target_locations`
	var (
		where []string
		args  []any
	)
	if filter.State != "" {
		args = append(args, strings.ToUpper(filter.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.WithCoordinates {
		where = append(where, "lat IS NOT NULL AND lon IS NOT NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY state, city, zip_code"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		locs = append(locs, *loc)
	}
	return locs, eris.Wrap(rows.Err(), "postgres: list locations rows")
}

func (s *PostgresStore) UpdateNeighborhoods(ctx context.Context, locationID string, hoods []model.Neighborhood) error {
	b, err := marshalNeighborhoods(hoods)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE target_locations SET neighborhoods = $1, updated_at = $2 WHERE id = $3`,
		b, s.clock(), locationID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update neighborhoods %s", locationID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: location %s not found", locationID)
	}
	return nil
}

func (s *PostgresStore) UpsertSoilRecord(ctx context.Context, rec *model.SoilRecord) error {
	if err := prepareSoil(rec, s.clock()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO soil_cache (`+soilColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (location_id) DO UPDATE SET
			map_unit_symbol = EXCLUDED.map_unit_symbol,
			map_unit_name = EXCLUDED.map_unit_name,
			component_name = EXCLUDED.component_name,
			component_percent = EXCLUDED.component_percent,
			shrink_swell = EXCLUDED.shrink_swell,
			plasticity_index = EXCLUDED.plasticity_index,
			drainage_class = EXCLUDED.drainage_class,
			risk_level = EXCLUDED.risk_level,
			updated_at = EXCLUDED.updated_at`,
		rec.LocationID, rec.MapUnitSymbol, rec.MapUnitName, rec.ComponentName,
		rec.ComponentPercent, rec.ShrinkSwell, rec.PlasticityIndex, rec.DrainageClass,
		string(rec.RiskLevel), rec.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert soil %s", rec.LocationID)
	}
	return nil
}

func (s *PostgresStore) GetSoilRecord(ctx context.Context, locationID string) (*model.SoilRecord, error) {
	var (
		rec  model.SoilRecord
		risk string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+soilColumns+` FROM soil_cache WHERE location_id = $1`, locationID,
	).Scan(&rec.LocationID, &rec.MapUnitSymbol, &rec.MapUnitName, &rec.ComponentName,
		&rec.ComponentPercent, &rec.ShrinkSwell, &rec.PlasticityIndex, &rec.DrainageClass,
		&risk, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get soil %s", locationID)
	}
	rec.RiskLevel = model.RiskLevel(risk)
	return &rec, nil
}

func (s *PostgresStore) CountSoilByRisk(ctx context.Context) (map[model.RiskLevel]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT risk_level, count(*) FROM soil_cache GROUP BY risk_level`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count soil by risk")
	}
	defer rows.Close()

	counts := make(map[model.RiskLevel]int)
	for rows.Next() {
		var (
			risk string
			n    int
		)
		if err := rows.Scan(&risk, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan risk count")
		}
		counts[model.RiskLevel(risk)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count soil rows")
}

func (s *PostgresStore) InsertLead(ctx context.Context, l *model.Lead) error {
	symptoms, err := prepareLead(l, s.clock())
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.Name, l.Email, l.Phone, l.Address, l.PostalCode,
		symptoms, string(l.Status), l.Source, l.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert lead")
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var (
			l        model.Lead
			symptoms []byte
			status   string
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Address, &l.PostalCode,
			&symptoms, &status, &l.Source, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l.Status = model.LeadStatus(status)
		if l.Symptoms, err = unmarshalSymptoms(symptoms); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads rows")
}

func (s *PostgresStore) CountLeadsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM leads WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: count leads")
	}
	return n, nil
}

func scanLocation(row pgx.Row) (*model.Location, error) {
	var (
		loc      model.Location
		lat, lon *float64
		hoods    []byte
	)
	if err := row.Scan(&loc.ID, &loc.City, &loc.State, &loc.PostalCode, &loc.Slug,
		&lat, &lon, &hoods, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		loc.SetCoordinates(*lat, *lon)
	}
	var err error
	if loc.Neighborhoods, err = unmarshalNeighborhoods(hoods); err != nil {
		return nil, err
	}
	return &loc, nil
}

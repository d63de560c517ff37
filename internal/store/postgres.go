package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/commute-rent/internal/db"
	"github.com/sells-group/commute-rent/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
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
	minConns := int32(1)
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id           INTEGER PRIMARY KEY,
	batch_id     TEXT NOT NULL,
	rent         INTEGER NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	unit_type    TEXT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);

CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	address    TEXT NOT NULL,
	policy     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	matched    INTEGER NOT NULL,
	top        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_policy ON submissions(policy);
`

var listingColumns = []string{"id", "batch_id", "rent", "lat", "lon", "unit_type", "generated_at"}

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

func (s *PostgresStore) SaveListings(ctx context.Context, listings []model.Listing) (*ListingSet, error) {
	set := &ListingSet{
		BatchID:     uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Listings:    listings,
	}

	rows := make([][]any, len(listings))
	for i, l := range listings {
		rows[i] = []any{l.ID, set.BatchID, l.Rent, l.Lat, l.Lon, string(l.UnitType), set.GeneratedAt}
	}
	if _, err := db.ReplaceAll(ctx, s.pool, "listings", listingColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: save listings")
	}
	return set, nil
}

func (s *PostgresStore) LatestListings(ctx context.Context) (*ListingSet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_id, rent, lat, lon, unit_type, generated_at FROM listings ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest listings")
	}
	defer rows.Close()

	var set *ListingSet
	for rows.Next() {
		var l model.Listing
		var batchID, unitType string
		var generatedAt time.Time
		if err := rows.Scan(&l.ID, &batchID, &l.Rent, &l.Lat, &l.Lon, &unitType, &generatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		l.UnitType = model.UnitType(unitType)
		if set == nil {
			set = &ListingSet{BatchID: batchID, GeneratedAt: generatedAt}
		}
		set.Listings = append(set.Listings, l)
	}
	return set, eris.Wrap(rows.Err(), "postgres: latest listings iterate")
}

func (s *PostgresStore) GetCachedGeocode(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM geocode_cache
		 WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached geocode")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedGeocode(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached geocode")
}

func (s *PostgresStore) DeleteExpiredGeocodes(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM geocode_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired geocodes")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordSubmission(ctx context.Context, sub model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	topJSON, err := json.Marshal(sub.Top)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal top results")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (id, address, policy, mode, lat, lon, matched, top, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.Address, string(sub.Policy), string(sub.Mode), sub.Lat, sub.Lon, sub.Matched, topJSON, sub.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert submission %s", sub.ID)
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, address, policy, mode, lat, lon, matched, top, created_at FROM submissions WHERE id = $1`, id)
	sub, err := scanPgSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "submission %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT id, address, policy, mode, lat, lon, matched, top, created_at FROM submissions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Policy != "" {
		query += fmt.Sprintf(` AND policy = $%d`, argIdx)
		args = append(args, string(filter.Policy))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanPgSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func scanPgSubmission(row pgx.Row) (*model.Submission, error) {
	var sub model.Submission
	var policy, mode string
	var topJSON []byte
	err := row.Scan(&sub.ID, &sub.Address, &policy, &mode, &sub.Lat, &sub.Lon, &sub.Matched, &topJSON, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	sub.Policy = model.Policy(policy)
	sub.Mode = model.TravelMode(mode)
	if err := json.Unmarshal(topJSON, &sub.Top); err != nil {
		return nil, eris.Wrap(err, "unmarshal top results")
	}
	return &sub, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/commute-rent/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id           INTEGER PRIMARY KEY,
	batch_id     TEXT NOT NULL,
	rent         INTEGER NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	unit_type    TEXT NOT NULL,
	generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY,
	address    TEXT NOT NULL,
	policy     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	matched    INTEGER NOT NULL,
	top        TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
CREATE INDEX IF NOT EXISTS idx_submissions_policy ON submissions(policy);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveListings(ctx context.Context, listings []model.Listing) (*ListingSet, error) {
	set := &ListingSet{
		BatchID:     uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Listings:    listings,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save listings")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings`); err != nil {
		return nil, eris.Wrap(err, "sqlite: clear listings")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO listings (id, batch_id, rent, lat, lon, unit_type, generated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert listing")
	}
	defer stmt.Close() //nolint:errcheck

	for _, l := range listings {
		if _, err := stmt.ExecContext(ctx, l.ID, set.BatchID, l.Rent, l.Lat, l.Lon, string(l.UnitType), set.GeneratedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert listing %d", l.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit listings")
	}
	return set, nil
}

func (s *SQLiteStore) LatestListings(ctx context.Context) (*ListingSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, rent, lat, lon, unit_type, generated_at FROM listings ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest listings")
	}
	defer rows.Close() //nolint:errcheck

	var set *ListingSet
	for rows.Next() {
		var l model.Listing
		var batchID string
		var generatedAt time.Time
		if err := rows.Scan(&l.ID, &batchID, &l.Rent, &l.Lat, &l.Lon, &l.UnitType, &generatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		if set == nil {
			set = &ListingSet{BatchID: batchID, GeneratedAt: generatedAt}
		}
		set.Listings = append(set.Listings, l)
	}
	return set, eris.Wrap(rows.Err(), "sqlite: latest listings iterate")
}

func (s *SQLiteStore) GetCachedGeocode(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM geocode_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached geocode")
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SetCachedGeocode(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached geocode")
}

func (s *SQLiteStore) DeleteExpiredGeocodes(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM geocode_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired geocodes")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) RecordSubmission(ctx context.Context, sub model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	topJSON, err := json.Marshal(sub.Top)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal top results")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, address, policy, mode, lat, lon, matched, top, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Address, string(sub.Policy), string(sub.Mode), sub.Lat, sub.Lon, sub.Matched, string(topJSON), sub.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert submission %s", sub.ID)
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, address, policy, mode, lat, lon, matched, top, created_at FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "submission %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get submission")
	}
	return sub, nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT id, address, policy, mode, lat, lon, matched, top, created_at FROM submissions WHERE 1=1`
	var args []any

	if filter.Policy != "" {
		query += ` AND policy = ?`
		args = append(args, string(filter.Policy))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close() //nolint:errcheck

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSubmission(row scannable) (*model.Submission, error) {
	var sub model.Submission
	var topJSON string
	err := row.Scan(&sub.ID, &sub.Address, &sub.Policy, &sub.Mode, &sub.Lat, &sub.Lon, &sub.Matched, &topJSON, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topJSON), &sub.Top); err != nil {
		return nil, eris.Wrap(err, "unmarshal top results")
	}
	return &sub, nil
}

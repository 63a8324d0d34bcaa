package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackcache/internal/domain"
)

// Pool bounds match the single-host deployment profile: one warm connection,
// ten under load.
const (
	poolMinConns = 1
	poolMaxConns = 10
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect builds the bounded connection pool. The caller pings it to verify
// reachability before serving traffic.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MinConns = poolMinConns
	cfg.MaxConns = poolMaxConns
	return pgxpool.NewWithConfig(ctx, cfg)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tracks (
	search_query     text PRIMARY KEY,
	status           text NOT NULL CHECK (status IN ('caching','cached','error')),
	file_name        text UNIQUE,
	title            text,
	artist           text,
	album            text,
	duration         double precision,
	cached_at        timestamptz,
	last_accessed_at timestamptz
)`

var indexSQL = []string{
	`CREATE INDEX IF NOT EXISTS tracks_lru_idx ON tracks (status, last_accessed_at)`,
	`CREATE INDEX IF NOT EXISTS tracks_recency_idx ON tracks (status, cached_at DESC)`,
}

// EnsureSchema creates the tracks table and its query indexes. Safe to run
// on every boot.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	for _, stmt := range indexSQL {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecoverStaleCaching flips rows stuck in 'caching' to 'error'. Called once
// at boot: the process is single-host, so no fetch worker can be alive yet
// and any such row is an orphan of a previous process life. The next lookup
// of an 'error' row re-triggers its fetch.
func (r *Repository) RecoverStaleCaching(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE tracks SET status = 'error' WHERE status = 'caching'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const selectColumns = `search_query, status, file_name, title, artist, album, duration, cached_at, last_accessed_at`

func (r *Repository) Get(ctx context.Context, query string) (domain.TrackRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM tracks WHERE search_query = $1`, query)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackRecord{}, domain.ErrNotFound
		}
		return domain.TrackRecord{}, err
	}
	return rec, nil
}

// TryInsertCaching inserts a fresh 'caching' row, reporting whether this
// caller created it. The unique key on search_query serializes concurrent
// first lookups so exactly one of them observes true.
func (r *Repository) TryInsertCaching(ctx context.Context, query string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO tracks (search_query, status) VALUES ($1, 'caching') ON CONFLICT (search_query) DO NOTHING`,
		query)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ResetToCaching is the repair transition for a cached row whose artifact
// vanished: back to 'caching' with the dangling file name cleared. The
// status guard makes it a compare-and-set, so concurrent repairs of the same
// row collapse to one winner.
func (r *Repository) ResetToCaching(ctx context.Context, query string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tracks SET status = 'caching', file_name = NULL WHERE search_query = $1 AND status = 'cached'`,
		query)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RetryFromError re-arms a failed row. Same compare-and-set shape as
// ResetToCaching; the winner dispatches the retry fetch.
func (r *Repository) RetryFromError(ctx context.Context, query string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tracks SET status = 'caching', file_name = NULL WHERE search_query = $1 AND status = 'error'`,
		query)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) MarkCached(ctx context.Context, query, fileName string, tags domain.TrackTags, duration float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tracks
		 SET status = 'cached', file_name = $1, title = $2, artist = $3, album = $4,
		     duration = $5, cached_at = NOW(), last_accessed_at = NOW()
		 WHERE search_query = $6`,
		fileName, tags.Title, tags.Artist, tags.Album, duration, query)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkError(ctx context.Context, query string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tracks SET status = 'error' WHERE search_query = $1`, query)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) Touch(ctx context.Context, fileName string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tracks SET last_accessed_at = NOW() WHERE file_name = $1`, fileName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListCachedLRU returns cached rows coldest-first; the eviction sweep walks
// it in order.
func (r *Repository) ListCachedLRU(ctx context.Context) ([]domain.TrackRecord, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM tracks WHERE status = 'cached' ORDER BY last_accessed_at ASC`)
}

// ListCachedByRecency returns cached rows newest-first for the track listing.
func (r *Repository) ListCachedByRecency(ctx context.Context) ([]domain.TrackRecord, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM tracks WHERE status = 'cached' ORDER BY cached_at DESC`)
}

func (r *Repository) list(ctx context.Context, sql string) ([]domain.TrackRecord, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.TrackRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) DeleteByFileName(ctx context.Context, fileName string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tracks WHERE file_name = $1`, fileName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanRecord maps one tracks row onto the domain record, flattening SQL
// nulls to zero values.
func scanRecord(row pgx.Row) (domain.TrackRecord, error) {
	var (
		rec            domain.TrackRecord
		status         string
		fileName       *string
		title          *string
		artist         *string
		album          *string
		duration       *float64
		cachedAt       *time.Time
		lastAccessedAt *time.Time
	)
	if err := row.Scan(&rec.SearchQuery, &status, &fileName, &title, &artist, &album, &duration, &cachedAt, &lastAccessedAt); err != nil {
		return domain.TrackRecord{}, err
	}
	rec.Status = domain.TrackStatus(status)
	if fileName != nil {
		rec.FileName = *fileName
	}
	if title != nil {
		rec.Title = *title
	}
	if artist != nil {
		rec.Artist = *artist
	}
	if album != nil {
		rec.Album = *album
	}
	if duration != nil {
		rec.Duration = *duration
	}
	if cachedAt != nil {
		rec.CachedAt = cachedAt.UTC()
	}
	if lastAccessedAt != nil {
		rec.LastAccessedAt = lastAccessedAt.UTC()
	}
	return rec, nil
}

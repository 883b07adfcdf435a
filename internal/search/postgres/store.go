// Package postgres provides Postgres-backed relation and event stores.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minasearch/frontier/internal/search"
)

// pgxPool is the subset of pgxpool.Pool the stores need. pgxmock
// satisfies it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool for the search stores.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements both search.RelationStore and search.EventStore on
// one pool; the tables live in the same database.
type Store struct {
	pool pgxPool
}

// NewStore connects a pool and returns a Store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily
// for testing).
func NewStoreWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the relation and log tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure search schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Neighbors returns all outgoing edges from source.
func (s *Store) Neighbors(ctx context.Context, source string) ([]search.QueryRelation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT source_query, target_query, relation_type, score, source_origin, updated_at
FROM query_relations
WHERE source_query = $1`, source)
	if err != nil {
		return nil, fmt.Errorf("query neighbors of %q: %w", source, err)
	}
	return scanRelations(rows)
}

// Upsert validates and writes an edge, updating score, type and origin
// on conflict of the unique (source, target) pair.
func (s *Store) Upsert(ctx context.Context, rel search.QueryRelation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO query_relations (source_query, target_query, relation_type, score, source_origin, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_query, target_query)
DO UPDATE SET relation_type = EXCLUDED.relation_type,
              score = EXCLUDED.score,
              source_origin = EXCLUDED.source_origin,
              updated_at = EXCLUDED.updated_at`,
		rel.Source, rel.Target, rel.Type, rel.Score, rel.Origin, rel.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert relation %s -> %s: %w", rel.Source, rel.Target, err)
	}
	return nil
}

// UpdateScore rescores an existing edge.
func (s *Store) UpdateScore(ctx context.Context, source, target string, score float64, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `
UPDATE query_relations SET score = $3, updated_at = $4
WHERE source_query = $1 AND target_query = $2`,
		source, target, score, at,
	); err != nil {
		return fmt.Errorf("update score %s -> %s: %w", source, target, err)
	}
	return nil
}

// ByOrigin lists all edges with the given origin.
func (s *Store) ByOrigin(ctx context.Context, origin search.RelationOrigin) ([]search.QueryRelation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT source_query, target_query, relation_type, score, source_origin, updated_at
FROM query_relations
WHERE source_origin = $1`, origin)
	if err != nil {
		return nil, fmt.Errorf("query relations by origin %q: %w", origin, err)
	}
	return scanRelations(rows)
}

// LogQuery inserts one immutable search event.
func (s *Store) LogQuery(ctx context.Context, ev search.QueryEvent) error {
	expanded, err := json.Marshal(ev.ExpandedQueries)
	if err != nil {
		return fmt.Errorf("marshal expanded queries: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO search_logs (id, raw_query, normalized_query, expanded_queries, session_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.RawQuery, ev.NormalizedQuery, expanded, nullableString(ev.SessionID), ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert search log: %w", err)
	}
	return nil
}

// LogClick appends one immutable click event.
func (s *Store) LogClick(ctx context.Context, ev search.ClickEvent) error {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO click_logs (search_log_id, url, rank, created_at)
VALUES ($1, $2, $3, $4)`,
		ev.SearchLogID, ev.URL, ev.Rank, ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert click log: %w", err)
	}
	return nil
}

// GetQuery fetches a search event by id.
func (s *Store) GetQuery(ctx context.Context, id string) (search.QueryEvent, error) {
	var ev search.QueryEvent
	var expanded []byte
	var session *string
	err := s.pool.QueryRow(ctx, `
SELECT id, raw_query, normalized_query, expanded_queries, session_id, created_at
FROM search_logs WHERE id = $1`, id).
		Scan(&ev.ID, &ev.RawQuery, &ev.NormalizedQuery, &expanded, &session, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return search.QueryEvent{}, search.ErrEventNotFound
		}
		return search.QueryEvent{}, fmt.Errorf("query search log %s: %w", id, err)
	}
	if err := json.Unmarshal(expanded, &ev.ExpandedQueries); err != nil {
		return search.QueryEvent{}, fmt.Errorf("unmarshal expanded queries: %w", err)
	}
	if session != nil {
		ev.SessionID = *session
	}
	return ev, nil
}

// ExpansionStats joins the window's search log against the click log,
// producing per-edge search and click counts for the aggregator.
func (s *Store) ExpansionStats(ctx context.Context, since time.Time) ([]search.ExpansionStat, error) {
	rows, err := s.pool.Query(ctx, `
SELECT l.normalized_query,
       e.target_query,
       COUNT(*),
       COUNT(*) FILTER (WHERE EXISTS (
           SELECT 1 FROM click_logs c WHERE c.search_log_id = l.id
       ))
FROM search_logs l
CROSS JOIN LATERAL jsonb_array_elements_text(l.expanded_queries) AS e(target_query)
WHERE l.created_at >= $1 AND e.target_query <> l.normalized_query
GROUP BY l.normalized_query, e.target_query`, since)
	if err != nil {
		return nil, fmt.Errorf("query expansion stats: %w", err)
	}
	defer rows.Close()

	var out []search.ExpansionStat
	for rows.Next() {
		var stat search.ExpansionStat
		if err := rows.Scan(&stat.Source, &stat.Target, &stat.Searches, &stat.Clicks); err != nil {
			return nil, fmt.Errorf("scan expansion stat: %w", err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expansion stats: %w", err)
	}
	return out, nil
}

func scanRelations(rows pgx.Rows) ([]search.QueryRelation, error) {
	defer rows.Close()
	var out []search.QueryRelation
	for rows.Next() {
		var rel search.QueryRelation
		if err := rows.Scan(&rel.Source, &rel.Target, &rel.Type, &rel.Score, &rel.Origin, &rel.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

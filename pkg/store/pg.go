package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of *pgxpool.Pool the store uses
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PGOptions tunes the connection pool of a PGStore
type PGOptions struct {
	MaxConns int32
	MinConns int32
	// Migrate creates the tables if they do not exist.
	Migrate bool
}

// PGStore reads adjacency from PostgreSQL. Populations live in the
// populations table, edges in the edges table keyed by projection.
type PGStore struct {
	pool *pgxpool.Pool
	db   querier
}

// NewPGStore creates a new PostgreSQL-backed graph store
func NewPGStore(ctx context.Context, databaseURL string, opts PGOptions) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 8
	config.MinConns = 1
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, unavailable("connect", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping", err)
	}

	s := &PGStore{pool: pool, db: pool}
	if opts.Migrate {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return s, nil
}

func newPGStoreWithQuerier(db querier) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS populations (
		name TEXT PRIMARY KEY,
		start_id BIGINT NOT NULL,
		node_count BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS edges (
		source TEXT NOT NULL,
		destination TEXT NOT NULL,
		src BIGINT NOT NULL,
		dst BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_edges_projection_src ON edges(source, destination, src);
	`

	_, err := s.db.Exec(ctx, schema)
	return err
}

// ImportPopulation inserts or replaces a population
func (s *PGStore) ImportPopulation(ctx context.Context, p Population) error {
	query := `
		INSERT INTO populations (name, start_id, node_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET start_id = EXCLUDED.start_id, node_count = EXCLUDED.node_count
	`
	if _, err := s.db.Exec(ctx, query, p.Name, int64(p.Start), int64(p.Count)); err != nil {
		return fmt.Errorf("failed to import population %s: %w", p.Name, err)
	}
	return nil
}

// ImportEdges bulk-loads the edges of one projection with COPY
func (s *PGStore) ImportEdges(ctx context.Context, prj Projection, edges []Edge) (int64, error) {
	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"edges"},
		[]string{"source", "destination", "src", "dst"},
		pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
			return []any{prj.Source, prj.Destination, int64(edges[i].Src), int64(edges[i].Dst)}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("failed to import edges of %s: %w", prj, err)
	}
	return n, nil
}

func (s *PGStore) Populations(ctx context.Context) ([]Population, error) {
	rows, err := s.db.Query(ctx, `SELECT name, start_id, node_count FROM populations ORDER BY start_id, name`)
	if err != nil {
		return nil, unavailable("query populations", err)
	}
	defer rows.Close()

	var pops []Population
	for rows.Next() {
		var (
			name         string
			start, count int64
		)
		if err := rows.Scan(&name, &start, &count); err != nil {
			return nil, unavailable("scan population", err)
		}
		pops = append(pops, Population{Name: name, Start: uint64(start), Count: uint64(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query populations", err)
	}
	return pops, nil
}

func (s *PGStore) Projections(ctx context.Context) ([]Projection, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT source, destination FROM edges ORDER BY source, destination`)
	if err != nil {
		return nil, unavailable("query projections", err)
	}
	defer rows.Close()

	var prjs []Projection
	for rows.Next() {
		var prj Projection
		if err := rows.Scan(&prj.Source, &prj.Destination); err != nil {
			return nil, unavailable("scan projection", err)
		}
		prjs = append(prjs, prj)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query projections", err)
	}
	return prjs, nil
}

func (s *PGStore) NumNodes(ctx context.Context) (uint64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(start_id + node_count), 0) FROM populations`).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("query node count", err)
	}
	return uint64(n), nil
}

func (s *PGStore) ReadRange(ctx context.Context, prj Projection, start, end uint64) ([]Record, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	query := `
		SELECT src, dst FROM edges
		WHERE source = $1 AND destination = $2 AND src >= $3 AND src < $4
		ORDER BY src, dst
	`
	rows, err := s.db.Query(ctx, query, prj.Source, prj.Destination, int64(start), int64(end))
	if err != nil {
		return nil, unavailable(fmt.Sprintf("read %s [%d,%d)", prj, start, end), err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var src, dst int64
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, unavailable("scan edge", err)
		}
		node := uint64(src)
		if n := len(records); n > 0 && records[n-1].Node == node {
			records[n-1].Neighbors = append(records[n-1].Neighbors, uint64(dst))
			continue
		}
		records = append(records, Record{Node: node, Neighbors: []uint64{uint64(dst)}})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(fmt.Sprintf("read %s [%d,%d)", prj, start, end), err)
	}
	return records, nil
}

// Close closes the database connection pool
func (s *PGStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var _ Store = (*PGStore)(nil)

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(r.rows[r.pos-1], dest)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int64:
			*d = v.(int64)
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

// fakeDB answers queries by matching a fragment of their SQL
type fakeDB struct {
	rows     map[string][][]any
	row      []any
	queryErr error
	lastArgs []any
	execs    []string
	copied   [][]any
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	db.lastArgs = args
	for fragment, rows := range db.rows {
		if strings.Contains(sql, fragment) {
			return &fakeRows{rows: rows}, nil
		}
	}
	return &fakeRows{}, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db.queryErr != nil {
		return fakeRow{err: db.queryErr}
	}
	return fakeRow{values: db.row}
}

func (db *fakeDB) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	var n int64
	for rowSrc.Next() {
		values, err := rowSrc.Values()
		if err != nil {
			return n, err
		}
		db.copied = append(db.copied, values)
		n++
	}
	return n, rowSrc.Err()
}

func TestPGStore_ReadRangeGroupsEdges(t *testing.T) {
	db := &fakeDB{rows: map[string][][]any{
		"FROM edges": {
			{int64(0), int64(1)},
			{int64(0), int64(2)},
			{int64(1), int64(2)},
			{int64(2), int64(3)},
		},
	}}
	s := newPGStoreWithQuerier(db)

	records, err := s.ReadRange(context.Background(), Projection{"GC", "GC"}, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Node: 0, Neighbors: []uint64{1, 2}},
		{Node: 1, Neighbors: []uint64{2}},
		{Node: 2, Neighbors: []uint64{3}},
	}, records)
	assert.Equal(t, []any{"GC", "GC", int64(0), int64(4)}, db.lastArgs)
}

func TestPGStore_Metadata(t *testing.T) {
	db := &fakeDB{
		rows: map[string][][]any{
			"FROM populations": {{"GC", int64(0), int64(3)}, {"MC", int64(3), int64(2)}},
			"DISTINCT source":  {{"GC", "MC"}},
		},
		row: []any{int64(5)},
	}
	s := newPGStoreWithQuerier(db)
	ctx := context.Background()

	pops, err := s.Populations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Population{{"GC", 0, 3}, {"MC", 3, 2}}, pops)

	prjs, err := s.Projections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Projection{{"GC", "MC"}}, prjs)

	n, err := s.NumNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestPGStore_Unavailable(t *testing.T) {
	refused := errors.New("connection refused")
	s := newPGStoreWithQuerier(&fakeDB{queryErr: refused})
	ctx := context.Background()

	_, err := s.ReadRange(ctx, Projection{"GC", "GC"}, 0, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, refused)

	_, err = s.NumNodes(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.ReadRange(ctx, Projection{"GC", "GC"}, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPGStore_Import(t *testing.T) {
	db := &fakeDB{}
	s := newPGStoreWithQuerier(db)
	ctx := context.Background()

	require.NoError(t, s.migrate(ctx))
	require.NoError(t, s.ImportPopulation(ctx, Population{"GC", 0, 4}))
	n, err := s.ImportEdges(ctx, Projection{"GC", "GC"}, fourNodeEdges())
	require.NoError(t, err)

	assert.Equal(t, int64(4), n)
	assert.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS edges")
	assert.Equal(t, []any{"GC", "GC", int64(2), int64(3)}, db.copied[3])
}

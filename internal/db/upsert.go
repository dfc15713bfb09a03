package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes a bulk load: rows are copied into a session temp table and
// merged into Table with INSERT ... ON CONFLICT (Key) DO UPDATE.
type Merge struct {
	Table   string
	Columns []string
	Key     []string // columns of the unique constraint
	Update  []string // columns refreshed on conflict; nil means every non-key column
}

// Exec runs the merge in one transaction and returns the affected row count.
// Rows that repeat a key are collapsed first and the last one wins, since
// ON CONFLICT cannot touch the same row twice in one statement.
func (m Merge) Exec(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	keyIdx, err := m.keyIndexes()
	if err != nil {
		return 0, err
	}
	rows = lastByKey(rows, keyIdx)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	temp := m.tempTable()
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{temp}.Sanitize(), sanitizeTable(m.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: merge: create staging table for %s", m.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{temp}, m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge: copy %d rows for %s", len(rows), m.Table)
	}

	tag, err := tx.Exec(ctx, m.mergeSQL(temp))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge: insert on conflict for %s", m.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit")
	}
	return tag.RowsAffected(), nil
}

func (m Merge) tempTable() string {
	return "_merge_" + strings.ReplaceAll(m.Table, ".", "_")
}

func (m Merge) keyIndexes() ([]int, error) {
	if len(m.Columns) == 0 {
		return nil, eris.New("db: merge: no columns specified")
	}
	if len(m.Key) == 0 {
		return nil, eris.New("db: merge: no key columns specified")
	}
	idx := make([]int, 0, len(m.Key))
	for _, k := range m.Key {
		i := indexOf(m.Columns, k)
		if i < 0 {
			return nil, eris.Errorf("db: merge: key column %q not in columns", k)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

func (m Merge) updateColumns() []string {
	if m.Update != nil {
		return m.Update
	}
	var cols []string
	for _, c := range m.Columns {
		if indexOf(m.Key, c) < 0 {
			cols = append(cols, c)
		}
	}
	return cols
}

func (m Merge) mergeSQL(temp string) string {
	set := make([]string, 0, len(m.Columns))
	for _, c := range m.updateColumns() {
		col := pgx.Identifier{c}.Sanitize()
		set = append(set, col+" = EXCLUDED."+col)
	}
	cols := quoteAndJoin(m.Columns)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(m.Table), cols, cols, pgx.Identifier{temp}.Sanitize(),
		quoteAndJoin(m.Key), strings.Join(set, ", "),
	)
}

// lastByKey drops earlier rows that share a key with a later row, keeping
// first-seen order.
func lastByKey(rows [][]any, keyIdx []int) [][]any {
	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, len(keyIdx))
		for i, k := range keyIdx {
			parts[i] = fmt.Sprint(row[k])
		}
		key := strings.Join(parts, "\x00")
		if j, ok := pos[key]; ok {
			out[j] = row
			continue
		}
		pos[key] = len(out)
		out = append(out, row)
	}
	return out
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/zekoder/zecore/modules/record/domain/ports"
	"github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/pkg/apperr"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RecordPGStore executes descriptor-driven statements against Postgres. Every
// method runs in its own transaction and sets the tenant-scoping session
// variables before any other statement, so row-level security policies keyed
// on zekoder.id / zekoder.roles apply to everything it does.
type RecordPGStore struct {
	pool pgBeginner
}

func NewRecordPGStore(pool pgBeginner) ports.RecordStore {
	return &RecordPGStore{pool: pool}
}

func setSessionVars(ctx context.Context, tx pgx.Tx, identity types.Identity) error {
	if _, err := tx.Exec(ctx, `SELECT set_config('zekoder.id', $1, true);`, identity.UserID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('zekoder.roles', $1, true);`, identity.RolesValue()); err != nil {
		return err
	}
	return nil
}

func (s *RecordPGStore) SelectWhere(ctx context.Context, identity types.Identity, desc types.Descriptor, where types.Record) ([]types.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := setSessionVars(ctx, tx, identity); err != nil {
		return nil, classifyError(err)
	}

	sql, args, err := selectSQL(desc, where)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	out, err := RecordsFromRows(rows)
	if err != nil {
		return nil, classifyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyError(err)
	}
	return out, nil
}

func (s *RecordPGStore) GetWhere(ctx context.Context, identity types.Identity, desc types.Descriptor, where types.Record) (types.Record, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, classifyError(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := setSessionVars(ctx, tx, identity); err != nil {
		return nil, false, classifyError(err)
	}

	sql, args, err := selectSQL(desc, where)
	if err != nil {
		return nil, false, err
	}
	rows, err := tx.Query(ctx, sql+" LIMIT 1", args...)
	if err != nil {
		return nil, false, classifyError(err)
	}
	found, err := RecordsFromRows(rows)
	if err != nil {
		return nil, false, classifyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, classifyError(err)
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	return found[0], true, nil
}

func (s *RecordPGStore) Insert(ctx context.Context, identity types.Identity, desc types.Descriptor, data types.Record) (types.Record, error) {
	if err := validateColumns(desc, data); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := setSessionVars(ctx, tx, identity); err != nil {
		return nil, classifyError(err)
	}

	cols := presentColumns(desc, data)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = data[col]
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdent(desc.Table),
		quoteAll(cols),
		strings.Join(placeholders, ", "),
		quoteAll(desc.Columns()),
	)

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	inserted, err := RecordsFromRows(rows)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(inserted) == 0 {
		return nil, apperr.NewInternal(fmt.Errorf("insert into %s returned no row", desc.Table))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyError(err)
	}
	return inserted[0], nil
}

func (s *RecordPGStore) Update(ctx context.Context, identity types.Identity, desc types.Descriptor, id string, data types.Record) (types.Record, bool, error) {
	if err := validateColumns(desc, data); err != nil {
		return nil, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, classifyError(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := setSessionVars(ctx, tx, identity); err != nil {
		return nil, false, classifyError(err)
	}

	cols := presentColumns(desc, data)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), i+1)
		args = append(args, data[col])
	}
	args = append(args, id)
	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		quoteIdent(desc.Table),
		strings.Join(sets, ", "),
		quoteIdent(desc.PrimaryKey),
		len(args),
		quoteAll(desc.Columns()),
	)

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, false, classifyError(err)
	}
	updated, err := RecordsFromRows(rows)
	if err != nil {
		return nil, false, classifyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, classifyError(err)
	}
	if len(updated) == 0 {
		return nil, false, nil
	}
	return updated[0], true, nil
}

func (s *RecordPGStore) Delete(ctx context.Context, identity types.Identity, desc types.Descriptor, id string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, classifyError(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := setSessionVars(ctx, tx, identity); err != nil {
		return 0, classifyError(err)
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", quoteIdent(desc.Table), quoteIdent(desc.PrimaryKey))
	tag, err := tx.Exec(ctx, sql, id)
	if err != nil {
		return 0, classifyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classifyError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *RecordPGStore) DeleteMany(ctx context.Context, identity types.Identity, desc types.Descriptor, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, classifyError(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := setSessionVars(ctx, tx, identity); err != nil {
		return 0, classifyError(err)
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)", quoteIdent(desc.Table), quoteIdent(desc.PrimaryKey))
	tag, err := tx.Exec(ctx, sql, ids)
	if err != nil {
		return 0, classifyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classifyError(err)
	}
	return tag.RowsAffected(), nil
}

func selectSQL(desc types.Descriptor, where types.Record) (string, []any, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s", quoteAll(desc.Columns()), quoteIdent(desc.Table))
	if len(where) == 0 {
		return sql, nil, nil
	}
	if err := validateColumns(desc, where); err != nil {
		return "", nil, err
	}
	cols := presentColumns(desc, where)
	conds := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v := where[col]
		if v == nil {
			conds = append(conds, fmt.Sprintf("%s IS NULL", quoteIdent(col)))
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", quoteIdent(col), len(args)))
	}
	return sql + " WHERE " + strings.Join(conds, " AND "), args, nil
}

func validateColumns(desc types.Descriptor, data types.Record) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !desc.HasColumn(k) {
			return apperr.NewUnknownColumn(k)
		}
	}
	return nil
}

// presentColumns returns the data keys in descriptor declaration order, so
// generated SQL is deterministic.
func presentColumns(desc types.Descriptor, data types.Record) []string {
	out := make([]string, 0, len(data))
	for _, f := range desc.Fields {
		if _, ok := data[f.Name]; ok {
			out = append(out, f.Name)
		}
	}
	return out
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// RecordsFromRows drains rows into field-name keyed records. UUID values come
// back from pgx as byte arrays and are rendered as strings to keep records
// JSON-friendly.
func RecordsFromRows(rows pgx.Rows) ([]types.Record, error) {
	defer rows.Close()

	var fields []string
	out := make([]types.Record, 0)
	for rows.Next() {
		if fields == nil {
			descs := rows.FieldDescriptions()
			fields = make([]string, len(descs))
			for i, fd := range descs {
				fields[i] = fd.Name
			}
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(types.Record, len(fields))
		for i, name := range fields {
			if i < len(values) {
				rec[name] = normalizeValue(values[i])
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}

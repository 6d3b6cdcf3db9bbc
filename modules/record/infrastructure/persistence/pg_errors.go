package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zekoder/zecore/pkg/apperr"
)

const pgUniqueViolation = "23505"

// classifyError maps backend failures onto the engine's error kinds. Unique
// violations become Conflict carrying the offending field names; everything
// else unexpected becomes Internal so raw backend text never reaches clients.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr != nil {
		if strings.TrimSpace(pgErr.Code) == pgUniqueViolation {
			return apperr.NewConflict(conflictFieldsFromPgError(pgErr)...)
		}
	}
	return apperr.NewInternal(err)
}

func isClassified(err error) bool {
	return apperr.IsNotFound(err) ||
		apperr.IsConflict(err) ||
		apperr.IsUnknownColumn(err) ||
		apperr.IsUnknownOperator(err) ||
		apperr.IsForbidden(err) ||
		apperr.IsInternal(err)
}

// conflictFieldsFromPgError extracts column names from a unique-violation
// detail line, e.g. `Key (short_name)=(zeko) already exists.`. Falls back to
// the constraint name when the detail is absent or unparseable.
func conflictFieldsFromPgError(pgErr *pgconn.PgError) []string {
	detail := pgErr.Detail
	if i := strings.Index(detail, "Key ("); i >= 0 {
		rest := detail[i+len("Key ("):]
		if j := strings.Index(rest, ")="); j >= 0 {
			fields := strings.Split(rest[:j], ",")
			out := make([]string, 0, len(fields))
			for _, f := range fields {
				f = strings.TrimSpace(f)
				if f != "" {
					out = append(out, f)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	if name := strings.TrimSpace(pgErr.ConstraintName); name != "" {
		return []string{name}
	}
	return nil
}

package services

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	qt "github.com/zekoder/zecore/modules/query/domain/types"
	recordtypes "github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/pkg/apperr"
)

// inConstraint narrows a fetch to rows whose column is in the value set.
// The executor uses it to batch join fetches.
type inConstraint struct {
	column string
	values []any
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

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// whereSQL renders the predicate tree. Values are always bound parameters;
// identifiers come from the validated descriptor only.
func whereSQL(filter qt.Filter, extra *inConstraint, args *[]any) string {
	conds := make([]string, 0, len(filter.Fields)+2)

	for _, pred := range filter.Fields {
		conds = append(conds, fieldSQL(pred, args)...)
	}

	if len(filter.Or) > 0 {
		branches := make([]string, 0, len(filter.Or))
		for _, branch := range filter.Or {
			branchConds := make([]string, 0, len(branch.Fields))
			for _, pred := range branch.Fields {
				branchConds = append(branchConds, fieldSQL(pred, args)...)
			}
			if len(branchConds) == 0 {
				branches = append(branches, "TRUE")
				continue
			}
			branches = append(branches, "("+strings.Join(branchConds, " AND ")+")")
		}
		conds = append(conds, "("+strings.Join(branches, " OR ")+")")
	}

	if extra != nil {
		conds = append(conds, inListSQL(extra.column, extra.values, false, args))
	}

	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func fieldSQL(pred qt.FieldPredicate, args *[]any) []string {
	col := quoteIdent(pred.Field)
	if pred.Literal {
		if pred.Value == nil {
			return []string{col + " IS NULL"}
		}
		*args = append(*args, pred.Value)
		return []string{fmt.Sprintf("%s = $%d", col, len(*args))}
	}

	out := make([]string, 0, len(pred.Clauses))
	for _, clause := range pred.Clauses {
		out = append(out, clauseSQL(col, pred.Field, clause, args))
	}
	return out
}

func clauseSQL(col string, field string, clause qt.Clause, args *[]any) string {
	bind := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
	switch clause.Op {
	case qt.OpGT:
		return fmt.Sprintf("%s > %s", col, bind(clause.Value))
	case qt.OpGTE:
		return fmt.Sprintf("%s >= %s", col, bind(clause.Value))
	case qt.OpLT:
		return fmt.Sprintf("%s < %s", col, bind(clause.Value))
	case qt.OpLTE:
		return fmt.Sprintf("%s <= %s", col, bind(clause.Value))
	case qt.OpNE:
		if clause.Value == nil {
			return col + " IS NOT NULL"
		}
		return fmt.Sprintf("%s <> %s", col, bind(clause.Value))
	case qt.OpPrefix:
		return fmt.Sprintf("%s LIKE %s", col, bind(likeEscaper.Replace(fmt.Sprint(clause.Value))+"%"))
	case qt.OpContains:
		return fmt.Sprintf("%s ILIKE %s", col, bind("%"+likeEscaper.Replace(fmt.Sprint(clause.Value))+"%"))
	case qt.OpLike:
		return fmt.Sprintf("%s LIKE %s", col, bind(clause.Value))
	case qt.OpIn:
		return inListSQL(field, clause.Value.([]any), false, args)
	case qt.OpNin:
		return inListSQL(field, clause.Value.([]any), true, args)
	case qt.OpExist:
		if clause.Value.(bool) {
			return col + " IS NOT NULL"
		}
		return col + " IS NULL"
	}
	// parse rejects anything else
	return "FALSE"
}

func inListSQL(field string, values []any, negate bool, args *[]any) string {
	if len(values) == 0 {
		if negate {
			return "TRUE"
		}
		return "FALSE"
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		*args = append(*args, v)
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", quoteIdent(field), op, strings.Join(placeholders, ", "))
}

// projectionColumns resolves the SELECT list: the explicit projection when
// present (the primary key is always kept), otherwise every column.
// mustInclude columns are appended so join bookkeeping survives a narrow
// projection.
func projectionColumns(desc recordtypes.Descriptor, doc *qt.Document, mustInclude []string) ([]string, error) {
	if len(doc.Group) > 0 {
		// grouping without aggregates collapses the row pass to the group
		// columns
		for _, col := range doc.Group {
			if !desc.HasColumn(col) {
				return nil, apperr.NewUnknownColumn(col)
			}
		}
		return doc.Group, nil
	}

	if len(doc.Project) == 0 {
		return desc.Columns(), nil
	}

	cols := make([]string, 0, len(doc.Project)+1+len(mustInclude))
	seen := make(map[string]bool, len(doc.Project)+1)
	add := func(col string) {
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	add(desc.PrimaryKey)
	for _, col := range doc.Project {
		if !desc.HasColumn(col) {
			return nil, apperr.NewUnknownColumn(col)
		}
		add(col)
	}
	for _, col := range mustInclude {
		add(col)
	}
	return cols, nil
}

func orderBySQL(desc recordtypes.Descriptor, sorts []string) (string, error) {
	if len(sorts) == 0 {
		return "", nil
	}
	terms := make([]string, 0, len(sorts))
	for _, s := range sorts {
		col, dir := s, "ASC"
		if strings.HasSuffix(s, "-") {
			col, dir = strings.TrimSuffix(s, "-"), "DESC"
		} else if strings.HasSuffix(s, "+") {
			col = strings.TrimSuffix(s, "+")
		}
		if !desc.HasColumn(col) {
			return "", apperr.NewUnknownColumn(col)
		}
		terms = append(terms, quoteIdent(col)+" "+dir)
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// rowSQL builds the row-pass statement: projection, filter, sort,
// skip/limit. skip here is a raw row offset, unlike the Manager's page-number
// windowing.
func rowSQL(desc recordtypes.Descriptor, doc *qt.Document, filter qt.Filter, extra *inConstraint, mustInclude []string) (string, []any, error) {
	cols, err := projectionColumns(desc, doc, mustInclude)
	if err != nil {
		return "", nil, err
	}
	orderBy, err := orderBySQL(desc, doc.Sort)
	if err != nil {
		return "", nil, err
	}

	args := []any{}
	sql := fmt.Sprintf("SELECT %s FROM %s", quoteAll(cols), quoteIdent(desc.Table))
	sql += whereSQL(filter, extra, &args)
	if len(doc.Group) > 0 {
		sql += " GROUP BY " + quoteAll(doc.Group)
	}
	sql += orderBy
	if doc.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", doc.Limit)
	}
	if doc.Skip > 0 {
		sql += fmt.Sprintf(" OFFSET %d", doc.Skip)
	}
	return sql, args, nil
}

// countSQL evaluates the filter alone: projection, sort and pagination do not
// affect the total.
func countSQL(desc recordtypes.Descriptor, filter qt.Filter) (string, []any) {
	args := []any{}
	sql := fmt.Sprintf("SELECT count(*) AS count FROM %s", quoteIdent(desc.Table))
	sql += whereSQL(filter, nil, &args)
	return sql, args
}

func aggregateSQL(desc recordtypes.Descriptor, exprs []qt.AggregateExpr, group []string, filter qt.Filter) (string, []any) {
	selects := make([]string, 0, len(group)+len(exprs))
	for _, col := range group {
		selects = append(selects, quoteIdent(col))
	}
	for _, expr := range exprs {
		fn := strings.ToUpper(strings.TrimPrefix(string(expr.Kind), "$"))
		selects = append(selects, fmt.Sprintf("%s(%s) AS %s", fn, quoteIdent(expr.Field), quoteIdent(expr.Name)))
	}

	args := []any{}
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), quoteIdent(desc.Table))
	sql += whereSQL(filter, nil, &args)
	if len(group) > 0 {
		sql += " GROUP BY " + quoteAll(group)
	}
	return sql, args
}

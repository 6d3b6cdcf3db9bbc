package types

import (
	"sort"
	"strings"

	recordtypes "github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/pkg/apperr"
)

// OpKind is a filter operator from the fixed client vocabulary.
type OpKind string

const (
	OpGT       OpKind = "$gt"
	OpGTE      OpKind = "$gte"
	OpLT       OpKind = "$lt"
	OpLTE      OpKind = "$lte"
	OpNE       OpKind = "$ne"
	OpPrefix   OpKind = "$prefix"
	OpContains OpKind = "$contains"
	OpIn       OpKind = "$in"
	OpNin      OpKind = "$nin"
	OpLike     OpKind = "$like"
	OpExist    OpKind = "$exist"
)

const OpOr = "$or"

var orderedOps = map[OpKind]bool{OpGT: true, OpGTE: true, OpLT: true, OpLTE: true}

var knownOps = map[OpKind]bool{
	OpGT: true, OpGTE: true, OpLT: true, OpLTE: true, OpNE: true,
	OpPrefix: true, OpContains: true, OpIn: true, OpNin: true,
	OpLike: true, OpExist: true,
}

// Clause is one operator application on a field.
type Clause struct {
	Op    OpKind
	Value any
}

// FieldPredicate is the parsed condition for one field: either a literal
// equality or a conjunction of operator clauses.
type FieldPredicate struct {
	Field   string
	Literal bool
	Value   any
	Clauses []Clause
}

// Filter is the parsed predicate tree. Fields are ANDed together; Or holds
// alternative field maps, logically ORed, each internally ANDed. $or is the
// only boolean composition beyond the implicit AND.
type Filter struct {
	Fields []FieldPredicate
	Or     []Filter
}

// Empty reports whether the filter constrains nothing.
func (f Filter) Empty() bool {
	return len(f.Fields) == 0 && len(f.Or) == 0
}

// ParseFilter validates the raw filter document against the descriptor and
// builds the predicate tree. Fields are ordered by name so downstream SQL is
// deterministic.
func ParseFilter(raw map[string]any, desc recordtypes.Descriptor) (Filter, error) {
	out := Filter{}
	if len(raw) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == OpOr {
			branches, err := parseOr(raw[key], desc)
			if err != nil {
				return Filter{}, err
			}
			out.Or = branches
			continue
		}
		pred, err := parseFieldPredicate(key, raw[key], desc)
		if err != nil {
			return Filter{}, err
		}
		out.Fields = append(out.Fields, pred)
	}
	return out, nil
}

func parseOr(raw any, desc recordtypes.Descriptor) ([]Filter, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, apperr.NewUnknownOperator(OpOr)
	}
	branches := make([]Filter, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.NewUnknownOperator(OpOr)
		}
		branch := Filter{}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if key == OpOr {
				// branches are plain field maps, nesting is not part of
				// the grammar
				return nil, apperr.NewUnknownOperator(OpOr)
			}
			pred, err := parseFieldPredicate(key, m[key], desc)
			if err != nil {
				return nil, err
			}
			branch.Fields = append(branch.Fields, pred)
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

func parseFieldPredicate(field string, raw any, desc recordtypes.Descriptor) (FieldPredicate, error) {
	col, ok := desc.Column(field)
	if !ok {
		return FieldPredicate{}, apperr.NewUnknownColumn(field)
	}

	opMap, isOps := operatorObject(raw)
	if !isOps {
		return FieldPredicate{Field: field, Literal: true, Value: raw}, nil
	}

	ops := make([]string, 0, len(opMap))
	for op := range opMap {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	pred := FieldPredicate{Field: field}
	for _, op := range ops {
		kind := OpKind(op)
		if !knownOps[kind] {
			return FieldPredicate{}, apperr.NewUnknownOperator(op)
		}
		value := opMap[op]
		if err := checkClause(kind, col, value); err != nil {
			return FieldPredicate{}, err
		}
		pred.Clauses = append(pred.Clauses, Clause{Op: kind, Value: value})
	}
	return pred, nil
}

// operatorObject reports whether raw is an operator map: every key starting
// with "$". A plain map value (or anything else) is an equality literal.
func operatorObject(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func checkClause(kind OpKind, col recordtypes.Field, value any) error {
	if orderedOps[kind] && !col.Kind.Ordered() {
		return apperr.NewUnknownOperator(string(kind) + " on " + string(col.Kind) + " column " + col.Name)
	}
	switch kind {
	case OpIn, OpNin:
		if _, ok := value.([]any); !ok {
			return apperr.NewUnknownOperator(string(kind))
		}
	case OpExist:
		if _, ok := value.(bool); !ok {
			return apperr.NewUnknownOperator(string(kind))
		}
	}
	return nil
}

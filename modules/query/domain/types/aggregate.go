package types

import (
	"sort"

	recordtypes "github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/pkg/apperr"
)

type AggregateKind string

const (
	AggMin AggregateKind = "$min"
	AggMax AggregateKind = "$max"
	AggSum AggregateKind = "$sum"
	AggAvg AggregateKind = "$avg"
)

var knownAggregates = map[AggregateKind]bool{AggMin: true, AggMax: true, AggSum: true, AggAvg: true}

// AggregateExpr is one named aggregate: Name is the result column, Field the
// aggregated column.
type AggregateExpr struct {
	Name  string
	Kind  AggregateKind
	Field string
}

// aggregateGroupKey is the reserved key inside the aggregate object that
// holds grouping columns. It is split out before the named aggregates are
// validated.
const aggregateGroupKey = "group"

// ParseAggregates splits the grouping columns out of the raw aggregate spec
// and validates every named aggregate expression against the descriptor.
func ParseAggregates(raw map[string]any, desc recordtypes.Descriptor) ([]AggregateExpr, []string, error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	var group []string
	if rawGroup, ok := raw[aggregateGroupKey]; ok {
		list, ok := rawGroup.([]any)
		if !ok {
			return nil, nil, apperr.NewUnknownColumn(aggregateGroupKey)
		}
		for _, item := range list {
			col, ok := item.(string)
			if !ok || !desc.HasColumn(col) {
				return nil, nil, apperr.NewUnknownColumn(colName(item))
			}
			group = append(group, col)
		}
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		if name == aggregateGroupKey {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	exprs := make([]AggregateExpr, 0, len(names))
	for _, name := range names {
		spec, ok := raw[name].(map[string]any)
		if !ok || len(spec) != 1 {
			return nil, nil, apperr.NewUnknownOperator(name)
		}
		for op, rawField := range spec {
			kind := AggregateKind(op)
			if !knownAggregates[kind] {
				return nil, nil, apperr.NewUnknownOperator(op)
			}
			field, ok := rawField.(string)
			if !ok || !desc.HasColumn(field) {
				return nil, nil, apperr.NewUnknownColumn(colName(rawField))
			}
			exprs = append(exprs, AggregateExpr{Name: name, Kind: kind, Field: field})
		}
	}
	return exprs, group, nil
}

func colName(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "?"
}

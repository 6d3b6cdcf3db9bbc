// Package services executes declarative query documents against Postgres:
// an optional count pass, an optional aggregate pass and a row pass with
// batched join merging.
package services

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/jackc/pgx/v5"
	qt "github.com/zekoder/zecore/modules/query/domain/types"
	"github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/modules/record/infrastructure/persistence"
	"github.com/zekoder/zecore/pkg/apperr"
	"github.com/zekoder/zecore/pkg/authz"
)

// Querier is the read surface the engine needs. A scoped session connection
// satisfies it; row-level security rides on the session variables that
// session set before handing the connection out.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DescriptorSource resolves record-type names for join targets.
type DescriptorSource interface {
	Lookup(name string) (types.Descriptor, bool)
}

// Engine runs query documents. The authorizer is optional; when nil the
// allow-list alone gates aggregates.
type Engine struct {
	db          Querier
	descriptors DescriptorSource
	authorizer  *authz.Authorizer
}

func NewEngine(db Querier, descriptors DescriptorSource, authorizer *authz.Authorizer) *Engine {
	return &Engine{db: db, descriptors: descriptors, authorizer: authorizer}
}

// Run executes one document against desc. allowedAggregates is the
// registration-time allow-list of aggregatable columns; a spec touching any
// other column is rejected before the first statement.
func (e *Engine) Run(ctx context.Context, identity types.Identity, desc types.Descriptor, doc *qt.Document, allowedAggregates []string) (*qt.Response, error) {
	if doc == nil {
		doc = &qt.Document{Limit: qt.DefaultLimit, Count: qt.DefaultCount}
	}
	filter, err := qt.ParseFilter(doc.Filter, desc)
	if err != nil {
		return nil, err
	}

	// Aggregates stays nil (serialized as null) unless the document asked
	// for an aggregate pass.
	resp := &qt.Response{
		Data:     []types.Record{},
		PageSize: pageSize(doc),
		NextPage: nextPage(doc),
	}

	if doc.Count != 0 {
		total, err := e.runCount(ctx, desc, filter)
		if err != nil {
			return nil, err
		}
		resp.Count = &total
	}

	if len(doc.Aggregate) > 0 {
		aggs, err := e.runAggregates(ctx, identity, desc, doc, filter, allowedAggregates)
		if err != nil {
			return nil, err
		}
		resp.Aggregates = aggs
	}

	rows, err := e.fetchRows(ctx, desc, doc, nil)
	if err != nil {
		return nil, err
	}
	resp.Data = rows
	return resp, nil
}

func pageSize(doc *qt.Document) int {
	if doc.Limit > 0 {
		return doc.Limit
	}
	return qt.DefaultLimit
}

// nextPage reports one past the current page, where the current page derives
// from skip divided by the page size and a zero skip means page one.
func nextPage(doc *qt.Document) int {
	page := 1
	if doc.Skip != 0 {
		page = doc.Skip / pageSize(doc)
	}
	return page + 1
}

func (e *Engine) runCount(ctx context.Context, desc types.Descriptor, filter qt.Filter) (int64, error) {
	sql, args := countSQL(desc, filter)
	rows, err := e.query(ctx, sql, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, apperr.NewInternal(fmt.Errorf("count returned no rows"))
	}
	switch v := rows[0]["count"].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	default:
		return 0, apperr.NewInternal(fmt.Errorf("count returned %T", rows[0]["count"]))
	}
}

func (e *Engine) runAggregates(ctx context.Context, identity types.Identity, desc types.Descriptor, doc *qt.Document, filter qt.Filter, allowed []string) ([]types.Record, error) {
	exprs, group, err := qt.ParseAggregates(doc.Aggregate, desc)
	if err != nil {
		return nil, err
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, col := range allowed {
		allowedSet[col] = true
	}
	for _, expr := range exprs {
		if !allowedSet[expr.Field] {
			return nil, apperr.NewForbidden(fmt.Sprintf("aggregation over %q is not permitted", expr.Field))
		}
		ok, enforced, err := e.authorizer.AuthorizeAggregate(identity.Roles, desc.Name, expr.Field)
		if err != nil {
			return nil, apperr.NewInternal(err)
		}
		if !ok {
			if enforced {
				return nil, apperr.NewForbidden(fmt.Sprintf("aggregation over %q is not permitted", expr.Field))
			}
			log.Printf("authz shadow deny resource=%s field=%s user=%s", desc.Name, expr.Field, identity.UserID)
		}
	}

	sql, args := aggregateSQL(desc, exprs, group, filter)
	return e.query(ctx, sql, args)
}

// fetchRows runs the row pass for one document level and recurses into its
// joins. extra narrows a child fetch to the parent key set.
func (e *Engine) fetchRows(ctx context.Context, desc types.Descriptor, doc *qt.Document, extra *inConstraint) ([]types.Record, error) {
	filter, err := qt.ParseFilter(doc.Filter, desc)
	if err != nil {
		return nil, err
	}

	// A grouped row pass collapses rows, so the keys a join would navigate
	// on are gone. Reject the combination instead of returning partial rows.
	if len(doc.Group) > 0 && len(doc.Join) > 0 {
		return nil, apperr.NewUnknownOperator("group combined with join")
	}

	// A narrow projection must still carry the columns joins navigate on.
	mustInclude := make([]string, 0, len(doc.Join)+1)
	if extra != nil {
		mustInclude = append(mustInclude, extra.column)
	}
	joinNames := make([]string, 0, len(doc.Join))
	for name := range doc.Join {
		joinNames = append(joinNames, name)
	}
	sort.Strings(joinNames)
	for _, name := range joinNames {
		rel, ok := desc.Relation(name)
		if !ok {
			return nil, apperr.NewUnknownColumn(name)
		}
		if rel.Kind == types.BelongsTo {
			mustInclude = append(mustInclude, rel.ForeignKey)
		}
	}

	sql, args, err := rowSQL(desc, doc, filter, extra, mustInclude)
	if err != nil {
		return nil, err
	}
	records, err := e.query(ctx, sql, args)
	if err != nil {
		return nil, err
	}

	for _, name := range joinNames {
		rel, _ := desc.Relation(name)
		if err := e.mergeJoin(ctx, desc, records, rel, doc.Join[name]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (e *Engine) mergeJoin(ctx context.Context, desc types.Descriptor, parents []types.Record, rel types.Relation, child *qt.Document) error {
	target, ok := e.descriptors.Lookup(rel.Target)
	if !ok {
		return apperr.NewInternal(fmt.Errorf("relation %s targets unregistered type %s", rel.Name, rel.Target))
	}
	if child == nil {
		child = &qt.Document{Limit: qt.DefaultLimit}
	}

	switch rel.Kind {
	case types.BelongsTo:
		keys := distinctValues(parents, rel.ForeignKey)
		if len(keys) == 0 {
			for _, p := range parents {
				p[rel.Name] = nil
			}
			return nil
		}
		children, err := e.fetchRows(ctx, target, child, &inConstraint{column: target.PrimaryKey, values: keys})
		if err != nil {
			return err
		}
		byKey := make(map[any]types.Record, len(children))
		for _, c := range children {
			byKey[c[target.PrimaryKey]] = c
		}
		for _, p := range parents {
			fk := p[rel.ForeignKey]
			if fk == nil {
				p[rel.Name] = nil
				continue
			}
			if c, ok := byKey[fk]; ok {
				p[rel.Name] = c
			} else {
				p[rel.Name] = nil
			}
		}
		return nil

	case types.HasMany:
		ids := distinctValues(parents, desc.PrimaryKey)
		grouped := make(map[any][]types.Record, len(parents))
		if len(ids) > 0 {
			children, err := e.fetchRows(ctx, target, child, &inConstraint{column: rel.ForeignKey, values: ids})
			if err != nil {
				return err
			}
			for _, c := range children {
				key := c[rel.ForeignKey]
				grouped[key] = append(grouped[key], c)
			}
		}
		for _, p := range parents {
			list := grouped[p[desc.PrimaryKey]]
			if list == nil {
				list = []types.Record{}
			}
			p[rel.Name] = list
		}
		return nil
	}
	return apperr.NewInternal(fmt.Errorf("relation %s has unknown kind %q", rel.Name, rel.Kind))
}

func (e *Engine) query(ctx context.Context, sql string, args []any) ([]types.Record, error) {
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.NewInternal(err)
	}
	records, err := persistence.RecordsFromRows(rows)
	if err != nil {
		return nil, apperr.NewInternal(err)
	}
	return records, nil
}

func distinctValues(records []types.Record, column string) []any {
	seen := make(map[any]bool, len(records))
	out := make([]any, 0, len(records))
	for _, r := range records {
		v := r[column]
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

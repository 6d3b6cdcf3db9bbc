package types

import (
	"encoding/json"
	"testing"

	recordtypes "github.com/zekoder/zecore/modules/record/domain/types"
	"github.com/zekoder/zecore/pkg/apperr"
)

func testDescriptor() recordtypes.Descriptor {
	d := recordtypes.Descriptor{
		Name: "users",
		Fields: []recordtypes.Field{
			{Name: "name", Kind: recordtypes.KindText},
			{Name: "email", Kind: recordtypes.KindText},
			{Name: "age", Kind: recordtypes.KindInt},
			{Name: "active", Kind: recordtypes.KindBool},
		},
	}
	d.Normalize()
	return d
}

func TestDocumentUnmarshalDefaults(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`{}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Limit != DefaultLimit {
		t.Fatalf("limit = %d, want %d", doc.Limit, DefaultLimit)
	}
	if doc.Skip != 0 {
		t.Fatalf("skip = %d, want 0", doc.Skip)
	}
	if doc.Count != DefaultCount {
		t.Fatalf("count = %d, want %d", doc.Count, DefaultCount)
	}
}

func TestDocumentUnmarshalExplicitZeros(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`{"limit": 0, "count": 0}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Limit != 0 {
		t.Fatalf("limit = %d, want explicit 0", doc.Limit)
	}
	if doc.Count != 0 {
		t.Fatalf("count = %d, want explicit 0", doc.Count)
	}
}

func TestDocumentUnmarshalNested(t *testing.T) {
	raw := `{
		"project": ["name"],
		"limit": 5,
		"skip": 10,
		"filter": {"age": {"$gte": 21}},
		"sort": ["name+", "age-"],
		"join": {"posts": {"filter": {"active": true}}},
		"aggregate": {"oldest": {"$max": "age"}, "group": ["active"]}
	}`
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Limit != 5 || doc.Skip != 10 {
		t.Fatalf("pagination = %d/%d", doc.Limit, doc.Skip)
	}
	child := doc.Join["posts"]
	if child == nil {
		t.Fatal("join document missing")
	}
	if child.Limit != DefaultLimit {
		t.Fatalf("nested limit = %d, want default %d", child.Limit, DefaultLimit)
	}
	if child.Count != DefaultCount {
		t.Fatalf("nested count = %d, want default %d", child.Count, DefaultCount)
	}
}

func TestParseFilterLiteralAndOperators(t *testing.T) {
	desc := testDescriptor()
	f, err := ParseFilter(map[string]any{
		"name": "ana",
		"age":  map[string]any{"$gte": 21, "$lt": 65},
	}, desc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(f.Fields))
	}
	// sorted by field name
	if f.Fields[0].Field != "age" || f.Fields[0].Literal {
		t.Fatalf("first predicate = %+v", f.Fields[0])
	}
	if got := len(f.Fields[0].Clauses); got != 2 {
		t.Fatalf("clauses = %d, want 2", got)
	}
	if f.Fields[0].Clauses[0].Op != OpGTE || f.Fields[0].Clauses[1].Op != OpLT {
		t.Fatalf("clause order = %+v", f.Fields[0].Clauses)
	}
	if !f.Fields[1].Literal || f.Fields[1].Value != "ana" {
		t.Fatalf("literal predicate = %+v", f.Fields[1])
	}
}

func TestParseFilterPlainMapIsLiteral(t *testing.T) {
	desc := testDescriptor()
	f, err := ParseFilter(map[string]any{
		"name": map[string]any{"first": "ana"},
	}, desc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !f.Fields[0].Literal {
		t.Fatal("map without $ keys must be an equality literal")
	}
}

func TestParseFilterUnknownColumn(t *testing.T) {
	desc := testDescriptor()
	_, err := ParseFilter(map[string]any{"nickname": "x"}, desc)
	if !apperr.IsUnknownColumn(err) {
		t.Fatalf("err = %v, want unknown column", err)
	}
}

func TestParseFilterUnknownOperator(t *testing.T) {
	desc := testDescriptor()
	_, err := ParseFilter(map[string]any{
		"age": map[string]any{"$between": []any{1, 2}},
	}, desc)
	if !apperr.IsUnknownOperator(err) {
		t.Fatalf("err = %v, want unknown operator", err)
	}
}

func TestParseFilterOrderedOpOnTextColumn(t *testing.T) {
	desc := testDescriptor()
	_, err := ParseFilter(map[string]any{
		"name": map[string]any{"$gt": "m"},
	}, desc)
	if !apperr.IsUnknownOperator(err) {
		t.Fatalf("err = %v, want unknown operator", err)
	}
}

func TestParseFilterInRequiresList(t *testing.T) {
	desc := testDescriptor()
	_, err := ParseFilter(map[string]any{
		"age": map[string]any{"$in": 21},
	}, desc)
	if !apperr.IsUnknownOperator(err) {
		t.Fatalf("err = %v, want unknown operator", err)
	}
}

func TestParseFilterOr(t *testing.T) {
	desc := testDescriptor()
	f, err := ParseFilter(map[string]any{
		"active": true,
		"$or": []any{
			map[string]any{"name": "ana"},
			map[string]any{"age": map[string]any{"$gte": 65}, "email": map[string]any{"$exist": false}},
		},
	}, desc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Fields) != 1 || len(f.Or) != 2 {
		t.Fatalf("fields=%d or=%d", len(f.Fields), len(f.Or))
	}
	if len(f.Or[1].Fields) != 2 {
		t.Fatalf("second branch fields = %d, want 2", len(f.Or[1].Fields))
	}
}

func TestParseFilterNestedOrRejected(t *testing.T) {
	desc := testDescriptor()
	_, err := ParseFilter(map[string]any{
		"$or": []any{
			map[string]any{"$or": []any{map[string]any{"name": "ana"}}},
		},
	}, desc)
	if !apperr.IsUnknownOperator(err) {
		t.Fatalf("err = %v, want unknown operator", err)
	}
}

func TestParseAggregatesSplitsGroup(t *testing.T) {
	desc := testDescriptor()
	exprs, group, err := ParseAggregates(map[string]any{
		"oldest":   map[string]any{"$max": "age"},
		"youngest": map[string]any{"$min": "age"},
		"group":    []any{"active"},
	}, desc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(group) != 1 || group[0] != "active" {
		t.Fatalf("group = %v", group)
	}
	if len(exprs) != 2 {
		t.Fatalf("exprs = %d, want 2", len(exprs))
	}
	if exprs[0].Name != "oldest" || exprs[0].Kind != AggMax || exprs[0].Field != "age" {
		t.Fatalf("first expr = %+v", exprs[0])
	}
}

func TestParseAggregatesUnknownOperator(t *testing.T) {
	desc := testDescriptor()
	_, _, err := ParseAggregates(map[string]any{
		"median": map[string]any{"$median": "age"},
	}, desc)
	if !apperr.IsUnknownOperator(err) {
		t.Fatalf("err = %v, want unknown operator", err)
	}
}

func TestParseAggregatesUnknownColumn(t *testing.T) {
	desc := testDescriptor()
	_, _, err := ParseAggregates(map[string]any{
		"oldest": map[string]any{"$max": "salary"},
	}, desc)
	if !apperr.IsUnknownColumn(err) {
		t.Fatalf("err = %v, want unknown column", err)
	}
}

package types

import (
	"maps"
	"strings"
)

// Identity is the already-verified caller: audit stamping and tenant scoping
// consume it, nothing in this module parses credentials.
type Identity struct {
	UserID string
	Roles  []string
}

// RolesValue renders the role set the way the database session expects it.
func (id Identity) RolesValue() string {
	return strings.Join(id.Roles, ",")
}

// Record is one row as a field-name to value mapping.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	maps.Copy(out, r)
	return out
}

// Merge copies src into r, later keys overriding earlier ones.
func (r Record) Merge(src Record) {
	maps.Copy(r, src)
}

// Audit columns every record carries. They are stamped by the engine and
// client-supplied values for them are discarded.
const (
	ColumnID        = "id"
	ColumnCreatedBy = "created_by"
	ColumnUpdatedBy = "updated_by"
	ColumnCreatedOn = "created_on"
	ColumnUpdatedOn = "updated_on"
)

// AuditColumns lists the implicit columns in declaration order.
var AuditColumns = []string{ColumnID, ColumnCreatedBy, ColumnUpdatedBy, ColumnCreatedOn, ColumnUpdatedOn}

type FieldKind string

const (
	KindText     FieldKind = "text"
	KindBool     FieldKind = "bool"
	KindInt      FieldKind = "int"
	KindFloat    FieldKind = "float"
	KindDate     FieldKind = "date"
	KindDateTime FieldKind = "datetime"
	KindUUID     FieldKind = "uuid"
	KindJSON     FieldKind = "json"
)

// Ordered reports whether range operators apply to the kind.
func (k FieldKind) Ordered() bool {
	switch k {
	case KindInt, KindFloat, KindDate, KindDateTime:
		return true
	default:
		return false
	}
}

type Field struct {
	Name string
	Kind FieldKind
}

type RelationKind string

const (
	// BelongsTo: the foreign key lives on this record type and points at the
	// target's primary key. Merged into the row as a single nested record.
	BelongsTo RelationKind = "belongs_to"
	// HasMany: the foreign key lives on the target type and points back at
	// this record's primary key. Merged as a list.
	HasMany RelationKind = "has_many"
)

type Relation struct {
	Name       string
	Target     string
	Kind       RelationKind
	ForeignKey string
}

// Descriptor is the registration-time description of one record type.
// Immutable once registered.
type Descriptor struct {
	Name         string
	Table        string
	PrimaryKey   string
	Fields       []Field
	Relations    []Relation
	UniqueFields [][]string

	byName map[string]Field
}

// Normalize fills defaults, appends the implicit audit columns when the
// registration omitted them, and builds the lookup index.
func (d *Descriptor) Normalize() {
	if d.Table == "" {
		d.Table = d.Name
	}
	if d.PrimaryKey == "" {
		d.PrimaryKey = ColumnID
	}
	present := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		present[f.Name] = true
	}
	audit := []Field{
		{Name: ColumnID, Kind: KindUUID},
		{Name: ColumnCreatedBy, Kind: KindUUID},
		{Name: ColumnUpdatedBy, Kind: KindUUID},
		{Name: ColumnCreatedOn, Kind: KindDateTime},
		{Name: ColumnUpdatedOn, Kind: KindDateTime},
	}
	for _, f := range audit {
		if !present[f.Name] {
			d.Fields = append(d.Fields, f)
		}
	}
	d.byName = make(map[string]Field, len(d.Fields))
	for _, f := range d.Fields {
		d.byName[f.Name] = f
	}
}

// Column returns the field for a column name.
func (d *Descriptor) Column(name string) (Field, bool) {
	f, ok := d.byName[name]
	return f, ok
}

// HasColumn reports whether name is a declared column.
func (d *Descriptor) HasColumn(name string) bool {
	_, ok := d.byName[name]
	return ok
}

// Columns returns all column names in declaration order.
func (d *Descriptor) Columns() []string {
	out := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Relation returns the relation registered under name.
func (d *Descriptor) Relation(name string) (Relation, bool) {
	for _, rel := range d.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}

// SignalPayload is the argument bundle threaded through the lifecycle hooks.
// The route layer builds it; hooks may rewrite NewData only.
type SignalPayload struct {
	Identity      Identity
	Credential    string
	NewData       Record
	OldData       Record
	WellKnownURLs map[string]string
}

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zekoder/zecore/modules/record/domain/types"
)

func userDescriptor() types.Descriptor {
	return types.Descriptor{
		Name: "users",
		Fields: []types.Field{
			{Name: "email", Kind: types.KindText},
			{Name: "age", Kind: types.KindInt},
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	if err := r.Register(Registration{Descriptor: userDescriptor()}); err != nil {
		t.Fatalf("register: %v", err)
	}

	desc, ok := r.Lookup("users")
	if !ok {
		t.Fatal("users not found")
	}
	if desc.Table != "users" || desc.PrimaryKey != "id" {
		t.Fatalf("defaults not applied: table=%q pk=%q", desc.Table, desc.PrimaryKey)
	}
	if !desc.HasColumn("created_on") {
		t.Fatal("audit columns not appended")
	}
	if _, ok := r.Lookup("ghosts"); ok {
		t.Fatal("unregistered name resolved")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	if err := r.Register(Registration{Descriptor: userDescriptor()}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Registration{Descriptor: userDescriptor()}); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestRegisterValidatesAggregateColumns(t *testing.T) {
	r := New()
	err := r.Register(Registration{
		Descriptor:        userDescriptor(),
		AllowedAggregates: []string{"salary"},
	})
	if err == nil {
		t.Fatal("unknown aggregate column accepted")
	}
}

const manifestYAML = `version: 1
resources:
  - name: users
    fields:
      - name: email
        kind: text
      - name: age
        kind: int
      - name: team_id
        kind: uuid
    unique:
      - [email]
    relations:
      - name: team
        target: teams
        kind: belongs_to
        foreign_key: team_id
    aggregates: [age]
    rules:
      delete_gate: "old.age < 100"
      derive:
        email: "new.email"
  - name: teams
    table: team_records
    fields:
      - name: title
        kind: text
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifestFile(t *testing.T) {
	r := New()
	if err := LoadManifestFile(r, writeManifest(t, manifestYAML)); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := r.Names(); len(got) != 2 || got[0] != "teams" || got[1] != "users" {
		t.Fatalf("names = %v", got)
	}

	reg, ok := r.Registration("users")
	if !ok {
		t.Fatal("users not registered")
	}
	if len(reg.AllowedAggregates) != 1 || reg.AllowedAggregates[0] != "age" {
		t.Fatalf("aggregates = %v", reg.AllowedAggregates)
	}
	if reg.Rules.DeleteGate != "old.age < 100" {
		t.Fatalf("delete gate = %q", reg.Rules.DeleteGate)
	}
	if len(reg.Descriptor.UniqueFields) != 1 {
		t.Fatalf("unique = %v", reg.Descriptor.UniqueFields)
	}
	rel, ok := reg.Descriptor.Relation("team")
	if !ok || rel.Kind != types.BelongsTo || rel.ForeignKey != "team_id" {
		t.Fatalf("relation = %+v", rel)
	}

	teams, _ := r.Lookup("teams")
	if teams.Table != "team_records" {
		t.Fatalf("teams table = %q", teams.Table)
	}
}

func TestLoadManifestRejectsBadVersion(t *testing.T) {
	r := New()
	err := LoadManifestFile(r, writeManifest(t, "version: 2\nresources:\n  - name: users\n"))
	if err == nil {
		t.Fatal("version 2 accepted")
	}
}

func TestLoadManifestRejectsUnknownFieldKind(t *testing.T) {
	r := New()
	bad := `version: 1
resources:
  - name: users
    fields:
      - name: email
        kind: varchar
`
	if err := LoadManifestFile(r, writeManifest(t, bad)); err == nil {
		t.Fatal("unknown field kind accepted")
	}
}

func TestLoadManifestEnvOverride(t *testing.T) {
	path := writeManifest(t, manifestYAML)
	t.Setenv("ZECORE_RESOURCES_PATH", path)

	r := New()
	if err := LoadManifest(r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := r.Lookup("users"); !ok {
		t.Fatal("users not registered")
	}
}

package authz

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModeFromEnv_Default(t *testing.T) {
	t.Setenv("ZECORE_AUTHZ_MODE", "")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeDisabled {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Values(t *testing.T) {
	for _, want := range []Mode{ModeEnforce, ModeShadow, ModeDisabled} {
		t.Setenv("ZECORE_AUTHZ_MODE", string(want))
		m, err := ModeFromEnv()
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if m != want {
			t.Fatalf("mode=%q want %q", m, want)
		}
	}
}

func TestModeFromEnv_Invalid(t *testing.T) {
	t.Setenv("ZECORE_AUTHZ_MODE", "bogus")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
}

func TestSubjectFromRole(t *testing.T) {
	if got := SubjectFromRole(" Admin "); got != "role:admin" {
		t.Fatalf("got %q", got)
	}
	if got := SubjectFromRole(""); got != "role:anonymous" {
		t.Fatalf("got %q", got)
	}
}

const testModel = `
[request_definition]
r = sub, res, field, act

[policy_definition]
p = sub, res, field, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.res == p.res && (r.field == p.field || p.field == "*") && r.act == p.act
`

const testPolicy = `
p, role:admin, apps, *, aggregate
p, role:analyst, apps, version, aggregate
`

func writeAuthzFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.conf")
	policyPath := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(modelPath, []byte(testModel), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policyPath, []byte(testPolicy), 0o600); err != nil {
		t.Fatal(err)
	}
	return modelPath, policyPath
}

func TestAuthorizeAggregate(t *testing.T) {
	modelPath, policyPath := writeAuthzFixtures(t)

	t.Run("enforce", func(t *testing.T) {
		a, err := NewAuthorizer(modelPath, policyPath, ModeEnforce)
		if err != nil {
			t.Fatalf("err=%v", err)
		}

		allowed, enforced, err := a.AuthorizeAggregate([]string{"admin"}, "apps", "cost")
		if err != nil || !allowed || !enforced {
			t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
		}

		allowed, enforced, err = a.AuthorizeAggregate([]string{"analyst"}, "apps", "cost")
		if err != nil || allowed || !enforced {
			t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
		}

		// any matching role is enough
		allowed, _, err = a.AuthorizeAggregate([]string{"viewer", "analyst"}, "apps", "version")
		if err != nil || !allowed {
			t.Fatalf("allowed=%v err=%v", allowed, err)
		}

		allowed, _, err = a.AuthorizeAggregate(nil, "apps", "version")
		if err != nil || allowed {
			t.Fatalf("allowed=%v err=%v", allowed, err)
		}
	})

	t.Run("shadow never enforces", func(t *testing.T) {
		a, err := NewAuthorizer(modelPath, policyPath, ModeShadow)
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		allowed, enforced, err := a.AuthorizeAggregate([]string{"viewer"}, "apps", "cost")
		if err != nil || allowed || enforced {
			t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
		}
	})

	t.Run("nil authorizer allows", func(t *testing.T) {
		var a *Authorizer
		allowed, enforced, err := a.AuthorizeAggregate([]string{"viewer"}, "apps", "cost")
		if err != nil || !allowed || enforced {
			t.Fatalf("allowed=%v enforced=%v err=%v", allowed, enforced, err)
		}
	})
}

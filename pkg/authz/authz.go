// Package authz gates aggregate computation by caller role, on top of the
// per-operation aggregate allow-list. Policies are casbin (subject, resource,
// field, action) tuples.
package authz

import (
	"errors"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

func ModeFromEnv() (Mode, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("ZECORE_AUTHZ_MODE")))
	if raw == "" {
		return ModeDisabled, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow, ModeDisabled:
		return Mode(raw), nil
	default:
		return "", errors.New("authz: invalid ZECORE_AUTHZ_MODE (expected enforce|shadow|disabled)")
	}
}

type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(modelPath string, policyPath string, mode Mode) (*Authorizer, error) {
	adapter := fileadapter.NewAdapter(policyPath)
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, err
	}
	enforcer.SetAdapter(adapter)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

func SubjectFromRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = "anonymous"
	}
	return "role:" + role
}

// AuthorizeAggregate reports whether any of the caller's roles may aggregate
// over field on resource. enforced is false in shadow and disabled modes, so
// callers can observe the decision without acting on it.
func (a *Authorizer) AuthorizeAggregate(roles []string, resource string, field string) (allowed bool, enforced bool, err error) {
	if a == nil || a.mode == ModeDisabled {
		return true, false, nil
	}
	if len(roles) == 0 {
		roles = []string{""}
	}
	for _, role := range roles {
		ok, err := a.enforcer.Enforce(SubjectFromRole(role), resource, field, "aggregate")
		if err != nil {
			return false, a.mode == ModeEnforce, err
		}
		if ok {
			return true, a.mode == ModeEnforce, nil
		}
	}
	return false, a.mode == ModeEnforce, nil
}

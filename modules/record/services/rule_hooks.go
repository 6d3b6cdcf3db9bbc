package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/zekoder/zecore/modules/record/domain/ports"
	"github.com/zekoder/zecore/modules/record/domain/types"
)

// RuleHooksConfig declares expression-driven lifecycle behavior for one
// record type. Expressions see three variables: `new` and `old` (the record
// states from the signal payload) and `identity` (user_id and the comma-joined
// roles as strings).
type RuleHooksConfig struct {
	// DeleteGate must evaluate to a bool; false vetoes the delete. Empty
	// always allows.
	DeleteGate string
	// Derive maps field names to expressions whose results are merged into
	// the new data during the pre-save and pre-update phases.
	Derive map[string]string
}

var newRuleCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("new", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("old", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("identity", cel.MapType(cel.StringType, cel.StringType)),
	)
}

var newRuleCELProgram = func(env *cel.Env, ast *cel.Ast) (cel.Program, error) {
	return env.Program(ast)
}

var ruleProgramCache sync.Map

func compileRule(expr string) (cel.Program, error) {
	if cached, ok := ruleProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newRuleCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %q: %w", expr, issues.Err())
	}
	prg, err := newRuleCELProgram(env, ast)
	if err != nil {
		return nil, err
	}
	ruleProgramCache.Store(expr, prg)
	return prg, nil
}

func ruleVars(p *types.SignalPayload) map[string]any {
	newData := map[string]any(p.NewData)
	if newData == nil {
		newData = map[string]any{}
	}
	oldData := map[string]any(p.OldData)
	if oldData == nil {
		oldData = map[string]any{}
	}
	return map[string]any{
		"new": newData,
		"old": oldData,
		"identity": map[string]string{
			"user_id": p.Identity.UserID,
			"roles":   p.Identity.RolesValue(),
		},
	}
}

// NewRuleHooks builds a Hooks set from CEL expressions. All expressions are
// compiled eagerly so a bad manifest fails at registration, not mid-request.
func NewRuleHooks(cfg RuleHooksConfig) (ports.Hooks, error) {
	if cfg.DeleteGate != "" {
		if _, err := compileRule(cfg.DeleteGate); err != nil {
			return ports.Hooks{}, err
		}
	}
	deriveFields := make([]string, 0, len(cfg.Derive))
	for field, expr := range cfg.Derive {
		if _, err := compileRule(expr); err != nil {
			return ports.Hooks{}, err
		}
		deriveFields = append(deriveFields, field)
	}
	sort.Strings(deriveFields)

	derive := func(_ context.Context, p *types.SignalPayload) (types.Record, error) {
		merged := p.NewData.Clone()
		if merged == nil {
			merged = types.Record{}
		}
		for _, field := range deriveFields {
			prg, err := compileRule(cfg.Derive[field])
			if err != nil {
				return nil, err
			}
			val, _, err := prg.Eval(ruleVars(p))
			if err != nil {
				return nil, fmt.Errorf("rule for field %q: %w", field, err)
			}
			merged[field] = val.Value()
		}
		return merged, nil
	}

	hooks := ports.Hooks{}
	if len(deriveFields) > 0 {
		hooks.PreSave = derive
		hooks.PreUpdate = derive
	}
	if cfg.DeleteGate != "" {
		hooks.PreDelete = func(_ context.Context, p *types.SignalPayload) (bool, error) {
			prg, err := compileRule(cfg.DeleteGate)
			if err != nil {
				return false, err
			}
			val, _, err := prg.Eval(ruleVars(p))
			if err != nil {
				return false, fmt.Errorf("delete gate: %w", err)
			}
			allowed, ok := val.Value().(bool)
			if !ok {
				return false, fmt.Errorf("delete gate %q: expected bool, got %T", cfg.DeleteGate, val.Value())
			}
			return allowed, nil
		}
	}
	return hooks, nil
}

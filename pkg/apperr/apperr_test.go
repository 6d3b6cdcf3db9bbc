package apperr

import (
	"errors"
	"testing"
)

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestKindPredicates(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"not found", NewNotFound("apps", "a1"), IsNotFound},
		{"conflict", NewConflict("short_name"), IsConflict},
		{"unknown column", NewUnknownColumn("bogus"), IsUnknownColumn},
		{"unknown operator", NewUnknownOperator("$bogus"), IsUnknownOperator},
		{"forbidden", NewForbidden("nope"), IsForbidden},
		{"internal", NewInternal(assertErr("boom")), IsInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.is(tc.err) {
				t.Fatalf("expected predicate true for %v", tc.err)
			}
			if tc.is(nil) {
				t.Fatal("expected predicate false for nil")
			}
			if tc.is(assertErr("other")) {
				t.Fatal("expected predicate false for foreign error")
			}
		})
	}
}

func TestConflictFields(t *testing.T) {
	fields := ConflictFields(NewConflict("a", "b"))
	if len(fields) != 2 || fields[0] != "a" || fields[1] != "b" {
		t.Fatalf("fields=%v", fields)
	}
	if ConflictFields(assertErr("x")) != nil {
		t.Fatal("expected nil for foreign error")
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := assertErr("connection refused to 10.0.0.5")
	err := NewInternal(cause)
	if err.Error() != "internal error" {
		t.Fatalf("message leaks cause: %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}
	if NewInternal(nil) != nil {
		t.Fatal("expected nil for nil cause")
	}
}

func TestMessagesNameOffender(t *testing.T) {
	if got := NewUnknownColumn("nonexistent_field").Error(); got != `unknown column "nonexistent_field"` {
		t.Fatalf("got %q", got)
	}
	if got := NewUnknownOperator("$bogus").Error(); got != `unknown operator "$bogus"` {
		t.Fatalf("got %q", got)
	}
	if got := NewConflict("short_name").Error(); got != "unique constraint violated on short_name" {
		t.Fatalf("got %q", got)
	}
}

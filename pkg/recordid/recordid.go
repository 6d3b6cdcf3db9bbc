// Package recordid mints primary keys for records.
package recordid

import "github.com/google/uuid"

// New returns a random UUID string. Callers treat it as opaque.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

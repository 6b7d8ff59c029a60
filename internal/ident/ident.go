// Package ident generates entity identifiers.
package ident

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
)

// Generator returns a fresh identifier.
type Generator func() (string, error)

// UUID returns time-based (version 1) UUIDs.
func UUID() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("generating uuid: %w", err)
	}
	return id.String(), nil
}

// NanoID returns 21 character URL-safe ids.
func NanoID() (string, error) {
	return gonanoid.New()
}

// ULID returns lexically sortable ids.
func ULID() (string, error) {
	return ulid.Make().String(), nil
}

// New returns the generator registered under name.
func New(name string) (Generator, error) {
	switch name {
	case "", "uuid":
		return UUID, nil
	case "nanoid":
		return NanoID, nil
	case "ulid":
		return ULID, nil
	default:
		return nil, fmt.Errorf("unknown id generator: %s", name)
	}
}

package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestGenerators(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, id string)
	}{
		{"uuid", func(t *testing.T, id string) {
			u, err := uuid.Parse(id)
			if err != nil {
				t.Fatalf("not a uuid: %v", err)
			}
			if u.Version() != 1 {
				t.Errorf("uuid version = %d, want 1", u.Version())
			}
		}},
		{"nanoid", func(t *testing.T, id string) {
			if len(id) != 21 {
				t.Errorf("len = %d, want 21", len(id))
			}
		}},
		{"ulid", func(t *testing.T, id string) {
			if _, err := ulid.Parse(id); err != nil {
				t.Errorf("not a ulid: %v", err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := New(tt.name)
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.name, err)
			}
			a, err := gen()
			if err != nil {
				t.Fatal(err)
			}
			b, err := gen()
			if err != nil {
				t.Fatal(err)
			}
			if a == b {
				t.Errorf("generator returned duplicate id %q", a)
			}
			tt.check(t, a)
		})
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("serial"); err == nil {
		t.Error("expected error for unknown generator")
	}
}

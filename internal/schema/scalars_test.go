package schema

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInt64(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   int64
		wantOK bool
	}{
		{"int", 42, 42, true},
		{"int64", int64(-7), -7, true},
		{"integral float", float64(3), 3, true},
		{"fractional float", 3.5, 0, false},
		{"two to the 63", math.Pow(2, 63), 0, false},
		{"below min int64", -math.Pow(2, 64), 0, false},
		{"min int64", float64(math.MinInt64), math.MinInt64, true},
		{"json number", json.Number("12"), 12, true},
		{"string", "12", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToInt64(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIntRejectsOverflow(t *testing.T) {
	_, err := Scalars["Int"](math.Pow(2, 63))
	assert.Error(t, err)
}

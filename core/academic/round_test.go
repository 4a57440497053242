package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	tests := []struct {
		x      float64
		places int
		want   float64
	}{
		{x: 1.005, places: 2, want: 1.01},
		{x: 2.675, places: 2, want: 2.68},
		{x: -1.005, places: 2, want: -1.01},
		{x: 1.004, places: 2, want: 1.0},
		{x: 85, places: 2, want: 85},
		{x: 25.0, places: 2, want: 25},
		{x: 83.33333333333333, places: 2, want: 83.33},
		{x: 66.66666666666667, places: 2, want: 66.67},
		{x: 99.995, places: 2, want: 100},
		{x: 9.5, places: 0, want: 10},
		{x: -0.5, places: 0, want: -1},
		{x: 0.125, places: 2, want: 0.13},
		{x: 0, places: 2, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round(tt.x, tt.places), "Round(%v, %d)", tt.x, tt.places)
	}
}

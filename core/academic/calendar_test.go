package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func intPtr(i int) *int { return &i }

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		year     *int
		semester *int
		from, to string
		all      bool
	}{
		{name: "no year", all: true},
		{name: "no year ignores semester", semester: intPtr(2), all: true},
		{name: "full year", year: intPtr(2024), from: "2024-09-01", to: "2025-06-30"},
		{name: "semester 1", year: intPtr(2024), semester: intPtr(1), from: "2024-09-01", to: "2024-12-31"},
		{name: "semester 2", year: intPtr(2024), semester: intPtr(2), from: "2025-01-01", to: "2025-03-31"},
		{name: "semester 3", year: intPtr(2024), semester: intPtr(3), from: "2025-04-01", to: "2025-06-30"},
		{name: "leap year", year: intPtr(2023), semester: intPtr(2), from: "2024-01-01", to: "2024-03-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Resolve(tt.year, tt.semester)
			require.NoError(t, err)
			if tt.all {
				assert.True(t, w.All)
				return
			}
			assert.False(t, w.All)
			assert.Equal(t, tt.from, w.From.String())
			assert.Equal(t, tt.to, w.To.String())
		})
	}
}

func TestResolveInvalidSemester(t *testing.T) {
	for _, sem := range []int{0, 4, -1} {
		_, err := Resolve(intPtr(2024), intPtr(sem))
		assert.Equal(t, ErrInvalidSemester, err, "semester %d", sem)
	}
}

func TestWindowContains(t *testing.T) {
	full, _ := Resolve(intPtr(2024), nil)
	sem1, _ := Resolve(intPtr(2024), intPtr(1))
	sem2, _ := Resolve(intPtr(2024), intPtr(2))
	sem3, _ := Resolve(intPtr(2024), intPtr(3))

	tests := []struct {
		date                   string
		full, sem1, sem2, sem3 bool
	}{
		{date: "2024-08-31"},
		{date: "2024-09-01", full: true, sem1: true},
		{date: "2024-12-31", full: true, sem1: true},
		{date: "2025-01-01", full: true, sem2: true},
		{date: "2025-03-31", full: true, sem2: true},
		{date: "2025-04-01", full: true, sem3: true},
		{date: "2025-06-30", full: true, sem3: true},
		{date: "2025-07-01"},
		{date: "2025-09-01"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			d := core.MustParseDate(tt.date)
			assert.Equal(t, tt.full, full.Contains(d), "full year")
			assert.Equal(t, tt.sem1, sem1.Contains(d), "semester 1")
			assert.Equal(t, tt.sem2, sem2.Contains(d), "semester 2")
			assert.Equal(t, tt.sem3, sem3.Contains(d), "semester 3")
			assert.True(t, Window{All: true}.Contains(d))
		})
	}
}

func TestWindowSQL(t *testing.T) {
	pred, args := Window{All: true}.SQL("g.date", 2)
	assert.Equal(t, "TRUE", pred)
	assert.Empty(t, args)

	w, _ := Resolve(intPtr(2024), intPtr(1))
	pred, args = w.SQL("g.date", 2)
	assert.Equal(t, "g.date BETWEEN $2 AND $3", pred)
	assert.Equal(t, []interface{}{w.From, w.To}, args)
}

// Package academic maps school calendar filters to concrete date windows.
//
// An academic year N runs from September 1 of N through June 30 of N+1 and is split
// into three semesters: September - December (1), January - March (2) and April - June (3).
package academic

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Semesters
const (
	FirstSemester  = 1
	SecondSemester = 2
	ThirdSemester  = 3
)

var ErrInvalidSemester = errors.New("semester must be one of 1, 2 or 3")

// Period is the (year, semester) filter of a report; a nil Year means all time.
type Period struct {
	Year     *int `json:"year" query:"year"`
	Semester *int `json:"semester" query:"semester"`
}

// Window is an inclusive date range. All windows match every date.
type Window struct {
	All  bool
	From core.Date
	To   core.Date
}

// Resolve returns the date window selected by year & semester.
func Resolve(year, semester *int) (Window, error) {
	if year == nil {
		return Window{All: true}, nil
	}
	y := *year
	if semester == nil {
		return Window{From: core.NewDate(y, time.September, 1), To: core.NewDate(y+1, time.June, 30)}, nil
	}
	switch *semester {
	case FirstSemester:
		return Window{From: core.NewDate(y, time.September, 1), To: core.NewDate(y, time.December, 31)}, nil
	case SecondSemester:
		return Window{From: core.NewDate(y+1, time.January, 1), To: core.NewDate(y+1, time.March, 31)}, nil
	case ThirdSemester:
		return Window{From: core.NewDate(y+1, time.April, 1), To: core.NewDate(y+1, time.June, 30)}, nil
	default:
		return Window{}, ErrInvalidSemester
	}
}

// Window resolves the period.
func (p Period) Window() (Window, error) {
	return Resolve(p.Year, p.Semester)
}

// Contains reports whether d falls inside the window, bounds included.
func (w Window) Contains(d core.Date) bool {
	if w.All {
		return true
	}
	return !d.Before(w.From) && !d.After(w.To)
}

// SQL returns a predicate on column for the window using postgres placeholders starting at $argPos.
// All windows yield "TRUE" and no args.
func (w Window) SQL(column string, argPos int) (string, []interface{}) {
	if w.All {
		return "TRUE", nil
	}
	return fmt.Sprintf("%s BETWEEN $%d AND $%d", column, argPos, argPos+1), []interface{}{w.From, w.To}
}

func (w Window) String() string {
	if w.All {
		return "all time"
	}
	return w.From.String() + ".." + w.To.String()
}

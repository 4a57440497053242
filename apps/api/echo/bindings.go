package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// paramID reads the integer path param name; malformed ids are not found.
func paramID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id < 1 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// bindPeriod reads the year & semester query params of a report request.
// Range checks are left to academic.Resolve.
func bindPeriod(ctx echo.Context) (academic.Period, error) {
	var period academic.Period
	for _, p := range []struct {
		name string
		dst  **int
	}{
		{"year", &period.Year},
		{"semester", &period.Semester},
	} {
		raw := strings.TrimSpace(ctx.QueryParam(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return academic.Period{}, core.NewFieldError(p.name, p.name+" must be an integer")
		}
		*p.dst = &v
	}
	return period, nil
}

// Package sqlxrepos implements the repositories on postgres with sqlx.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type repo struct {
	db *sqlx.DB
}

// getExec returns the transaction handed over by a service, or the repository db.
func (r repo) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return r.db
}

// trapNoRows maps "no rows" errors to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// pgError returns the postgres error behind err, if any.
func pgError(err error) (*pq.Error, bool) {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return pqErr, ok
}

func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := pgError(err)
	return ok && pqErr.Code == pgUniqueViolation && strings.Contains(pqErr.Constraint, constraint)
}

func isForeignKeyViolation(err error) bool {
	pqErr, ok := pgError(err)
	return ok && pqErr.Code == pgForeignKeyViolation
}

// orderBy renders an ORDER BY clause from whitelisted fields, always ending on id for stable pages.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, table string) string {
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: table + "." + col, Ascending: ord.Ascending}.String())
	}
	clauses = append(clauses, table+".id ASC")
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func pqIntArray(ids []int) interface{} {
	a := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		a = append(a, int64(id))
	}
	return a
}

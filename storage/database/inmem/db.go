// Package inmemdb is an in-memory implementation of every repository, used by tests and local runs.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/bulletin"
	"github.com/trezcool/academia/core/gradebook"
	"github.com/trezcool/academia/core/school"
	"github.com/trezcool/academia/core/user"
)

type (
	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex // serializes transactions
		t    tables
	}

	tables struct {
		seq           map[string]int
		users         map[int]user.User
		classes       map[int]school.Class
		subjects      map[int]school.Subject
		teachers      map[int]school.Teacher
		students      map[int]school.Student
		topics        map[int]gradebook.LessonTopic
		grades        map[int]gradebook.Grade
		absences      map[int]gradebook.Absence
		announcements map[int]bulletin.Announcement
		activities    map[int]bulletin.Activity
	}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{t: newTables()}
}

func newTables() tables {
	return tables{
		seq:           make(map[string]int),
		users:         make(map[int]user.User),
		classes:       make(map[int]school.Class),
		subjects:      make(map[int]school.Subject),
		teachers:      make(map[int]school.Teacher),
		students:      make(map[int]school.Student),
		topics:        make(map[int]gradebook.LessonTopic),
		grades:        make(map[int]gradebook.Grade),
		absences:      make(map[int]gradebook.Absence),
		announcements: make(map[int]bulletin.Announcement),
		activities:    make(map[int]bulletin.Activity),
	}
}

func (t tables) clone() tables {
	c := tables{
		seq:           make(map[string]int, len(t.seq)),
		users:         make(map[int]user.User, len(t.users)),
		classes:       make(map[int]school.Class, len(t.classes)),
		subjects:      make(map[int]school.Subject, len(t.subjects)),
		teachers:      make(map[int]school.Teacher, len(t.teachers)),
		students:      make(map[int]school.Student, len(t.students)),
		topics:        make(map[int]gradebook.LessonTopic, len(t.topics)),
		grades:        make(map[int]gradebook.Grade, len(t.grades)),
		absences:      make(map[int]gradebook.Absence, len(t.absences)),
		announcements: make(map[int]bulletin.Announcement, len(t.announcements)),
		activities:    make(map[int]bulletin.Activity, len(t.activities)),
	}
	for k, v := range t.seq {
		c.seq[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.subjects {
		c.subjects[k] = v
	}
	for k, v := range t.teachers {
		c.teachers[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.topics {
		c.topics[k] = v
	}
	for k, v := range t.grades {
		c.grades[k] = v
	}
	for k, v := range t.absences {
		c.absences[k] = v
	}
	for k, v := range t.announcements {
		c.announcements[k] = v
	}
	for k, v := range t.activities {
		c.activities[k] = v
	}
	return c
}

// nextID returns the next primary key of table. Callers hold the write lock.
func (db *DB) nextID(table string) int {
	db.t.seq[table]++
	return db.t.seq[table]
}

// InTx runs fn with every table snapshotted, restoring the snapshot when fn fails.
// Transactions run one at a time; fn receives a nil executor.
func (db *DB) InTx(ctx context.Context, fn core.TxFunc) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.RLock()
	snapshot := db.t.clone()
	db.mu.RUnlock()

	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.t = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
}

func copyInts(ids []int) []int {
	c := make([]int, len(ids))
	copy(c, ids)
	return c
}

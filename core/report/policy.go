package report

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/school"
)

// AccessPolicy decides whether an actor may read a student's records.
type AccessPolicy interface {
	CanViewReport(ctx context.Context, actor school.Actor, student school.Student) (bool, error)
}

// LessonTopicLookup tells whether a teacher has recorded any lesson topic for a class.
type LessonTopicLookup interface {
	TeacherHasLessonTopicInClass(ctx context.Context, teacherID, classID int, exec ...core.DBExecutor) (bool, error)
}

// ClassPolicy grants access, first match wins, to:
//  1. admins
//  2. the student themself (parents sign in with the student's login)
//  3. the homeroom teacher of the student's class
//  4. teachers with at least one lesson topic recorded for the student's class
//
// Everyone else is denied.
type ClassPolicy struct {
	topics LessonTopicLookup
}

var _ AccessPolicy = (*ClassPolicy)(nil) // interface compliance check

func NewClassPolicy(topics LessonTopicLookup) *ClassPolicy {
	return &ClassPolicy{topics: topics}
}

func (p *ClassPolicy) CanViewReport(ctx context.Context, actor school.Actor, student school.Student) (bool, error) {
	switch {
	case actor.IsAdmin():
		return true, nil
	case actor.IsStudent(student.ID):
		return true, nil
	case !actor.User.IsTeacher() || actor.Teacher == nil:
		return false, nil
	case actor.Teacher.IsHomeroomOf(student.ClassID):
		return true, nil
	}

	ok, err := p.topics.TeacherHasLessonTopicInClass(ctx, actor.Teacher.ID, student.ClassID)
	if err != nil {
		return false, errors.Wrap(err, "checking teacher lesson topics")
	}
	return ok, nil
}

// Authorize returns core.ErrPermissionDenied when policy denies actor access to student.
func Authorize(ctx context.Context, policy AccessPolicy, actor school.Actor, student school.Student) error {
	ok, err := policy.CanViewReport(ctx, actor, student)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrPermissionDenied
	}
	return nil
}

package gradebook

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/report"
	"github.com/trezcool/academia/core/school"
)

var (
	// errors
	ErrLessonTopicNotFound = core.NewNotFoundError("lesson topic")
	ErrGradeNotFound       = core.NewNotFoundError("grade")
	ErrAbsenceNotFound     = core.NewNotFoundError("absence")

	ErrSubjectNotAssigned = errors.New("teacher not assigned to subject")
	ErrTopicMismatch      = errors.New("lesson topic does not belong to this teacher and subject")
	ErrNotHomeroomClass   = errors.New("main teachers can only record lesson topics for their homeroom class")
	ErrGradeOutOfRange    = errors.Errorf("grade must be between %d and %d", MinGrade, MaxGrade)
	ErrGradePrecision     = errors.Errorf("grade can have at most %d decimal places", GradeDecimals)
)

type (
	Repository interface {
		CreateLessonTopic(ctx context.Context, topic LessonTopic, exec ...core.DBExecutor) (LessonTopic, error)
		GetLessonTopic(ctx context.Context, id int, exec ...core.DBExecutor) (LessonTopic, error)
		QueryLessonTopics(ctx context.Context, filter LessonTopicFilter, exec ...core.DBExecutor) ([]LessonTopic, error)
		// DeleteLessonTopic removes the topic and unlinks the grades & absences referencing it.
		DeleteLessonTopic(ctx context.Context, id int, exec ...core.DBExecutor) error
		TeacherHasLessonTopicInClass(ctx context.Context, teacherID, classID int, exec ...core.DBExecutor) (bool, error)
		// QueryTeacherClassIDs returns the ids of the classes a teacher recorded lesson topics for.
		QueryTeacherClassIDs(ctx context.Context, teacherID int, exec ...core.DBExecutor) ([]int, error)

		CreateGrade(ctx context.Context, grade Grade, exec ...core.DBExecutor) (Grade, error)
		GetGrade(ctx context.Context, id int, exec ...core.DBExecutor) (Grade, error)
		// QueryGrades returns matching grades ordered by date then id.
		QueryGrades(ctx context.Context, filter RecordFilter, exec ...core.DBExecutor) ([]Grade, error)
		DeleteGrade(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateAbsence(ctx context.Context, absence Absence, exec ...core.DBExecutor) (Absence, error)
		GetAbsence(ctx context.Context, id int, exec ...core.DBExecutor) (Absence, error)
		// QueryAbsences returns matching absences ordered by date then id.
		QueryAbsences(ctx context.Context, filter RecordFilter, exec ...core.DBExecutor) ([]Absence, error)
		SetAbsenceJustified(ctx context.Context, id int, justified bool, exec ...core.DBExecutor) (Absence, error)
		DeleteAbsence(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	// SchoolReader is the part of the school store the gradebook checks references against.
	SchoolReader interface {
		GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (school.Class, error)
		GetSubject(ctx context.Context, id int, exec ...core.DBExecutor) (school.Subject, error)
		GetTeacher(ctx context.Context, id int, exec ...core.DBExecutor) (school.Teacher, error)
		GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (school.Student, error)
	}

	// ReportInvalidator is told about every change to a student's grades or absences.
	ReportInvalidator interface {
		InvalidateStudent(ctx context.Context, studentID int)
	}

	Service struct {
		repo        Repository
		school      SchoolReader
		tx          core.Transactor
		policy      report.AccessPolicy
		invalidator ReportInvalidator
	}
)

// NewService returns a gradebook Service; invalidator may be nil.
func NewService(repo Repository, school SchoolReader, tx core.Transactor, policy report.AccessPolicy, invalidator ReportInvalidator) *Service {
	return &Service{repo: repo, school: school, tx: tx, policy: policy, invalidator: invalidator}
}

func (svc *Service) invalidate(ctx context.Context, studentID int) {
	if svc.invalidator != nil {
		svc.invalidator.InvalidateStudent(ctx, studentID)
	}
}

// RecordGrade grades a student. Checks run in order, the first failure wins:
// student & subject exist, teacher teaches subject, lesson topic belongs to teacher & subject,
// grade within bounds. Nothing is written unless all pass.
func (svc *Service) RecordGrade(ctx context.Context, teacher school.Teacher, ng NewGrade) (Grade, error) {
	var grade Grade
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		student, err := svc.checkRecordRefs(ctx, teacher.ID, ng.StudentID, ng.SubjectID, ng.LessonTopicID, exec)
		if err != nil {
			return err
		}
		if ng.Grade == nil || *ng.Grade < MinGrade || *ng.Grade > MaxGrade {
			return core.NewFieldError("grade", ErrGradeOutOfRange.Error())
		}
		if !hasGradePrecision(*ng.Grade) {
			return core.NewFieldError("grade", ErrGradePrecision.Error())
		}

		grade, err = svc.repo.CreateGrade(ctx, Grade{
			StudentID:     student.ID,
			SubjectID:     ng.SubjectID,
			TeacherID:     teacher.ID,
			LessonTopicID: null.IntFromPtr(ng.LessonTopicID),
			Grade:         roundGrade(*ng.Grade),
			Date:          ng.Date,
			CreatedAt:     time.Now().UTC(),
		}, exec)
		return errors.Wrap(err, "creating grade")
	})
	if err != nil {
		return Grade{}, err
	}
	svc.invalidate(ctx, grade.StudentID)
	return grade, nil
}

// hasGradePrecision reports whether g is stored without losing decimals.
func hasGradePrecision(g float64) bool {
	scaled := g * math.Pow10(GradeDecimals)
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

// roundGrade drops the float noise of a grade that passed hasGradePrecision.
func roundGrade(g float64) float64 {
	p := math.Pow10(GradeDecimals)
	return math.Round(g*p) / p
}

// RecordAbsence marks a student absent, under the same reference rules as RecordGrade.
func (svc *Service) RecordAbsence(ctx context.Context, teacher school.Teacher, na NewAbsence) (Absence, error) {
	var absence Absence
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		student, err := svc.checkRecordRefs(ctx, teacher.ID, na.StudentID, na.SubjectID, na.LessonTopicID, exec)
		if err != nil {
			return err
		}

		absence, err = svc.repo.CreateAbsence(ctx, Absence{
			StudentID:     student.ID,
			SubjectID:     na.SubjectID,
			TeacherID:     teacher.ID,
			LessonTopicID: null.IntFromPtr(na.LessonTopicID),
			Date:          na.Date,
			Justified:     na.Justified,
			CreatedAt:     time.Now().UTC(),
		}, exec)
		return errors.Wrap(err, "creating absence")
	})
	if err != nil {
		return Absence{}, err
	}
	svc.invalidate(ctx, absence.StudentID)
	return absence, nil
}

// RecordLessonTopic records what a teacher taught a class. Main teachers are restricted to their homeroom class.
func (svc *Service) RecordLessonTopic(ctx context.Context, teacher school.Teacher, nt NewLessonTopic) (LessonTopic, error) {
	var topic LessonTopic
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		class, err := svc.school.GetClass(ctx, nt.ClassID, exec)
		if err != nil {
			return err
		}
		if _, err = svc.school.GetSubject(ctx, nt.SubjectID, exec); err != nil {
			return err
		}
		t, err := svc.school.GetTeacher(ctx, teacher.ID, exec)
		if err != nil {
			return err
		}
		if !t.Teaches(nt.SubjectID) {
			return core.NewFieldError("subject_id", ErrSubjectNotAssigned.Error())
		}
		if t.IsMainTeacher && !t.IsHomeroomOf(class.ID) {
			return core.NewFieldError("class_id", ErrNotHomeroomClass.Error())
		}

		topic, err = svc.repo.CreateLessonTopic(ctx, LessonTopic{
			TeacherID:   t.ID,
			SubjectID:   nt.SubjectID,
			ClassID:     class.ID,
			Date:        nt.Date,
			Title:       nt.Title,
			Description: null.NewString(nt.Description, nt.Description != ""),
			CreatedAt:   time.Now().UTC(),
		}, exec)
		return errors.Wrap(err, "creating lesson topic")
	})
	if err != nil {
		return LessonTopic{}, err
	}
	return topic, nil
}

// checkRecordRefs runs the shared grade & absence checks and returns the graded student.
func (svc *Service) checkRecordRefs(ctx context.Context, teacherID, studentID, subjectID int, topicID *int, exec core.DBExecutor) (school.Student, error) {
	student, err := svc.school.GetStudent(ctx, studentID, exec)
	if err != nil {
		return school.Student{}, err
	}
	if _, err = svc.school.GetSubject(ctx, subjectID, exec); err != nil {
		return school.Student{}, err
	}

	t, err := svc.school.GetTeacher(ctx, teacherID, exec)
	if err != nil {
		return school.Student{}, err
	}
	if !t.Teaches(subjectID) {
		return school.Student{}, core.NewFieldError("subject_id", ErrSubjectNotAssigned.Error())
	}

	if topicID != nil {
		topic, err := svc.repo.GetLessonTopic(ctx, *topicID, exec)
		if err != nil {
			return school.Student{}, err
		}
		if topic.TeacherID != t.ID || topic.SubjectID != subjectID {
			return school.Student{}, core.NewFieldError("lesson_topic_id", ErrTopicMismatch.Error())
		}
	}
	return student, nil
}

// ListStudentGrades returns the grades of a student dated within period, to actors allowed to see the student's report.
func (svc *Service) ListStudentGrades(ctx context.Context, actor school.Actor, studentID int, period academic.Period) ([]Grade, error) {
	w, err := svc.authorizeStudent(ctx, actor, studentID, period)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryGrades(ctx, RecordFilter{StudentID: studentID, Window: &w})
}

// ListStudentAbsences returns the absences of a student dated within period, to actors allowed to see the student's report.
func (svc *Service) ListStudentAbsences(ctx context.Context, actor school.Actor, studentID int, period academic.Period) ([]Absence, error) {
	w, err := svc.authorizeStudent(ctx, actor, studentID, period)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryAbsences(ctx, RecordFilter{StudentID: studentID, Window: &w})
}

func (svc *Service) authorizeStudent(ctx context.Context, actor school.Actor, studentID int, period academic.Period) (academic.Window, error) {
	student, err := svc.school.GetStudent(ctx, studentID)
	if err != nil {
		return academic.Window{}, err
	}
	if err = report.Authorize(ctx, svc.policy, actor, student); err != nil {
		return academic.Window{}, err
	}
	return report.ResolvePeriod(period)
}

// ListLessonTopics returns every topic to admins and their own topics to teachers.
func (svc *Service) ListLessonTopics(ctx context.Context, actor school.Actor, filter LessonTopicFilter) ([]LessonTopic, error) {
	switch {
	case actor.IsAdmin():
	case actor.Teacher != nil:
		filter.TeacherID = actor.Teacher.ID
	default:
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.QueryLessonTopics(ctx, filter)
}

// DeleteLessonTopic lets a teacher delete their own topics; admins may delete any.
func (svc *Service) DeleteLessonTopic(ctx context.Context, actor school.Actor, id int) error {
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		topic, err := svc.repo.GetLessonTopic(ctx, id, exec)
		if err != nil {
			return err
		}
		if !ownsOrAdmin(actor, topic.TeacherID) {
			return core.ErrPermissionDenied
		}
		return svc.repo.DeleteLessonTopic(ctx, id, exec)
	})
}

// DeleteGrade lets a teacher delete the grades they gave; admins may delete any.
func (svc *Service) DeleteGrade(ctx context.Context, actor school.Actor, id int) error {
	var studentID int
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		grade, err := svc.repo.GetGrade(ctx, id, exec)
		if err != nil {
			return err
		}
		if !ownsOrAdmin(actor, grade.TeacherID) {
			return core.ErrPermissionDenied
		}
		studentID = grade.StudentID
		return svc.repo.DeleteGrade(ctx, id, exec)
	})
	if err != nil {
		return err
	}
	svc.invalidate(ctx, studentID)
	return nil
}

// DeleteAbsence lets a teacher delete the absences they recorded; admins may delete any.
func (svc *Service) DeleteAbsence(ctx context.Context, actor school.Actor, id int) error {
	var studentID int
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		absence, err := svc.repo.GetAbsence(ctx, id, exec)
		if err != nil {
			return err
		}
		if !ownsOrAdmin(actor, absence.TeacherID) {
			return core.ErrPermissionDenied
		}
		studentID = absence.StudentID
		return svc.repo.DeleteAbsence(ctx, id, exec)
	})
	if err != nil {
		return err
	}
	svc.invalidate(ctx, studentID)
	return nil
}

// JustifyAbsence sets the justified flag of an absence. Allowed to admins and
// to the homeroom teacher of the student's class.
func (svc *Service) JustifyAbsence(ctx context.Context, actor school.Actor, id int, justified bool) (Absence, error) {
	var absence Absence
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if absence, err = svc.repo.GetAbsence(ctx, id, exec); err != nil {
			return err
		}
		if !actor.IsAdmin() {
			student, err := svc.school.GetStudent(ctx, absence.StudentID, exec)
			if err != nil {
				return err
			}
			if actor.Teacher == nil || !actor.Teacher.IsHomeroomOf(student.ClassID) {
				return core.ErrPermissionDenied
			}
		}
		absence, err = svc.repo.SetAbsenceJustified(ctx, id, justified, exec)
		return err
	})
	if err != nil {
		return Absence{}, err
	}
	return absence, nil
}

func ownsOrAdmin(actor school.Actor, teacherID int) bool {
	return actor.IsAdmin() || (actor.Teacher != nil && actor.Teacher.ID == teacherID)
}

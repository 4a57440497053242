package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/school"
)

type (
	Repository interface {
		// QueryReportGrades returns the grades of a student dated inside w.
		QueryReportGrades(ctx context.Context, studentID int, w academic.Window, exec ...core.DBExecutor) ([]GradeEntry, error)
		// QueryReportAbsences returns the absences of a student dated inside w, justified or not.
		QueryReportAbsences(ctx context.Context, studentID int, w academic.Window, exec ...core.DBExecutor) ([]AbsenceEntry, error)
	}

	StudentLookup interface {
		GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (school.Student, error)
		GetStudentByUser(ctx context.Context, userID int, exec ...core.DBExecutor) (school.Student, error)
		QueryStudents(ctx context.Context, filter school.StudentFilter, exec ...core.DBExecutor) ([]school.Student, error)
	}

	// Key identifies a cached report.
	Key struct {
		StudentID int
		Year      *int
		Semester  *int
	}

	// Cache stores encoded reports until the student's records change.
	// Get also returns the student's cache version it looked at; Set stores data under that version,
	// so a report built while the student gets invalidated is never served.
	Cache interface {
		Get(ctx context.Context, key Key) (data []byte, version int64, ok bool, err error)
		Set(ctx context.Context, key Key, version int64, data []byte) error
		InvalidateStudent(ctx context.Context, studentID int) error
	}

	Service struct {
		repo     Repository
		students StudentLookup
		policy   AccessPolicy
		cache    Cache
		logger   core.Logger
	}
)

func (k Key) String() string {
	return fmt.Sprintf("%d:%s:%s", k.StudentID, optInt(k.Year), optInt(k.Semester))
}

func optInt(i *int) string {
	if i == nil {
		return "all"
	}
	return strconv.Itoa(*i)
}

// NewService returns a report Service; cache may be nil.
func NewService(repo Repository, students StudentLookup, policy AccessPolicy, cache Cache, logger core.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{repo: repo, students: students, policy: policy, cache: cache, logger: logger}
}

// Policy returns the access policy reports are guarded by.
func (svc *Service) Policy() AccessPolicy { return svc.policy }

// GetPerformanceReport builds the performance report of a student for period.
func (svc *Service) GetPerformanceReport(ctx context.Context, actor school.Actor, studentID int, period academic.Period) (Report, error) {
	student, w, err := svc.prepare(ctx, actor, studentID, period)
	if err != nil {
		return Report{}, err
	}
	return svc.build(ctx, student, period, w)
}

// GetPerformanceReportJSON is GetPerformanceReport encoded as JSON, served from the cache when possible.
// Repeated calls without intervening writes return identical bytes.
func (svc *Service) GetPerformanceReportJSON(ctx context.Context, actor school.Actor, studentID int, period academic.Period) ([]byte, error) {
	student, w, err := svc.prepare(ctx, actor, studentID, period)
	if err != nil {
		return nil, err
	}

	key := Key{StudentID: student.ID, Year: period.Year, Semester: period.Semester}
	data, version, ok, err := svc.cache.Get(ctx, key)
	cacheable := err == nil
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("report.cache.Get(%s): %v", key, err), err)
	}
	if ok {
		return data, nil
	}

	rep, err := svc.build(ctx, student, period, w)
	if err != nil {
		return nil, err
	}
	if data, err = json.Marshal(rep); err != nil {
		return nil, errors.Wrap(err, "encoding report")
	}
	if !cacheable {
		return data, nil
	}
	if err = svc.cache.Set(ctx, key, version, data); err != nil {
		svc.logger.Warn(fmt.Sprintf("report.cache.Set(%s): %v", key, err), err)
	}
	return data, nil
}

// ExportPerformanceReportDocument renders the performance report of a student as an HTML document.
func (svc *Service) ExportPerformanceReportDocument(ctx context.Context, actor school.Actor, studentID int, period academic.Period) (Document, error) {
	rep, err := svc.GetPerformanceReport(ctx, actor, studentID, period)
	if err != nil {
		return Document{}, err
	}
	return RenderDocument(rep)
}

// InvalidateStudent drops the cached reports of a student. Failures are logged only.
func (svc *Service) InvalidateStudent(ctx context.Context, studentID int) {
	if err := svc.cache.InvalidateStudent(ctx, studentID); err != nil {
		svc.logger.Error(fmt.Sprintf("report.cache.InvalidateStudent(%d): %v", studentID, err), err)
	}
}

// InvalidateUser drops the cached reports of the student linked to userID, if any.
func (svc *Service) InvalidateUser(ctx context.Context, userID int) {
	student, err := svc.students.GetStudentByUser(ctx, userID)
	switch {
	case core.IsNotFound(err):
		return
	case err != nil:
		svc.logger.Error(fmt.Sprintf("report.InvalidateUser(%d): %v", userID, err), err)
		return
	}
	svc.InvalidateStudent(ctx, student.ID)
}

// InvalidateClass drops the cached reports of every student of a class.
func (svc *Service) InvalidateClass(ctx context.Context, classID int) {
	students, err := svc.students.QueryStudents(ctx, school.StudentFilter{ClassID: classID})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("report.InvalidateClass(%d): %v", classID, err), err)
		return
	}
	for _, s := range students {
		svc.InvalidateStudent(ctx, s.ID)
	}
}

// prepare loads the student, authorizes actor & resolves the period window.
func (svc *Service) prepare(ctx context.Context, actor school.Actor, studentID int, period academic.Period) (school.Student, academic.Window, error) {
	student, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return school.Student{}, academic.Window{}, err
	}
	if err = Authorize(ctx, svc.policy, actor, student); err != nil {
		return school.Student{}, academic.Window{}, err
	}
	w, err := ResolvePeriod(period)
	if err != nil {
		return school.Student{}, academic.Window{}, err
	}
	return student, w, nil
}

func (svc *Service) build(ctx context.Context, student school.Student, period academic.Period, w academic.Window) (Report, error) {
	grades, err := svc.repo.QueryReportGrades(ctx, student.ID, w)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying report grades")
	}
	absences, err := svc.repo.QueryReportAbsences(ctx, student.ID, w)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying report absences")
	}
	return Aggregate(student, period, grades, absences), nil
}

// ResolvePeriod validates period and resolves its date window.
func ResolvePeriod(period academic.Period) (academic.Window, error) {
	if period.Semester != nil && period.Year == nil {
		return academic.Window{}, core.NewFieldError("year", "year is required when semester is set")
	}
	w, err := period.Window()
	if err == academic.ErrInvalidSemester {
		return academic.Window{}, core.NewFieldError("semester", err.Error())
	}
	return w, err
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, Key) ([]byte, int64, bool, error) { return nil, 0, false, nil }
func (NopCache) Set(context.Context, Key, int64, []byte) error         { return nil }
func (NopCache) InvalidateStudent(context.Context, int) error          { return nil }

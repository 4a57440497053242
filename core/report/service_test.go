package report_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/report"
	"github.com/trezcool/academia/core/school"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/tests"
)

func intPtr(i int) *int { return &i }

type memCache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	versions map[int]int64
	sets     int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte), versions: make(map[int]int64)}
}

func (c *memCache) Get(_ context.Context, key report.Key) ([]byte, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.versions[key.StudentID]
	data, ok := c.entries[fmt.Sprintf("%s@%d", key, v)]
	return data, v, ok, nil
}

func (c *memCache) Set(_ context.Context, key report.Key, version int64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fmt.Sprintf("%s@%d", key, version)] = data
	c.sets++
	return nil
}

func (c *memCache) InvalidateStudent(_ context.Context, studentID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[studentID]++
	return nil
}

func TestClassPolicy(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	math := env.Subject(t, "Math")
	c5a := env.Class(t, "5A")
	c5b := env.Class(t, "5B")

	admin := env.Admin(t, "admin1")
	ana := env.Student(t, "ana001", c5a)
	bob := env.Student(t, "bob001", c5b)
	homeroom := env.Homeroom(t, env.Teacher(t, "homeroom", true), c5a)
	topical := env.Teacher(t, "topical", false, math.ID)
	env.Topic(t, topical, math.ID, c5a.ID, "2024-10-01")
	elsewhere := env.Teacher(t, "elsewhere", false, math.ID)
	env.Topic(t, elsewhere, math.ID, c5b.ID, "2024-10-01")
	idle := env.Teacher(t, "idle01", false, math.ID)
	orphan := school.Actor{User: testutil.CreateUser(t, env.Users, "Orphan", "orphan", "", "", user.RoleTeacher, true)}

	tests := []struct {
		name  string
		actor school.Actor
		want  bool
	}{
		{name: "admin", actor: admin, want: true},
		{name: "the student", actor: ana, want: true},
		{name: "another student", actor: bob},
		{name: "homeroom teacher", actor: homeroom, want: true},
		{name: "teacher with a lesson topic in the class", actor: topical, want: true},
		{name: "teacher with lesson topics elsewhere", actor: elsewhere},
		{name: "teacher without lesson topics", actor: idle},
		{name: "teacher without profile", actor: orphan},
	}
	policy := env.ReportSvc.Policy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := policy.CanViewReport(ctx, tt.actor, *ana.Student)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			_, err = env.ReportSvc.GetPerformanceReport(ctx, tt.actor, ana.Student.ID, academic.Period{})
			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, core.ErrPermissionDenied, err)
			}
		})
	}
}

func TestService_GetPerformanceReport(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	math := env.Subject(t, "Math")
	art := env.Subject(t, "Art")
	class := env.Class(t, "5A")
	teacher := env.Homeroom(t, env.Teacher(t, "teach1", true, math.ID, art.ID), class)
	student := env.Student(t, "stud01", class)
	sid := student.Student.ID

	env.Grade(t, teacher, sid, math.ID, 85, "2024-10-01")

	t.Run("single grade", func(t *testing.T) {
		rep, err := env.ReportSvc.GetPerformanceReport(ctx, teacher, sid, academic.Period{Year: intPtr(2024), Semester: intPtr(1)})
		require.NoError(t, err)

		require.Len(t, rep.GradesBySubject, 1)
		sg := rep.GradesBySubject[0]
		assert.Equal(t, "Math", sg.SubjectName)
		assert.Equal(t, []report.DatedGrade{{Date: core.MustParseDate("2024-10-01"), Grade: 85}}, sg.Grades)
		assert.Equal(t, null.Float64From(85), sg.Average)
		assert.Equal(t, null.Float64From(85), rep.OverallAverage)
	})

	env.Grade(t, teacher, sid, art.ID, 40, "2025-01-15")
	env.Grade(t, teacher, sid, art.ID, 60, "2025-04-02")
	env.Absence(t, teacher, sid, art.ID, "2025-01-16")
	env.Absence(t, teacher, sid, math.ID, "2023-05-01") // previous year

	tests := []struct {
		name         string
		period       academic.Period
		wantGrades   int
		wantAverage  null.Float64
		wantAbsences int
	}{
		{name: "all time", period: academic.Period{}, wantGrades: 3, wantAverage: null.Float64From(61.67), wantAbsences: 2},
		{name: "academic year", period: academic.Period{Year: intPtr(2024)}, wantGrades: 3, wantAverage: null.Float64From(61.67), wantAbsences: 1},
		{name: "semester 2", period: academic.Period{Year: intPtr(2024), Semester: intPtr(2)}, wantGrades: 1, wantAverage: null.Float64From(40), wantAbsences: 1},
		{name: "semester 3", period: academic.Period{Year: intPtr(2024), Semester: intPtr(3)}, wantGrades: 1, wantAverage: null.Float64From(60)},
		{name: "empty year", period: academic.Period{Year: intPtr(2030)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := env.ReportSvc.GetPerformanceReport(ctx, student, sid, tt.period)
			require.NoError(t, err)
			assert.Len(t, rep.GradeProgress, tt.wantGrades)
			assert.Equal(t, tt.wantAverage, rep.OverallAverage)
			assert.Equal(t, tt.wantAbsences, rep.TotalAbsences)
		})
	}

	t.Run("invalid filters", func(t *testing.T) {
		_, err := env.ReportSvc.GetPerformanceReport(ctx, student, sid, academic.Period{Semester: intPtr(1)})
		assert.True(t, core.IsValidation(err))
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := env.ReportSvc.GetPerformanceReport(ctx, teacher, 999, academic.Period{})
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_GetPerformanceReportJSON(t *testing.T) {
	cache := newMemCache()
	env := testutil.NewEnv(t, cache)
	ctx := context.Background()

	math := env.Subject(t, "Math")
	class := env.Class(t, "5A")
	teacher := env.Homeroom(t, env.Teacher(t, "teach1", true, math.ID), class)
	student := env.Student(t, "stud01", class)
	sid := student.Student.ID
	period := academic.Period{Year: intPtr(2024)}

	grade := env.Grade(t, teacher, sid, math.ID, 70, "2024-10-01")

	first, err := env.ReportSvc.GetPerformanceReportJSON(ctx, student, sid, period)
	require.NoError(t, err)
	second, err := env.ReportSvc.GetPerformanceReportJSON(ctx, student, sid, period)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.sets)

	var rep report.Report
	require.NoError(t, json.Unmarshal(first, &rep))
	assert.Equal(t, null.Float64From(70), rep.OverallAverage)

	t.Run("writes invalidate the cached report", func(t *testing.T) {
		env.Grade(t, teacher, sid, math.ID, 90, "2024-10-02")

		data, err := env.ReportSvc.GetPerformanceReportJSON(ctx, student, sid, period)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &rep))
		assert.Equal(t, null.Float64From(80), rep.OverallAverage)

		require.NoError(t, env.GradebookSvc.DeleteGrade(ctx, teacher, grade.ID))
		data, err = env.ReportSvc.GetPerformanceReportJSON(ctx, student, sid, period)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &rep))
		assert.Equal(t, null.Float64From(90), rep.OverallAverage)
	})

	t.Run("access is checked before the cache", func(t *testing.T) {
		other := env.Student(t, "stud02", class)
		_, err := env.ReportSvc.GetPerformanceReportJSON(ctx, other, sid, period)
		assert.Equal(t, core.ErrPermissionDenied, err)
	})
}

func TestService_ExportPerformanceReportDocument(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	class := env.Class(t, "5A")
	student := env.Student(t, "stud01", class)

	doc, err := env.ReportSvc.ExportPerformanceReportDocument(ctx, student, student.Student.ID, academic.Period{})
	require.NoError(t, err)
	assert.Equal(t, "report-student-stud01-all.html", doc.Filename)
	assert.Contains(t, string(doc.Content), "No grades recorded")
}

func TestService_GetPerformanceReportJSON_renames(t *testing.T) {
	cache := newMemCache()
	env := testutil.NewEnv(t, cache)
	ctx := context.Background()

	math := env.Subject(t, "Math")
	class := env.Class(t, "5A")
	other := env.Class(t, "5B")
	admin := env.Admin(t, "admin1")
	teacher := env.Homeroom(t, env.Teacher(t, "teach1", true, math.ID), class)
	student := env.Student(t, "stud01", class)
	bystander := env.Student(t, "stud02", other)
	sid := student.Student.ID
	env.Grade(t, teacher, sid, math.ID, 70, "2024-10-01")

	get := func(t *testing.T, actor school.Actor, studentID int) report.Report {
		t.Helper()
		data, err := env.ReportSvc.GetPerformanceReportJSON(ctx, actor, studentID, academic.Period{})
		require.NoError(t, err)
		var rep report.Report
		require.NoError(t, json.Unmarshal(data, &rep))
		return rep
	}
	get(t, student, sid)
	get(t, bystander, bystander.Student.ID)
	require.Equal(t, 2, cache.sets)

	t.Run("class rename", func(t *testing.T) {
		_, err := env.SchoolSvc.UpdateClass(ctx, admin, class.ID, school.UpdateClass{Name: "6A"})
		require.NoError(t, err)

		rep := get(t, student, sid)
		require.NotNil(t, rep.Student.Class)
		assert.Equal(t, "6A", rep.Student.Class.Name)

		get(t, bystander, bystander.Student.ID)
		assert.Equal(t, 3, cache.sets, "reports of other classes are kept")
	})

	t.Run("same class name keeps the cache", func(t *testing.T) {
		_, err := env.SchoolSvc.UpdateClass(ctx, admin, class.ID, school.UpdateClass{Name: "6A"})
		require.NoError(t, err)
		get(t, student, sid)
		assert.Equal(t, 3, cache.sets)
	})

	t.Run("student rename", func(t *testing.T) {
		usr := student.User
		_, err := env.UserSvc.Update(ctx, usr.ID, user.UpdateUser{Name: "Ana Lopez", Username: usr.Username, Email: usr.Email, Role: usr.Role})
		require.NoError(t, err)

		assert.Equal(t, "Ana Lopez", get(t, student, sid).Student.Name)
		assert.Equal(t, 4, cache.sets)
	})
}

// invalidatingCache invalidates the student once, right after its first lookup,
// as a grade write landing while the report is being built would.
type invalidatingCache struct {
	*memCache
	once sync.Once
}

func (c *invalidatingCache) Get(ctx context.Context, key report.Key) ([]byte, int64, bool, error) {
	data, v, ok, err := c.memCache.Get(ctx, key)
	c.once.Do(func() { _ = c.memCache.InvalidateStudent(ctx, key.StudentID) })
	return data, v, ok, err
}

func TestService_GetPerformanceReportJSON_invalidatedWhileBuilding(t *testing.T) {
	cache := &invalidatingCache{memCache: newMemCache()}
	env := testutil.NewEnv(t, cache)
	ctx := context.Background()

	class := env.Class(t, "5A")
	student := env.Student(t, "stud01", class)
	sid := student.Student.ID

	for i := 0; i < 2; i++ {
		_, err := env.ReportSvc.GetPerformanceReportJSON(ctx, student, sid, academic.Period{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.sets, "the report built across the invalidation was served again")

	_, err := env.ReportSvc.GetPerformanceReportJSON(ctx, student, sid, academic.Period{})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets)
}

package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/school"
)

func intPtr(i int) *int { return &i }

func TestAggregate(t *testing.T) {
	student := school.Student{ID: 1, Name: "Ana", ClassID: 3, ClassName: "5A"}
	d := core.MustParseDate

	t.Run("empty", func(t *testing.T) {
		rep := Aggregate(student, academic.Period{}, nil, nil)

		assert.Equal(t, StudentInfo{ID: 1, Name: "Ana", Class: &ClassRef{ID: 3, Name: "5A"}}, rep.Student)
		assert.NotNil(t, rep.GradesBySubject)
		assert.Empty(t, rep.GradesBySubject)
		assert.NotNil(t, rep.AbsencesBySubject)
		assert.NotNil(t, rep.GradeProgress)
		assert.False(t, rep.OverallAverage.Valid)
		assert.Equal(t, 0, rep.TotalAbsences)

		data, err := json.Marshal(rep)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"student": {"id": 1, "name": "Ana", "class": {"id": 3, "name": "5A"}},
			"filters": {"year": null, "semester": null},
			"grades_by_subject": [],
			"overall_average": null,
			"absences_by_subject": [],
			"total_absences": 0,
			"grade_progress": []
		}`, string(data))
	})

	t.Run("overall average is the mean of every grade", func(t *testing.T) {
		grades := []GradeEntry{
			{ID: 1, Date: d("2024-10-01"), Grade: 100, SubjectID: 1, SubjectName: "Math"},
			{ID: 2, Date: d("2024-10-02"), Grade: 0, SubjectID: 2, SubjectName: "Art"},
			{ID: 3, Date: d("2024-10-03"), Grade: 0, SubjectID: 2, SubjectName: "Art"},
			{ID: 4, Date: d("2024-10-04"), Grade: 0, SubjectID: 2, SubjectName: "Art"},
		}
		rep := Aggregate(student, academic.Period{Year: intPtr(2024)}, grades, nil)

		require.Len(t, rep.GradesBySubject, 2)
		assert.Equal(t, "Art", rep.GradesBySubject[0].SubjectName)
		assert.Len(t, rep.GradesBySubject[0].Grades, 3)
		assert.Equal(t, null.Float64From(0), rep.GradesBySubject[0].Average)
		assert.Equal(t, "Math", rep.GradesBySubject[1].SubjectName)
		assert.Equal(t, null.Float64From(100), rep.GradesBySubject[1].Average)
		assert.Equal(t, null.Float64From(25), rep.OverallAverage)
		assert.Equal(t, 2024, *rep.Filters.Year)
		assert.Nil(t, rep.Filters.Semester)
	})

	t.Run("ordering", func(t *testing.T) {
		grades := []GradeEntry{
			{ID: 5, Date: d("2024-10-03"), Grade: 60, SubjectID: 2, SubjectName: "Math"},
			{ID: 2, Date: d("2024-10-01"), Grade: 70, SubjectID: 2, SubjectName: "Math"},
			{ID: 1, Date: d("2024-10-03"), Grade: 80, SubjectID: 1, SubjectName: "Math"},
			{ID: 9, Date: d("2024-09-20"), Grade: 90, SubjectID: 3, SubjectName: "Biology"},
		}
		rep := Aggregate(student, academic.Period{}, grades, nil)

		require.Len(t, rep.GradesBySubject, 3)
		assert.Equal(t, 3, rep.GradesBySubject[0].SubjectID)
		assert.Equal(t, 1, rep.GradesBySubject[1].SubjectID) // same name, lower id first
		assert.Equal(t, 2, rep.GradesBySubject[2].SubjectID)
		assert.Equal(t, []DatedGrade{{Date: d("2024-10-01"), Grade: 70}, {Date: d("2024-10-03"), Grade: 60}}, rep.GradesBySubject[2].Grades)

		var progress []float64
		for _, p := range rep.GradeProgress {
			progress = append(progress, p.Grade)
		}
		assert.Equal(t, []float64{90, 70, 80, 60}, progress)
	})

	t.Run("absences", func(t *testing.T) {
		absences := []AbsenceEntry{
			{ID: 1, Date: d("2024-10-01"), SubjectID: 2, SubjectName: "Math"},
			{ID: 2, Date: d("2024-10-02"), SubjectID: 2, SubjectName: "Math", Justified: true},
			{ID: 3, Date: d("2024-10-02"), SubjectID: 1, SubjectName: "Art"},
		}
		rep := Aggregate(student, academic.Period{}, nil, absences)

		assert.Equal(t, []SubjectAbsences{
			{SubjectID: 1, SubjectName: "Art", Count: 1},
			{SubjectID: 2, SubjectName: "Math", Count: 2},
		}, rep.AbsencesBySubject)
		assert.Equal(t, 3, rep.TotalAbsences)
		assert.False(t, rep.OverallAverage.Valid)
	})

	t.Run("rounding", func(t *testing.T) {
		grades := []GradeEntry{
			{ID: 1, Date: d("2024-10-01"), Grade: 1.005, SubjectID: 1, SubjectName: "Math"},
		}
		rep := Aggregate(student, academic.Period{}, grades, nil)
		assert.Equal(t, null.Float64From(1.01), rep.OverallAverage)
	})

	t.Run("student without class", func(t *testing.T) {
		rep := Aggregate(school.Student{ID: 2, Name: "Bo"}, academic.Period{}, nil, nil)
		assert.Nil(t, rep.Student.Class)
	})
}

func TestRenderDocument(t *testing.T) {
	rep := Aggregate(
		school.Student{ID: 1, Name: "Ana María Lu", ClassID: 3, ClassName: "5A"},
		academic.Period{Year: intPtr(2024), Semester: intPtr(1)},
		[]GradeEntry{{ID: 1, Date: core.MustParseDate("2024-10-01"), Grade: 75, SubjectID: 1, SubjectName: "Math"}},
		nil,
	)

	doc, err := RenderDocument(rep)
	require.NoError(t, err)
	assert.Equal(t, "report-ana-mar-a-lu-2024-s1.html", doc.Filename)
	assert.Equal(t, "text/html; charset=utf-8", doc.ContentType)
	assert.Contains(t, string(doc.Content), "Ana María Lu")
	assert.Contains(t, string(doc.Content), "Academic year 2024-2025, semester 1")
	assert.Contains(t, string(doc.Content), "75.00")

	rep.Filters = Filters{}
	rep.Student.Name = "Bo"
	doc, err = RenderDocument(rep)
	require.NoError(t, err)
	assert.Equal(t, "report-bo-all.html", doc.Filename)
}

func TestResolvePeriod(t *testing.T) {
	tests := []struct {
		name      string
		period    academic.Period
		wantField string
	}{
		{name: "all time", period: academic.Period{}},
		{name: "year", period: academic.Period{Year: intPtr(2024)}},
		{name: "semester", period: academic.Period{Year: intPtr(2024), Semester: intPtr(3)}},
		{name: "semester without year", period: academic.Period{Semester: intPtr(1)}, wantField: "year"},
		{name: "semester 0", period: academic.Period{Year: intPtr(2024), Semester: intPtr(0)}, wantField: "semester"},
		{name: "semester 4", period: academic.Period{Year: intPtr(2024), Semester: intPtr(4)}, wantField: "semester"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolvePeriod(tt.period)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}
}

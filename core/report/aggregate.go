package report

import (
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/school"
)

// Aggregate shapes the report of student from the grades & absences of the selected period.
// Subjects are ordered by name then id; grades by date then id.
// Averages are rounded to 2 decimals, half away from zero; the overall average is
// the mean of every grade, not the mean of the subject averages.
func Aggregate(student school.Student, period academic.Period, grades []GradeEntry, absences []AbsenceEntry) Report {
	rep := Report{
		Student:           studentInfo(student),
		Filters:           Filters{Year: period.Year, Semester: period.Semester},
		GradesBySubject:   make([]SubjectGrades, 0),
		AbsencesBySubject: make([]SubjectAbsences, 0),
		GradeProgress:     make([]ProgressPoint, 0, len(grades)),
	}

	sorted := make([]GradeEntry, len(grades))
	copy(sorted, grades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var (
		total     float64
		bySubject = make(map[int]*SubjectGrades)
		sums      = make(map[int]float64)
	)
	for _, g := range sorted {
		sg, ok := bySubject[g.SubjectID]
		if !ok {
			sg = &SubjectGrades{SubjectID: g.SubjectID, SubjectName: g.SubjectName, Grades: make([]DatedGrade, 0, 1)}
			bySubject[g.SubjectID] = sg
		}
		sg.Grades = append(sg.Grades, DatedGrade{Date: g.Date, Grade: g.Grade})
		sums[g.SubjectID] += g.Grade
		total += g.Grade

		rep.GradeProgress = append(rep.GradeProgress, ProgressPoint{
			Date:        g.Date,
			Grade:       g.Grade,
			SubjectID:   g.SubjectID,
			SubjectName: g.SubjectName,
		})
	}
	for id, sg := range bySubject {
		sg.Average = mean(sums[id], len(sg.Grades))
		rep.GradesBySubject = append(rep.GradesBySubject, *sg)
	}
	sort.Slice(rep.GradesBySubject, func(i, j int) bool {
		a, b := rep.GradesBySubject[i], rep.GradesBySubject[j]
		return subjectLess(a.SubjectName, a.SubjectID, b.SubjectName, b.SubjectID)
	})
	rep.OverallAverage = mean(total, len(sorted))

	counts := make(map[int]*SubjectAbsences)
	for _, a := range absences {
		sa, ok := counts[a.SubjectID]
		if !ok {
			sa = &SubjectAbsences{SubjectID: a.SubjectID, SubjectName: a.SubjectName}
			counts[a.SubjectID] = sa
		}
		sa.Count++
	}
	for _, sa := range counts {
		rep.AbsencesBySubject = append(rep.AbsencesBySubject, *sa)
	}
	sort.Slice(rep.AbsencesBySubject, func(i, j int) bool {
		a, b := rep.AbsencesBySubject[i], rep.AbsencesBySubject[j]
		return subjectLess(a.SubjectName, a.SubjectID, b.SubjectName, b.SubjectID)
	})
	rep.TotalAbsences = len(absences)

	return rep
}

func studentInfo(s school.Student) StudentInfo {
	info := StudentInfo{ID: s.ID, Name: s.Name}
	if s.ClassID != 0 {
		info.Class = &ClassRef{ID: s.ClassID, Name: s.ClassName}
	}
	return info
}

func mean(sum float64, n int) null.Float64 {
	if n == 0 {
		return null.Float64{}
	}
	return null.Float64From(academic.Round2(sum / float64(n)))
}

func subjectLess(nameA string, idA int, nameB string, idB int) bool {
	if nameA != nameB {
		return nameA < nameB
	}
	return idA < idB
}

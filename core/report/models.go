package report

import (
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
)

// GradeEntry is a grade row annotated with its subject name.
type GradeEntry struct {
	ID          int
	Date        core.Date
	Grade       float64
	SubjectID   int
	SubjectName string
}

// AbsenceEntry is an absence row annotated with its subject name.
type AbsenceEntry struct {
	ID          int
	Date        core.Date
	SubjectID   int
	SubjectName string
	Justified   bool
}

type Report struct {
	Student           StudentInfo       `json:"student"`
	Filters           Filters           `json:"filters"`
	GradesBySubject   []SubjectGrades   `json:"grades_by_subject"`
	OverallAverage    null.Float64      `json:"overall_average"`
	AbsencesBySubject []SubjectAbsences `json:"absences_by_subject"`
	TotalAbsences     int               `json:"total_absences"`
	GradeProgress     []ProgressPoint   `json:"grade_progress"`
}

type StudentInfo struct {
	ID    int       `json:"id"`
	Name  string    `json:"name"`
	Class *ClassRef `json:"class"`
}

type ClassRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Filters struct {
	Year     *int `json:"year"`
	Semester *int `json:"semester"`
}

type SubjectGrades struct {
	SubjectID   int          `json:"subject_id"`
	SubjectName string       `json:"subject_name"`
	Grades      []DatedGrade `json:"grades"`
	Average     null.Float64 `json:"average"`
}

type DatedGrade struct {
	Date  core.Date `json:"date"`
	Grade float64   `json:"grade"`
}

type SubjectAbsences struct {
	SubjectID   int    `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Count       int    `json:"count"`
}

type ProgressPoint struct {
	Date        core.Date `json:"date"`
	Grade       float64   `json:"grade"`
	SubjectID   int       `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
}

// Document is a rendered report, ready to download.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

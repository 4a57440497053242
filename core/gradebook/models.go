package gradebook

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
)

// Grade bounds, inclusive.
const (
	MinGrade = 0
	MaxGrade = 100

	// GradeDecimals is the precision grades are stored with.
	GradeDecimals = 2
)

type LessonTopic struct {
	ID          int         `json:"id"`
	TeacherID   int         `json:"teacher_id"`
	SubjectID   int         `json:"subject_id"`
	ClassID     int         `json:"class_id"`
	Date        core.Date   `json:"date"`
	Title       string      `json:"title"`
	Description null.String `json:"description"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
}

type Grade struct {
	ID            int       `json:"id"`
	StudentID     int       `json:"student_id"`
	SubjectID     int       `json:"subject_id"`
	TeacherID     int       `json:"teacher_id"`
	LessonTopicID null.Int  `json:"lesson_topic_id"`
	Grade         float64   `json:"grade"`
	Date          core.Date `json:"date"`
	CreatedAt     time.Time `json:"created_at"` // UTC
}

type Absence struct {
	ID            int       `json:"id"`
	StudentID     int       `json:"student_id"`
	SubjectID     int       `json:"subject_id"`
	TeacherID     int       `json:"teacher_id"`
	LessonTopicID null.Int  `json:"lesson_topic_id"`
	Date          core.Date `json:"date"`
	Justified     bool      `json:"justified"`
	CreatedAt     time.Time `json:"created_at"` // UTC
}

// NewGrade contains what a teacher provides to grade a student.
// Range & business rules are enforced by Service.RecordGrade.
type NewGrade struct {
	StudentID     int       `json:"student_id" validate:"required"`
	SubjectID     int       `json:"subject_id" validate:"required"`
	LessonTopicID *int      `json:"lesson_topic_id"`
	Grade         *float64  `json:"grade" validate:"required"`
	Date          core.Date `json:"date" validate:"required"`
}

func (ng NewGrade) Validate(validate *validator.Validate) error { return validate.Struct(ng) }

type NewAbsence struct {
	StudentID     int       `json:"student_id" validate:"required"`
	SubjectID     int       `json:"subject_id" validate:"required"`
	LessonTopicID *int      `json:"lesson_topic_id"`
	Date          core.Date `json:"date" validate:"required"`
	Justified     bool      `json:"justified"`
}

func (na NewAbsence) Validate(validate *validator.Validate) error { return validate.Struct(na) }

type NewLessonTopic struct {
	SubjectID   int       `json:"subject_id" validate:"required"`
	ClassID     int       `json:"class_id" validate:"required"`
	Date        core.Date `json:"date" validate:"required"`
	Title       string    `json:"title" validate:"required,notblank"`
	Description string    `json:"description"`
}

func (nt *NewLessonTopic) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	return validate.Struct(nt)
}

type JustifyAbsence struct {
	Justified bool `json:"justified"`
}

// RecordFilter selects grades or absences; zero fields are ignored.
type RecordFilter struct {
	StudentID int
	SubjectID int
	TeacherID int
	Window    *academic.Window // nil matches every date
}

// LessonTopicFilter selects lesson topics; zero fields are ignored.
type LessonTopicFilter struct {
	TeacherID int `query:"-"`
	SubjectID int `query:"subject_id"`
	ClassID   int `query:"class_id"`
}

package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/gradebook"
	"github.com/trezcool/academia/core/report"
)

const (
	topicColumns   = "id, teacher_id, subject_id, class_id, date, title, description, created_at"
	gradeColumns   = "id, student_id, subject_id, teacher_id, lesson_topic_id, grade, date, created_at"
	absenceColumns = "id, student_id, subject_id, teacher_id, lesson_topic_id, date, justified, created_at"
)

type (
	topicRow struct {
		ID          int         `db:"id"`
		TeacherID   int         `db:"teacher_id"`
		SubjectID   int         `db:"subject_id"`
		ClassID     int         `db:"class_id"`
		Date        core.Date   `db:"date"`
		Title       string      `db:"title"`
		Description null.String `db:"description"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	gradeRow struct {
		ID            int       `db:"id"`
		StudentID     int       `db:"student_id"`
		SubjectID     int       `db:"subject_id"`
		TeacherID     int       `db:"teacher_id"`
		LessonTopicID null.Int  `db:"lesson_topic_id"`
		Grade         float64   `db:"grade"`
		Date          core.Date `db:"date"`
		CreatedAt     time.Time `db:"created_at"`
	}

	absenceRow struct {
		ID            int       `db:"id"`
		StudentID     int       `db:"student_id"`
		SubjectID     int       `db:"subject_id"`
		TeacherID     int       `db:"teacher_id"`
		LessonTopicID null.Int  `db:"lesson_topic_id"`
		Date          core.Date `db:"date"`
		Justified     bool      `db:"justified"`
		CreatedAt     time.Time `db:"created_at"`
	}

	reportGradeRow struct {
		ID          int       `db:"id"`
		Date        core.Date `db:"date"`
		Grade       float64   `db:"grade"`
		SubjectID   int       `db:"subject_id"`
		SubjectName string    `db:"subject_name"`
	}

	reportAbsenceRow struct {
		ID          int       `db:"id"`
		Date        core.Date `db:"date"`
		SubjectID   int       `db:"subject_id"`
		SubjectName string    `db:"subject_name"`
		Justified   bool      `db:"justified"`
	}
)

func (row topicRow) unboil() gradebook.LessonTopic {
	return gradebook.LessonTopic{
		ID:          row.ID,
		TeacherID:   row.TeacherID,
		SubjectID:   row.SubjectID,
		ClassID:     row.ClassID,
		Date:        row.Date,
		Title:       row.Title,
		Description: row.Description,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func (row gradeRow) unboil() gradebook.Grade {
	return gradebook.Grade{
		ID:            row.ID,
		StudentID:     row.StudentID,
		SubjectID:     row.SubjectID,
		TeacherID:     row.TeacherID,
		LessonTopicID: row.LessonTopicID,
		Grade:         row.Grade,
		Date:          row.Date,
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func (row absenceRow) unboil() gradebook.Absence {
	return gradebook.Absence{
		ID:            row.ID,
		StudentID:     row.StudentID,
		SubjectID:     row.SubjectID,
		TeacherID:     row.TeacherID,
		LessonTopicID: row.LessonTopicID,
		Date:          row.Date,
		Justified:     row.Justified,
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

type gradebookRepository struct {
	repo
}

var (
	_ gradebook.Repository     = (*gradebookRepository)(nil) // interface compliance check
	_ report.Repository        = (*gradebookRepository)(nil)
	_ report.LessonTopicLookup = (*gradebookRepository)(nil)
)

func NewGradebookRepository(db *sqlx.DB) *gradebookRepository {
	return &gradebookRepository{repo{db: db}}
}

// where accumulates AND-ed predicates with their positional args.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) eq(col string, v int) {
	if v != 0 {
		w.args = append(w.args, v)
		w.clauses = append(w.clauses, fmt.Sprintf("%s = $%d", col, len(w.args)))
	}
}

func (w *where) window(col string, win *academic.Window) {
	if win == nil || win.All {
		return
	}
	pred, args := win.SQL(col, len(w.args)+1)
	w.clauses = append(w.clauses, pred)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Lesson topics

func (r gradebookRepository) CreateLessonTopic(ctx context.Context, topic gradebook.LessonTopic, exec ...core.DBExecutor) (gradebook.LessonTopic, error) {
	var row topicRow
	err := sqlx.GetContext(ctx, r.getExec(exec), &row,
		`INSERT INTO lesson_topics (teacher_id, subject_id, class_id, date, title, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+topicColumns,
		topic.TeacherID, topic.SubjectID, topic.ClassID, topic.Date, topic.Title, topic.Description, topic.CreatedAt.UTC())
	if err != nil {
		return gradebook.LessonTopic{}, errors.Wrap(err, "inserting lesson topic")
	}
	return row.unboil(), nil
}

func (r gradebookRepository) GetLessonTopic(ctx context.Context, id int, exec ...core.DBExecutor) (gradebook.LessonTopic, error) {
	var row topicRow
	if err := sqlx.GetContext(ctx, r.getExec(exec), &row, "SELECT "+topicColumns+" FROM lesson_topics WHERE id = $1", id); err != nil {
		return gradebook.LessonTopic{}, trapNoRows(err, gradebook.ErrLessonTopicNotFound, "getting lesson topic")
	}
	return row.unboil(), nil
}

func (r gradebookRepository) QueryLessonTopics(ctx context.Context, filter gradebook.LessonTopicFilter, exec ...core.DBExecutor) ([]gradebook.LessonTopic, error) {
	var w where
	w.eq("teacher_id", filter.TeacherID)
	w.eq("subject_id", filter.SubjectID)
	w.eq("class_id", filter.ClassID)

	rows := make([]topicRow, 0)
	q := "SELECT " + topicColumns + " FROM lesson_topics" + w.String() + " ORDER BY date, id"
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying lesson topics")
	}
	topics := make([]gradebook.LessonTopic, 0, len(rows))
	for _, row := range rows {
		topics = append(topics, row.unboil())
	}
	return topics, nil
}

func (r gradebookRepository) DeleteLessonTopic(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return r.deleteByID(ctx, exec, "lesson_topics", id, gradebook.ErrLessonTopicNotFound)
}

func (r gradebookRepository) TeacherHasLessonTopicInClass(ctx context.Context, teacherID, classID int, exec ...core.DBExecutor) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, r.getExec(exec), &found,
		"SELECT EXISTS (SELECT 1 FROM lesson_topics WHERE teacher_id = $1 AND class_id = $2)", teacherID, classID)
	if err != nil {
		return false, errors.Wrap(err, "checking lesson topics")
	}
	return found, nil
}

func (r gradebookRepository) QueryTeacherClassIDs(ctx context.Context, teacherID int, exec ...core.DBExecutor) ([]int, error) {
	ids := make([]int, 0)
	err := sqlx.SelectContext(ctx, r.getExec(exec), &ids,
		"SELECT DISTINCT class_id FROM lesson_topics WHERE teacher_id = $1 ORDER BY class_id", teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying teacher classes")
	}
	return ids, nil
}

// Grades

func (r gradebookRepository) CreateGrade(ctx context.Context, grade gradebook.Grade, exec ...core.DBExecutor) (gradebook.Grade, error) {
	var row gradeRow
	err := sqlx.GetContext(ctx, r.getExec(exec), &row,
		`INSERT INTO grades (student_id, subject_id, teacher_id, lesson_topic_id, grade, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+gradeColumns,
		grade.StudentID, grade.SubjectID, grade.TeacherID, grade.LessonTopicID, grade.Grade, grade.Date, grade.CreatedAt.UTC())
	if err != nil {
		return gradebook.Grade{}, errors.Wrap(err, "inserting grade")
	}
	return row.unboil(), nil
}

func (r gradebookRepository) GetGrade(ctx context.Context, id int, exec ...core.DBExecutor) (gradebook.Grade, error) {
	var row gradeRow
	if err := sqlx.GetContext(ctx, r.getExec(exec), &row, "SELECT "+gradeColumns+" FROM grades WHERE id = $1", id); err != nil {
		return gradebook.Grade{}, trapNoRows(err, gradebook.ErrGradeNotFound, "getting grade")
	}
	return row.unboil(), nil
}

func (r gradebookRepository) QueryGrades(ctx context.Context, filter gradebook.RecordFilter, exec ...core.DBExecutor) ([]gradebook.Grade, error) {
	w := recordWhere(filter)
	rows := make([]gradeRow, 0)
	q := "SELECT " + gradeColumns + " FROM grades" + w.String() + " ORDER BY date, id"
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	grades := make([]gradebook.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, row.unboil())
	}
	return grades, nil
}

func (r gradebookRepository) DeleteGrade(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return r.deleteByID(ctx, exec, "grades", id, gradebook.ErrGradeNotFound)
}

// Absences

func (r gradebookRepository) CreateAbsence(ctx context.Context, absence gradebook.Absence, exec ...core.DBExecutor) (gradebook.Absence, error) {
	var row absenceRow
	err := sqlx.GetContext(ctx, r.getExec(exec), &row,
		`INSERT INTO absences (student_id, subject_id, teacher_id, lesson_topic_id, date, justified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+absenceColumns,
		absence.StudentID, absence.SubjectID, absence.TeacherID, absence.LessonTopicID, absence.Date, absence.Justified, absence.CreatedAt.UTC())
	if err != nil {
		return gradebook.Absence{}, errors.Wrap(err, "inserting absence")
	}
	return row.unboil(), nil
}

func (r gradebookRepository) GetAbsence(ctx context.Context, id int, exec ...core.DBExecutor) (gradebook.Absence, error) {
	var row absenceRow
	if err := sqlx.GetContext(ctx, r.getExec(exec), &row, "SELECT "+absenceColumns+" FROM absences WHERE id = $1", id); err != nil {
		return gradebook.Absence{}, trapNoRows(err, gradebook.ErrAbsenceNotFound, "getting absence")
	}
	return row.unboil(), nil
}

func (r gradebookRepository) QueryAbsences(ctx context.Context, filter gradebook.RecordFilter, exec ...core.DBExecutor) ([]gradebook.Absence, error) {
	w := recordWhere(filter)
	rows := make([]absenceRow, 0)
	q := "SELECT " + absenceColumns + " FROM absences" + w.String() + " ORDER BY date, id"
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying absences")
	}
	absences := make([]gradebook.Absence, 0, len(rows))
	for _, row := range rows {
		absences = append(absences, row.unboil())
	}
	return absences, nil
}

func (r gradebookRepository) SetAbsenceJustified(ctx context.Context, id int, justified bool, exec ...core.DBExecutor) (gradebook.Absence, error) {
	var row absenceRow
	err := sqlx.GetContext(ctx, r.getExec(exec), &row,
		"UPDATE absences SET justified = $2 WHERE id = $1 RETURNING "+absenceColumns, id, justified)
	if err != nil {
		return gradebook.Absence{}, trapNoRows(err, gradebook.ErrAbsenceNotFound, "justifying absence")
	}
	return row.unboil(), nil
}

func (r gradebookRepository) DeleteAbsence(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return r.deleteByID(ctx, exec, "absences", id, gradebook.ErrAbsenceNotFound)
}

func recordWhere(filter gradebook.RecordFilter) *where {
	w := &where{}
	w.eq("student_id", filter.StudentID)
	w.eq("subject_id", filter.SubjectID)
	w.eq("teacher_id", filter.TeacherID)
	w.window("date", filter.Window)
	return w
}

func (r gradebookRepository) deleteByID(ctx context.Context, exec []core.DBExecutor, table string, id int, notFound error) error {
	res, err := r.getExec(exec).ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Report reads

func (r gradebookRepository) QueryReportGrades(ctx context.Context, studentID int, win academic.Window, exec ...core.DBExecutor) ([]report.GradeEntry, error) {
	pred, args := win.SQL("g.date", 2)
	q := `SELECT g.id, g.date, g.grade, g.subject_id, s.name AS subject_name
		FROM grades g JOIN subjects s ON s.id = g.subject_id
		WHERE g.student_id = $1 AND ` + pred + ` ORDER BY g.date, g.id`

	rows := make([]reportGradeRow, 0)
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q, append([]interface{}{studentID}, args...)...); err != nil {
		return nil, errors.Wrap(err, "querying report grades")
	}
	entries := make([]report.GradeEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, report.GradeEntry(row))
	}
	return entries, nil
}

func (r gradebookRepository) QueryReportAbsences(ctx context.Context, studentID int, win academic.Window, exec ...core.DBExecutor) ([]report.AbsenceEntry, error) {
	pred, args := win.SQL("a.date", 2)
	q := `SELECT a.id, a.date, a.subject_id, s.name AS subject_name, a.justified
		FROM absences a JOIN subjects s ON s.id = a.subject_id
		WHERE a.student_id = $1 AND ` + pred + ` ORDER BY a.date, a.id`

	rows := make([]reportAbsenceRow, 0)
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q, append([]interface{}{studentID}, args...)...); err != nil {
		return nil, errors.Wrap(err, "querying report absences")
	}
	entries := make([]report.AbsenceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, report.AbsenceEntry(row))
	}
	return entries, nil
}

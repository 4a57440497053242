package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/school"
)

const (
	classColumns = "id, name, homeroom_teacher_id, created_at, updated_at"

	teacherSelect = `SELECT t.id, t.user_id, u.name, t.is_main_teacher, t.created_at, c.id AS homeroom_class_id,
		COALESCE((SELECT array_agg(ts.subject_id ORDER BY ts.subject_id) FROM teacher_subjects ts WHERE ts.teacher_id = t.id), '{}'::int[]) AS subject_ids
		FROM teachers t
		JOIN users u ON u.id = t.user_id
		LEFT JOIN classes c ON c.homeroom_teacher_id = t.id`

	studentSelect = `SELECT s.id, s.user_id, u.name, s.class_id, c.name AS class_name, s.created_at
		FROM students s
		JOIN users u ON u.id = s.user_id
		JOIN classes c ON c.id = s.class_id`
)

type (
	classRow struct {
		ID                int       `db:"id"`
		Name              string    `db:"name"`
		HomeroomTeacherID null.Int  `db:"homeroom_teacher_id"`
		CreatedAt         time.Time `db:"created_at"`
		UpdatedAt         time.Time `db:"updated_at"`
	}

	subjectRow struct {
		ID        int       `db:"id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}

	teacherRow struct {
		ID              int           `db:"id"`
		UserID          int           `db:"user_id"`
		Name            string        `db:"name"`
		IsMainTeacher   bool          `db:"is_main_teacher"`
		CreatedAt       time.Time     `db:"created_at"`
		HomeroomClassID null.Int      `db:"homeroom_class_id"`
		SubjectIDs      pq.Int64Array `db:"subject_ids"`
	}

	studentRow struct {
		ID        int       `db:"id"`
		UserID    int       `db:"user_id"`
		Name      string    `db:"name"`
		ClassID   int       `db:"class_id"`
		ClassName string    `db:"class_name"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (row classRow) unboil() school.Class {
	return school.Class{
		ID:                row.ID,
		Name:              row.Name,
		HomeroomTeacherID: row.HomeroomTeacherID,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func (row subjectRow) unboil() school.Subject {
	return school.Subject{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt.UTC()}
}

func (row teacherRow) unboil() school.Teacher {
	ids := make([]int, 0, len(row.SubjectIDs))
	for _, id := range row.SubjectIDs {
		ids = append(ids, int(id))
	}
	return school.Teacher{
		ID:              row.ID,
		UserID:          row.UserID,
		Name:            row.Name,
		IsMainTeacher:   row.IsMainTeacher,
		SubjectIDs:      ids,
		HomeroomClassID: row.HomeroomClassID,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

func (row studentRow) unboil() school.Student {
	return school.Student{
		ID:        row.ID,
		UserID:    row.UserID,
		Name:      row.Name,
		ClassID:   row.ClassID,
		ClassName: row.ClassName,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type schoolRepository struct {
	repo
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{repo{db: db}}
}

// Classes

func (r schoolRepository) mapClassErr(err error, msg string) error {
	switch {
	case isUniqueViolation(err, "classes_name"):
		return school.ErrClassNameExists
	case isUniqueViolation(err, "homeroom_teacher"):
		return school.ErrAlreadyHomeroom
	}
	return errors.Wrap(err, msg)
}

func (r schoolRepository) CreateClass(ctx context.Context, class school.Class, exec ...core.DBExecutor) (school.Class, error) {
	var row classRow
	err := sqlx.GetContext(ctx, r.getExec(exec), &row,
		"INSERT INTO classes (name, homeroom_teacher_id, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING "+classColumns,
		class.Name, class.HomeroomTeacherID, class.CreatedAt.UTC(), class.UpdatedAt.UTC())
	if err != nil {
		return school.Class{}, r.mapClassErr(err, "inserting class")
	}
	return row.unboil(), nil
}

func (r schoolRepository) QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]school.Class, error) {
	rows := make([]classRow, 0)
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, "SELECT "+classColumns+" FROM classes ORDER BY name, id"); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.unboil())
	}
	return classes, nil
}

func (r schoolRepository) GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (school.Class, error) {
	var row classRow
	if err := sqlx.GetContext(ctx, r.getExec(exec), &row, "SELECT "+classColumns+" FROM classes WHERE id = $1", id); err != nil {
		return school.Class{}, trapNoRows(err, school.ErrClassNotFound, "getting class")
	}
	return row.unboil(), nil
}

func (r schoolRepository) UpdateClass(ctx context.Context, class school.Class, exec ...core.DBExecutor) (school.Class, error) {
	var row classRow
	err := sqlx.GetContext(ctx, r.getExec(exec), &row,
		"UPDATE classes SET name = $2, homeroom_teacher_id = $3, updated_at = $4 WHERE id = $1 RETURNING "+classColumns,
		class.ID, class.Name, class.HomeroomTeacherID, class.UpdatedAt.UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Class{}, school.ErrClassNotFound
		}
		return school.Class{}, r.mapClassErr(err, "updating class")
	}
	return row.unboil(), nil
}

func (r schoolRepository) DeleteClass(ctx context.Context, id int, exec ...core.DBExecutor) error {
	if _, err := r.getExec(exec).ExecContext(ctx, "DELETE FROM classes WHERE id = $1", id); err != nil {
		if isForeignKeyViolation(err) {
			return school.ErrClassHasStudents
		}
		return errors.Wrap(err, "deleting class")
	}
	return nil
}

// Subjects

func (r schoolRepository) CreateSubject(ctx context.Context, subject school.Subject, exec ...core.DBExecutor) (school.Subject, error) {
	var row subjectRow
	err := sqlx.GetContext(ctx, r.getExec(exec), &row,
		"INSERT INTO subjects (name, created_at) VALUES ($1, $2) RETURNING id, name, created_at",
		subject.Name, subject.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err, "subjects_name") {
			return school.Subject{}, school.ErrSubjectNameExists
		}
		return school.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return row.unboil(), nil
}

func (r schoolRepository) QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]school.Subject, error) {
	rows := make([]subjectRow, 0)
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, "SELECT id, name, created_at FROM subjects ORDER BY name, id"); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.unboil())
	}
	return subjects, nil
}

func (r schoolRepository) GetSubject(ctx context.Context, id int, exec ...core.DBExecutor) (school.Subject, error) {
	var row subjectRow
	if err := sqlx.GetContext(ctx, r.getExec(exec), &row, "SELECT id, name, created_at FROM subjects WHERE id = $1", id); err != nil {
		return school.Subject{}, trapNoRows(err, school.ErrSubjectNotFound, "getting subject")
	}
	return row.unboil(), nil
}

func (r schoolRepository) DeleteSubject(ctx context.Context, id int, exec ...core.DBExecutor) error {
	if _, err := r.getExec(exec).ExecContext(ctx, "DELETE FROM subjects WHERE id = $1", id); err != nil {
		if isForeignKeyViolation(err) {
			return school.ErrSubjectInUse
		}
		return errors.Wrap(err, "deleting subject")
	}
	return nil
}

// Teachers

func (r schoolRepository) CreateTeacher(ctx context.Context, teacher school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	ex := r.getExec(exec)
	var id int
	err := sqlx.GetContext(ctx, ex, &id,
		"INSERT INTO teachers (user_id, is_main_teacher, created_at) VALUES ($1, $2, $3) RETURNING id",
		teacher.UserID, teacher.IsMainTeacher, teacher.CreatedAt.UTC())
	if err != nil {
		return school.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	if err = r.insertTeacherSubjects(ctx, ex, id, teacher.SubjectIDs); err != nil {
		return school.Teacher{}, err
	}
	return r.GetTeacher(ctx, id, exec...)
}

func (r schoolRepository) insertTeacherSubjects(ctx context.Context, ex sqlx.ExtContext, teacherID int, subjectIDs []int) error {
	if len(subjectIDs) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx,
		"INSERT INTO teacher_subjects (teacher_id, subject_id) SELECT $1, unnest($2::int[]) ON CONFLICT DO NOTHING",
		teacherID, pqIntArray(subjectIDs))
	return errors.Wrap(err, "inserting teacher subjects")
}

func (r schoolRepository) selectTeachers(ctx context.Context, ex sqlx.ExtContext, where string, args ...interface{}) ([]school.Teacher, error) {
	rows := make([]teacherRow, 0)
	if err := sqlx.SelectContext(ctx, ex, &rows, teacherSelect+where+" ORDER BY t.id", args...); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	teachers := make([]school.Teacher, 0, len(rows))
	for _, row := range rows {
		teachers = append(teachers, row.unboil())
	}
	return teachers, nil
}

func (r schoolRepository) QueryTeachers(ctx context.Context, filter school.TeacherFilter, exec ...core.DBExecutor) ([]school.Teacher, error) {
	if filter.SubjectID != 0 {
		return r.selectTeachers(ctx, r.getExec(exec),
			" WHERE EXISTS (SELECT 1 FROM teacher_subjects ts WHERE ts.teacher_id = t.id AND ts.subject_id = $1)", filter.SubjectID)
	}
	return r.selectTeachers(ctx, r.getExec(exec), "")
}

func (r schoolRepository) getTeacher(ctx context.Context, ex sqlx.ExtContext, where string, arg interface{}) (school.Teacher, error) {
	teachers, err := r.selectTeachers(ctx, ex, where, arg)
	if err != nil {
		return school.Teacher{}, err
	}
	if len(teachers) == 0 {
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	return teachers[0], nil
}

func (r schoolRepository) GetTeacher(ctx context.Context, id int, exec ...core.DBExecutor) (school.Teacher, error) {
	return r.getTeacher(ctx, r.getExec(exec), " WHERE t.id = $1", id)
}

func (r schoolRepository) GetTeacherByUser(ctx context.Context, userID int, exec ...core.DBExecutor) (school.Teacher, error) {
	return r.getTeacher(ctx, r.getExec(exec), " WHERE t.user_id = $1", userID)
}

func (r schoolRepository) SetTeacherSubjects(ctx context.Context, teacherID int, subjectIDs []int, exec ...core.DBExecutor) error {
	ex := r.getExec(exec)
	if _, err := ex.ExecContext(ctx, "DELETE FROM teacher_subjects WHERE teacher_id = $1", teacherID); err != nil {
		return errors.Wrap(err, "clearing teacher subjects")
	}
	return r.insertTeacherSubjects(ctx, ex, teacherID, subjectIDs)
}

// Students

func (r schoolRepository) CreateStudent(ctx context.Context, student school.Student, exec ...core.DBExecutor) (school.Student, error) {
	ex := r.getExec(exec)
	var id int
	err := sqlx.GetContext(ctx, ex, &id,
		"INSERT INTO students (user_id, class_id, created_at) VALUES ($1, $2, $3) RETURNING id",
		student.UserID, student.ClassID, student.CreatedAt.UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return school.Student{}, school.ErrClassNotFound
		}
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return r.GetStudent(ctx, id, exec...)
}

func (r schoolRepository) QueryStudents(ctx context.Context, filter school.StudentFilter, exec ...core.DBExecutor) ([]school.Student, error) {
	q, args := studentSelect, []interface{}{}
	if filter.ClassID != 0 {
		q += " WHERE s.class_id = $1"
		args = append(args, filter.ClassID)
	}
	rows := make([]studentRow, 0)
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q+" ORDER BY u.name, s.id", args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.unboil())
	}
	return students, nil
}

func (r schoolRepository) getStudent(ctx context.Context, ex sqlx.ExtContext, where string, arg interface{}) (school.Student, error) {
	var row studentRow
	if err := sqlx.GetContext(ctx, ex, &row, studentSelect+where, arg); err != nil {
		return school.Student{}, trapNoRows(err, school.ErrStudentNotFound, "getting student")
	}
	return row.unboil(), nil
}

func (r schoolRepository) GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (school.Student, error) {
	return r.getStudent(ctx, r.getExec(exec), " WHERE s.id = $1", id)
}

func (r schoolRepository) GetStudentByUser(ctx context.Context, userID int, exec ...core.DBExecutor) (school.Student, error) {
	return r.getStudent(ctx, r.getExec(exec), " WHERE s.user_id = $1", userID)
}

package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

// Classes

func (repo *schoolRepository) classNameTaken(name string, exclID int) bool {
	for _, c := range repo.db.t.classes {
		if c.ID != exclID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) CreateClass(_ context.Context, class school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.classNameTaken(class.Name, 0) {
		return school.Class{}, school.ErrClassNameExists
	}
	class.ID = repo.db.nextID("class")
	repo.db.t.classes[class.ID] = class
	return class, nil
}

func (repo *schoolRepository) QueryClasses(_ context.Context, _ ...core.DBExecutor) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]school.Class, 0, len(repo.db.t.classes))
	for _, c := range repo.db.t.classes {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name != classes[j].Name {
			return classes[i].Name < classes[j].Name
		}
		return classes[i].ID < classes[j].ID
	})
	return classes, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, id int, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.t.classes[id]; ok {
		return c, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) UpdateClass(_ context.Context, class school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.classes[class.ID]; !ok {
		return school.Class{}, school.ErrClassNotFound
	}
	if repo.classNameTaken(class.Name, class.ID) {
		return school.Class{}, school.ErrClassNameExists
	}
	if class.HomeroomTeacherID.Valid {
		for _, c := range repo.db.t.classes {
			if c.ID != class.ID && c.HomeroomTeacherID == class.HomeroomTeacherID {
				return school.Class{}, school.ErrAlreadyHomeroom
			}
		}
	}
	repo.db.t.classes[class.ID] = class
	return class, nil
}

func (repo *schoolRepository) DeleteClass(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range repo.db.t.students {
		if s.ClassID == id {
			return school.ErrClassHasStudents
		}
	}
	delete(repo.db.t.classes, id)
	for tid, t := range repo.db.t.topics {
		if t.ClassID == id {
			repo.db.deleteTopic(tid)
		}
	}
	return nil
}

// Subjects

func (repo *schoolRepository) CreateSubject(_ context.Context, subject school.Subject, _ ...core.DBExecutor) (school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range repo.db.t.subjects {
		if strings.EqualFold(s.Name, subject.Name) {
			return school.Subject{}, school.ErrSubjectNameExists
		}
	}
	subject.ID = repo.db.nextID("subject")
	repo.db.t.subjects[subject.ID] = subject
	return subject, nil
}

func (repo *schoolRepository) QuerySubjects(_ context.Context, _ ...core.DBExecutor) ([]school.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subjects := make([]school.Subject, 0, len(repo.db.t.subjects))
	for _, s := range repo.db.t.subjects {
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Name != subjects[j].Name {
			return subjects[i].Name < subjects[j].Name
		}
		return subjects[i].ID < subjects[j].ID
	})
	return subjects, nil
}

func (repo *schoolRepository) GetSubject(_ context.Context, id int, _ ...core.DBExecutor) (school.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.subjects[id]; ok {
		return s, nil
	}
	return school.Subject{}, school.ErrSubjectNotFound
}

func (repo *schoolRepository) DeleteSubject(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, g := range repo.db.t.grades {
		if g.SubjectID == id {
			return school.ErrSubjectInUse
		}
	}
	for _, a := range repo.db.t.absences {
		if a.SubjectID == id {
			return school.ErrSubjectInUse
		}
	}
	for _, t := range repo.db.t.topics {
		if t.SubjectID == id {
			return school.ErrSubjectInUse
		}
	}
	delete(repo.db.t.subjects, id)
	for tid, t := range repo.db.t.teachers {
		kept := make([]int, 0, len(t.SubjectIDs))
		for _, sid := range t.SubjectIDs {
			if sid != id {
				kept = append(kept, sid)
			}
		}
		t.SubjectIDs = kept
		repo.db.t.teachers[tid] = t
	}
	return nil
}

// Teachers

// loadTeacher fills the derived fields of t. Callers hold a lock.
func (repo *schoolRepository) loadTeacher(t school.Teacher) school.Teacher {
	t.SubjectIDs = copyInts(t.SubjectIDs)
	sort.Ints(t.SubjectIDs)
	t.HomeroomClassID = null.Int{}
	for _, c := range repo.db.t.classes {
		if c.HomeroomTeacherID.Valid && c.HomeroomTeacherID.Int == t.ID {
			t.HomeroomClassID = null.IntFrom(c.ID)
			break
		}
	}
	if usr, ok := repo.db.t.users[t.UserID]; ok {
		t.Name = usr.Name
	}
	return t
}

func (repo *schoolRepository) CreateTeacher(_ context.Context, teacher school.Teacher, _ ...core.DBExecutor) (school.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	teacher.ID = repo.db.nextID("teacher")
	teacher.SubjectIDs = copyInts(teacher.SubjectIDs)
	repo.db.t.teachers[teacher.ID] = teacher
	return repo.loadTeacher(teacher), nil
}

func (repo *schoolRepository) QueryTeachers(_ context.Context, filter school.TeacherFilter, _ ...core.DBExecutor) ([]school.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	teachers := make([]school.Teacher, 0, len(repo.db.t.teachers))
	for _, t := range repo.db.t.teachers {
		if filter.SubjectID != 0 && !t.Teaches(filter.SubjectID) {
			continue
		}
		teachers = append(teachers, repo.loadTeacher(t))
	}
	sort.Slice(teachers, func(i, j int) bool { return teachers[i].ID < teachers[j].ID })
	return teachers, nil
}

func (repo *schoolRepository) GetTeacher(_ context.Context, id int, _ ...core.DBExecutor) (school.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.t.teachers[id]; ok {
		return repo.loadTeacher(t), nil
	}
	return school.Teacher{}, school.ErrTeacherNotFound
}

func (repo *schoolRepository) GetTeacherByUser(_ context.Context, userID int, _ ...core.DBExecutor) (school.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.t.teachers {
		if t.UserID == userID {
			return repo.loadTeacher(t), nil
		}
	}
	return school.Teacher{}, school.ErrTeacherNotFound
}

func (repo *schoolRepository) SetTeacherSubjects(_ context.Context, teacherID int, subjectIDs []int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t, ok := repo.db.t.teachers[teacherID]
	if !ok {
		return school.ErrTeacherNotFound
	}
	t.SubjectIDs = copyInts(subjectIDs)
	repo.db.t.teachers[teacherID] = t
	return nil
}

// Students

func (repo *schoolRepository) loadStudent(s school.Student) school.Student {
	if c, ok := repo.db.t.classes[s.ClassID]; ok {
		s.ClassName = c.Name
	}
	if usr, ok := repo.db.t.users[s.UserID]; ok {
		s.Name = usr.Name
	}
	return s
}

func (repo *schoolRepository) CreateStudent(_ context.Context, student school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.classes[student.ClassID]; !ok {
		return school.Student{}, school.ErrClassNotFound
	}
	student.ID = repo.db.nextID("student")
	repo.db.t.students[student.ID] = student
	return repo.loadStudent(student), nil
}

func (repo *schoolRepository) QueryStudents(_ context.Context, filter school.StudentFilter, _ ...core.DBExecutor) ([]school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]school.Student, 0, len(repo.db.t.students))
	for _, s := range repo.db.t.students {
		if filter.ClassID != 0 && s.ClassID != filter.ClassID {
			continue
		}
		students = append(students, repo.loadStudent(s))
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, id int, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.students[id]; ok {
		return repo.loadStudent(s), nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) GetStudentByUser(_ context.Context, userID int, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.t.students {
		if s.UserID == userID {
			return repo.loadStudent(s), nil
		}
	}
	return school.Student{}, school.ErrStudentNotFound
}

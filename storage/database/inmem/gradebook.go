package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/gradebook"
	"github.com/trezcool/academia/core/report"
)

type gradebookRepository struct {
	db *DB
}

var (
	_ gradebook.Repository     = (*gradebookRepository)(nil) // interface compliance check
	_ report.Repository        = (*gradebookRepository)(nil)
	_ report.LessonTopicLookup = (*gradebookRepository)(nil)
)

func NewGradebookRepository(db *DB) *gradebookRepository {
	return &gradebookRepository{db: db}
}

// deleteTopic removes a lesson topic and unlinks the records referencing it. Callers hold the write lock.
func (db *DB) deleteTopic(id int) {
	delete(db.t.topics, id)
	for gid, g := range db.t.grades {
		if g.LessonTopicID.Valid && g.LessonTopicID.Int == id {
			g.LessonTopicID = null.Int{}
			db.t.grades[gid] = g
		}
	}
	for aid, a := range db.t.absences {
		if a.LessonTopicID.Valid && a.LessonTopicID.Int == id {
			a.LessonTopicID = null.Int{}
			db.t.absences[aid] = a
		}
	}
}

// Lesson topics

func (repo *gradebookRepository) CreateLessonTopic(_ context.Context, topic gradebook.LessonTopic, _ ...core.DBExecutor) (gradebook.LessonTopic, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	topic.ID = repo.db.nextID("lesson_topic")
	repo.db.t.topics[topic.ID] = topic
	return topic, nil
}

func (repo *gradebookRepository) GetLessonTopic(_ context.Context, id int, _ ...core.DBExecutor) (gradebook.LessonTopic, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.t.topics[id]; ok {
		return t, nil
	}
	return gradebook.LessonTopic{}, gradebook.ErrLessonTopicNotFound
}

func (repo *gradebookRepository) QueryLessonTopics(_ context.Context, filter gradebook.LessonTopicFilter, _ ...core.DBExecutor) ([]gradebook.LessonTopic, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	topics := make([]gradebook.LessonTopic, 0)
	for _, t := range repo.db.t.topics {
		if (filter.TeacherID != 0 && t.TeacherID != filter.TeacherID) ||
			(filter.SubjectID != 0 && t.SubjectID != filter.SubjectID) ||
			(filter.ClassID != 0 && t.ClassID != filter.ClassID) {
			continue
		}
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if !topics[i].Date.Equal(topics[j].Date) {
			return topics[i].Date.Before(topics[j].Date)
		}
		return topics[i].ID < topics[j].ID
	})
	return topics, nil
}

func (repo *gradebookRepository) DeleteLessonTopic(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.topics[id]; !ok {
		return gradebook.ErrLessonTopicNotFound
	}
	repo.db.deleteTopic(id)
	return nil
}

func (repo *gradebookRepository) TeacherHasLessonTopicInClass(_ context.Context, teacherID, classID int, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.t.topics {
		if t.TeacherID == teacherID && t.ClassID == classID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *gradebookRepository) QueryTeacherClassIDs(_ context.Context, teacherID int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	seen := make(map[int]bool)
	ids := make([]int, 0)
	for _, t := range repo.db.t.topics {
		if t.TeacherID == teacherID && !seen[t.ClassID] {
			seen[t.ClassID] = true
			ids = append(ids, t.ClassID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// Grades

func matchRecord(f gradebook.RecordFilter, studentID, subjectID, teacherID int, date core.Date) bool {
	return (f.StudentID == 0 || f.StudentID == studentID) &&
		(f.SubjectID == 0 || f.SubjectID == subjectID) &&
		(f.TeacherID == 0 || f.TeacherID == teacherID) &&
		(f.Window == nil || f.Window.Contains(date))
}

func (repo *gradebookRepository) CreateGrade(_ context.Context, grade gradebook.Grade, _ ...core.DBExecutor) (gradebook.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	grade.ID = repo.db.nextID("grade")
	repo.db.t.grades[grade.ID] = grade
	return grade, nil
}

func (repo *gradebookRepository) GetGrade(_ context.Context, id int, _ ...core.DBExecutor) (gradebook.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if g, ok := repo.db.t.grades[id]; ok {
		return g, nil
	}
	return gradebook.Grade{}, gradebook.ErrGradeNotFound
}

func (repo *gradebookRepository) QueryGrades(_ context.Context, filter gradebook.RecordFilter, _ ...core.DBExecutor) ([]gradebook.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	grades := make([]gradebook.Grade, 0)
	for _, g := range repo.db.t.grades {
		if matchRecord(filter, g.StudentID, g.SubjectID, g.TeacherID, g.Date) {
			grades = append(grades, g)
		}
	}
	sort.Slice(grades, func(i, j int) bool {
		if !grades[i].Date.Equal(grades[j].Date) {
			return grades[i].Date.Before(grades[j].Date)
		}
		return grades[i].ID < grades[j].ID
	})
	return grades, nil
}

func (repo *gradebookRepository) DeleteGrade(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.grades[id]; !ok {
		return gradebook.ErrGradeNotFound
	}
	delete(repo.db.t.grades, id)
	return nil
}

// Absences

func (repo *gradebookRepository) CreateAbsence(_ context.Context, absence gradebook.Absence, _ ...core.DBExecutor) (gradebook.Absence, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	absence.ID = repo.db.nextID("absence")
	repo.db.t.absences[absence.ID] = absence
	return absence, nil
}

func (repo *gradebookRepository) GetAbsence(_ context.Context, id int, _ ...core.DBExecutor) (gradebook.Absence, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.t.absences[id]; ok {
		return a, nil
	}
	return gradebook.Absence{}, gradebook.ErrAbsenceNotFound
}

func (repo *gradebookRepository) QueryAbsences(_ context.Context, filter gradebook.RecordFilter, _ ...core.DBExecutor) ([]gradebook.Absence, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	absences := make([]gradebook.Absence, 0)
	for _, a := range repo.db.t.absences {
		if matchRecord(filter, a.StudentID, a.SubjectID, a.TeacherID, a.Date) {
			absences = append(absences, a)
		}
	}
	sort.Slice(absences, func(i, j int) bool {
		if !absences[i].Date.Equal(absences[j].Date) {
			return absences[i].Date.Before(absences[j].Date)
		}
		return absences[i].ID < absences[j].ID
	})
	return absences, nil
}

func (repo *gradebookRepository) SetAbsenceJustified(_ context.Context, id int, justified bool, _ ...core.DBExecutor) (gradebook.Absence, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a, ok := repo.db.t.absences[id]
	if !ok {
		return gradebook.Absence{}, gradebook.ErrAbsenceNotFound
	}
	a.Justified = justified
	repo.db.t.absences[id] = a
	return a, nil
}

func (repo *gradebookRepository) DeleteAbsence(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.absences[id]; !ok {
		return gradebook.ErrAbsenceNotFound
	}
	delete(repo.db.t.absences, id)
	return nil
}

// Report reads

func (repo *gradebookRepository) QueryReportGrades(_ context.Context, studentID int, w academic.Window, _ ...core.DBExecutor) ([]report.GradeEntry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := make([]report.GradeEntry, 0)
	for _, g := range repo.db.t.grades {
		if g.StudentID != studentID || !w.Contains(g.Date) {
			continue
		}
		entries = append(entries, report.GradeEntry{
			ID:          g.ID,
			Date:        g.Date,
			Grade:       g.Grade,
			SubjectID:   g.SubjectID,
			SubjectName: repo.db.t.subjects[g.SubjectID].Name,
		})
	}
	return entries, nil
}

func (repo *gradebookRepository) QueryReportAbsences(_ context.Context, studentID int, w academic.Window, _ ...core.DBExecutor) ([]report.AbsenceEntry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := make([]report.AbsenceEntry, 0)
	for _, a := range repo.db.t.absences {
		if a.StudentID != studentID || !w.Contains(a.Date) {
			continue
		}
		entries = append(entries, report.AbsenceEntry{
			ID:          a.ID,
			Date:        a.Date,
			SubjectID:   a.SubjectID,
			SubjectName: repo.db.t.subjects[a.SubjectID].Name,
			Justified:   a.Justified,
		})
	}
	return entries, nil
}

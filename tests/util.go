// Package testutil holds fixtures shared by the package tests. Everything runs on the in-memory store.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/bulletin"
	"github.com/trezcool/academia/core/gradebook"
	"github.com/trezcool/academia/core/report"
	"github.com/trezcool/academia/core/school"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

// Env wires every service on a fresh in-memory store.
type Env struct {
	Conf   *core.Config
	Logger *Logger
	DB     *inmemdb.DB
	Mail   *emailsvc.ConsoleServiceMock

	Users     user.Repository
	Schools   school.Repository
	Records   gradebook.Repository
	Bulletins bulletin.Repository

	UserSvc      *user.Service
	SchoolSvc    *school.Service
	ReportSvc    *report.Service
	GradebookSvc *gradebook.Service
	BulletinSvc  *bulletin.Service
}

// NewEnv returns an Env; cache may be nil.
func NewEnv(t *testing.T, cache ...report.Cache) *Env {
	t.Helper()

	env := &Env{Conf: core.NewTestConfig(), Logger: NewLogger(t), DB: inmemdb.Open()}
	env.Mail = emailsvc.NewConsoleServiceMock(env.Conf, env.Logger)

	env.Users = inmemdb.NewUserRepository(env.DB)
	env.Schools = inmemdb.NewSchoolRepository(env.DB)
	records := inmemdb.NewGradebookRepository(env.DB)
	env.Records = records
	env.Bulletins = inmemdb.NewBulletinRepository(env.DB)

	var c report.Cache
	if len(cache) > 0 {
		c = cache[0]
	}
	policy := report.NewClassPolicy(records)
	env.ReportSvc = report.NewService(records, env.Schools, policy, c, env.Logger)
	env.UserSvc = user.NewService(env.Users, env.Mail, env.Conf, env.ReportSvc)
	env.SchoolSvc = school.NewService(env.Schools, env.Users, env.DB, env.Mail, env.ReportSvc)
	env.GradebookSvc = gradebook.NewService(records, env.Schools, env.DB, policy, env.ReportSvc)
	env.BulletinSvc = bulletin.NewService(env.Bulletins, env.Schools, records)
	return env
}

// NewValidator returns a validator with every custom tag & translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// Admin creates an admin user.
func (env *Env) Admin(t *testing.T, uname string) school.Actor {
	t.Helper()
	return school.Actor{User: CreateUser(t, env.Users, "Admin "+uname, uname, "", "", user.RoleAdmin, true)}
}

func (env *Env) Class(t *testing.T, name string) school.Class {
	t.Helper()
	now := time.Now().UTC()
	class, err := env.Schools.CreateClass(context.Background(), school.Class{Name: name, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("Class(%s): %v", name, err)
	}
	return class
}

func (env *Env) Subject(t *testing.T, name string) school.Subject {
	t.Helper()
	subject, err := env.Schools.CreateSubject(context.Background(), school.Subject{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Subject(%s): %v", name, err)
	}
	return subject
}

// Teacher creates a teacher account assigned to subjectIDs and returns its actor.
func (env *Env) Teacher(t *testing.T, uname string, isMain bool, subjectIDs ...int) school.Actor {
	t.Helper()

	role := user.RoleTeacher
	if isMain {
		role = user.RoleMainTeacher
	}
	usr := CreateUser(t, env.Users, "Teacher "+uname, uname, "", "", role, true)
	teacher, err := env.Schools.CreateTeacher(context.Background(), school.Teacher{
		UserID:        usr.ID,
		Name:          usr.Name,
		IsMainTeacher: isMain,
		SubjectIDs:    subjectIDs,
		CreatedAt:     usr.CreatedAt,
	})
	if err != nil {
		t.Fatalf("Teacher(%s): %v", uname, err)
	}
	return school.Actor{User: usr, Teacher: &teacher}
}

// Homeroom makes teacher the homeroom teacher of class and returns the refreshed actor.
func (env *Env) Homeroom(t *testing.T, teacher school.Actor, class school.Class) school.Actor {
	t.Helper()

	ctx := context.Background()
	class.HomeroomTeacherID = null.IntFrom(teacher.Teacher.ID)
	if _, err := env.Schools.UpdateClass(ctx, class); err != nil {
		t.Fatalf("Homeroom(): %v", err)
	}
	return env.Actor(t, teacher.User)
}

// Student creates a student account in class and returns its actor.
func (env *Env) Student(t *testing.T, uname string, class school.Class) school.Actor {
	t.Helper()

	usr := CreateUser(t, env.Users, "Student "+uname, uname, "", "", user.RoleStudent, true)
	student, err := env.Schools.CreateStudent(context.Background(), school.Student{
		UserID:    usr.ID,
		Name:      usr.Name,
		ClassID:   class.ID,
		ClassName: class.Name,
		CreatedAt: usr.CreatedAt,
	})
	if err != nil {
		t.Fatalf("Student(%s): %v", uname, err)
	}
	return school.Actor{User: usr, Student: &student}
}

// Actor resolves the school profile of usr.
func (env *Env) Actor(t *testing.T, usr user.User) school.Actor {
	t.Helper()
	actor, err := env.SchoolSvc.ResolveActor(context.Background(), usr)
	if err != nil {
		t.Fatalf("Actor(): %v", err)
	}
	return actor
}

// Topic records a lesson topic straight into the store.
func (env *Env) Topic(t *testing.T, teacher school.Actor, subjectID, classID int, date string) gradebook.LessonTopic {
	t.Helper()
	topic, err := env.Records.CreateLessonTopic(context.Background(), gradebook.LessonTopic{
		TeacherID: teacher.Teacher.ID,
		SubjectID: subjectID,
		ClassID:   classID,
		Date:      core.MustParseDate(date),
		Title:     "Lesson " + date,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Topic(): %v", err)
	}
	return topic
}

// Grade records a grade through the gradebook service.
func (env *Env) Grade(t *testing.T, teacher school.Actor, studentID, subjectID int, grade float64, date string) gradebook.Grade {
	t.Helper()
	g, err := env.GradebookSvc.RecordGrade(context.Background(), *teacher.Teacher, gradebook.NewGrade{
		StudentID: studentID,
		SubjectID: subjectID,
		Grade:     &grade,
		Date:      core.MustParseDate(date),
	})
	if err != nil {
		t.Fatalf("Grade(): %v", err)
	}
	return g
}

// Absence records an absence through the gradebook service.
func (env *Env) Absence(t *testing.T, teacher school.Actor, studentID, subjectID int, date string) gradebook.Absence {
	t.Helper()
	a, err := env.GradebookSvc.RecordAbsence(context.Background(), *teacher.Teacher, gradebook.NewAbsence{
		StudentID: studentID,
		SubjectID: subjectID,
		Date:      core.MustParseDate(date),
	})
	if err != nil {
		t.Fatalf("Absence(): %v", err)
	}
	return a
}

// Logger is a core.Logger writing to the test log.
type Logger struct {
	t *testing.T
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(t *testing.T) *Logger { return &Logger{t: t} }

func (l *Logger) log(level, msg string, args []interface{}) {
	l.t.Helper()
	l.t.Log(append([]interface{}{level, msg}, args...)...)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	l.t.FailNow()
}

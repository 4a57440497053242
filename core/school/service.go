package school

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	// errors
	ErrClassNotFound   = core.NewNotFoundError("class")
	ErrSubjectNotFound = core.NewNotFoundError("subject")
	ErrTeacherNotFound = core.NewNotFoundError("teacher")
	ErrStudentNotFound = core.NewNotFoundError("student")

	ErrClassNameExists   = errors.New("a class with this name already exists")
	ErrSubjectNameExists = errors.New("a subject with this name already exists")
	ErrClassHasStudents  = errors.New("class still has students")
	ErrSubjectInUse      = errors.New("subject still has records")
	ErrNotMainTeacher    = errors.New("only main teachers can be homeroom teachers")
	ErrHomeroomTaken     = errors.New("class already has a homeroom teacher")
	ErrAlreadyHomeroom   = errors.New("teacher is already the homeroom teacher of another class")
)

type Repository interface {
	CreateClass(ctx context.Context, class Class, exec ...core.DBExecutor) (Class, error)
	QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]Class, error)
	GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (Class, error)
	// UpdateClass saves the name & homeroom teacher of class.
	UpdateClass(ctx context.Context, class Class, exec ...core.DBExecutor) (Class, error)
	DeleteClass(ctx context.Context, id int, exec ...core.DBExecutor) error

	CreateSubject(ctx context.Context, subject Subject, exec ...core.DBExecutor) (Subject, error)
	QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]Subject, error)
	GetSubject(ctx context.Context, id int, exec ...core.DBExecutor) (Subject, error)
	DeleteSubject(ctx context.Context, id int, exec ...core.DBExecutor) error

	// CreateTeacher saves the teacher and its subject assignments.
	CreateTeacher(ctx context.Context, teacher Teacher, exec ...core.DBExecutor) (Teacher, error)
	QueryTeachers(ctx context.Context, filter TeacherFilter, exec ...core.DBExecutor) ([]Teacher, error)
	GetTeacher(ctx context.Context, id int, exec ...core.DBExecutor) (Teacher, error)
	GetTeacherByUser(ctx context.Context, userID int, exec ...core.DBExecutor) (Teacher, error)
	// SetTeacherSubjects replaces the subject assignments of a teacher.
	SetTeacherSubjects(ctx context.Context, teacherID int, subjectIDs []int, exec ...core.DBExecutor) error

	CreateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)
	QueryStudents(ctx context.Context, filter StudentFilter, exec ...core.DBExecutor) ([]Student, error)
	GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (Student, error)
	GetStudentByUser(ctx context.Context, userID int, exec ...core.DBExecutor) (Student, error)
}

// ReportInvalidator drops cached reports that show class data.
type ReportInvalidator interface {
	InvalidateClass(ctx context.Context, classID int)
}

type Service struct {
	repo    Repository
	users   user.Repository
	tx      core.Transactor
	mailSvc core.EmailService
	reports ReportInvalidator
}

func NewService(repo Repository, users user.Repository, tx core.Transactor, mailSvc core.EmailService, reports ReportInvalidator) *Service {
	return &Service{repo: repo, users: users, tx: tx, mailSvc: mailSvc, reports: reports}
}

// ResolveActor loads the school profile linked to usr's role.
func (svc *Service) ResolveActor(ctx context.Context, usr user.User) (Actor, error) {
	actor := Actor{User: usr}
	switch {
	case usr.IsTeacher():
		t, err := svc.repo.GetTeacherByUser(ctx, usr.ID)
		if err != nil && !core.IsNotFound(err) {
			return Actor{}, errors.Wrap(err, "resolving teacher")
		}
		if err == nil {
			actor.Teacher = &t
		}
	case usr.IsStudent():
		s, err := svc.repo.GetStudentByUser(ctx, usr.ID)
		if err != nil && !core.IsNotFound(err) {
			return Actor{}, errors.Wrap(err, "resolving student")
		}
		if err == nil {
			actor.Student = &s
		}
	}
	return actor, nil
}

// Classes

func (svc *Service) CreateClass(ctx context.Context, actor Actor, nc NewClass) (Class, error) {
	if !actor.IsAdmin() {
		return Class{}, core.ErrPermissionDenied
	}
	now := time.Now().UTC()
	class, err := svc.repo.CreateClass(ctx, Class{Name: nc.Name, CreatedAt: now, UpdatedAt: now})
	if err == ErrClassNameExists {
		return Class{}, core.NewFieldError("name", err.Error())
	}
	return class, err
}

func (svc *Service) ListClasses(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryClasses(ctx)
}

func (svc *Service) GetClass(ctx context.Context, id int) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) UpdateClass(ctx context.Context, actor Actor, id int, uc UpdateClass) (Class, error) {
	if !actor.IsAdmin() {
		return Class{}, core.ErrPermissionDenied
	}
	class, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	renamed := class.Name != uc.Name
	class.Name = uc.Name
	class.UpdatedAt = time.Now().UTC()
	class, err = svc.repo.UpdateClass(ctx, class)
	if err == ErrClassNameExists {
		return Class{}, core.NewFieldError("name", err.Error())
	}
	if err != nil {
		return Class{}, err
	}
	if renamed {
		svc.reports.InvalidateClass(ctx, class.ID)
	}
	return class, nil
}

// DeleteClass removes a class that has no students left.
func (svc *Service) DeleteClass(ctx context.Context, actor Actor, id int) error {
	if !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetClass(ctx, id, exec); err != nil {
			return err
		}
		students, err := svc.repo.QueryStudents(ctx, StudentFilter{ClassID: id}, exec)
		if err != nil {
			return errors.Wrap(err, "querying class students")
		}
		if len(students) > 0 {
			return core.NewFieldError("class_id", ErrClassHasStudents.Error())
		}
		return svc.repo.DeleteClass(ctx, id, exec)
	})
}

// AssignHomeroom sets the homeroom teacher of a class; a nil teacherID clears it.
// Only main teachers qualify, a teacher is homeroom of at most one class and
// a class keeps its homeroom teacher until cleared.
func (svc *Service) AssignHomeroom(ctx context.Context, actor Actor, classID int, teacherID *int) (Class, error) {
	if !actor.IsAdmin() {
		return Class{}, core.ErrPermissionDenied
	}

	var class Class
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if class, err = svc.repo.GetClass(ctx, classID, exec); err != nil {
			return err
		}

		if teacherID == nil {
			class.HomeroomTeacherID = null.Int{}
		} else {
			teacher, err := svc.repo.GetTeacher(ctx, *teacherID, exec)
			if err != nil {
				return err
			}
			if !teacher.IsMainTeacher {
				return core.NewFieldError("teacher_id", ErrNotMainTeacher.Error())
			}
			if class.HomeroomTeacherID.Valid && class.HomeroomTeacherID.Int != teacher.ID {
				return core.NewFieldError("teacher_id", ErrHomeroomTaken.Error())
			}
			if teacher.HomeroomClassID.Valid && teacher.HomeroomClassID.Int != class.ID {
				return core.NewFieldError("teacher_id", ErrAlreadyHomeroom.Error())
			}
			class.HomeroomTeacherID = null.IntFrom(teacher.ID)
		}

		class.UpdatedAt = time.Now().UTC()
		class, err = svc.repo.UpdateClass(ctx, class, exec)
		return err
	})
	if err != nil {
		return Class{}, err
	}
	return class, nil
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, actor Actor, ns NewSubject) (Subject, error) {
	if !actor.IsAdmin() {
		return Subject{}, core.ErrPermissionDenied
	}
	subject, err := svc.repo.CreateSubject(ctx, Subject{Name: ns.Name, CreatedAt: time.Now().UTC()})
	if err == ErrSubjectNameExists {
		return Subject{}, core.NewFieldError("name", err.Error())
	}
	return subject, err
}

func (svc *Service) ListSubjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx)
}

func (svc *Service) DeleteSubject(ctx context.Context, actor Actor, id int) error {
	if !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetSubject(ctx, id); err != nil {
		return err
	}
	err := svc.repo.DeleteSubject(ctx, id)
	if err == ErrSubjectInUse {
		return core.NewFieldError("subject_id", err.Error())
	}
	return err
}

// Teachers

// CreateTeacher provisions a teacher account with one-time credentials, mailed when an email is known.
func (svc *Service) CreateTeacher(ctx context.Context, actor Actor, nt NewTeacher) (ProvisionedTeacher, error) {
	if !actor.IsAdmin() {
		return ProvisionedTeacher{}, core.ErrPermissionDenied
	}

	role := user.RoleTeacher
	if nt.IsMainTeacher {
		role = user.RoleMainTeacher
	}

	var prov ProvisionedTeacher
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		subjectIDs, err := svc.checkSubjects(ctx, nt.SubjectIDs, exec)
		if err != nil {
			return err
		}
		usr, pwd, err := svc.provisionUser(ctx, nt.Name, nt.Username, nt.Email, role, exec)
		if err != nil {
			return err
		}
		teacher, err := svc.repo.CreateTeacher(ctx, Teacher{
			UserID:        usr.ID,
			Name:          usr.Name,
			IsMainTeacher: nt.IsMainTeacher,
			SubjectIDs:    subjectIDs,
			CreatedAt:     usr.CreatedAt,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating teacher")
		}
		prov = ProvisionedTeacher{Teacher: teacher, Credentials: Credentials{Login: usr.Login(), Password: pwd}}
		return nil
	})
	if err != nil {
		return ProvisionedTeacher{}, err
	}

	svc.sendCredentials(prov.Teacher.Name, nt.Email, prov.Credentials)
	return prov, nil
}

func (svc *Service) ListTeachers(ctx context.Context, filter TeacherFilter) ([]Teacher, error) {
	return svc.repo.QueryTeachers(ctx, filter)
}

func (svc *Service) GetTeacher(ctx context.Context, id int) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

// SetTeacherSubjects replaces the subjects a teacher is assigned to.
func (svc *Service) SetTeacherSubjects(ctx context.Context, actor Actor, teacherID int, subjectIDs []int) (Teacher, error) {
	if !actor.IsAdmin() {
		return Teacher{}, core.ErrPermissionDenied
	}

	var teacher Teacher
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetTeacher(ctx, teacherID, exec); err != nil {
			return err
		}
		ids, err := svc.checkSubjects(ctx, subjectIDs, exec)
		if err != nil {
			return err
		}
		if err = svc.repo.SetTeacherSubjects(ctx, teacherID, ids, exec); err != nil {
			return errors.Wrap(err, "setting teacher subjects")
		}
		teacher, err = svc.repo.GetTeacher(ctx, teacherID, exec)
		return err
	})
	if err != nil {
		return Teacher{}, err
	}
	return teacher, nil
}

// Students

// CreateStudent provisions a student account in a class. Admins may add students to any class,
// main teachers only to their homeroom class.
func (svc *Service) CreateStudent(ctx context.Context, actor Actor, ns NewStudent) (ProvisionedStudent, error) {
	switch {
	case actor.IsAdmin():
	case actor.Teacher != nil && actor.Teacher.IsMainTeacher && actor.Teacher.IsHomeroomOf(ns.ClassID):
	default:
		return ProvisionedStudent{}, core.ErrPermissionDenied
	}

	var prov ProvisionedStudent
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		class, err := svc.repo.GetClass(ctx, ns.ClassID, exec)
		if err != nil {
			return err
		}
		usr, pwd, err := svc.provisionUser(ctx, ns.Name, ns.Username, ns.Email, user.RoleStudent, exec)
		if err != nil {
			return err
		}
		student, err := svc.repo.CreateStudent(ctx, Student{
			UserID:    usr.ID,
			Name:      usr.Name,
			ClassID:   class.ID,
			ClassName: class.Name,
			CreatedAt: usr.CreatedAt,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating student")
		}
		prov = ProvisionedStudent{Student: student, Credentials: Credentials{Login: usr.Login(), Password: pwd}}
		return nil
	})
	if err != nil {
		return ProvisionedStudent{}, err
	}

	svc.sendCredentials(prov.Student.Name, ns.Email, prov.Credentials)
	return prov, nil
}

// ListStudents is open to admins & teachers.
func (svc *Service) ListStudents(ctx context.Context, actor Actor, filter StudentFilter) ([]Student, error) {
	if !actor.IsAdmin() && actor.Teacher == nil {
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) GetStudent(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

// checkSubjects verifies every subject exists and returns the ids deduplicated.
func (svc *Service) checkSubjects(ctx context.Context, ids []int, exec core.DBExecutor) ([]int, error) {
	seen := make(map[int]bool, len(ids))
	clean := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := svc.repo.GetSubject(ctx, id, exec); err != nil {
			if core.IsNotFound(err) {
				return nil, core.NewFieldError("subject_ids", ErrSubjectNotFound.Error())
			}
			return nil, err
		}
		clean = append(clean, id)
	}
	return clean, nil
}

// provisionUser creates the user behind a teacher or student profile with a generated password.
// A username is derived from the name when neither a username nor an email is given.
func (svc *Service) provisionUser(ctx context.Context, name, uname, email, role string, exec core.DBExecutor) (user.User, string, error) {
	if uname == "" && email == "" {
		var err error
		if uname, err = svc.freeUsername(ctx, name, exec); err != nil {
			return user.User{}, "", err
		}
	}
	if err := svc.users.CheckUniqueness(ctx, uname, email, nil, exec); err != nil {
		switch err {
		case user.ErrUsernameExists:
			return user.User{}, "", core.NewFieldError("username", err.Error())
		case user.ErrEmailExists:
			return user.User{}, "", core.NewFieldError("email", err.Error())
		}
		return user.User{}, "", errors.Wrap(err, "checking user uniqueness")
	}

	pwd, err := user.GeneratePassword()
	if err != nil {
		return user.User{}, "", errors.Wrap(err, "generating password")
	}
	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  true,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, "", errors.Wrap(err, "setting password")
	}
	if usr, err = svc.users.CreateUser(ctx, usr, exec); err != nil {
		return user.User{}, "", errors.Wrap(err, "creating user")
	}
	return usr, pwd, nil
}

func (svc *Service) freeUsername(ctx context.Context, name string, exec core.DBExecutor) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}
	if len(base) > 20 {
		base = base[:20]
	}

	for attempt := 0; attempt < 10; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10000))
		if err != nil {
			return "", errors.Wrap(err, "generating username")
		}
		uname := base + leftPad(n.String(), 4)
		err = svc.users.CheckUniqueness(ctx, uname, "", nil, exec)
		if err == nil {
			return uname, nil
		}
		if err != user.ErrUsernameExists {
			return "", errors.Wrap(err, "checking username uniqueness")
		}
	}
	return "", core.NewFieldError("username", "could not generate a free username, please provide one")
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

func (svc *Service) sendCredentials(name, email string, creds Credentials) {
	if email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: email}},
		Subject:      "Your Academia account",
		TemplateName: "account_credentials",
		TemplateData: map[string]interface{}{
			"Name":     name,
			"Login":    creds.Login,
			"Password": creds.Password,
		},
	}
	svc.mailSvc.SendMessages(msg)
}

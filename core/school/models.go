package school

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type Class struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	HomeroomTeacherID null.Int  `json:"homeroom_teacher_id"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

type Subject struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Teacher struct {
	ID              int       `json:"id"`
	UserID          int       `json:"user_id"`
	Name            string    `json:"name"`
	IsMainTeacher   bool      `json:"is_main_teacher"`
	SubjectIDs      []int     `json:"subject_ids"`
	HomeroomClassID null.Int  `json:"homeroom_class_id"` // derived from classes.homeroom_teacher_id
	CreatedAt       time.Time `json:"created_at"`        // UTC
}

// Teaches reports whether the teacher is assigned to subjectID.
func (t Teacher) Teaches(subjectID int) bool {
	for _, id := range t.SubjectIDs {
		if id == subjectID {
			return true
		}
	}
	return false
}

// IsHomeroomOf reports whether the teacher is the homeroom teacher of classID.
func (t Teacher) IsHomeroomOf(classID int) bool {
	return t.HomeroomClassID.Valid && t.HomeroomClassID.Int == classID
}

type Student struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Name      string    `json:"name"`
	ClassID   int       `json:"class_id"`
	ClassName string    `json:"class_name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Actor is the authenticated user acting on the system, with the school profile its role links to.
// Parents act through their child's student login.
type Actor struct {
	User    user.User
	Teacher *Teacher
	Student *Student
}

func (a Actor) IsAdmin() bool { return a.User.IsAdmin() }

// IsStudent reports whether the actor is the given student.
func (a Actor) IsStudent(studentID int) bool {
	return a.Student != nil && a.Student.ID == studentID
}

// Credentials are the one-time sign-in details of a provisioned account.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type ProvisionedTeacher struct {
	Teacher     Teacher     `json:"teacher"`
	Credentials Credentials `json:"credentials"`
}

type ProvisionedStudent struct {
	Student     Student     `json:"student"`
	Credentials Credentials `json:"credentials"`
}

type NewClass struct {
	Name string `json:"name" validate:"required,notblank"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name string `json:"name" validate:"required,notblank"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	return validate.Struct(uc)
}

// SetHomeroom assigns (or with a nil TeacherID, clears) the homeroom teacher of a class.
type SetHomeroom struct {
	TeacherID *int `json:"teacher_id"`
}

type NewSubject struct {
	Name string `json:"name" validate:"required,notblank"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

type NewTeacher struct {
	Name          string `json:"name" validate:"required,notblank"`
	Username      string `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email         string `json:"email" validate:"omitempty,email"`
	IsMainTeacher bool   `json:"is_main_teacher"`
	SubjectIDs    []int  `json:"subject_ids" validate:"dive,min=1"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	cleanAccount(&nt.Name, &nt.Username, &nt.Email)
	return validate.Struct(nt)
}

type NewStudent struct {
	Name     string `json:"name" validate:"required,notblank"`
	Username string `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email    string `json:"email" validate:"omitempty,email"`
	ClassID  int    `json:"class_id" validate:"required,min=1"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	cleanAccount(&ns.Name, &ns.Username, &ns.Email)
	return validate.Struct(ns)
}

func cleanAccount(name, uname, email *string) {
	*name = core.CleanString(*name)
	*uname = core.CleanString(*uname, true /* lower */)
	*email = core.CleanString(*email, true /* lower */)
}

type SetTeacherSubjects struct {
	SubjectIDs []int `json:"subject_ids" validate:"dive,min=1"`
}

type StudentFilter struct {
	ClassID int `query:"class_id"`
}

type TeacherFilter struct {
	SubjectID int `query:"subject_id"`
}

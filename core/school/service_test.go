package school_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/school"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/tests"
)

func intPtr(i int) *int { return &i }

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	return verr.Fields[0].Field
}

func TestService_Classes(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := env.Admin(t, "admin1")
	teacher := env.Teacher(t, "teach1", false)

	class, err := env.SchoolSvc.CreateClass(ctx, admin, school.NewClass{Name: "5A"})
	require.NoError(t, err)
	assert.False(t, class.HomeroomTeacherID.Valid)

	_, err = env.SchoolSvc.CreateClass(ctx, admin, school.NewClass{Name: "5a"})
	assert.Equal(t, "name", fieldOf(t, err))

	_, err = env.SchoolSvc.CreateClass(ctx, teacher, school.NewClass{Name: "5B"})
	assert.Equal(t, core.ErrPermissionDenied, err)

	class, err = env.SchoolSvc.UpdateClass(ctx, admin, class.ID, school.UpdateClass{Name: "6A"})
	require.NoError(t, err)
	assert.Equal(t, "6A", class.Name)

	t.Run("delete", func(t *testing.T) {
		env.Student(t, "stud01", class)
		err := env.SchoolSvc.DeleteClass(ctx, admin, class.ID)
		assert.Equal(t, "class_id", fieldOf(t, err))

		empty := env.Class(t, "7A")
		require.NoError(t, env.SchoolSvc.DeleteClass(ctx, admin, empty.ID))
		_, err = env.SchoolSvc.GetClass(ctx, empty.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_AssignHomeroom(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := env.Admin(t, "admin1")
	c5a := env.Class(t, "5A")
	c5b := env.Class(t, "5B")
	main1 := env.Teacher(t, "main01", true)
	main2 := env.Teacher(t, "main02", true)
	plain := env.Teacher(t, "teach1", false)

	_, err := env.SchoolSvc.AssignHomeroom(ctx, plain, c5a.ID, &main1.Teacher.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = env.SchoolSvc.AssignHomeroom(ctx, admin, c5a.ID, &plain.Teacher.ID)
	assert.Equal(t, "teacher_id", fieldOf(t, err))

	class, err := env.SchoolSvc.AssignHomeroom(ctx, admin, c5a.ID, &main1.Teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, main1.Teacher.ID, class.HomeroomTeacherID.Int)

	// idempotent
	_, err = env.SchoolSvc.AssignHomeroom(ctx, admin, c5a.ID, &main1.Teacher.ID)
	require.NoError(t, err)

	_, err = env.SchoolSvc.AssignHomeroom(ctx, admin, c5a.ID, &main2.Teacher.ID)
	assert.Equal(t, "teacher_id", fieldOf(t, err), "class already has a homeroom teacher")

	_, err = env.SchoolSvc.AssignHomeroom(ctx, admin, c5b.ID, &main1.Teacher.ID)
	assert.Equal(t, "teacher_id", fieldOf(t, err), "teacher already homeroom elsewhere")

	_, err = env.SchoolSvc.AssignHomeroom(ctx, admin, c5b.ID, intPtr(999))
	assert.True(t, core.IsNotFound(err))

	teacher, err := env.SchoolSvc.GetTeacher(ctx, main1.Teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, c5a.ID, teacher.HomeroomClassID.Int)

	t.Run("clear then reassign", func(t *testing.T) {
		class, err := env.SchoolSvc.AssignHomeroom(ctx, admin, c5a.ID, nil)
		require.NoError(t, err)
		assert.False(t, class.HomeroomTeacherID.Valid)

		class, err = env.SchoolSvc.AssignHomeroom(ctx, admin, c5a.ID, &main2.Teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, main2.Teacher.ID, class.HomeroomTeacherID.Int)

		_, err = env.SchoolSvc.AssignHomeroom(ctx, admin, c5b.ID, &main1.Teacher.ID)
		require.NoError(t, err)
	})
}

func TestService_CreateTeacher(t *testing.T) {
	env := testutil.NewEnv(t)
	core.ParseEmailTemplates(env.Logger)
	ctx := context.Background()
	admin := env.Admin(t, "admin1")
	math := env.Subject(t, "Math")

	prov, err := env.SchoolSvc.CreateTeacher(ctx, admin, school.NewTeacher{
		Name:          "Marie Curie",
		Email:         "marie@test.cd",
		IsMainTeacher: true,
		SubjectIDs:    []int{math.ID, math.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{math.ID}, prov.Teacher.SubjectIDs)
	assert.True(t, prov.Teacher.IsMainTeacher)
	assert.Equal(t, "marie@test.cd", prov.Credentials.Login)
	assert.NotEmpty(t, prov.Credentials.Password)

	usr, err := env.UserSvc.GetByUsernameOrEmail(ctx, "marie@test.cd")
	require.NoError(t, err)
	assert.Equal(t, user.RoleMainTeacher, usr.Role)
	assert.NoError(t, usr.CheckPassword(prov.Credentials.Password))

	sent := env.Mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "marie@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, prov.Credentials.Password)

	t.Run("generated username", func(t *testing.T) {
		env.Mail.Reset()
		prov, err := env.SchoolSvc.CreateTeacher(ctx, admin, school.NewTeacher{Name: "Jean-Paul Ndoki"})
		require.NoError(t, err)
		assert.Regexp(t, `^jeanpaulndoki\d{4}$`, prov.Credentials.Login)
		assert.Empty(t, env.Mail.Sent())
	})

	t.Run("unknown subject writes nothing", func(t *testing.T) {
		_, err := env.SchoolSvc.CreateTeacher(ctx, admin, school.NewTeacher{Name: "Ghost", Username: "ghost01", SubjectIDs: []int{999}})
		assert.Equal(t, "subject_ids", fieldOf(t, err))

		_, err = env.UserSvc.GetByUsernameOrEmail(ctx, "ghost01")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("email taken", func(t *testing.T) {
		_, err := env.SchoolSvc.CreateTeacher(ctx, admin, school.NewTeacher{Name: "Other", Email: "marie@test.cd"})
		assert.Equal(t, "email", fieldOf(t, err))
	})

	t.Run("admins only", func(t *testing.T) {
		_, err := env.SchoolSvc.CreateTeacher(ctx, env.Teacher(t, "teach1", true), school.NewTeacher{Name: "Other"})
		assert.Equal(t, core.ErrPermissionDenied, err)
	})
}

func TestService_SetTeacherSubjects(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := env.Admin(t, "admin1")
	math := env.Subject(t, "Math")
	art := env.Subject(t, "Art")
	teacher := env.Teacher(t, "teach1", false, math.ID)

	got, err := env.SchoolSvc.SetTeacherSubjects(ctx, admin, teacher.Teacher.ID, []int{art.ID})
	require.NoError(t, err)
	assert.Equal(t, []int{art.ID}, got.SubjectIDs)

	_, err = env.SchoolSvc.SetTeacherSubjects(ctx, admin, teacher.Teacher.ID, []int{art.ID, 999})
	assert.Equal(t, "subject_ids", fieldOf(t, err))

	got, err = env.SchoolSvc.GetTeacher(ctx, teacher.Teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{art.ID}, got.SubjectIDs)

	teachers, err := env.SchoolSvc.ListTeachers(ctx, school.TeacherFilter{SubjectID: math.ID})
	require.NoError(t, err)
	assert.Empty(t, teachers)
}

func TestService_CreateStudent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := env.Admin(t, "admin1")
	c5a := env.Class(t, "5A")
	c5b := env.Class(t, "5B")
	homeroom := env.Homeroom(t, env.Teacher(t, "main01", true), c5a)
	plain := env.Teacher(t, "teach1", false)

	tests := []struct {
		name    string
		actor   school.Actor
		classID int
		wantErr error
	}{
		{name: "admin", actor: admin, classID: c5b.ID},
		{name: "homeroom teacher", actor: homeroom, classID: c5a.ID},
		{name: "homeroom teacher other class", actor: homeroom, classID: c5b.ID, wantErr: core.ErrPermissionDenied},
		{name: "teacher", actor: plain, classID: c5a.ID, wantErr: core.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov, err := env.SchoolSvc.CreateStudent(ctx, tt.actor, school.NewStudent{Name: "Kid " + tt.name, ClassID: tt.classID})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.classID, prov.Student.ClassID)
			assert.NotEmpty(t, prov.Credentials.Login)

			usr, err := env.UserSvc.GetByUsernameOrEmail(ctx, prov.Credentials.Login)
			require.NoError(t, err)
			actor := env.Actor(t, usr)
			require.NotNil(t, actor.Student)
			assert.Equal(t, prov.Student.ID, actor.Student.ID)
		})
	}

	t.Run("unknown class", func(t *testing.T) {
		_, err := env.SchoolSvc.CreateStudent(ctx, admin, school.NewStudent{Name: "Kid", ClassID: 999})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("list", func(t *testing.T) {
		students, err := env.SchoolSvc.ListStudents(ctx, plain, school.StudentFilter{ClassID: c5a.ID})
		require.NoError(t, err)
		assert.Len(t, students, 1)

		_, err = env.SchoolSvc.ListStudents(ctx, school.Actor{User: user.User{Role: user.RoleStudent}}, school.StudentFilter{})
		assert.Equal(t, core.ErrPermissionDenied, err)
	})
}

func TestModels_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	nc := school.NewClass{Name: "   "}
	assert.Error(t, nc.Validate(validate))

	ns := school.NewStudent{Name: " Ana ", Username: "ANA_001", ClassID: 1}
	require.NoError(t, ns.Validate(validate))
	assert.Equal(t, "Ana", ns.Name)
	assert.Equal(t, "ana_001", ns.Username)

	ns = school.NewStudent{Name: "Ana"}
	assert.Error(t, ns.Validate(validate))

	nt := school.NewTeacher{Name: "Bob", Email: "not-an-email"}
	assert.Error(t, nt.Validate(validate))
}

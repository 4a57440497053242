package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/school"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, svc *school.Service, validate *validator.Validate) {
	api := schoolApi{svc: svc, validate: validate}

	cg := g.Group("/classes")
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass, adminMiddleware())
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass, adminMiddleware())
	cg.DELETE("/:id", api.destroyClass, adminMiddleware())
	cg.PUT("/:id/homeroom", api.assignHomeroom, adminMiddleware())

	sg := g.Group("/subjects")
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, adminMiddleware())
	sg.DELETE("/:id", api.destroySubject, adminMiddleware())

	tg := g.Group("/teachers")
	tg.GET("", api.queryTeachers, staffMiddleware)
	tg.POST("", api.createTeacher, adminMiddleware())
	tg.GET("/:id", api.retrieveTeacher, staffMiddleware)
	tg.PUT("/:id/subjects", api.setTeacherSubjects, adminMiddleware())

	stg := g.Group("/students")
	stg.GET("", api.queryStudents)
	stg.POST("", api.createStudent)
	stg.GET("/:id", api.retrieveStudent)
}

// staffMiddleware lets admins & teachers through.
func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if actor, ok := getContextActor(ctx); ok && (actor.IsAdmin() || actor.Teacher != nil) {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// Classes

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	classes, err := api.svc.ListClasses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []school.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	class, err := api.svc.CreateClass(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	class, err := api.svc.GetClass(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data school.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	class, err := api.svc.UpdateClass(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteClass(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) assignHomeroom(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data school.SetHomeroom
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetHomeroom")
	}

	class, err := api.svc.AssignHomeroom(ctx.Request().Context(), actor, id, data.TeacherID)
	if err != nil {
		return errors.Wrap(err, "assigning homeroom teacher")
	}
	return ctx.JSON(http.StatusOK, class)
}

// Subjects

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	subjects, err := api.svc.ListSubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []school.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) createSubject(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewSubject
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	subject, err := api.svc.CreateSubject(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, subject)
}

func (api *schoolApi) destroySubject(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSubject(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Teachers

func (api *schoolApi) queryTeachers(ctx echo.Context) error {
	var filter school.TeacherFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Teacher{})
	}
	teachers, err := api.svc.ListTeachers(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []school.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *schoolApi) createTeacher(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewTeacher
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	prov, err := api.svc.CreateTeacher(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, prov)
}

func (api *schoolApi) retrieveTeacher(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	teacher, err := api.svc.GetTeacher(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding teacher by ID")
	}
	return ctx.JSON(http.StatusOK, teacher)
}

func (api *schoolApi) setTeacherSubjects(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data school.SetTeacherSubjects
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetTeacherSubjects")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	teacher, err := api.svc.SetTeacherSubjects(ctx.Request().Context(), actor, id, data.SubjectIDs)
	if err != nil {
		return errors.Wrap(err, "setting teacher subjects")
	}
	return ctx.JSON(http.StatusOK, teacher)
}

// Students

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var filter school.StudentFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Student{})
	}
	students, err := api.svc.ListStudents(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) createStudent(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data school.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	prov, err := api.svc.CreateStudent(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, prov)
}

// retrieveStudent is open to admins, teachers & the student themself.
func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if !(actor.IsAdmin() || actor.Teacher != nil || actor.IsStudent(id)) {
		return hideFromStudent(ctx, core.ErrPermissionDenied)
	}

	student, err := api.svc.GetStudent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	return ctx.JSON(http.StatusOK, student)
}

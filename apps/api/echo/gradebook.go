package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/gradebook"
)

type gradebookApi struct {
	svc      *gradebook.Service
	validate *validator.Validate
}

func registerGradebookAPI(g *echo.Group, svc *gradebook.Service, validate *validator.Validate) {
	api := gradebookApi{svc: svc, validate: validate}

	g.GET("/students/:id/grades", api.queryStudentGrades)
	g.GET("/students/:id/absences", api.queryStudentAbsences)

	gg := g.Group("/grades")
	gg.POST("", api.createGrade, teacherMiddleware)
	gg.DELETE("/:id", api.destroyGrade)

	ag := g.Group("/absences")
	ag.POST("", api.createAbsence, teacherMiddleware)
	ag.PUT("/:id/justify", api.justifyAbsence)
	ag.DELETE("/:id", api.destroyAbsence)

	tg := g.Group("/lesson-topics")
	tg.GET("", api.queryLessonTopics)
	tg.POST("", api.createLessonTopic, teacherMiddleware)
	tg.DELETE("/:id", api.destroyLessonTopic)
}

func (api *gradebookApi) queryStudentGrades(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	period, err := bindPeriod(ctx)
	if err != nil {
		return err
	}

	grades, err := api.svc.ListStudentGrades(ctx.Request().Context(), actor, id, period)
	if err != nil {
		return errors.Wrap(hideFromStudent(ctx, err), "querying student grades")
	}
	if grades == nil {
		grades = []gradebook.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradebookApi) queryStudentAbsences(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	period, err := bindPeriod(ctx)
	if err != nil {
		return err
	}

	absences, err := api.svc.ListStudentAbsences(ctx.Request().Context(), actor, id, period)
	if err != nil {
		return errors.Wrap(hideFromStudent(ctx, err), "querying student absences")
	}
	if absences == nil {
		absences = []gradebook.Absence{}
	}
	return ctx.JSON(http.StatusOK, absences)
}

// Grades

func (api *gradebookApi) createGrade(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data gradebook.NewGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	grade, err := api.svc.RecordGrade(ctx.Request().Context(), *actor.Teacher, data)
	if err != nil {
		return errors.Wrap(err, "recording grade")
	}
	return ctx.JSON(http.StatusCreated, grade)
}

func (api *gradebookApi) destroyGrade(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteGrade(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Absences

func (api *gradebookApi) createAbsence(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data gradebook.NewAbsence
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAbsence")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	absence, err := api.svc.RecordAbsence(ctx.Request().Context(), *actor.Teacher, data)
	if err != nil {
		return errors.Wrap(err, "recording absence")
	}
	return ctx.JSON(http.StatusCreated, absence)
}

func (api *gradebookApi) justifyAbsence(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data gradebook.JustifyAbsence
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JustifyAbsence")
	}

	absence, err := api.svc.JustifyAbsence(ctx.Request().Context(), actor, id, data.Justified)
	if err != nil {
		return errors.Wrap(err, "justifying absence")
	}
	return ctx.JSON(http.StatusOK, absence)
}

func (api *gradebookApi) destroyAbsence(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAbsence(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting absence")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lesson topics

func (api *gradebookApi) queryLessonTopics(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var filter gradebook.LessonTopicFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []gradebook.LessonTopic{})
	}

	topics, err := api.svc.ListLessonTopics(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying lesson topics")
	}
	if topics == nil {
		topics = []gradebook.LessonTopic{}
	}
	return ctx.JSON(http.StatusOK, topics)
}

func (api *gradebookApi) createLessonTopic(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data gradebook.NewLessonTopic
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLessonTopic")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	topic, err := api.svc.RecordLessonTopic(ctx.Request().Context(), *actor.Teacher, data)
	if err != nil {
		return errors.Wrap(err, "recording lesson topic")
	}
	return ctx.JSON(http.StatusCreated, topic)
}

func (api *gradebookApi) destroyLessonTopic(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLessonTopic(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting lesson topic")
	}
	return ctx.NoContent(http.StatusNoContent)
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/bulletin"
)

type bulletinApi struct {
	svc      *bulletin.Service
	validate *validator.Validate
}

func registerBulletinAPI(g *echo.Group, svc *bulletin.Service, validate *validator.Validate) {
	api := bulletinApi{svc: svc, validate: validate}

	g.GET("/announcements", api.queryAnnouncements)
	g.POST("/announcements", api.createAnnouncement)
	g.GET("/activities", api.queryActivities)
	g.POST("/activities", api.createActivity)
}

func (api *bulletinApi) queryAnnouncements(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	posts, err := api.svc.ListAnnouncements(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	if posts == nil {
		posts = []bulletin.Announcement{}
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *bulletinApi) createAnnouncement(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data bulletin.NewAnnouncement
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	post, err := api.svc.PublishAnnouncement(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "publishing announcement")
	}
	return ctx.JSON(http.StatusCreated, post)
}

func (api *bulletinApi) queryActivities(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	activities, err := api.svc.ListActivities(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	if activities == nil {
		activities = []bulletin.Activity{}
	}
	return ctx.JSON(http.StatusOK, activities)
}

func (api *bulletinApi) createActivity(ctx echo.Context) error {
	actor, err := mustContextActor(ctx)
	if err != nil {
		return err
	}
	var data bulletin.NewActivity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	activity, err := api.svc.PublishActivity(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "publishing activity")
	}
	return ctx.JSON(http.StatusCreated, activity)
}

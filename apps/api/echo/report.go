package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/report"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, svc *report.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/students/:id/report")
	rg.GET("", api.retrieve)
	rg.GET("/export", api.export)
}

// retrieve serves the report JSON as built (or cached) by the service, byte for byte.
func (api *reportApi) retrieve(ctx echo.Context) error {
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

	data, err := api.svc.GetPerformanceReportJSON(ctx.Request().Context(), actor, id, period)
	if err != nil {
		return errors.Wrap(hideFromStudent(ctx, err), "getting performance report")
	}
	return ctx.JSONBlob(http.StatusOK, data)
}

func (api *reportApi) export(ctx echo.Context) error {
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

	doc, err := api.svc.ExportPerformanceReportDocument(ctx.Request().Context(), actor, id, period)
	if err != nil {
		return errors.Wrap(hideFromStudent(ctx, err), "exporting performance report")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
	return ctx.Blob(http.StatusOK, doc.ContentType, doc.Content)
}

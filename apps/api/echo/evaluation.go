package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/queue"
	"github.com/wunderbyte/evasync/core/refdata"
)

type (
	evaluationApi struct {
		bindingSvc *binding.Service
		refdataSvc *refdata.Service
		queueSvc   *queue.Service
	}

	// SearchResponse mirrors the searchable-select contract of the host
	// platform: a capped list plus an optional warning.
	SearchResponse struct {
		Warnings string          `json:"warnings"`
		List     []refdata.Entry `json:"list"`
	}
)

func registerEvaluationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := evaluationApi{
		bindingSvc: deps.BindingSvc,
		refdataSvc: deps.RefdataSvc,
		queueSvc:   deps.QueueSvc,
	}

	// reference data for the settings/form UIs
	rg := g.Group("/evasys", jwt, requireService)
	rg.GET("/subunits", api.subunits)
	rg.GET("/periods", api.periods)
	rg.GET("/forms", api.forms)
	rg.GET("/recipients", api.recipients)
	rg.POST("/forms/refresh", api.refreshForms)

	// per-option evaluation binding
	og := g.Group("/options/:id/evaluation", jwt, requireService)
	og.GET("", api.retrieve)
	og.PUT("", api.save)
	og.GET("/jobs", api.jobs)
}

// Handlers

func (api *evaluationApi) subunits(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.refdataSvc.Subunits(ctx.Request().Context()))
}

func (api *evaluationApi) periods(ctx echo.Context) error {
	list, warning := api.refdataSvc.SearchPeriods(ctx.Request().Context(), ctx.QueryParam("search"))
	return ctx.JSON(http.StatusOK, SearchResponse{Warnings: warning, List: list})
}

func (api *evaluationApi) forms(ctx echo.Context) error {
	list, warning := api.refdataSvc.SearchForms(ctx.Request().Context(), ctx.QueryParam("search"))
	return ctx.JSON(http.StatusOK, SearchResponse{Warnings: warning, List: list})
}

func (api *evaluationApi) recipients(ctx echo.Context) error {
	recipients, err := api.bindingSvc.Recipients(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying recipients")
	}
	return ctx.JSON(http.StatusOK, recipients)
}

func (api *evaluationApi) refreshForms(ctx echo.Context) error {
	api.refdataSvc.InvalidateForms()
	if _, err := api.refdataSvc.FormTitles(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "refreshing form titles")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *evaluationApi) retrieve(ctx echo.Context) error {
	optionID, err := optionID(ctx)
	if err != nil {
		return err
	}
	b, err := api.bindingSvc.GetByOption(ctx.Request().Context(), optionID)
	if err != nil {
		if errors.Cause(err) == binding.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting binding")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *evaluationApi) save(ctx echo.Context) error {
	optionID, err := optionID(ctx)
	if err != nil {
		return err
	}
	var data binding.FormData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FormData")
	}
	modifiedBy, _ := strconv.Atoi(ctx.QueryParam("user"))

	b, err := api.bindingSvc.SaveForm(ctx.Request().Context(), optionID, data, modifiedBy)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *evaluationApi) jobs(ctx echo.Context) error {
	optionID, err := optionID(ctx)
	if err != nil {
		return err
	}
	jobs, err := api.queueSvc.Pending(ctx.Request().Context(), optionID)
	if err != nil {
		return errors.Wrap(err, "querying jobs")
	}
	return ctx.JSON(http.StatusOK, jobs)
}

func optionID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sensorhub/annotator/internal/species"
)

// SearchSpecies returns species matching the search query parameter.
func (c *Controller) SearchSpecies(ctx echo.Context) error {
	results, err := c.species.Search(ctx.Request().Context(), ctx.QueryParam("search"))
	if err != nil {
		return c.HandleError(ctx, err, "Species search failed", 0)
	}
	if results == nil {
		results = []species.Species{}
	}
	return ctx.JSON(http.StatusOK, results)
}

// CreateSpecies adds a species on the backend.
func (c *Controller) CreateSpecies(ctx echo.Context) error {
	var req species.Species
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	created, err := c.species.Create(ctx.Request().Context(), req)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to create species", 0)
	}
	return ctx.JSON(http.StatusCreated, created)
}

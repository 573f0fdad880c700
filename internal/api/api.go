// Package api is the local JSON API a host UI drives the annotation editor through.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/species"
)

// PathPrefix is where the API is mounted.
const PathPrefix = "/api/v1"

// SpeciesLookup is the species search used by the host's species picker.
type SpeciesLookup interface {
	Search(ctx context.Context, query string) ([]species.Species, error)
	Create(ctx context.Context, sp species.Species) (species.Species, error)
}

// Controller owns the API routes.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	sessions *SessionRegistry
	species  SpeciesLookup
	build    *buildinfo.Context
	started  time.Time
	log      logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSpecies enables the species routes.
func WithSpecies(s SpeciesLookup) Option {
	return func(c *Controller) { c.species = s }
}

// WithMetrics serves h at path outside the API prefix.
func WithMetrics(path string, h http.Handler) Option {
	return func(c *Controller) {
		c.Echo.GET(path, echo.WrapHandler(h))
	}
}

// WithBuildInfo reports version details on the health route.
func WithBuildInfo(b *buildinfo.Context) Option {
	return func(c *Controller) { c.build = b }
}

// WithLogger sets the controller logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// New registers the API routes on e.
func New(e *echo.Echo, sessions *SessionRegistry, opts ...Option) *Controller {
	c := &Controller{
		Echo:     e,
		Group:    e.Group(PathPrefix),
		sessions: sessions,
		started:  time.Now(),
		log:      logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	files := c.Group.Group("/files/:file")
	files.POST("/session", c.OpenSession)
	files.DELETE("/session", c.CloseSession)
	files.GET("/overlay", c.GetOverlay)
	files.GET("/rows", c.ListRows)
	files.POST("/rows", c.AddRow)
	files.PUT("/rows/:index", c.EditRow)
	files.DELETE("/rows/:index", c.DeleteRow)
	files.POST("/rows/:index/copy", c.CopyRow)
	files.POST("/rows/:index/box", c.BeginBox)
	files.DELETE("/box", c.CancelBox)
	files.POST("/pointer", c.PointerEvent)
	files.PUT("/hover", c.SetHover)
	files.POST("/save", c.Save)
	files.GET("/toasts", c.DrainToasts)

	if c.species != nil {
		c.Group.GET("/species", c.SearchSpecies)
		c.Group.POST("/species", c.CreateSpecies)
	}
}

// HealthCheck reports liveness and the number of open sessions.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.started)
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        c.build.GetVersion(),
		"build_date":     c.build.GetBuildDate(),
		"sessions":       c.sessions.Len(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

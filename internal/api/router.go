// Package api wires the HTTP surface: gin routes, middleware and Prometheus exposition.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ldes-markets/internal/api/handlers"
	"ldes-markets/internal/api/middleware"
	"ldes-markets/internal/api/models"
	"ldes-markets/internal/config"
	"ldes-markets/internal/experiment"
	"ldes-markets/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router needs. Persist and Gatherer are optional.
type Deps struct {
	Base           config.RunConfig
	TechnologyFile string
	Source         handlers.DatasetSource
	Runner         *experiment.Runner
	Cache          *store.RunCache
	Persist        store.Store
	Gatherer       prometheus.Gatherer
	Logger         zerolog.Logger
	AllowedOrigins []string
	// StaticDir, when it exists, is served as a single-page app for non-API paths.
	StaticDir string
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(d.AllowedOrigins...))
	router.Use(middleware.Logger(d.Logger))

	runs := handlers.NewRunHandler(handlers.RunDeps{
		Base:    d.Base,
		Source:  d.Source,
		Runner:  d.Runner,
		Cache:   d.Cache,
		Persist: d.Persist,
		Logger:  d.Logger,
	})
	formulations := handlers.NewFormulationHandler(d.Base)
	technologies := handlers.NewTechnologyHandler(d.TechnologyFile, d.Logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/runs", runs.ListRuns)
		v1.POST("/runs", runs.RunMarket)
		v1.POST("/runs/compare", runs.CompareRuns)
		v1.GET("/runs/:id", runs.GetRun)
		v1.GET("/runs/:id/trace", runs.GetTrace)
		v1.GET("/runs/:id/prices", runs.GetPrices)
		v1.GET("/runs/:id/rents", runs.GetRents)

		v1.GET("/formulations", formulations.ListFormulations)
		v1.GET("/technologies", technologies.ListTechnologies)
		v1.GET("/scenarios", runs.ListScenarios)
	}

	spa := false
	if d.StaticDir != "" {
		if info, err := os.Stat(d.StaticDir); err == nil && info.IsDir() {
			router.Static("/assets", filepath.Join(d.StaticDir, "assets"))
			router.StaticFile("/favicon.ico", filepath.Join(d.StaticDir, "favicon.ico"))
			spa = true
		} else {
			d.Logger.Info().Str("dir", d.StaticDir).Msg("static directory not found, skipping static file serving")
		}
	}
	router.NoRoute(func(c *gin.Context) {
		if spa && !strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.File(filepath.Join(d.StaticDir, "index.html"))
			return
		}
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: "Not found"},
		})
	})
	return router
}

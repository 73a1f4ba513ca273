package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ldes-markets/internal/api"
	"ldes-markets/internal/api/handlers"
	"ldes-markets/internal/config"
	"ldes-markets/internal/experiment"
	"ldes-markets/internal/logging"
	"ldes-markets/internal/observability"
	"ldes-markets/internal/solver"
	"ldes-markets/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("MARKETS_CONFIG"), "Path to YAML config")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics, err := observability.NewRunCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("register metrics")
	}
	runner := experiment.NewRunner(
		solver.NewCVX(cfg.Solver.Options(false)),
		experiment.WithLogger(logger),
		experiment.WithObserver(metrics),
	)

	cache := store.NewRunCache(24*time.Hour, 10*time.Minute)
	defer cache.Close()

	deps := api.Deps{
		Base:           cfg.Run,
		TechnologyFile: cfg.DatasetFile,
		Source:         handlers.FileSource(cfg.DatasetFile, cfg.SeriesDir),
		Runner:         runner,
		Cache:          cache,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         logger,
		StaticDir:      os.Getenv("STATIC_DIR"),
	}
	if deps.StaticDir == "" {
		deps.StaticDir = "./web/dist"
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		deps.AllowedOrigins = strings.Split(origins, ",")
	}

	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), cfg.PostgresDSN); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := store.OpenPostgres(ctx, dsn)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer pg.Close()
		deps.Persist = pg
		log.Info().Msg("persisting runs to postgres")
	}

	if cfg.DatasetFile == "" || cfg.SeriesDir == "" {
		log.Warn().Msg("dataset_file or series_dir not configured; run endpoints will fail")
	}

	router := api.NewRouter(deps)
	addr := fmt.Sprintf(":%s", port)
	log.Info().Str("addr", addr).Msg("starting API server")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

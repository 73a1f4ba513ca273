package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ldes-markets/internal/admm"
	"ldes-markets/internal/analysis"
	"ldes-markets/internal/api/models"
	"ldes-markets/internal/config"
	"ldes-markets/internal/data"
	"ldes-markets/internal/experiment"
	"ldes-markets/internal/market"
	"ldes-markets/internal/model"
	"ldes-markets/internal/report"
	"ldes-markets/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DatasetSource builds the dataset for a run.
type DatasetSource func(opts data.Options) (*model.Dataset, error)

// FileSource loads datasets from a technology file and a series directory.
func FileSource(technologyPath, seriesDir string) DatasetSource {
	return func(opts data.Options) (*model.Dataset, error) {
		return data.Load(technologyPath, seriesDir, opts)
	}
}

// RunHandler handles run-related requests
type RunHandler struct {
	base    config.RunConfig
	source  DatasetSource
	runner  *experiment.Runner
	cache   *store.RunCache
	persist store.Store
	log     zerolog.Logger
}

// RunDeps are the collaborators of a RunHandler. Persist is optional.
type RunDeps struct {
	Base    config.RunConfig
	Source  DatasetSource
	Runner  *experiment.Runner
	Cache   *store.RunCache
	Persist store.Store
	Logger  zerolog.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(d RunDeps) *RunHandler {
	return &RunHandler{
		base:    d.Base,
		source:  d.Source,
		runner:  d.Runner,
		cache:   d.Cache,
		persist: d.Persist,
		log:     d.Logger,
	}
}

func abort(c *gin.Context, status int, code, msg string, details map[string]interface{}) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: msg, Details: details},
	})
}

// configError marks a request whose merged run configuration is invalid.
type configError struct{ err error }

func (e *configError) Error() string { return "invalid run config: " + e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// runError maps a run failure to a status and error code.
func runError(c *gin.Context, err error) {
	var ie *admm.IterationError
	var ce *configError
	switch {
	case errors.As(err, &ce):
		abort(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
	case errors.Is(err, model.ErrDataInconsistency):
		abort(c, http.StatusBadRequest, "DATA_INCONSISTENCY", err.Error(), nil)
	case errors.As(err, &ie):
		abort(c, http.StatusInternalServerError, "RUN_FAILED", err.Error(), map[string]interface{}{
			"iteration": ie.Iteration,
			"stage":     ie.Stage,
			"agent":     ie.Agent,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abort(c, http.StatusServiceUnavailable, "CANCELLED", err.Error(), nil)
	default:
		abort(c, http.StatusInternalServerError, "RUN_FAILED", err.Error(), nil)
	}
}

// execute runs one comparison and records it in the cache and, when configured, the
// persistent store. The returned run is recorded even when err is non-nil.
func (h *RunHandler) execute(ctx context.Context, rc config.RunConfig) (*store.Run, *model.Dataset, error) {
	run := store.NewRun(rc.Delta, rc.Psi)
	log := h.log.With().Str("run_id", run.ID).Logger()
	if cerr := h.cache.SaveRun(ctx, run); cerr != nil {
		log.Error().Err(cerr).Msg("failed to cache run")
	}

	ds, cmp, err := h.compare(ctx, rc)
	run.Finish(cmp, err)
	if cerr := h.cache.SaveRun(ctx, run); cerr != nil {
		log.Error().Err(cerr).Msg("failed to cache run")
	}
	if err != nil {
		log.Warn().Err(err).Msg("run failed")
	} else {
		log.Info().Str("outcome", run.Outcome).Msg("run finished")
	}

	if h.persist != nil {
		if perr := h.persist.SaveRun(ctx, run); perr != nil {
			log.Error().Err(perr).Msg("failed to persist run")
		} else if trace := run.Trace(); trace != nil {
			if perr := h.persist.SaveTrace(ctx, run.ID, trace); perr != nil {
				log.Error().Err(perr).Msg("failed to persist trace")
			}
		}
	}
	return run, ds, err
}

func (h *RunHandler) compare(ctx context.Context, rc config.RunConfig) (*model.Dataset, *experiment.Comparison, error) {
	if err := rc.Validate(); err != nil {
		return nil, nil, &configError{err}
	}
	settings, err := rc.ADMMSettings()
	if err != nil {
		return nil, nil, &configError{err}
	}
	ds, err := h.source(rc.DataOptions())
	if err != nil {
		return nil, nil, err
	}
	cmp, err := h.runner.Run(ctx, ds, settings)
	return ds, cmp, err
}

func (h *RunHandler) runConfig(override config.RunConfig, delta *float64) config.RunConfig {
	rc := config.MergeRun(h.base, override)
	if delta != nil {
		rc = rc.WithDelta(*delta)
	}
	return rc
}

// RunMarket handles POST /api/v1/runs
func (h *RunHandler) RunMarket(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	run, ds, err := h.execute(c.Request.Context(), h.runConfig(req.Config, req.Delta))
	if err != nil {
		runError(c, err)
		return
	}
	resp := runResponse(run)
	if req.IncludeLedger {
		resp.Ledger = ledger(ds, run.Comparison, h.log)
	}
	c.JSON(http.StatusOK, resp)
}

// loadRun looks in the cache first, then in the persistent store.
func (h *RunHandler) loadRun(ctx context.Context, id string) (*store.Run, error) {
	run, err := h.cache.LoadRun(ctx, id)
	if err == nil || h.persist == nil {
		return run, err
	}
	return h.persist.LoadRun(ctx, id)
}

func (h *RunHandler) lookup(c *gin.Context) (*store.Run, bool) {
	id := c.Param("id")
	run, err := h.loadRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abort(c, http.StatusNotFound, "RUN_NOT_FOUND", "no run with id "+id, nil)
		return nil, false
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil)
		return nil, false
	}
	return run, true
}

// ListRuns handles GET /api/v1/runs. ?limit caps the number returned.
func (h *RunHandler) ListRuns(c *gin.Context) {
	runs := h.cache.List()
	if q := c.Query("limit"); q != "" {
		n, err := parsePositive(q)
		if err != nil {
			abort(c, http.StatusBadRequest, "INVALID_REQUEST", "limit: "+err.Error(), nil)
			return
		}
		if n < len(runs) {
			runs = runs[:n]
		}
	}
	resp := models.RunListResponse{Runs: make([]models.RunResponse, 0, len(runs))}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, runResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, runResponse(run))
}

// GetTrace handles GET /api/v1/runs/:id/trace. ?format=csv returns the CSV report.
func (h *RunHandler) GetTrace(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	trace, err := h.cache.LoadTrace(c.Request.Context(), run.ID)
	if err != nil && h.persist != nil {
		trace, err = h.persist.LoadTrace(c.Request.Context(), run.ID)
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil)
		return
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		if err := report.WriteTraceCSV(c.Writer, trace); err != nil {
			h.log.Error().Err(err).Msg("write trace csv")
		}
		return
	}
	resp := models.TraceResponse{ID: run.ID, Trace: make([]models.IterationInfo, 0, len(trace))}
	for _, r := range trace {
		resp.Trace = append(resp.Trace, models.IterationInfo{
			Iteration:    r.K,
			Primal:       r.Primal,
			Dual:         r.Dual,
			Objective:    r.Objective,
			SolveSeconds: r.SolveTime.Seconds(),
			Clamped:      r.Clamped,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// CompareRuns handles POST /api/v1/runs/compare
func (h *RunHandler) CompareRuns(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	base := config.MergeRun(h.base, req.BaseConfig)
	out := make([]models.ComparisonResult, 0, len(req.Variations))
	for _, v := range req.Variations {
		rc := config.MergeRun(base, v.Config)
		if v.Delta != nil {
			rc = rc.WithDelta(*v.Delta)
		}
		run, _, err := h.execute(c.Request.Context(), rc)
		res := models.ComparisonResult{Name: v.Name, RunID: run.ID}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				runError(c, err)
				return
			}
			res.Error = err.Error()
		} else {
			res.Outcome = run.Outcome
			res.Summary = summary(run)
		}
		out = append(out, res)
	}
	c.JSON(http.StatusOK, models.CompareResponse{Comparison: out})
}

// GetPrices handles GET /api/v1/runs/:id/prices: scenarios ranked by arbitrage value.
func (h *RunHandler) GetPrices(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	if run.Comparison == nil {
		abort(c, http.StatusConflict, "RUN_NOT_DONE", "run has no results", nil)
		return
	}
	limit := len(run.Comparison.PriceStats)
	if q := c.Query("limit"); q != "" {
		if n, err := parsePositive(q); err == nil && n < limit {
			limit = n
		}
	}
	resp := models.PriceRankResponse{Rankings: []models.ScenarioRanking{}}
	for i, s := range analysis.RankByArbitrageValue(run.Comparison.PriceStats) {
		if i >= limit {
			break
		}
		resp.Rankings = append(resp.Rankings, models.ScenarioRanking{Rank: i + 1, PriceStats: s})
	}
	c.JSON(http.StatusOK, resp)
}

// GetRents handles GET /api/v1/runs/:id/rents
func (h *RunHandler) GetRents(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	if run.Comparison == nil {
		abort(c, http.StatusConflict, "RUN_NOT_DONE", "run has no results", nil)
		return
	}
	c.JSON(http.StatusOK, models.RentsResponse{
		Rents:       run.Comparison.Rents,
		Complete:    run.Comparison.CompleteRents,
		PayoffRisks: run.Comparison.PayoffRisks,
	})
}

func runResponse(run *store.Run) models.RunResponse {
	return models.RunResponse{
		ID:         run.ID,
		Status:     string(run.Status),
		Outcome:    run.Outcome,
		Iterations: run.Iterations,
		CreatedAt:  run.CreatedAt,
		Summary:    summary(run),
		Error:      run.Error,
	}
}

func summary(run *store.Run) *models.RunSummary {
	cmp := run.Comparison
	if cmp == nil {
		return nil
	}
	return &models.RunSummary{
		Delta:             cmp.Risk.Delta,
		Psi:               cmp.Risk.Psi,
		CompleteWelfare:   cmp.CompleteWelfare,
		IncompleteWelfare: cmp.IncompleteWelfare,
		WelfareLoss:       cmp.WelfareLoss,
		Gap:               cmp.Gap,
	}
}

func ledger(ds *model.Dataset, cmp *experiment.Comparison, log zerolog.Logger) []models.LedgerRow {
	if ds == nil || cmp == nil || cmp.Incomplete == nil {
		return nil
	}
	var out []models.LedgerRow
	for _, p := range cmp.Incomplete.Participants {
		if p.Kind != market.KindStorage {
			continue
		}
		rows, err := report.BuildLedger(ds, cmp.Incomplete.Prices, p)
		if err != nil {
			log.Warn().Err(err).Str("storage", p.ID).Msg("skip ledger")
			continue
		}
		for _, r := range rows {
			out = append(out, models.LedgerRow{
				Scenario:    r.Scenario,
				Time:        r.Time,
				Storage:     r.Storage,
				Price:       r.Price,
				Weight:      r.Weight,
				Action:      string(r.Action),
				ChargeMW:    r.ChargeMW,
				DischargeMW: r.DischargeMW,
				SOCMWh:      r.SOCMWh,
				Revenue:     r.Revenue,
				CumRevenue:  r.CumRevenue,
			})
		}
	}
	return out
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return n, nil
}

package handlers

import (
	"errors"
	"net/http"

	"ldes-markets/internal/api/models"
	"ldes-markets/internal/model"

	"github.com/gin-gonic/gin"
)

// ListScenarios handles GET /api/v1/scenarios: the scenarios of the configured dataset under
// the server's default run options.
func (h *RunHandler) ListScenarios(c *gin.Context) {
	ds, err := h.source(h.base.DataOptions())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrDataInconsistency) {
			status = http.StatusUnprocessableEntity
		}
		abort(c, status, "DATASET_LOAD_ERROR", err.Error(), nil)
		return
	}
	scenarios := make([]models.ScenarioInfo, len(ds.Scenarios))
	for o, sc := range ds.Scenarios {
		scenarios[o] = models.ScenarioInfo{
			ID:          sc.ID,
			Probability: sc.Probability,
			Hours:       ds.Weights.ScenarioSum(o),
		}
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": scenarios, "time_steps": ds.NT()})
}

package handlers

import (
	"net/http"

	"ldes-markets/internal/api/models"
	"ldes-markets/internal/config"

	"github.com/gin-gonic/gin"
)

// FormulationHandler describes the two market formulations and their parameters.
type FormulationHandler struct {
	defaults config.RunConfig
}

func NewFormulationHandler(defaults config.RunConfig) *FormulationHandler {
	return &FormulationHandler{defaults: defaults}
}

// ListFormulations handles GET /api/v1/formulations
func (h *FormulationHandler) ListFormulations(c *gin.Context) {
	d := h.defaults
	risk := []models.ParameterInfo{
		{Name: "delta", Type: "float", Description: "Weight on expected profit; 1 is risk neutral, 0 optimises the CVaR tail only", Default: d.Delta},
		{Name: "psi", Type: "float", Description: "Probability mass of the CVaR tail", Default: d.Psi},
		{Name: "voll", Type: "float", Description: "Value of served load ($/MWh)", Default: d.VOLL},
		{Name: "peak_demand", Type: "float", Description: "Demand scale (MW)", Default: d.PeakDemand},
		{Name: "flexible_demand", Type: "float", Description: "Price-elastic share of demand (0..1)", Default: d.Flexible()},
		{Name: "use_hierarchical_clustering", Type: "bool", Description: "Use the supplied representative-period weights", Default: d.UsesClustering()},
	}
	decomposed := append(append([]models.ParameterInfo(nil), risk...),
		models.ParameterInfo{Name: "max_iterations", Type: "int", Description: "Iteration budget", Default: d.MaxIterations},
		models.ParameterInfo{Name: "penalty", Type: "float", Description: "ADMM penalty rho", Default: d.Penalty},
		models.ParameterInfo{Name: "tolerance", Type: "float", Description: "Factor on sqrt(participants*|T|*|O|) for both residuals", Default: d.Tolerance},
		models.ParameterInfo{Name: "consumer_penalty", Type: "string", Description: "Consumer penalty weighting: probability or risk_adjusted", Default: d.ConsumerPenalty},
		models.ParameterInfo{Name: "dual_residual", Type: "string", Description: "Dual residual norm: per_block or combined", Default: d.DualResidual},
		models.ParameterInfo{Name: "parallel", Type: "bool", Description: "Solve agent subproblems concurrently", Default: d.IsParallel()},
	)

	formulations := []models.FormulationInfo{
		{
			Name:        "complete",
			Description: "Central planner maximising risk-adjusted welfare in one convex program; prices are the balance duals.",
			Parameters:  risk,
		},
		{
			Name:        "incomplete",
			Description: "Each generator, storage unit and the consumer maximises its own risk-adjusted profit; ADMM discovers clearing prices.",
			Parameters:  decomposed,
		},
	}
	c.JSON(http.StatusOK, gin.H{"formulations": formulations})
}

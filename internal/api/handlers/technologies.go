package handlers

import (
	"net/http"

	"ldes-markets/internal/api/models"
	"ldes-markets/internal/data"
	"ldes-markets/internal/market"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// TechnologyHandler serves the technology catalogue
type TechnologyHandler struct {
	path string
	log  zerolog.Logger
}

func NewTechnologyHandler(path string, log zerolog.Logger) *TechnologyHandler {
	return &TechnologyHandler{path: path, log: log}
}

// ListTechnologies handles GET /api/v1/technologies
func (h *TechnologyHandler) ListTechnologies(c *gin.Context) {
	if h.path == "" {
		abort(c, http.StatusNotFound, "NO_CATALOGUE", "no technology file configured", nil)
		return
	}
	f, err := data.LoadTechnologies(h.path)
	if err != nil {
		h.log.Error().Err(err).Str("path", h.path).Msg("load technologies")
		abort(c, http.StatusInternalServerError, "CATALOGUE_LOAD_ERROR", err.Error(), nil)
		return
	}
	gens, stors, err := f.Models()
	if err != nil {
		abort(c, http.StatusInternalServerError, "CATALOGUE_INVALID", err.Error(), nil)
		return
	}

	techs := make([]models.TechnologyInfo, 0, len(gens)+len(stors))
	for _, g := range gens {
		_, fixed := g.FixedCapacity()
		techs = append(techs, models.TechnologyInfo{
			ID:              g.ID,
			Kind:            market.KindGenerator,
			Class:           g.Class,
			CRF:             g.CRF(),
			AnnualizedCosts: map[string]float64{market.CapacityGeneration: g.AnnualizedInvCost()},
			Fixed:           fixed,
		})
	}
	for _, s := range stors {
		_, fp := s.FixedPower()
		_, fe := s.FixedEnergy()
		techs = append(techs, models.TechnologyInfo{
			ID:    s.ID,
			Kind:  market.KindStorage,
			Class: s.Class,
			CRF:   s.CRF(),
			AnnualizedCosts: map[string]float64{
				market.CapacityPower:  s.AnnualizedPowerCost(),
				market.CapacityEnergy: s.AnnualizedEnergyCost(),
			},
			Fixed: fp && fe,
		})
	}
	c.JSON(http.StatusOK, gin.H{"technologies": techs})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/pkg/errors"
)

const maxStatsTopN = 50

// CatalogHandler serves read-only views over stored cases.
type CatalogHandler struct {
	svc catalog.Service
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(svc catalog.Service) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// RegisterRoutes mounts the handler under rg.
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/cases", h.List)
	rg.GET("/cases/:id", h.Get)
	rg.GET("/cases/:id/facts", h.Facts)
	rg.GET("/stats", h.Stats)
	rg.GET("/filters", h.FilterValues)
}

// List handles GET /cases?section=&court=&template_id=&q=&page=&page_size=.
func (h *CatalogHandler) List(c *gin.Context) {
	var filter casefile.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid filter"))
		return
	}
	page, err := h.svc.List(c.Request.Context(), filter, parsePagination(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, page)
}

// Get handles GET /cases/:id.
func (h *CatalogHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, rec)
}

// Facts handles GET /cases/:id/facts.
func (h *CatalogHandler) Facts(c *gin.Context) {
	facts, err := h.svc.Facts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, facts)
}

// Stats handles GET /stats?top=N.
func (h *CatalogHandler) Stats(c *gin.Context) {
	topN := 0
	if v := c.Query("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxStatsTopN {
			respondError(c, errors.InvalidParam("top must be between 0 and 50"))
			return
		}
		topN = n
	}
	stats, err := h.svc.Stats(c.Request.Context(), topN)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

// FilterValues handles GET /filters.
func (h *CatalogHandler) FilterValues(c *gin.Context) {
	values, err := h.svc.FilterValues(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, values)
}

//Personal.AI order the ending

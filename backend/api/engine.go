package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lattice/backend/service/health"
)

type probeResultsRequest struct {
	Results []health.ProbeResult `json:"results" binding:"required"`
}

func (r *Router) applyProbeResults(c *gin.Context) {
	var req probeResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	affected, err := r.service.Engine().ApplyProbeResults(c.Request.Context(), req.Results)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affectedGroups": affected})
}

func (r *Router) compile(c *gin.Context) {
	cfg, err := r.service.Engine().Compile(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// getCompiled 返回 last-known-good 与最近一次编译的错误（如有）
func (r *Router) getCompiled(c *gin.Context) {
	eng := r.service.Engine()
	latest := eng.Latest()
	at, lastErr := eng.Status()
	if latest == nil {
		resp := gin.H{"error": "no compiled config yet"}
		if lastErr != nil {
			resp["lastError"] = lastErr.Error()
		}
		c.JSON(http.StatusNotFound, resp)
		return
	}
	resp := gin.H{"config": latest}
	if !at.IsZero() {
		resp["compiledAt"] = at
	}
	if lastErr != nil {
		resp["lastError"] = lastErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) canonicalCategory(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		badRequest(c, errors.New("missing 'id' parameter"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "category": r.service.Engine().CanonicalCategory(id)})
}

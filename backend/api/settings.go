package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lattice/backend/domain"
)

func (r *Router) getDNS(c *gin.Context) {
	settings, err := r.service.GetDNS(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (r *Router) updateDNS(c *gin.Context) {
	var req domain.DNSSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := r.service.UpdateDNS(c.Request.Context(), req)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type inboundRequest struct {
	Mode domain.InboundMode `json:"mode" binding:"required"`
}

func (r *Router) getInboundMode(c *gin.Context) {
	mode, err := r.service.GetInboundMode(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

func (r *Router) updateInboundMode(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := r.service.UpdateInboundMode(c.Request.Context(), req.Mode)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lattice/backend/domain"
)

func (r *Router) listRuleSets(c *gin.Context) {
	items, err := r.service.RuleSets().List(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ruleSets": items})
}

func (r *Router) getRuleSet(c *gin.Context) {
	rs, err := r.service.RuleSets().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}

func (r *Router) createRuleSet(c *gin.Context) {
	var req domain.RuleSet
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := r.service.RuleSets().Create(c.Request.Context(), req)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (r *Router) updateRuleSet(c *gin.Context) {
	var req domain.RuleSet
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := r.service.RuleSets().Update(c.Request.Context(), c.Param("id"), func(rs domain.RuleSet) (domain.RuleSet, error) {
		req.ID = rs.ID
		req.CreatedAt = rs.CreatedAt
		return req, nil
	})
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (r *Router) deleteRuleSet(c *gin.Context) {
	if err := r.service.RuleSets().Delete(c.Request.Context(), c.Param("id")); err != nil {
		r.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// importRuleSets 请求体为 YAML 预设列表
func (r *Router) importRuleSets(c *gin.Context) {
	result, err := r.service.RuleSets().ImportPresets(c.Request.Context(), c.Request.Body)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) ruleSetCategories(c *gin.Context) {
	cats, err := r.service.RuleSets().Categories(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

func (r *Router) refreshRuleSet(c *gin.Context) {
	rs, err := r.service.RuleSets().Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lattice/backend/domain"
)

func (r *Router) listNodeGroups(c *gin.Context) {
	groups, err := r.service.NodeGroups().List(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodeGroups": groups})
}

func (r *Router) getNodeGroup(c *gin.Context) {
	group, err := r.service.NodeGroups().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (r *Router) createNodeGroup(c *gin.Context) {
	var req domain.NodeGroup
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := r.service.NodeGroups().Create(c.Request.Context(), req)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (r *Router) updateNodeGroup(c *gin.Context) {
	var req domain.NodeGroup
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := r.service.NodeGroups().Update(c.Request.Context(), c.Param("id"), func(group domain.NodeGroup) (domain.NodeGroup, error) {
		req.ID = group.ID
		req.CreatedAt = group.CreatedAt
		return req, nil
	})
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (r *Router) deleteNodeGroup(c *gin.Context) {
	if err := r.service.NodeGroups().Delete(c.Request.Context(), c.Param("id")); err != nil {
		r.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) resolveNodeGroup(c *gin.Context) {
	res, err := r.service.Engine().ResolveGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

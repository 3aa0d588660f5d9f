package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"lattice/backend/domain"
)

func (r *Router) listNodes(c *gin.Context) {
	nodes, err := r.service.Nodes().List(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func (r *Router) getNode(c *gin.Context) {
	node, err := r.service.Nodes().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (r *Router) createNode(c *gin.Context) {
	var req domain.Node
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := r.service.Nodes().Create(c.Request.Context(), req)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (r *Router) updateNode(c *gin.Context) {
	var req domain.Node
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := r.service.Nodes().Update(c.Request.Context(), c.Param("id"), func(node domain.Node) (domain.Node, error) {
		req.ID = node.ID
		req.CreatedAt = node.CreatedAt
		return req, nil
	})
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (r *Router) deleteNode(c *gin.Context) {
	if err := r.service.Nodes().Delete(c.Request.Context(), c.Param("id")); err != nil {
		r.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// importNodes 请求体为分享链接文本（每行一条，或整体 base64 编码的订阅内容）
func (r *Router) importNodes(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		badRequest(c, err)
		return
	}
	result, err := r.service.Nodes().ImportLinks(c.Request.Context(), string(body))
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

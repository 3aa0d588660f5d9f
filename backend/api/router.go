package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lattice/backend/repository"
	"lattice/backend/service"
	"lattice/backend/service/shared"
)

type Router struct {
	service *service.Facade
	log     logrus.FieldLogger
}

func NewRouter(svc *service.Facade, log logrus.FieldLogger) *gin.Engine {
	r := &Router{service: svc, log: shared.OrDiscard(log)}
	engine := gin.New()
	engine.Use(gin.Recovery(), r.accessLog())
	r.register(engine)
	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// accessLog 按 logrus 字段记录请求（debug 级别，错误响应为 warn）
func (r *Router) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := r.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		})
		if c.Writer.Status() >= http.StatusBadRequest {
			entry.Warn("api request failed")
			return
		}
		entry.Debug("api request")
	}
}

func (r *Router) register(engine *gin.Engine) {
	engine.Use(corsMiddleware())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})
	engine.GET("/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, r.service.Snapshot())
	})
	engine.GET("/logs", r.getAppLogs)

	nodes := engine.Group("/nodes")
	{
		nodes.GET("", r.listNodes)
		nodes.POST("", r.createNode)
		nodes.POST("/import", r.importNodes)
		nodes.GET(":id", r.getNode)
		nodes.PUT(":id", r.updateNode)
		nodes.DELETE(":id", r.deleteNode)
	}

	groups := engine.Group("/node-groups")
	{
		groups.GET("", r.listNodeGroups)
		groups.POST("", r.createNodeGroup)
		groups.GET(":id", r.getNodeGroup)
		groups.PUT(":id", r.updateNodeGroup)
		groups.DELETE(":id", r.deleteNodeGroup)
		groups.GET(":id/resolve", r.resolveNodeGroup)
	}

	ruleSets := engine.Group("/rule-sets")
	{
		ruleSets.GET("", r.listRuleSets)
		ruleSets.POST("", r.createRuleSet)
		ruleSets.POST("/import", r.importRuleSets)
		ruleSets.GET("/categories", r.ruleSetCategories)
		ruleSets.GET(":id", r.getRuleSet)
		ruleSets.PUT(":id", r.updateRuleSet)
		ruleSets.DELETE(":id", r.deleteRuleSet)
		ruleSets.POST(":id/refresh", r.refreshRuleSet)
	}

	settings := engine.Group("/settings")
	{
		settings.GET("/dns", r.getDNS)
		settings.PUT("/dns", r.updateDNS)
		settings.GET("/inbound", r.getInboundMode)
		settings.PUT("/inbound", r.updateInboundMode)
	}

	engine.POST("/probe-results", r.applyProbeResults)
	engine.POST("/compile", r.compile)
	engine.GET("/compiled", r.getCompiled)
	engine.GET("/categories/canonical", r.canonicalCategory)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// handleError 错误映射：非法数据 400，不存在 404，引用错误与重复 409
func (r *Router) handleError(c *gin.Context, err error) {
	var (
		verr *shared.ValidationError
		rerr *shared.ReferenceError
	)
	isValidation := errors.As(err, &verr)
	isReference := errors.As(err, &rerr)
	if isValidation || isReference {
		problems := make([]string, 0)
		status := http.StatusConflict
		if isValidation {
			problems = append(problems, verr.Problems...)
			status = http.StatusBadRequest
		}
		if isReference {
			problems = append(problems, rerr.Problems...)
		}
		c.JSON(status, gin.H{"error": err.Error(), "problems": problems})
		return
	}

	switch {
	case errors.Is(err, repository.ErrInvalidID), errors.Is(err, repository.ErrInvalidData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrAlreadyExists), errors.Is(err, repository.ErrReference):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		r.log.WithError(err).WithField("path", c.FullPath()).Error("api internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

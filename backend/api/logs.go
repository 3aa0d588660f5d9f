package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type appLogQuery struct {
	Since int64 `form:"since" binding:"gte=0"`
}

// getAppLogs 增量读取应用日志：since 为上次返回的 To 偏移
func (r *Router) getAppLogs(c *gin.Context) {
	var q appLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, r.service.GetAppLogs(q.Since))
}

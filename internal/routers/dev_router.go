package routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
)

func DevRouter(r *gin.RouterGroup, dep *dependency.Dependency) {
	if dep.Cfg.GinMode != "debug" {
		return
	}

	r.GET("/reset", func(c *gin.Context) {
		db.ResetDB(dep.DB, dep.Logger)
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}

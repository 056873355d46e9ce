package routers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/gateway"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

func SetupRouter(dep *dependency.Dependency) *gin.Engine {
	r := gin.New()

	r.Use(middleware.PanicHandler())

	logConfig := sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	}

	// A rough CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if origin == dep.Cfg.FrontendUrl ||
				origin == "http://localhost:5173" ||
				origin == "http://localhost:4173" {
				return true
			}
			if strings.HasSuffix(origin, ".vercel.app") {
				return true
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(sloggin.NewWithConfig(dep.Logger, logConfig))
	r.Use(middleware.ErrorHandler())

	return r
}

// APIRouter mounts every endpoint under /api. All but /ping and /docs
// require a user token; /ws takes it as a query parameter. The rate limiter
// runs after Auth on the token group so those requests are counted per user.
func APIRouter(r *gin.RouterGroup, dep *dependency.Dependency, svcs *service.Services, gw *gateway.Gateway) {
	rateLimiter := middleware.NewRateLimiter(time.Duration(dep.Cfg.RateLimiterDurationInSec)*time.Second, dep.Cfg.RateLimiterRequestLimit, time.Duration(dep.Cfg.RateLimiterCleanupIntervalInSec)*time.Second)

	public := r.Group("")
	public.Use(rateLimiter.RateLimit())

	public.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	public.GET("/docs/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	auth := r.Group("")
	auth.Use(middleware.Auth(dep, svcs.Users), rateLimiter.RateLimit())

	UsersRouter(auth.Group("/users"), svcs)
	RelationshipsRouter(auth, svcs)
	ConversationsRouter(auth.Group("/conversations"), svcs)
	MessagesRouter(auth, svcs)

	if gw != nil {
		auth.GET("/ws", gw.Handler)
	}

	DevRouter(public.Group("/dev"), dep)
}

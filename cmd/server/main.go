package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	_ "github.com/nilotpaldhar/kwikchat-sub001/docs"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/gateway"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/routers"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/util"
)

// @title Kwikchat API
// @version 1.0
// @description Chat service: friends, conversations and messages
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// config
	_ = godotenv.Load()

	logger := util.GetLogger(slog.LevelInfo, os.Getenv("GIN_MODE"))

	// init dependency
	dep, err := dependency.InitDependency(logger)
	if err != nil {
		logger.Error("failed to init dependency", "err", err)
		os.Exit(1)
	}
	defer dependency.CloseDependency(dep)

	// validator
	dto.InitValidator()

	svcs := service.NewServices(dep)
	gw := gateway.New(dep, svcs.Presence, svcs.Conversations)
	defer gw.Close()

	// router
	r := routers.SetupRouter(dep)
	routers.APIRouter(r.Group("/api"), dep, svcs, gw)

	if err := r.Run(":" + dep.Cfg.Port); err != nil {
		logger.Error("failed to start server", "err", err)
		os.Exit(1)
	}
}

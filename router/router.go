package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dataponto/dataponto-backend/config"
	"github.com/dataponto/dataponto-backend/controllers"
	"github.com/dataponto/dataponto-backend/live"
	"github.com/dataponto/dataponto-backend/middlewares"
	"github.com/dataponto/dataponto-backend/repository"
	"github.com/dataponto/dataponto-backend/services"
)

// Deps are the long-lived components the routes are served by.
type Deps struct {
	Config        config.Config
	Store         *repository.Store
	Dispatcher    *services.PushDispatcher
	Aggregator    *services.DeadlineAggregator
	Hub           *live.Hub
	Notifications *services.NotificationCenter
	// BaseContext bounds live sessions; cancelling it stops their pollers.
	BaseContext context.Context
}

func SetupRouter(deps Deps) *gin.Engine {
	conf := deps.Config
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders(conf.IsProduction()))
	r.Use(middlewares.CORSMiddlewares(conf.AllowedOrigins()))

	// Inisialisasi controller
	deadlineCtrl := controllers.NewDeadlineController(deps.Aggregator)
	pushCtrl := controllers.NewPushController(deps.Dispatcher, deps.Store, conf.VAPIDPublicKey)
	liveCtrl := controllers.NewLiveController(baseCtx, deps.Hub, deps.Notifications, conf.AllowedOrigins())

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ----------------------------------------------------------------
	//                      FUNCTION ROUTES (anon / service-role key)
	// ----------------------------------------------------------------
	rateLimiter := middlewares.NewRateLimiter(conf.RateLimitRPS, conf.RateLimitRPS*2)
	functions := r.Group("/functions/v1")
	functions.Use(rateLimiter.RateLimit())
	functions.Use(middlewares.FunctionKeyMiddleware(conf.SupabaseAnonKey, conf.SupabaseServiceRoleKey))
	{
		functions.POST("/send-push-notification", pushCtrl.SendPushNotification)
		functions.POST("/generate-vapid-keys", middlewares.RoleCheck(middlewares.RoleServiceRole), pushCtrl.GenerateVAPIDKeys)
	}

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())
	{
		api.GET("/deadlines", deadlineCtrl.GetDeadlines)

		api.GET("/push/vapid-public-key", pushCtrl.GetVAPIDPublicKey)
		api.POST("/push/subscriptions", pushCtrl.Subscribe)
		api.DELETE("/push/subscriptions", pushCtrl.Unsubscribe)
	}

	// WebSocket endpoint dengan middleware khusus
	r.GET("/ws", middlewares.WebSocketAuthMiddleware(), liveCtrl.Connect)

	return r
}

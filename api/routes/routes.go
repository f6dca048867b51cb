package routes

import (
	"net/http"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/handlers"
	"github.com/ArowuTest/telegram-marketing-backend/internal/middleware"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// HandlerDependencies holds every handler mounted on the router
type HandlerDependencies struct {
	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	CampaignHandler   *handlers.CampaignHandler
	DiscountHandler   *handlers.DiscountHandler
	AffiliateHandler  *handlers.AffiliateHandler
	ReferralHandler   *handlers.ReferralHandler
	AnalyticsHandler  *handlers.AnalyticsHandler
	ExperimentHandler *handlers.ExperimentHandler
	IngestHandler     *handlers.IngestHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies, tokens *jwt.TokenService, logger *observability.Logger) *gin.Engine {
	router := gin.New()
	router.Use(observability.Middleware(logger))
	router.Use(middleware.CORSMiddleware(cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/api/v1")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		auth := public.Group("/auth")
		{
			auth.POST("/login", deps.AuthHandler.Login)
			auth.POST("/register", deps.AuthHandler.Register)
		}
	}

	// Bot and shop callers authenticate with the shared ingest key
	ingest := router.Group("/api/v1/ingest")
	ingest.Use(middleware.IngestKeyMiddleware(cfg.Server.IngestKey))
	{
		ingest.POST("/events", deps.IngestHandler.IngestEvent)
		ingest.POST("/events/batch", deps.IngestHandler.IngestBatch)
		ingest.GET("/experiments/:name/assignment", deps.ExperimentHandler.AssignVariant)
		ingest.POST("/discounts/check", deps.DiscountHandler.CheckDiscount)
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(tokens, logger))
	protected.Use(middleware.RequireRole("admin"))
	{
		users := protected.Group("/users")
		{
			users.GET("", deps.UserHandler.GetAllUsers)
			users.GET("/:id", deps.UserHandler.GetUser)
			users.POST("/:id/opt-out", deps.UserHandler.OptOut)
			users.PUT("/:id/preferences/:key", deps.UserHandler.SetPreference)
			users.DELETE("/:id", deps.UserHandler.EraseUser)
			users.GET("/:id/referrals", deps.ReferralHandler.GetUserReferrals)
		}

		referrals := protected.Group("/referrals")
		{
			referrals.POST("/:id/cancel", deps.ReferralHandler.CancelReferral)
		}

		campaigns := protected.Group("/campaigns")
		{
			campaigns.GET("", deps.CampaignHandler.ListCampaigns)
			campaigns.POST("", deps.CampaignHandler.CreateCampaign)
			campaigns.GET("/:id", deps.CampaignHandler.GetCampaign)
			campaigns.PUT("/:id", deps.CampaignHandler.UpdateCampaign)
			campaigns.POST("/:id/schedule", deps.CampaignHandler.ScheduleCampaign)
			campaigns.POST("/:id/pause", deps.CampaignHandler.PauseCampaign)
			campaigns.POST("/:id/resume", deps.CampaignHandler.ResumeCampaign)
			campaigns.POST("/:id/cancel", deps.CampaignHandler.CancelCampaign)
			campaigns.POST("/:id/send", deps.CampaignHandler.SendCampaign)
			campaigns.GET("/:id/stats", deps.CampaignHandler.GetCampaignStats)
		}

		discounts := protected.Group("/discounts")
		{
			discounts.POST("", deps.DiscountHandler.CreateDiscount)
			discounts.POST("/batch", deps.DiscountHandler.CreateDiscountBatch)
			discounts.POST("/check", deps.DiscountHandler.CheckDiscount)
			discounts.GET("/:code", deps.DiscountHandler.GetDiscount)
		}

		affiliates := protected.Group("/affiliates")
		{
			affiliates.GET("", deps.AffiliateHandler.ListAffiliates)
			affiliates.POST("", deps.AffiliateHandler.RegisterAffiliate)
			affiliates.GET("/:id", deps.AffiliateHandler.GetAffiliate)
			affiliates.GET("/:id/stats", deps.AffiliateHandler.GetAffiliateStats)
			affiliates.PUT("/:id/status", deps.AffiliateHandler.SetAffiliateStatus)
			affiliates.POST("/:id/payouts", deps.AffiliateHandler.RequestPayout)
			affiliates.POST("/:id/payouts/:payoutId/complete", deps.AffiliateHandler.CompletePayout)
			affiliates.POST("/:id/payouts/:payoutId/fail", deps.AffiliateHandler.FailPayout)
		}

		analytics := protected.Group("/analytics")
		{
			analytics.POST("/events", deps.AnalyticsHandler.TrackEvent)
			analytics.GET("/dashboard", deps.AnalyticsHandler.GetDashboard)
			analytics.GET("/campaigns", deps.AnalyticsHandler.GetCampaignPerformance)
			analytics.GET("/funnel", deps.AnalyticsHandler.GetFunnel)
			analytics.GET("/experiments", deps.AnalyticsHandler.GetExperimentReport)
		}

		experiments := protected.Group("/experiments")
		{
			experiments.GET("", deps.ExperimentHandler.ListExperiments)
			experiments.PUT("/:name/active", deps.ExperimentHandler.SetExperimentActive)
			experiments.POST("/optimize", deps.ExperimentHandler.OptimizeExperiments)
		}

		protected.POST("/jobs/:name/run", deps.AnalyticsHandler.RunJob)
	}

	return router
}

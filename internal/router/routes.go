package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrtrack/internal/api"
	"qrtrack/internal/middleware"
)

type Options struct {
	// ImageNamespace is the first path segment images are served under.
	ImageNamespace string
	JWTSecret      string
	JWTIssuer      string
	Authorizer     middleware.Authorizer
	// RateLimit guards the public scan surfaces. Nil disables limiting.
	RateLimit gin.HandlerFunc
}

// NewEngine returns a gin engine with the common middleware installed.
func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	return r
}

// SetupRoutes registers every route.
func SetupRoutes(r *gin.Engine, h *api.Handler, opts Options) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupPublicRoutes(r, h, opts)
	setupAPIRoutes(r, h, opts)
}

func setupPublicRoutes(r *gin.Engine, h *api.Handler, opts Options) {
	public := r.Group("/")
	if opts.RateLimit != nil {
		public.Use(opts.RateLimit)
	}

	public.GET("/verify/:codeId", h.Verify)
	public.POST("/verify/:codeId/scan", h.ScanVerify)
	public.POST("/scan-verify/:codeId", h.ScanVerify)
	public.GET("/scan/:codeId", h.ScanRedirect)

	r.GET("/"+opts.ImageNamespace+"/:codeId", h.Image)
}

func setupAPIRoutes(r *gin.Engine, h *api.Handler, opts Options) {
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.JWT(opts.JWTSecret, opts.JWTIssuer))
	apiGroup.Use(middleware.Authorize(opts.Authorizer))

	qrcodes := apiGroup.Group("/qrcodes")
	{
		qrcodes.POST("", h.IssueQRCode)
		qrcodes.GET("", h.ListQRCodes)
		qrcodes.POST("/reconcile", h.Reconcile)
		qrcodes.GET("/:codeId", h.GetQRCode)
		qrcodes.PATCH("/:codeId", h.UpdateQRCode)
	}

	categories := apiGroup.Group("/categories")
	{
		categories.GET("", h.ListCategories)
		categories.POST("", h.CreateCategory)
		categories.PUT("/:id", h.UpdateCategory)
		categories.DELETE("/:id", h.DeleteCategory)
	}

	users := apiGroup.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.POST("/:id/websites", h.AddWebsiteURL)
		users.DELETE("/:id/websites/:index", h.RemoveWebsiteURL)
	}

	analytics := apiGroup.Group("/analytics")
	{
		analytics.GET("/devices", h.DeviceAnalytics)
		analytics.GET("/activity", h.ActivityAnalytics)
		analytics.GET("/categories", h.CategoryAnalytics)
		analytics.GET("/qrcodes", h.QRCodeAnalytics)
		analytics.GET("/overview", h.OverviewAnalytics)
	}
}

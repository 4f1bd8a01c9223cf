package httpapi

import (
	"github.com/moguard/panel/internal/httpapi/middleware"
)

func (s *Server) registerRoutes() {
	s.engine.POST("/api/admins/token", s.handleAdminLogin)

	api := s.engine.Group("/api", middleware.RequireAuth(s))

	admins := api.Group("/admins")
	admins.GET("", s.handleListAdmins)
	admins.POST("", middleware.RequireOwner(), s.handleCreateAdmin)
	admins.GET("/:id", s.handleGetAdmin)
	admins.PUT("/:id", s.handleUpdateAdmin)
	admins.DELETE("/:id", middleware.RequireOwner(), s.handleDeleteAdmin)
	admins.POST("/:id/totp/enable", s.handleEnableTOTP)
	admins.POST("/:id/totp/disable", s.handleDisableTOTP)

	nodes := api.Group("/nodes")
	nodes.GET("", s.handleListNodes)
	nodes.POST("", s.handleCreateNode)
	nodes.GET("/:id", s.handleGetNode)
	nodes.PUT("/:id", s.handleUpdateNode)
	nodes.DELETE("/:id", s.handleDeleteNode)

	services := api.Group("/services")
	services.GET("", s.handleListServices)
	services.POST("", s.handleCreateService)
	services.GET("/:id", s.handleGetService)
	services.PUT("/:id", s.handleUpdateService)
	services.DELETE("/:id", s.handleDeleteService)

	subs := api.Group("/subscriptions")
	subs.GET("", s.handleListSubscriptions)
	subs.GET("/count", s.handleCountSubscriptions)
	subs.GET("/stats", s.handleSubscriptionStats)
	subs.POST("", s.handleBulkCreateSubscriptions)
	subs.GET("/:username", s.handleGetSubscription)
	subs.PUT("/:username", s.handleUpdateSubscription)
	subs.DELETE("/:username", s.handleDeleteSubscription)
	subs.POST("/enable", s.handleBulkEnable)
	subs.POST("/disable", s.handleBulkDisable)
	subs.POST("/revoke", s.handleBulkRevoke)
	subs.POST("/reset", s.handleBulkReset)
	subs.POST("/services/:service_id", s.handleBulkAttachService)
	subs.DELETE("/services/:service_id", s.handleBulkDetachService)

	s.engine.GET("/:tag/:secret", s.handleSubscriptionLink)
	s.engine.GET("/:tag/:secret/info", s.handleSubscriptionInfo)
}

package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/jarhub/cmd/api-gateway/middleware"
	"github.com/lgulliver/jarhub/internal/auth"
	"github.com/lgulliver/jarhub/internal/metadata"
	"github.com/lgulliver/jarhub/internal/registry"
)

// Pinger is a dependency the health check can ping
type Pinger interface {
	Ping(ctx context.Context) error
}

// StateReporter exposes the scanner breaker state to the health check
type StateReporter interface {
	State() map[string]string
}

// Dependencies holds everything the HTTP handlers need
type Dependencies struct {
	Auth      middleware.Authenticator
	Registry  *registry.Service
	Analytics *metadata.Service

	// Optional health checks
	Cache   Pinger
	Scanner StateReporter

	// PublicURL is used in package URLs of API responses
	PublicURL string
	// StaticDir holds the single-page application bundle
	StaticDir string
	// MaxUploadBytes bounds multipart request bodies
	MaxUploadBytes int64
}

// Register mounts every API route and the SPA fallback on router
func Register(router *gin.Engine, deps *Dependencies) {
	router.GET("/health", handleHealth(deps))

	api := router.Group("/api/v1")
	optional := middleware.OptionalAuthMiddleware(deps.Auth)
	required := middleware.AuthMiddleware(deps.Auth)

	// Public routes
	api.GET("/package/:packageName", handleGetPublicPackage(deps.Registry))
	api.GET("/packages", handleListPackages(deps))
	api.GET("/packages/:id", optional, handleGetPackage(deps.Registry))
	api.GET("/packages/:id/versions", optional, handleListVersions(deps.Registry))
	api.GET("/versions/:id/download", optional, handleDownload(deps.Registry))

	// Authenticated routes
	api.POST("/packages", required, handleSubmitPackage(deps))
	api.POST("/packages/:id/versions", required, handleAddVersion(deps))
	api.PATCH("/packages/:id", required, handleUpdatePackage(deps.Registry))
	api.DELETE("/packages/:id", required, handleDeletePackage(deps.Registry))
	api.DELETE("/versions/:id", required, handleDeleteVersion(deps.Registry))
	api.GET("/me", required, handleMe())
	api.GET("/me/packages", required, handleMyPackages(deps.Registry))

	AdminRoutes(api, deps)

	router.NoRoute(handleSPA(deps.StaticDir))
}

// AdminRoutes sets up the staff and manager API routes
func AdminRoutes(r *gin.RouterGroup, deps *Dependencies) {
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(deps.Auth))

	admin.GET("/packages", middleware.RequireAction(auth.ActionSearch), handleSearch(deps.Registry))
	admin.PUT("/packages/:id/status", middleware.RequireAction(auth.ActionReview), handleUpdateStatus(deps.Registry))
	admin.GET("/packages/:id/stats", middleware.RequireAction(auth.ActionViewStats), handlePackageStats(deps.Analytics))
	admin.GET("/stats", middleware.RequireAction(auth.ActionViewStats), handleRegistryStats(deps.Analytics))
	admin.GET("/trending", middleware.RequireAction(auth.ActionViewStats), handleTrending(deps.Analytics))

	admin.POST("/bans", middleware.RequireAction(auth.ActionBan), handleBan(deps.Registry))
	admin.PUT("/users/:id/role", middleware.RequireAction(auth.ActionAssignRole), handleAssignRole(deps.Registry))
	admin.GET("/users/:id/role-history", middleware.RequireAction(auth.ActionAssignRole), handleRoleHistory(deps.Registry))
}

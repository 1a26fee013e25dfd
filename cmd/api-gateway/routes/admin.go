package routes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/jarhub/cmd/api-gateway/middleware"
	"github.com/lgulliver/jarhub/internal/metadata"
	"github.com/lgulliver/jarhub/internal/registry"
	"github.com/lgulliver/jarhub/pkg/types"
)

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type banRequest struct {
	AuthorEmail string `json:"author_email" binding:"required"`
	Reason      string `json:"reason"`
}

type roleRequest struct {
	Role   string `json:"role" binding:"required"`
	Reason string `json:"reason"`
}

// handleSearch is the staff namespace search
func handleSearch(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.GetActorFromContext(c)
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

		filter := types.SearchFilter{
			Term:     c.Query("term"),
			Status:   types.NamespaceStatus(c.Query("status")),
			Page:     page,
			PageSize: pageSize,
		}

		namespaces, pagination, err := registryService.Search(c.Request.Context(), actor, filter)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.PaginatedResponse{
			APIResponse: types.APIResponse{Success: true, Data: namespaces},
			Pagination:  &pagination,
		})
	}
}

// handleUpdateStatus moves a namespace through the review lifecycle
func handleUpdateStatus(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, types.ErrInvalidInput.WithMessage("status is required"))
			return
		}
		status, valid := types.ParseNamespaceStatus(strings.ToLower(req.Status))
		if !valid {
			respondError(c, types.ErrInvalidInput.WithMessage("unknown status %q", req.Status))
			return
		}

		ns, err := registryService.UpdateStatus(c.Request.Context(), actor, id, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "Status updated", Data: ns})
	}
}

func handlePackageStats(analytics *metadata.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

		stats, err := analytics.GetPackageStats(c.Request.Context(), id, metadata.StatsQuery{Days: days})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: stats})
	}
}

func handleRegistryStats(analytics *metadata.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		stats, err := analytics.GetRegistryStats(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: stats})
	}
}

func handleTrending(analytics *metadata.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		trending, err := analytics.GetTrendingPackages(c.Request.Context(), metadata.TrendingQuery{
			Period: c.DefaultQuery("period", "week"),
			Limit:  limit,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: trending})
	}
}

// handleBan bans every namespace and the profile of an author
func handleBan(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.GetActorFromContext(c)

		var req banRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, types.ErrInvalidInput.WithMessage("author_email is required"))
			return
		}

		result, err := registryService.BanUser(c.Request.Context(), actor, req.AuthorEmail, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "User banned", Data: result})
	}
}

func handleAssignRole(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		var req roleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, types.ErrInvalidInput.WithMessage("role is required"))
			return
		}
		role, valid := types.ParseRole(strings.ToLower(req.Role))
		if !valid {
			respondError(c, types.ErrInvalidInput.WithMessage("unknown role %q", req.Role))
			return
		}

		profile, err := registryService.AssignRole(c.Request.Context(), actor, id, role, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "Role updated", Data: profile})
	}
}

func handleRoleHistory(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		entries, err := registryService.RoleHistory(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: entries})
	}
}

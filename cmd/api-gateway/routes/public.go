package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/cmd/api-gateway/middleware"
	"github.com/lgulliver/jarhub/internal/registry"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
	"github.com/rs/zerolog/log"
)

// packageAuthor is the author block of the public package page
type packageAuthor struct {
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// packageVersion is one entry of the public package page
type packageVersion struct {
	ID          uuid.UUID        `json:"id"`
	Version     string           `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	Downloads   int64            `json:"downloads"`
	JarFileURL  *string          `json:"jar_file_url"`
	JarFileSize int64            `json:"jar_file_size"`
	ScanStatus  types.ScanStatus `json:"scan_status"`
	ScanDate    *time.Time       `json:"scan_date"`
	FileHash    string           `json:"file_hash"`
}

// packageDetail is the body of GET /api/v1/package/:packageName
type packageDetail struct {
	ID             uuid.UUID        `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	License        string           `json:"license"`
	GithubRepo     string           `json:"github_repo"`
	TotalDownloads int64            `json:"total_downloads"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Author         packageAuthor    `json:"author"`
	Versions       []packageVersion `json:"versions"`
}

func toPackageDetail(ns *types.PackageNamespace) packageDetail {
	detail := packageDetail{
		ID:             ns.ID,
		Name:           ns.Name,
		Description:    ns.Description,
		License:        ns.License,
		GithubRepo:     ns.RepositoryURL,
		TotalDownloads: ns.TotalDownloads,
		CreatedAt:      ns.CreatedAt,
		UpdatedAt:      ns.UpdatedAt,
		Author:         packageAuthor{Email: ns.AuthorEmail},
		Versions:       make([]packageVersion, 0, len(ns.Versions)),
	}
	if ns.Author != nil {
		detail.Author.FullName = ns.Author.DisplayName
		detail.Author.AvatarURL = ns.Author.AvatarURL
	}
	for _, v := range ns.Versions {
		detail.Versions = append(detail.Versions, packageVersion{
			ID:          v.ID,
			Version:     v.Version,
			CreatedAt:   v.CreatedAt,
			Downloads:   v.Downloads,
			JarFileURL:  v.ArtifactURL,
			JarFileSize: v.ArtifactSizeBytes,
			ScanStatus:  v.ScanStatus,
			ScanDate:    v.ScanDate,
			FileHash:    v.ContentHash,
		})
	}
	return detail
}

// listedPackage is a public listing entry with its package URL
type listedPackage struct {
	types.PublicPackage
	Purl string `json:"purl"`
}

func handleHealth(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{"database": "ok"}

		if err := deps.Registry.DB.Ping(); err != nil {
			log.Warn().Err(err).Msg("database health check failed")
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
		if deps.Cache != nil {
			checks["cache"] = "ok"
			if err := deps.Cache.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("cache health check failed")
				checks["cache"] = "unavailable"
			}
		}
		if deps.Scanner != nil {
			checks["scanner"] = deps.Scanner.State()
		}

		health := "healthy"
		if status != http.StatusOK {
			health = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":  health,
			"service": "jarhub-api-gateway",
			"checks":  checks,
			"time":    time.Now().UTC(),
		})
	}
}

// handleGetPublicPackage serves the public package page of an approved namespace
func handleGetPublicPackage(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("packageName")

		ns, err := registryService.GetPublicPackage(c.Request.Context(), name)
		if err != nil {
			switch {
			case errors.Is(err, types.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Package not found"})
			case errors.Is(err, registry.ErrVersionsUnavailable):
				log.Error().Err(err).Str("package", name).Msg("failed to fetch package versions")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch package versions"})
			default:
				log.Error().Err(err).Str("package", name).Msg("failed to fetch package")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			return
		}

		c.JSON(http.StatusOK, toPackageDetail(ns))
	}
}

// handleListPackages lists approved packages
func handleListPackages(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		filter := types.ListFilter{
			Query:   c.Query("q"),
			Sort:    types.SortKey(c.Query("sort")),
			Page:    page,
			PerPage: perPage,
		}

		packages, pagination, err := deps.Registry.ListPublic(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}

		items := make([]listedPackage, 0, len(packages))
		for _, p := range packages {
			items = append(items, listedPackage{
				PublicPackage: p,
				Purl:          utils.PackageURL(deps.PublicURL, p.Name, p.LatestVersion),
			})
		}

		c.JSON(http.StatusOK, types.PaginatedResponse{
			APIResponse: types.APIResponse{Success: true, Data: items},
			Pagination:  &pagination,
		})
	}
}

// handleGetPackage returns a namespace the caller may see
func handleGetPackage(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		ns, err := registryService.GetNamespace(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: ns})
	}
}

func handleListVersions(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		versions, err := registryService.ListVersions(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: versions})
	}
}

// handleDownload records a download and hands out the artifact URL
func handleDownload(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		result, err := registryService.Download(c.Request.Context(), actor, id, c.Request.UserAgent())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: result})
	}
}

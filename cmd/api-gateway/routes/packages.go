package routes

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/jarhub/cmd/api-gateway/middleware"
	"github.com/lgulliver/jarhub/internal/registry"
	"github.com/lgulliver/jarhub/pkg/types"
)

const (
	jarFileField = "jar_file"
	// multipartOverhead allows for form fields and part headers around the jar
	multipartOverhead = 1 << 20
)

// readJarFile parses a bounded multipart body and returns the uploaded jar
func readJarFile(c *gin.Context, maxUploadBytes int64) (*types.Upload, bool) {
	if maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+multipartOverhead)
	}

	fh, err := c.FormFile(jarFileField)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(c, err)
			return nil, false
		}
		respondError(c, types.ErrInvalidInput.WithMessage("%s is required", jarFileField))
		return nil, false
	}

	return uploadFromFileHeader(fh), true
}

func uploadFromFileHeader(fh *multipart.FileHeader) *types.Upload {
	return &types.Upload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// handleSubmitPackage creates a namespace with its first version
func handleSubmitPackage(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.GetActorFromContext(c)

		upload, ok := readJarFile(c, deps.MaxUploadBytes)
		if !ok {
			return
		}

		in := types.NamespaceInput{
			Name:          c.PostForm("name"),
			Description:   c.PostForm("description"),
			License:       c.PostForm("license"),
			RepositoryURL: c.PostForm("github_repo"),
		}

		result, err := deps.Registry.SubmitPackage(c.Request.Context(), actor, in, c.PostForm("version"), upload)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Package submitted for review",
			Data:    result,
		})
	}
}

// handleAddVersion publishes a new version of an owned namespace
func handleAddVersion(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		upload, ok := readJarFile(c, deps.MaxUploadBytes)
		if !ok {
			return
		}

		version, err := deps.Registry.AddVersion(c.Request.Context(), actor, id, c.PostForm("version"), upload)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{
			Success: true,
			Message: "Version published",
			Data:    version,
		})
	}
}

func handleUpdatePackage(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		var update types.NamespaceUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			respondError(c, types.ErrInvalidInput.WithMessage("invalid request body"))
			return
		}

		ns, err := registryService.UpdateNamespace(c.Request.Context(), actor, id, update)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: ns})
	}
}

func handleDeletePackage(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		if err := registryService.DeleteNamespace(c.Request.Context(), actor, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "Package deleted"})
	}
}

func handleDeleteVersion(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		actor, _ := middleware.GetActorFromContext(c)

		if err := registryService.DeleteVersion(c.Request.Context(), actor, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "Version deleted"})
	}
}

// handleMe returns the authenticated caller
func handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.GetActorFromContext(c)
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: actor})
	}
}

func handleMyPackages(registryService *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := middleware.GetActorFromContext(c)

		namespaces, err := registryService.ListOwned(c.Request.Context(), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: namespaces})
	}
}

package routes

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/jarhub/pkg/types"
)

// handleSPA serves the single-page application for every path no API route
// matched. Unknown files fall back to index.html so client side routing works.
func handleSPA(staticDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "Endpoint not found",
				Code:    types.ErrNotFound.Code,
			})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		if staticDir == "" {
			c.String(http.StatusNotFound, "not found")
			return
		}

		// path.Clean on a rooted path cannot climb above staticDir
		clean := path.Clean("/" + c.Request.URL.Path)
		if clean != "/" {
			file := filepath.Join(staticDir, filepath.FromSlash(clean))
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				c.File(file)
				return
			}
		}

		index := filepath.Join(staticDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.String(http.StatusNotFound, "not found")
			return
		}
		c.File(index)
	}
}

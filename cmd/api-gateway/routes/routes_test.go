package routes

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/internal/artifact"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/internal/metadata"
	"github.com/lgulliver/jarhub/internal/registry"
	"github.com/lgulliver/jarhub/internal/scanner"
	"github.com/lgulliver/jarhub/internal/storage"
	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testMaxUpload = 64 << 10

// MockAuthenticator maps bearer tokens to actors
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (*types.Actor, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Actor), args.Error(1)
}

type testEnv struct {
	router    *gin.Engine
	db        *common.Database
	registry  *registry.Service
	staticDir string
	actors    map[string]*types.Actor
}

func setupTestDB(t *testing.T) *common.Database {
	db, err := gorm.Open(sqlite.Open(":memory:"), common.GormConfig(logger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &common.Database{DB: db}
	require.NoError(t, database.Migrate())
	return database
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	blobs, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080/files")
	require.NoError(t, err)

	registryService := registry.NewService(db, blobs, registry.Options{
		Validator: artifact.NewValidator(&config.UploadConfig{
			MaxSizeBytes:      testMaxUpload,
			AllowedExtensions: []string{".jar"},
		}),
		Scanner:    scanner.NewScanner(scanner.NewSignatureDetector(nil, 100), 10*time.Second),
		PackageTTL: time.Minute,
	})

	env := &testEnv{
		db:        db,
		registry:  registryService,
		staticDir: t.TempDir(),
		actors:    map[string]*types.Actor{},
	}

	mockAuth := new(MockAuthenticator)
	for _, role := range []types.Role{types.RoleUser, types.RoleModerator, types.RoleManager, types.RoleBanned} {
		profile := &types.Profile{
			Email:       string(role) + "@example.com",
			DisplayName: strings.ToUpper(string(role[:1])) + string(role[1:]) + " Person",
			AvatarURL:   "https://avatars.example.com/" + string(role),
			Role:        role,
		}
		require.NoError(t, db.Create(profile).Error)

		actor := &types.Actor{ID: profile.ID, Email: profile.Email, EmailConfirmed: true, Role: role}
		env.actors[string(role)] = actor
		mockAuth.On("Authenticate", mock.Anything, string(role)+"-token").Return(actor, nil).Maybe()
	}
	mockAuth.On("Authenticate", mock.Anything, mock.Anything).Return(nil, types.ErrUnauthenticated).Maybe()

	env.router = gin.New()
	Register(env.router, &Dependencies{
		Auth:           mockAuth,
		Registry:       registryService,
		Analytics:      metadata.NewService(db),
		PublicURL:      "https://jarhub.example.com",
		StaticDir:      env.staticDir,
		MaxUploadBytes: testMaxUpload,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, target, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, method, target, token, body, "application/json")
}

func buildJar(t *testing.T, size int) []byte {
	t.Helper()
	payload := make([]byte, size)
	rand.New(rand.NewSource(7)).Read(payload)
	copy(payload, []byte{0xCA, 0xFE, 0xBA, 0xBE})

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	manifest, err := w.Create("META-INF/MANIFEST.MF")
	require.NoError(t, err)
	_, err = manifest.Write([]byte("Manifest-Version: 1.0\n"))
	require.NoError(t, err)
	class, err := w.Create("com/example/Lib.class")
	require.NoError(t, err)
	_, err = class.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile(jarFileField, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func submitFields(name, version string) map[string]string {
	return map[string]string{
		"name":        name,
		"description": "A small utility library for scripts",
		"license":     "MIT",
		"github_repo": "https://github.com/example/" + name,
		"version":     version,
	}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) types.APIResponse {
	t.Helper()
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type submitResponse struct {
	Data struct {
		Namespace struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"namespace"`
		Version struct {
			ID         string `json:"id"`
			ScanStatus string `json:"scan_status"`
			Downloads  int64  `json:"downloads"`
		} `json:"version"`
	} `json:"data"`
}

func TestSubmitReviewDownloadFlow(t *testing.T) {
	env := setupTestEnv(t)

	body, contentType := multipartBody(t, submitFields("my-lib", "1.0.0"), "lib.jar", buildJar(t, 32<<10))
	w := env.do(t, http.MethodPost, "/api/v1/packages", "user-token", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var submitted submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.Equal(t, "pending", submitted.Data.Namespace.Status)
	assert.Equal(t, "clean", submitted.Data.Version.ScanStatus)
	assert.Zero(t, submitted.Data.Version.Downloads)
	nsID := submitted.Data.Namespace.ID
	versionID := submitted.Data.Version.ID

	// Pending packages are invisible to the public
	w = env.do(t, http.MethodGet, "/api/v1/package/my-lib", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Package not found"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/versions/"+versionID+"/download", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/packages/"+nsID+"/versions", "user-token", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/me/packages", "user-token", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"my-lib"`)

	// Review
	w = env.doJSON(t, http.MethodPut, "/api/v1/admin/packages/"+nsID+"/status", "user-token", statusRequest{Status: "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.doJSON(t, http.MethodPut, "/api/v1/admin/packages/"+nsID+"/status", "moderator-token", statusRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.doJSON(t, http.MethodPut, "/api/v1/admin/packages/"+nsID+"/status", "moderator-token", statusRequest{Status: "approved"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_change", decodeResponse(t, w).Code)

	// Public download
	w = env.do(t, http.MethodGet, "/api/v1/versions/"+versionID+"/download", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var download struct {
		Data registry.DownloadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &download))
	assert.True(t, strings.HasPrefix(download.Data.ArtifactURL, "http://localhost:8080/files/my-lib/1.0.0/"))
	assert.Equal(t, int64(1), download.Data.Version.Downloads)

	// Public package page
	w = env.do(t, http.MethodGet, "/api/v1/package/my-lib", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var page map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	for _, key := range []string{"id", "name", "description", "license", "github_repo", "total_downloads", "created_at", "updated_at", "author", "versions"} {
		assert.Contains(t, page, key)
	}
	assert.Equal(t, "my-lib", page["name"])
	assert.Equal(t, float64(1), page["total_downloads"])

	author := page["author"].(map[string]interface{})
	assert.Equal(t, "User Person", author["full_name"])
	assert.Equal(t, "user@example.com", author["email"])
	assert.Equal(t, "https://avatars.example.com/user", author["avatar_url"])

	versions := page["versions"].([]interface{})
	require.Len(t, versions, 1)
	version := versions[0].(map[string]interface{})
	for _, key := range []string{"id", "version", "created_at", "downloads", "jar_file_url", "jar_file_size", "scan_status", "scan_date", "file_hash"} {
		assert.Contains(t, version, key)
	}
	assert.Equal(t, "1.0.0", version["version"])
	assert.Equal(t, "clean", version["scan_status"])
	assert.Len(t, version["file_hash"], 64)

	// Public listing
	w = env.do(t, http.MethodGet, "/api/v1/packages?q=my", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"latest_version":"1.0.0"`)
	assert.Contains(t, w.Body.String(), `"purl":"pkg:generic/my-lib@1.0.0`)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestSubmitPackage_Errors(t *testing.T) {
	env := setupTestEnv(t)
	jar := buildJar(t, 4<<10)

	body, contentType := multipartBody(t, submitFields("taken-lib", "1.0.0"), "lib.jar", jar)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/packages", "user-token", body, contentType).Code)

	tests := []struct {
		name     string
		token    string
		fields   map[string]string
		filename string
		content  []byte
		status   int
		code     string
	}{
		{"unauthenticated", "", submitFields("anon-lib", "1.0.0"), "lib.jar", jar, http.StatusUnauthorized, "unauthenticated"},
		{"banned user", "banned-token", submitFields("banned-lib", "1.0.0"), "lib.jar", jar, http.StatusForbidden, "forbidden"},
		{"missing file", "user-token", submitFields("nofile-lib", "1.0.0"), "", nil, http.StatusBadRequest, "invalid_input"},
		{"unsafe filename", "user-token", submitFields("unsafe-lib", "1.0.0"), "bad|name.jar", jar, http.StatusBadRequest, "unsafe_filename"},
		{"wrong extension", "user-token", submitFields("zip-lib", "1.0.0"), "lib.zip", jar, http.StatusUnsupportedMediaType, "unsupported_type"},
		{"too large", "user-token", submitFields("big-lib", "1.0.0"), "lib.jar", buildJar(t, 300<<10), http.StatusRequestEntityTooLarge, "file_too_large"},
		{"name taken", "moderator-token", submitFields("taken-lib", "2.0.0"), "lib.jar", jar, http.StatusConflict, "name_taken"},
		{"bad version", "user-token", submitFields("ver-lib", "1.0"), "lib.jar", jar, http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields, tt.filename, tt.content)
			w := env.do(t, http.MethodPost, "/api/v1/packages", tt.token, body, contentType)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestAddVersionAndDelete(t *testing.T) {
	env := setupTestEnv(t)
	jar := buildJar(t, 4<<10)

	body, contentType := multipartBody(t, submitFields("owned-lib", "1.0.0"), "lib.jar", jar)
	w := env.do(t, http.MethodPost, "/api/v1/packages", "user-token", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code)
	var submitted submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	nsID := submitted.Data.Namespace.ID

	body, contentType = multipartBody(t, map[string]string{"version": "1.1.0"}, "lib.jar", jar)
	w = env.do(t, http.MethodPost, "/api/v1/packages/"+nsID+"/versions", "moderator-token", body, contentType)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/packages/"+nsID+"/versions", "user-token", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/packages/"+nsID+"/versions", "user-token", body, contentType)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "version_exists", decodeResponse(t, w).Code)

	description := "Updated description of the library"
	w = env.doJSON(t, http.MethodPatch, "/api/v1/packages/"+nsID, "user-token", types.NamespaceUpdate{Description: &description})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), description)

	w = env.do(t, http.MethodDelete, "/api/v1/versions/"+submitted.Data.Version.ID, "user-token", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/packages/"+nsID, "moderator-token", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/packages/"+nsID, "user-token", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/packages/"+nsID, "user-token", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/packages/not-a-uuid", "user-token", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadGating(t *testing.T) {
	env := setupTestEnv(t)
	owner := env.actors["user"]

	ns := &types.PackageNamespace{
		Name:        "gated-lib",
		Description: "Package with gated versions",
		AuthorID:    owner.ID,
		AuthorEmail: owner.Email,
		Status:      types.StatusApproved,
	}
	require.NoError(t, env.db.Create(ns).Error)

	pending := &types.PackageVersion{PackageNamespaceID: ns.ID, Version: "1.0.0", ScanStatus: types.ScanPending}
	infected := &types.PackageVersion{PackageNamespaceID: ns.ID, Version: "1.0.1", ScanStatus: types.ScanInfected}
	require.NoError(t, env.db.Create(pending).Error)
	require.NoError(t, env.db.Create(infected).Error)

	w := env.do(t, http.MethodGet, "/api/v1/versions/"+pending.ID.String()+"/download", "", nil, "")
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, "scan_in_progress", decodeResponse(t, w).Code)

	w = env.do(t, http.MethodGet, "/api/v1/versions/"+infected.ID.String()+"/download", "", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "malware_detected", decodeResponse(t, w).Code)

	w = env.do(t, http.MethodGet, "/api/v1/versions/"+uuid.NewString()+"/download", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Public version lists hide both, the owner sees them
	w = env.do(t, http.MethodGet, "/api/v1/packages/"+ns.ID.String()+"/versions", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "1.0.1")

	w = env.do(t, http.MethodGet, "/api/v1/packages/"+ns.ID.String()+"/versions", "user-token", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1.0.1")

	var reloaded types.PackageVersion
	require.NoError(t, env.db.First(&reloaded, "id = ?", infected.ID).Error)
	assert.Zero(t, reloaded.Downloads)
}

func TestAdminRoutes(t *testing.T) {
	env := setupTestEnv(t)
	target := env.actors["user"]

	ns := &types.PackageNamespace{
		Name:        "search-lib",
		Description: "Package for the staff search",
		AuthorID:    target.ID,
		AuthorEmail: target.Email,
		Status:      types.StatusPending,
	}
	require.NoError(t, env.db.Create(ns).Error)

	w := env.do(t, http.MethodGet, "/api/v1/admin/packages?term=SEARCH", "user-token", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/packages?term=SEARCH", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/packages?term=SEARCH&status=pending", "moderator-token", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"search-lib"`)
	assert.Contains(t, w.Body.String(), `"total_pages":1`)

	w = env.do(t, http.MethodGet, "/api/v1/admin/packages/"+ns.ID.String()+"/stats?days=7", "moderator-token", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"search-lib"`)

	w = env.do(t, http.MethodGet, "/api/v1/admin/stats", "manager-token", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/admin/trending?period=month", "manager-token", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	for _, limit := range []string{"1000000000", "-3", "abc"} {
		w = env.do(t, http.MethodGet, "/api/v1/admin/stats?limit="+limit, "manager-token", nil, "")
		assert.Equal(t, http.StatusOK, w.Code, limit)
		w = env.do(t, http.MethodGet, "/api/v1/admin/trending?limit="+limit, "manager-token", nil, "")
		assert.Equal(t, http.StatusOK, w.Code, limit)
	}

	w = env.doJSON(t, http.MethodPut, "/api/v1/admin/packages/"+ns.ID.String()+"/status", "moderator-token", statusRequest{Status: "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Role management
	w = env.doJSON(t, http.MethodPut, "/api/v1/admin/users/"+target.ID.String()+"/role", "moderator-token", roleRequest{Role: "moderator"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.doJSON(t, http.MethodPut, "/api/v1/admin/users/"+target.ID.String()+"/role", "manager-token", roleRequest{Role: "emperor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(t, http.MethodPut, "/api/v1/admin/users/"+target.ID.String()+"/role", "manager-token", roleRequest{Role: "moderator", Reason: "helps triage"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/admin/users/"+target.ID.String()+"/role-history", "manager-token", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"new_role":"moderator"`)
	assert.Contains(t, w.Body.String(), "helps triage")

	// Bans
	w = env.doJSON(t, http.MethodPost, "/api/v1/admin/bans", "moderator-token", banRequest{AuthorEmail: target.Email})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/v1/admin/bans", "manager-token", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/v1/admin/bans", "manager-token", banRequest{AuthorEmail: target.Email, Reason: "malware"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "search-lib")

	var banned types.PackageNamespace
	require.NoError(t, env.db.First(&banned, "id = ?", ns.ID).Error)
	assert.Equal(t, types.StatusBanned, banned.Status)
}

func TestMeAndHealth(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/me", "moderator-token", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"moderator"`)

	w = env.do(t, http.MethodGet, "/api/v1/me", "bogus", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
}

func TestSPAFallback(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.staticDir, "index.html"), []byte("<html>jarhub</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(env.staticDir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.staticDir, "assets", "app.js"), []byte("console.log('app')"), 0o644))

	w := env.do(t, http.MethodGet, "/packages/my-lib", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jarhub")

	w = env.do(t, http.MethodGet, "/assets/app.js", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console.log")

	w = env.do(t, http.MethodGet, "/api/v1/unknown", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeResponse(t, w).Code)

	w = env.do(t, http.MethodGet, "/../../etc/passwd", "", nil, "")
	assert.NotContains(t, w.Body.String(), "root:")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{types.ErrUnauthenticated, http.StatusUnauthorized},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrNotFound.WithMessage("package not found"), http.StatusNotFound},
		{types.ErrNameTaken, http.StatusConflict},
		{types.ErrVersionExists, http.StatusConflict},
		{types.ErrNoChange, http.StatusConflict},
		{types.ErrInvalidInput, http.StatusBadRequest},
		{types.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{types.ErrUnsupportedType, http.StatusUnsupportedMediaType},
		{types.ErrUnsafeFilename, http.StatusBadRequest},
		{types.ErrSecurityRejected.WithMessage("artifact rejected: Eicar"), http.StatusUnprocessableEntity},
		{types.ErrScanFailed, http.StatusBadGateway},
		{types.ErrDownloadPending, http.StatusLocked},
		{types.ErrDownloadInfected, http.StatusForbidden},
		{types.ErrStorage.Wrap(assert.AnError), http.StatusServiceUnavailable},
		{types.ErrScanTimeout, http.StatusGatewayTimeout},
		{assert.AnError, http.StatusInternalServerError},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}

func TestRespondError_HidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	respondError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "Internal server error", resp.Error)
	assert.Equal(t, "internal_error", resp.Code)
}

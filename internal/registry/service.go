package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/internal/artifact"
	"github.com/lgulliver/jarhub/internal/auth"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/internal/scanner"
	"github.com/lgulliver/jarhub/internal/storage"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const jarContentType = "application/java-archive"

// ContentScanner is the scanning dependency of the registry
type ContentScanner interface {
	Scan(ctx context.Context, content []byte) (*scanner.Verdict, error)
}

// Service coordinates the submission, review and download workflows
type Service struct {
	DB         *common.Database
	Storage    storage.BlobStorage
	Namespaces *NamespaceStore
	Versions   *VersionStore
	Ownership  *OwnershipService
	Roles      *auth.RoleService

	validator  *artifact.Validator
	scanner    ContentScanner
	cache      common.CacheStore
	packageTTL time.Duration
}

// Options carries the collaborators of the registry service
type Options struct {
	Validator        *artifact.Validator
	Scanner          ContentScanner
	Cache            common.CacheStore
	PackageTTL       time.Duration
	LicenseAllowList []string
}

// NewService creates a new registry service
func NewService(db *common.Database, blobs storage.BlobStorage, opts Options) *Service {
	cache := opts.Cache
	if cache == nil {
		cache = common.NoopCache{}
	}
	return &Service{
		DB:         db,
		Storage:    blobs,
		Namespaces: NewNamespaceStore(db, opts.LicenseAllowList),
		Versions:   NewVersionStore(db),
		Ownership:  NewOwnershipService(db.DB),
		Roles:      auth.NewRoleService(db, cache),
		validator:  opts.Validator,
		scanner:    opts.Scanner,
		cache:      cache,
		packageTTL: opts.PackageTTL,
	}
}

// SubmitResult is the outcome of a successful package submission
type SubmitResult struct {
	Namespace *types.PackageNamespace `json:"namespace"`
	Version   *types.PackageVersion   `json:"version"`
}

// DownloadResult is the outcome of a permitted download
type DownloadResult struct {
	Version     *types.PackageVersion `json:"version"`
	Namespace   string                `json:"namespace"`
	ArtifactURL string                `json:"artifact_url"`
}

func packageCacheKey(name string) string {
	return fmt.Sprintf("package:%s", name)
}

func (s *Service) invalidatePackages(ctx context.Context, names ...string) {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, packageCacheKey(name))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate cached packages")
	}
}

// storagePath builds the blob path of an artifact. Each upload gets its own
// directory so a failed or concurrent submission never removes a blob that a
// stored version references.
func storagePath(name, version, filename string) string {
	return path.Join(
		utils.SanitizeStorageSegment(name),
		utils.SanitizeStorageSegment(version),
		uuid.NewString(),
		utils.SanitizeStorageSegment(path.Base(filename)),
	)
}

// readUpload validates the upload metadata and only then reads the content.
// The read is bounded so a wrong declared size cannot exceed the limit.
func (s *Service) readUpload(upload *types.Upload) ([]byte, error) {
	if err := s.validator.ValidateUpload(upload); err != nil {
		return nil, err
	}
	if upload.Open == nil {
		return nil, types.ErrInvalidInput.WithMessage("artifact content is missing")
	}

	rc, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, s.validator.MaxSize()+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(content)) > s.validator.MaxSize() {
		return nil, types.ErrFileTooLarge
	}
	return content, nil
}

// scanAndStore scans content and stores it when clean
func (s *Service) scanAndStore(ctx context.Context, name, version, filename string, content []byte) (*scanner.Verdict, ArtifactRef, error) {
	verdict, err := s.scanner.Scan(ctx, content)
	if err != nil {
		return nil, ArtifactRef{}, err
	}
	if !verdict.Clean {
		log.Warn().
			Str("namespace", name).
			Str("version", version).
			Str("threat", verdict.ThreatName).
			Str("content_hash", verdict.ContentHash).
			Msg("upload rejected by content scan")
		return verdict, ArtifactRef{}, types.ErrSecurityRejected.WithMessage("artifact rejected: %s", verdict.ThreatName)
	}

	blobPath := storagePath(name, version, filename)
	url, err := s.Storage.Put(ctx, blobPath, bytes.NewReader(content), jarContentType)
	if err != nil {
		return verdict, ArtifactRef{}, types.ErrStorage.Wrap(err)
	}
	return verdict, ArtifactRef{Path: blobPath, URL: url, Size: int64(len(content))}, nil
}

// removeBlob deletes a stored artifact whose database record was not written
// or has been removed
func (s *Service) removeBlob(ctx context.Context, blobPath string) {
	if blobPath == "" {
		return
	}
	if err := s.Storage.Delete(context.WithoutCancel(ctx), blobPath); err != nil {
		log.Error().Err(err).Str("path", blobPath).Msg("failed to delete artifact blob")
	}
}

// SubmitPackage creates a pending namespace with its first version. The
// namespace and version rows are written in one transaction so a failed
// submission leaves nothing behind.
func (s *Service) SubmitPackage(ctx context.Context, actor *types.Actor, in types.NamespaceInput, version string, upload *types.Upload) (*SubmitResult, error) {
	if err := auth.Authorize(actor, auth.ActionPublish); err != nil {
		return nil, err
	}

	in, err := ValidateNamespaceInput(in)
	if err != nil {
		return nil, err
	}
	if !utils.IsValidVersion(version) {
		return nil, types.ErrInvalidInput.WithMessage("version %q must be MAJOR.MINOR.PATCH", version)
	}

	content, err := s.readUpload(upload)
	if err != nil {
		return nil, err
	}

	if _, err := s.Namespaces.GetByName(ctx, in.Name); err == nil {
		return nil, types.ErrNameTaken.WithMessage("package name %q is already taken", in.Name)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	verdict, ref, err := s.scanAndStore(ctx, in.Name, version, upload.Filename, content)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ns, err := s.Namespaces.create(tx, actor, in)
		if err != nil {
			return err
		}
		v, err := createVersion(tx, ns.ID, version, ref, verdict)
		if err != nil {
			return err
		}
		result.Namespace = ns
		result.Version = v
		return nil
	})
	if err != nil {
		s.removeBlob(ctx, ref.Path)
		return nil, err
	}

	log.Info().
		Str("namespace", result.Namespace.Name).
		Str("version", result.Version.Version).
		Str("author_id", actor.ID.String()).
		Msg("package submitted for review")
	return result, nil
}

// AddVersion publishes a new version of a namespace owned by actor. The
// namespace status is not changed.
func (s *Service) AddVersion(ctx context.Context, actor *types.Actor, namespaceID uuid.UUID, version string, upload *types.Upload) (*types.PackageVersion, error) {
	if err := auth.Authorize(actor, auth.ActionPublish); err != nil {
		return nil, err
	}

	ns, err := s.Namespaces.Get(ctx, namespaceID)
	if err != nil {
		return nil, err
	}
	if !s.Ownership.CanUserPublish(actor, ns) {
		return nil, types.ErrForbidden.WithMessage("only the owner of %s may publish versions", ns.Name)
	}
	if !utils.IsValidVersion(version) {
		return nil, types.ErrInvalidInput.WithMessage("version %q must be MAJOR.MINOR.PATCH", version)
	}

	content, err := s.readUpload(upload)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := s.DB.WithContext(ctx).Model(&types.PackageVersion{}).
		Where("package_namespace_id = ? AND version = ?", namespaceID, version).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing version: %w", err)
	}
	if existing > 0 {
		return nil, types.ErrVersionExists.WithMessage("version %s already exists", version)
	}

	verdict, ref, err := s.scanAndStore(ctx, ns.Name, version, upload.Filename, content)
	if err != nil {
		return nil, err
	}

	v, err := s.Versions.Create(ctx, namespaceID, actor.ID, version, ref, verdict)
	if err != nil {
		s.removeBlob(ctx, ref.Path)
		return nil, err
	}

	s.invalidatePackages(ctx, ns.Name)
	return v, nil
}

// UpdateStatus sets the review status of a namespace. Staff only.
func (s *Service) UpdateStatus(ctx context.Context, actor *types.Actor, namespaceID uuid.UUID, status types.NamespaceStatus) (*types.PackageNamespace, error) {
	if err := auth.Authorize(actor, auth.ActionReview); err != nil {
		return nil, err
	}
	ns, err := s.Namespaces.UpdateStatus(ctx, namespaceID, status, actor.ID, actor.Email)
	if err != nil {
		return nil, err
	}
	s.invalidatePackages(ctx, ns.Name)
	return ns, nil
}

// ReviewPackage records a staff review decision
func (s *Service) ReviewPackage(ctx context.Context, actor *types.Actor, namespaceID uuid.UUID, approve bool) (*types.PackageNamespace, error) {
	status := types.StatusRejected
	if approve {
		status = types.StatusApproved
	}
	return s.UpdateStatus(ctx, actor, namespaceID, status)
}

// BanUser bans an author by email. Managers only.
func (s *Service) BanUser(ctx context.Context, actor *types.Actor, authorEmail, reason string) (*BanResult, error) {
	if err := auth.Authorize(actor, auth.ActionBan); err != nil {
		return nil, err
	}
	result, err := s.Namespaces.BanUser(ctx, authorEmail, actor.ID, reason)
	if err != nil {
		return nil, err
	}

	s.invalidatePackages(ctx, result.Namespaces...)
	if result.ProfileID != nil {
		if err := s.cache.Delete(ctx, fmt.Sprintf("profile:%s", result.ProfileID.String())); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate banned profile")
		}
	}
	return result, nil
}

// AssignRole changes an account's role. Managers only.
func (s *Service) AssignRole(ctx context.Context, actor *types.Actor, targetID uuid.UUID, role types.Role, reason string) (*types.Profile, error) {
	if err := auth.Authorize(actor, auth.ActionAssignRole); err != nil {
		return nil, err
	}
	return s.Roles.AssignRole(ctx, actor, targetID, role, reason)
}

// RoleHistory returns the role audit trail of an account. Managers only.
func (s *Service) RoleHistory(ctx context.Context, actor *types.Actor, targetID uuid.UUID) ([]types.RoleAuditEntry, error) {
	if err := auth.Authorize(actor, auth.ActionAssignRole); err != nil {
		return nil, err
	}
	return s.Roles.RoleHistory(ctx, targetID)
}

// Download records a download of a clean version and returns its artifact
// URL. Unapproved namespaces are only visible to their owner and staff.
func (s *Service) Download(ctx context.Context, actor *types.Actor, versionID uuid.UUID, userAgent string) (*DownloadResult, error) {
	v, err := s.Versions.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	ns, err := s.Namespaces.Get(ctx, v.PackageNamespaceID)
	if err != nil {
		return nil, err
	}
	if !s.Ownership.CanUserView(actor, ns) {
		return nil, types.ErrNotFound.WithMessage("version not found")
	}

	v, err = s.Versions.RecordDownload(ctx, versionID, userAgent)
	if err != nil {
		if types.IsDownloadBlocked(err) {
			log.Warn().Err(err).Str("namespace", ns.Name).Str("version_id", versionID.String()).Msg("download blocked")
		}
		return nil, err
	}
	s.invalidatePackages(ctx, ns.Name)

	url := s.Storage.URL(v.ArtifactPath)
	if v.ArtifactURL != nil && *v.ArtifactURL != "" {
		url = *v.ArtifactURL
	}
	return &DownloadResult{Version: v, Namespace: ns.Name, ArtifactURL: url}, nil
}

// DeleteVersion removes a version and its artifact. Owner only.
func (s *Service) DeleteVersion(ctx context.Context, actor *types.Actor, versionID uuid.UUID) error {
	if err := requireActiveActor(actor); err != nil {
		return err
	}
	v, ns, err := s.Versions.Delete(ctx, versionID, actor.ID)
	if err != nil {
		return err
	}
	s.removeBlob(ctx, v.ArtifactPath)
	s.invalidatePackages(ctx, ns.Name)
	return nil
}

// requireActiveActor refuses anonymous and banned callers
func requireActiveActor(actor *types.Actor) error {
	if actor == nil {
		return types.ErrUnauthenticated
	}
	if actor.Role == types.RoleBanned {
		return types.ErrForbidden.WithMessage("banned accounts cannot change packages")
	}
	return nil
}

// DeleteNamespace removes a namespace, its versions and their artifacts.
// Owner only.
func (s *Service) DeleteNamespace(ctx context.Context, actor *types.Actor, namespaceID uuid.UUID) error {
	if err := requireActiveActor(actor); err != nil {
		return err
	}
	ns, err := s.Namespaces.Delete(ctx, namespaceID, actor.ID)
	if err != nil {
		return err
	}
	for _, v := range ns.Versions {
		s.removeBlob(ctx, v.ArtifactPath)
	}
	s.invalidatePackages(ctx, ns.Name)
	return nil
}

// UpdateNamespace applies owner edits to namespace metadata
func (s *Service) UpdateNamespace(ctx context.Context, actor *types.Actor, namespaceID uuid.UUID, update types.NamespaceUpdate) (*types.PackageNamespace, error) {
	if actor == nil {
		return nil, types.ErrUnauthenticated
	}
	ns, err := s.Namespaces.Update(ctx, namespaceID, actor, update)
	if err != nil {
		return nil, err
	}
	s.invalidatePackages(ctx, ns.Name)
	return ns, nil
}

// GetNamespace returns a namespace the actor may see
func (s *Service) GetNamespace(ctx context.Context, actor *types.Actor, namespaceID uuid.UUID) (*types.PackageNamespace, error) {
	ns, err := s.Namespaces.Get(ctx, namespaceID)
	if err != nil {
		return nil, err
	}
	if !s.Ownership.CanUserView(actor, ns) {
		return nil, types.ErrNotFound.WithMessage("package not found")
	}
	return ns, nil
}

// ListVersions lists the versions of a namespace. Only the owner and staff
// see versions that are not clean.
func (s *Service) ListVersions(ctx context.Context, actor *types.Actor, namespaceID uuid.UUID) ([]types.PackageVersion, error) {
	ns, err := s.GetNamespace(ctx, actor, namespaceID)
	if err != nil {
		return nil, err
	}
	privileged := actor != nil && (actor.ID == ns.AuthorID || actor.Role.IsStaff())
	return s.Versions.List(ctx, namespaceID, !privileged)
}

// ListPublic lists approved packages
func (s *Service) ListPublic(ctx context.Context, filter types.ListFilter) ([]types.PublicPackage, types.PaginationInfo, error) {
	return s.Namespaces.ListPublic(ctx, filter)
}

// ListOwned lists the actor's own namespaces in any status
func (s *Service) ListOwned(ctx context.Context, actor *types.Actor) ([]types.PackageNamespace, error) {
	if actor == nil {
		return nil, types.ErrUnauthenticated
	}
	return s.Namespaces.ListOwned(ctx, actor.ID)
}

// Search is the staff namespace search
func (s *Service) Search(ctx context.Context, actor *types.Actor, filter types.SearchFilter) ([]types.PackageNamespace, types.PaginationInfo, error) {
	if err := auth.Authorize(actor, auth.ActionSearch); err != nil {
		return nil, types.PaginationInfo{}, err
	}
	return s.Namespaces.Search(ctx, filter)
}

// GetPublicPackage returns an approved package with its author and clean
// versions, served from cache when possible
func (s *Service) GetPublicPackage(ctx context.Context, name string) (*types.PackageNamespace, error) {
	var cached types.PackageNamespace
	if err := s.cache.Get(ctx, packageCacheKey(name), &cached); err == nil {
		return &cached, nil
	}

	ns, err := s.Namespaces.GetPublicPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, packageCacheKey(name), ns, s.packageTTL); err != nil {
		log.Warn().Err(err).Str("namespace", name).Msg("failed to cache package")
	}
	return ns, nil
}

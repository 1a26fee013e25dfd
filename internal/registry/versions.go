package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/internal/scanner"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// VersionStore persists package versions and their download counters
type VersionStore struct {
	db *common.Database
}

// NewVersionStore creates a version store
func NewVersionStore(db *common.Database) *VersionStore {
	return &VersionStore{db: db}
}

// ArtifactRef locates a stored artifact
type ArtifactRef struct {
	Path string
	URL  string
	Size int64
}

// Create adds a clean version to a namespace owned by ownerID
func (s *VersionStore) Create(ctx context.Context, namespaceID, ownerID uuid.UUID, version string, ref ArtifactRef, verdict *scanner.Verdict) (*types.PackageVersion, error) {
	var created *types.PackageVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireOwner(tx, namespaceID, ownerID); err != nil {
			return err
		}
		var err error
		created, err = createVersion(tx, namespaceID, version, ref, verdict)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// createVersion inserts a version using db, which may be a transaction.
// Ownership must already have been checked.
func createVersion(db *gorm.DB, namespaceID uuid.UUID, version string, ref ArtifactRef, verdict *scanner.Verdict) (*types.PackageVersion, error) {
	if !utils.IsValidVersion(version) {
		return nil, types.ErrInvalidInput.WithMessage("version %q must be MAJOR.MINOR.PATCH", version)
	}
	if verdict == nil {
		return nil, types.ErrSecurityRejected.WithMessage("artifact has not been scanned")
	}
	if !verdict.Clean {
		return nil, types.ErrSecurityRejected.WithMessage("artifact rejected: %s", verdict.ThreatName)
	}

	var existing int64
	if err := db.Model(&types.PackageVersion{}).
		Where("package_namespace_id = ? AND version = ?", namespaceID, version).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing version: %w", err)
	}
	if existing > 0 {
		return nil, types.ErrVersionExists.WithMessage("version %s already exists", version)
	}

	scannedAt := verdict.ScannedAt
	v := &types.PackageVersion{
		PackageNamespaceID: namespaceID,
		Version:            version,
		ArtifactPath:       ref.Path,
		ArtifactSizeBytes:  ref.Size,
		Downloads:          0,
		ScanStatus:         types.ScanClean,
		ScanDate:           &scannedAt,
		ContentHash:        verdict.ContentHash,
	}
	if ref.URL != "" {
		url := ref.URL
		v.ArtifactURL = &url
	}

	if err := db.Create(v).Error; err != nil {
		if common.IsUniqueViolation(err) {
			return nil, types.ErrVersionExists.WithMessage("version %s already exists", version)
		}
		return nil, fmt.Errorf("failed to create version: %w", err)
	}

	log.Info().
		Str("namespace_id", namespaceID.String()).
		Str("version", version).
		Str("content_hash", v.ContentHash).
		Int64("size", v.ArtifactSizeBytes).
		Msg("version created")
	return v, nil
}

func loadVersion(db *gorm.DB, versionID uuid.UUID) (*types.PackageVersion, error) {
	var v types.PackageVersion
	if err := db.Where("id = ?", versionID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound.WithMessage("version not found")
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &v, nil
}

// Get retrieves a version by ID
func (s *VersionStore) Get(ctx context.Context, versionID uuid.UUID) (*types.PackageVersion, error) {
	return loadVersion(s.db.WithContext(ctx), versionID)
}

// RecordDownload gates a download on the version's scan status, then appends
// a download event and increments the version and namespace counters in one
// transaction.
func (s *VersionStore) RecordDownload(ctx context.Context, versionID uuid.UUID, userAgent string) (*types.PackageVersion, error) {
	var v *types.PackageVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		v, err = loadVersion(tx, versionID)
		if err != nil {
			return err
		}

		switch v.ScanStatus {
		case types.ScanClean:
		case types.ScanPending:
			return types.ErrDownloadPending
		case types.ScanInfected:
			return types.ErrDownloadInfected
		default:
			return types.ErrDownloadPending.WithMessage("download blocked: unknown scan status %q", v.ScanStatus)
		}

		if err := tx.Create(&types.DownloadEvent{
			VersionID:   v.ID,
			NamespaceID: v.PackageNamespaceID,
			UserAgent:   truncate(userAgent, 512),
		}).Error; err != nil {
			return fmt.Errorf("failed to record download event: %w", err)
		}

		if err := tx.Model(&types.PackageVersion{}).
			Where("id = ?", v.ID).
			UpdateColumn("downloads", gorm.Expr("downloads + ?", 1)).Error; err != nil {
			return fmt.Errorf("failed to increment version downloads: %w", err)
		}

		if err := tx.Model(&types.PackageNamespace{}).
			Where("id = ?", v.PackageNamespaceID).
			UpdateColumn("total_downloads", gorm.Expr("total_downloads + ?", 1)).Error; err != nil {
			return fmt.Errorf("failed to increment namespace downloads: %w", err)
		}

		v.Downloads++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Delete removes a version. Only the namespace owner may delete. The
// namespace's total is left untouched since it counts historical downloads.
func (s *VersionStore) Delete(ctx context.Context, versionID, requesterID uuid.UUID) (*types.PackageVersion, *types.PackageNamespace, error) {
	var (
		v  *types.PackageVersion
		ns *types.PackageNamespace
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		v, err = loadVersion(tx, versionID)
		if err != nil {
			return err
		}
		ns, err = requireDeletable(tx, v.PackageNamespaceID, requesterID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&types.PackageVersion{}, "id = ?", v.ID).Error; err != nil {
			return fmt.Errorf("failed to delete version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("namespace", ns.Name).
		Str("version", v.Version).
		Str("requester_id", requesterID.String()).
		Msg("version deleted")
	return v, ns, nil
}

// List returns the versions of a namespace, newest first. With onlyClean,
// versions that are not clean are omitted entirely.
func (s *VersionStore) List(ctx context.Context, namespaceID uuid.UUID, onlyClean bool) ([]types.PackageVersion, error) {
	return listVersions(s.db.WithContext(ctx), namespaceID, onlyClean)
}

func listVersions(db *gorm.DB, namespaceID uuid.UUID, onlyClean bool) ([]types.PackageVersion, error) {
	query := db.Where("package_namespace_id = ?", namespaceID)
	if onlyClean {
		query = query.Where("scan_status = ?", types.ScanClean)
	}

	var versions []types.PackageVersion
	if err := query.Order("created_at DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

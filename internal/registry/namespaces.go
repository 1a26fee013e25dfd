package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/internal/auth"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	minDescriptionLength = 10
	maxDescriptionLength = 1000
)

// NamespaceStore persists package namespaces and their review state
type NamespaceStore struct {
	db               *common.Database
	licenseAllowList []string
}

// NewNamespaceStore creates a namespace store
func NewNamespaceStore(db *common.Database, licenseAllowList []string) *NamespaceStore {
	return &NamespaceStore{db: db, licenseAllowList: licenseAllowList}
}

// BanResult summarises the effect of banning an author
type BanResult struct {
	AuthorEmail string     `json:"author_email"`
	Namespaces  []string   `json:"namespaces"`
	ProfileID   *uuid.UUID `json:"profile_id,omitempty"`
}

func validateDescription(description string) error {
	n := len([]rune(description))
	if n < minDescriptionLength || n > maxDescriptionLength {
		return types.ErrInvalidInput.WithMessage("description must be between %d and %d characters", minDescriptionLength, maxDescriptionLength)
	}
	return nil
}

func validateRepositoryURL(raw string) error {
	if !utils.IsGitHubRepoURL(raw) {
		return types.ErrInvalidInput.WithMessage("repository URL must be an https://github.com/<owner>/<repo> address")
	}
	return nil
}

// ValidateNamespaceInput checks the fields of a new namespace and returns
// a trimmed copy
func ValidateNamespaceInput(in types.NamespaceInput) (types.NamespaceInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.License = strings.TrimSpace(in.License)
	in.RepositoryURL = strings.TrimSpace(in.RepositoryURL)

	if !utils.IsValidPackageName(in.Name) {
		return in, types.ErrInvalidInput.WithMessage("package name must be at least 3 characters of letters, digits, '.', '_' or '-'")
	}
	if err := validateDescription(in.Description); err != nil {
		return in, err
	}
	if err := validateRepositoryURL(in.RepositoryURL); err != nil {
		return in, err
	}
	return in, nil
}

// Create registers a new pending namespace owned by owner
func (s *NamespaceStore) Create(ctx context.Context, owner *types.Actor, in types.NamespaceInput) (*types.PackageNamespace, error) {
	return s.create(s.db.WithContext(ctx), owner, in)
}

// create inserts a namespace using db, which may be a transaction. The
// existence check is only a fast path; the unique index on name decides.
func (s *NamespaceStore) create(db *gorm.DB, owner *types.Actor, in types.NamespaceInput) (*types.PackageNamespace, error) {
	in, err := ValidateNamespaceInput(in)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := db.Model(&types.PackageNamespace{}).Where("name = ?", in.Name).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check namespace name: %w", err)
	}
	if existing > 0 {
		return nil, types.ErrNameTaken.WithMessage("package name %q is already taken", in.Name)
	}

	license, spdx := utils.NormalizeLicense(in.License, s.licenseAllowList)
	ns := &types.PackageNamespace{
		Name:          in.Name,
		Description:   in.Description,
		License:       license,
		LicenseSPDX:   spdx,
		RepositoryURL: in.RepositoryURL,
		AuthorID:      owner.ID,
		AuthorEmail:   owner.Email,
		Status:        types.StatusPending,
	}

	if err := db.Create(ns).Error; err != nil {
		if common.IsUniqueViolation(err) {
			return nil, types.ErrNameTaken.WithMessage("package name %q is already taken", in.Name)
		}
		return nil, fmt.Errorf("failed to create namespace: %w", err)
	}

	log.Info().
		Str("namespace", ns.Name).
		Str("namespace_id", ns.ID.String()).
		Str("author_id", owner.ID.String()).
		Msg("namespace created")
	return ns, nil
}

// Get retrieves a namespace by ID
func (s *NamespaceStore) Get(ctx context.Context, namespaceID uuid.UUID) (*types.PackageNamespace, error) {
	return loadNamespace(s.db.WithContext(ctx), namespaceID)
}

// GetByName retrieves a namespace by its exact name
func (s *NamespaceStore) GetByName(ctx context.Context, name string) (*types.PackageNamespace, error) {
	var ns types.PackageNamespace
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&ns).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound.WithMessage("package not found")
		}
		return nil, fmt.Errorf("failed to get namespace: %w", err)
	}
	return &ns, nil
}

// UpdateStatus moves a namespace to newStatus. Any transition is allowed;
// entering approved stamps the approval fields.
func (s *NamespaceStore) UpdateStatus(ctx context.Context, namespaceID uuid.UUID, newStatus types.NamespaceStatus, actorID uuid.UUID, actorEmail string) (*types.PackageNamespace, error) {
	if _, ok := types.ParseNamespaceStatus(string(newStatus)); !ok {
		return nil, types.ErrInvalidInput.WithMessage("unknown status %q", newStatus)
	}

	var ns *types.PackageNamespace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ns, err = loadNamespace(tx, namespaceID)
		if err != nil {
			return err
		}
		if ns.Status == newStatus {
			return types.ErrNoChange.WithMessage("package is already %s", newStatus)
		}

		updates := map[string]interface{}{"status": newStatus}
		if newStatus == types.StatusApproved {
			now := time.Now().UTC()
			updates["approved_at"] = now
			updates["approved_by"] = actorID
			updates["approved_by_email"] = actorEmail
		}
		if err := tx.Model(ns).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		return tx.Where("id = ?", namespaceID).First(ns).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("namespace", ns.Name).
		Str("status", string(newStatus)).
		Str("actor_id", actorID.String()).
		Msg("namespace status updated")
	return ns, nil
}

// BanUser bans every namespace published under authorEmail and sets the
// matching profile's role to banned. A missing profile is only logged.
func (s *NamespaceStore) BanUser(ctx context.Context, authorEmail string, actorID uuid.UUID, reason string) (*BanResult, error) {
	authorEmail = strings.ToLower(strings.TrimSpace(authorEmail))
	if authorEmail == "" {
		return nil, types.ErrInvalidInput.WithMessage("author email is required")
	}

	result := &BanResult{AuthorEmail: authorEmail, Namespaces: []string{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&types.PackageNamespace{}).
			Where("LOWER(author_email) = ?", authorEmail).
			Pluck("name", &result.Namespaces).Error; err != nil {
			return fmt.Errorf("failed to find namespaces: %w", err)
		}

		if err := tx.Model(&types.PackageNamespace{}).
			Where("LOWER(author_email) = ?", authorEmail).
			Update("status", types.StatusBanned).Error; err != nil {
			return fmt.Errorf("failed to ban namespaces: %w", err)
		}

		var profile types.Profile
		if err := tx.Where("LOWER(email) = ?", authorEmail).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warn().Str("author_email", authorEmail).Msg("no profile found for banned author, namespaces banned only")
				return nil
			}
			return fmt.Errorf("failed to find profile: %w", err)
		}

		result.ProfileID = &profile.ID
		if profile.Role == types.RoleBanned {
			return nil
		}
		if reason == "" {
			reason = "author banned"
		}
		return auth.ChangeRole(tx, &profile, types.RoleBanned, actorID, reason)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("author_email", authorEmail).
		Int("namespaces", len(result.Namespaces)).
		Str("actor_id", actorID.String()).
		Msg("author banned")
	return result, nil
}

// Update applies owner edits to a namespace's metadata
func (s *NamespaceStore) Update(ctx context.Context, namespaceID uuid.UUID, actor *types.Actor, update types.NamespaceUpdate) (*types.PackageNamespace, error) {
	updates := map[string]interface{}{}
	if update.Description != nil {
		description := strings.TrimSpace(*update.Description)
		if err := validateDescription(description); err != nil {
			return nil, err
		}
		updates["description"] = description
	}
	if update.License != nil {
		license, spdx := utils.NormalizeLicense(*update.License, s.licenseAllowList)
		updates["license"] = license
		updates["license_spdx"] = spdx
	}
	if update.RepositoryURL != nil {
		repo := strings.TrimSpace(*update.RepositoryURL)
		if err := validateRepositoryURL(repo); err != nil {
			return nil, err
		}
		updates["repository_url"] = repo
	}
	if len(updates) == 0 {
		return nil, types.ErrInvalidInput.WithMessage("nothing to update")
	}

	ownership := OwnershipService{}
	var ns *types.PackageNamespace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ns, err = loadNamespace(tx, namespaceID)
		if err != nil {
			return err
		}
		if !ownership.CanUserEdit(actor, ns) {
			return types.ErrForbidden.WithMessage("package %s cannot be edited in status %s", ns.Name, ns.Status)
		}
		if err := tx.Model(ns).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update namespace: %w", err)
		}
		return tx.Where("id = ?", namespaceID).First(ns).Error
	})
	if err != nil {
		return nil, err
	}
	return ns, nil
}

// Delete removes a namespace and all of its versions. Only the owner may
// delete. The removed versions are returned so their blobs can be cleaned up.
func (s *NamespaceStore) Delete(ctx context.Context, namespaceID, requesterID uuid.UUID) (*types.PackageNamespace, error) {
	var ns *types.PackageNamespace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ns, err = requireDeletable(tx, namespaceID, requesterID)
		if err != nil {
			return err
		}

		if err := tx.Where("package_namespace_id = ?", namespaceID).Find(&ns.Versions).Error; err != nil {
			return fmt.Errorf("failed to load versions: %w", err)
		}
		if err := tx.Where("package_namespace_id = ?", namespaceID).Delete(&types.PackageVersion{}).Error; err != nil {
			return fmt.Errorf("failed to delete versions: %w", err)
		}
		if err := tx.Delete(&types.PackageNamespace{}, "id = ?", namespaceID).Error; err != nil {
			return fmt.Errorf("failed to delete namespace: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("namespace", ns.Name).
		Int("versions", len(ns.Versions)).
		Str("requester_id", requesterID.String()).
		Msg("namespace deleted")
	return ns, nil
}

// ListOwned returns every namespace of ownerID in any status, newest first
func (s *NamespaceStore) ListOwned(ctx context.Context, ownerID uuid.UUID) ([]types.PackageNamespace, error) {
	var namespaces []types.PackageNamespace
	if err := s.db.WithContext(ctx).
		Where("author_id = ?", ownerID).
		Order("created_at DESC").
		Find(&namespaces).Error; err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return namespaces, nil
}

package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/pkg/types"
	"gorm.io/gorm"
)

// OwnershipService answers who may see and change a namespace
type OwnershipService struct {
	db *gorm.DB
}

// NewOwnershipService creates a new ownership service
func NewOwnershipService(db *gorm.DB) *OwnershipService {
	return &OwnershipService{db: db}
}

// loadNamespace fetches a namespace by ID using db, which may be a transaction
func loadNamespace(db *gorm.DB, namespaceID uuid.UUID) (*types.PackageNamespace, error) {
	var ns types.PackageNamespace
	if err := db.Where("id = ?", namespaceID).First(&ns).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound.WithMessage("package not found")
		}
		return nil, fmt.Errorf("failed to get namespace: %w", err)
	}
	return &ns, nil
}

// requireOwner loads a namespace and fails with ErrForbidden unless userID owns it
func requireOwner(db *gorm.DB, namespaceID, userID uuid.UUID) (*types.PackageNamespace, error) {
	ns, err := loadNamespace(db, namespaceID)
	if err != nil {
		return nil, err
	}
	if ns.AuthorID != userID {
		return nil, types.ErrForbidden.WithMessage("only the owner of %s may do this", ns.Name)
	}
	return ns, nil
}

// requireDeletable is requireOwner for removals. Banned namespaces are kept
// so the ban holds the name.
func requireDeletable(db *gorm.DB, namespaceID, userID uuid.UUID) (*types.PackageNamespace, error) {
	ns, err := requireOwner(db, namespaceID, userID)
	if err != nil {
		return nil, err
	}
	if ns.Status == types.StatusBanned {
		return nil, types.ErrForbidden.WithMessage("%s is banned and cannot be deleted", ns.Name)
	}
	return ns, nil
}

// IsOwner reports whether userID owns the namespace
func (os *OwnershipService) IsOwner(ctx context.Context, namespaceID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := os.db.WithContext(ctx).Model(&types.PackageNamespace{}).
		Where("id = ? AND author_id = ?", namespaceID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check ownership: %w", err)
	}
	return count > 0, nil
}

// CanUserPublish reports whether actor may add versions to ns
func (os *OwnershipService) CanUserPublish(actor *types.Actor, ns *types.PackageNamespace) bool {
	if actor == nil || actor.Role == types.RoleBanned {
		return false
	}
	return ns.AuthorID == actor.ID && ns.Status != types.StatusBanned
}

// CanUserView reports whether actor may see ns and its artifacts. Approved
// namespaces are public; anything else is visible to its owner and staff.
func (os *OwnershipService) CanUserView(actor *types.Actor, ns *types.PackageNamespace) bool {
	if ns.Status == types.StatusApproved {
		return true
	}
	if actor == nil {
		return false
	}
	return ns.AuthorID == actor.ID || actor.Role.IsStaff()
}

// CanUserEdit reports whether actor may edit the metadata of ns. Owners may
// edit until the namespace is approved or banned.
func (os *OwnershipService) CanUserEdit(actor *types.Actor, ns *types.PackageNamespace) bool {
	if actor == nil || actor.ID != ns.AuthorID || actor.Role == types.RoleBanned {
		return false
	}
	switch ns.Status {
	case types.StatusPending, types.StatusReviewing, types.StatusRejected:
		return true
	case types.StatusApproved, types.StatusBanned:
		return false
	}
	return false
}

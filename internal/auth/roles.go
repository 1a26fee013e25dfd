package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Action is a privileged registry operation
type Action int

const (
	ActionPublish Action = iota
	ActionReview
	ActionSearch
	ActionViewStats
	ActionBan
	ActionAssignRole
)

func (a Action) String() string {
	switch a {
	case ActionPublish:
		return "publish"
	case ActionReview:
		return "review"
	case ActionSearch:
		return "search"
	case ActionViewStats:
		return "view_stats"
	case ActionBan:
		return "ban"
	case ActionAssignRole:
		return "assign_role"
	default:
		return "unknown"
	}
}

// Permits reports whether role may perform action
func Permits(role types.Role, action Action) bool {
	switch role {
	case types.RoleManager:
		return true
	case types.RoleModerator:
		switch action {
		case ActionPublish, ActionReview, ActionSearch, ActionViewStats:
			return true
		case ActionBan, ActionAssignRole:
			return false
		}
	case types.RoleUser:
		return action == ActionPublish
	case types.RoleBanned:
		return false
	}
	return false
}

// Authorize returns ErrUnauthenticated for a missing actor and ErrForbidden
// when the actor's role does not permit action
func Authorize(actor *types.Actor, action Action) error {
	if actor == nil {
		return types.ErrUnauthenticated
	}
	if !Permits(actor.Role, action) {
		return types.ErrForbidden.WithMessage("role %s may not %s", actor.Role, action)
	}
	return nil
}

// canAssign holds the role assignment rules: only managers assign, only the
// user and moderator roles can be granted, and a manager's role is never
// changed through assignment.
func canAssign(actorRole, targetCurrent, newRole types.Role) bool {
	if actorRole != types.RoleManager {
		return false
	}
	if targetCurrent == types.RoleManager {
		return false
	}
	switch newRole {
	case types.RoleUser, types.RoleModerator:
		return true
	case types.RoleManager, types.RoleBanned:
		return false
	}
	return false
}

// RoleService handles role lookups, role assignment and the audit trail
type RoleService struct {
	db    *common.Database
	cache common.CacheStore
}

// NewRoleService creates a new role service
func NewRoleService(db *common.Database, cache common.CacheStore) *RoleService {
	if cache == nil {
		cache = common.NoopCache{}
	}
	return &RoleService{db: db, cache: cache}
}

// CheckRole returns the current role of an account
func (s *RoleService) CheckRole(ctx context.Context, accountID uuid.UUID) (types.Role, error) {
	return checkRole(s.db.WithContext(ctx), accountID)
}

func checkRole(db *gorm.DB, accountID uuid.UUID) (types.Role, error) {
	var profile types.Profile
	if err := db.Select("id", "role").Where("id = ?", accountID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", types.ErrNotFound.WithMessage("profile not found")
		}
		return "", fmt.Errorf("failed to check role: %w", err)
	}
	return profile.Role, nil
}

// CanAssignRole reports whether actorID may grant targetRole at all
func (s *RoleService) CanAssignRole(ctx context.Context, actorID uuid.UUID, targetRole types.Role) (bool, error) {
	actorRole, err := s.CheckRole(ctx, actorID)
	if err != nil {
		return false, err
	}
	return canAssign(actorRole, types.RoleUser, targetRole), nil
}

// AssignRole changes the role of targetID and records the change in the
// audit log within one transaction
func (s *RoleService) AssignRole(ctx context.Context, actor *types.Actor, targetID uuid.UUID, newRole types.Role, reason string) (*types.Profile, error) {
	if actor == nil {
		return nil, types.ErrUnauthenticated
	}

	var target types.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read the actor role inside the transaction
		actorRole, err := checkRole(tx, actor.ID)
		if err != nil {
			return err
		}

		if err := tx.Where("id = ?", targetID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound.WithMessage("profile not found")
			}
			return fmt.Errorf("failed to load profile: %w", err)
		}

		if !canAssign(actorRole, target.Role, newRole) {
			return types.ErrForbidden.WithMessage("cannot change role %s to %s", target.Role, newRole)
		}
		if target.Role == newRole {
			return types.ErrNoChange.WithMessage("account already has role %s", newRole)
		}

		return ChangeRole(tx, &target, newRole, actor.ID, reason)
	})
	if err != nil {
		return nil, err
	}

	invalidateProfiles(ctx, s.cache, targetID)
	return &target, nil
}

// ChangeRole updates profile to newRole and appends the audit entry using tx.
// Callers are responsible for authorization.
func ChangeRole(tx *gorm.DB, profile *types.Profile, newRole types.Role, actorID uuid.UUID, reason string) error {
	oldRole := profile.Role
	if err := tx.Model(profile).Update("role", newRole).Error; err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	profile.Role = newRole

	if err := logRoleChange(tx, &types.RoleAuditEntry{
		TargetID: profile.ID,
		OldRole:  oldRole,
		NewRole:  newRole,
		ActorID:  actorID,
		Reason:   strings.TrimSpace(reason),
	}); err != nil {
		return err
	}

	log.Info().
		Str("target_id", profile.ID.String()).
		Str("old_role", string(oldRole)).
		Str("new_role", string(newRole)).
		Str("actor_id", actorID.String()).
		Msg("role changed")
	return nil
}

// LogRoleChange appends an entry to the role audit log
func (s *RoleService) LogRoleChange(ctx context.Context, entry *types.RoleAuditEntry) error {
	return logRoleChange(s.db.WithContext(ctx), entry)
}

func logRoleChange(db *gorm.DB, entry *types.RoleAuditEntry) error {
	if err := db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write role audit entry: %w", err)
	}
	return nil
}

// RoleHistory returns the audit entries of an account, newest first
func (s *RoleService) RoleHistory(ctx context.Context, targetID uuid.UUID) ([]types.RoleAuditEntry, error) {
	var entries []types.RoleAuditEntry
	if err := s.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load role history: %w", err)
	}
	return entries, nil
}

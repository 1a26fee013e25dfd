package types

import (
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the authorization level of an account
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleManager   Role = "manager"
	RoleBanned    Role = "banned"
)

// ParseRole converts a stored or requested role string into a Role
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleModerator, RoleManager, RoleBanned:
		return Role(s), true
	default:
		return "", false
	}
}

// IsStaff reports whether the role may review packages
func (r Role) IsStaff() bool {
	switch r {
	case RoleModerator, RoleManager:
		return true
	case RoleUser, RoleBanned:
		return false
	default:
		return false
	}
}

// NamespaceStatus is the review state of a package namespace
type NamespaceStatus string

const (
	StatusPending   NamespaceStatus = "pending"
	StatusReviewing NamespaceStatus = "reviewing"
	StatusApproved  NamespaceStatus = "approved"
	StatusRejected  NamespaceStatus = "rejected"
	StatusBanned    NamespaceStatus = "banned"
)

// ParseNamespaceStatus converts a string into a NamespaceStatus
func ParseNamespaceStatus(s string) (NamespaceStatus, bool) {
	switch NamespaceStatus(s) {
	case StatusPending, StatusReviewing, StatusApproved, StatusRejected, StatusBanned:
		return NamespaceStatus(s), true
	default:
		return "", false
	}
}

// ScanStatus is the malware scan state of a package version
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"
	ScanClean    ScanStatus = "clean"
	ScanInfected ScanStatus = "infected"
)

// Profile is an authenticated account known to the registry
type Profile struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email       string    `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Role        Role      `json:"role" gorm:"type:varchar(20);not null;default:user"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the profile ID
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Role == "" {
		p.Role = RoleUser
	}
	return nil
}

// PackageNamespace is a published package identity
type PackageNamespace struct {
	ID              uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Name            string           `json:"name" gorm:"uniqueIndex;not null"`
	Description     string           `json:"description" gorm:"type:text;not null"`
	License         string           `json:"license"`
	LicenseSPDX     bool             `json:"license_spdx" gorm:"column:license_spdx;default:false"`
	RepositoryURL   string           `json:"repository_url"`
	AuthorID        uuid.UUID        `json:"author_id" gorm:"type:uuid;not null;index"`
	AuthorEmail     string           `json:"author_email" gorm:"not null;index"`
	Status          NamespaceStatus  `json:"status" gorm:"type:varchar(20);not null;default:pending;index"`
	TotalDownloads  int64            `json:"total_downloads" gorm:"not null;default:0"`
	ApprovedAt      *time.Time       `json:"approved_at"`
	ApprovedBy      *uuid.UUID       `json:"approved_by" gorm:"type:uuid"`
	ApprovedByEmail string           `json:"approved_by_email"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Author          *Profile         `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Versions        []PackageVersion `json:"versions,omitempty" gorm:"foreignKey:PackageNamespaceID"`
}

// BeforeCreate generates a UUID for the namespace ID
func (n *PackageNamespace) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// PackageVersion is one immutable release artifact of a namespace
type PackageVersion struct {
	ID                 uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	PackageNamespaceID uuid.UUID  `json:"package_namespace_id" gorm:"type:uuid;not null;uniqueIndex:idx_namespace_version"`
	Version            string     `json:"version" gorm:"not null;uniqueIndex:idx_namespace_version"`
	ArtifactURL        *string    `json:"artifact_url"`
	ArtifactPath       string     `json:"-"`
	ArtifactSizeBytes  int64      `json:"artifact_size_bytes"`
	Downloads          int64      `json:"downloads" gorm:"not null;default:0"`
	ScanStatus         ScanStatus `json:"scan_status" gorm:"type:varchar(20);not null;default:pending"`
	ScanDate           *time.Time `json:"scan_date"`
	ContentHash        string     `json:"content_hash" gorm:"index"`
	CreatedAt          time.Time  `json:"created_at"`
}

// BeforeCreate generates a UUID for the version ID
func (v *PackageVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// RoleAuditEntry is an append-only record of a role change
type RoleAuditEntry struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TargetID  uuid.UUID `json:"target_id" gorm:"type:uuid;not null;index"`
	OldRole   Role      `json:"old_role" gorm:"type:varchar(20);not null"`
	NewRole   Role      `json:"new_role" gorm:"type:varchar(20);not null"`
	ActorID   uuid.UUID `json:"actor_id" gorm:"type:uuid;not null"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// BeforeCreate generates a UUID for the audit entry ID
func (e *RoleAuditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// DownloadEvent is an append-only record of a single download
type DownloadEvent struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	VersionID   uuid.UUID `json:"version_id" gorm:"type:uuid;not null;index"`
	NamespaceID uuid.UUID `json:"namespace_id" gorm:"type:uuid;not null;index"`
	UserAgent   string    `json:"user_agent"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// BeforeCreate generates a UUID for the event ID
func (e *DownloadEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Identity is what the platform identity provider tells us about the caller
type Identity struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
}

// Actor is the explicit caller context passed into every registry operation
type Actor struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
	Role           Role      `json:"role"`
}

// Upload describes an artifact file received from a caller. Open is only
// called after the file metadata has been validated.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// NamespaceInput holds the caller supplied fields of a new namespace
type NamespaceInput struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	License       string `json:"license"`
	RepositoryURL string `json:"github_repo"`
}

// NamespaceUpdate holds the owner editable fields of a namespace. Nil fields
// are left unchanged.
type NamespaceUpdate struct {
	Description   *string `json:"description"`
	License       *string `json:"license"`
	RepositoryURL *string `json:"github_repo"`
}

// SearchFilter filters the staff namespace search
type SearchFilter struct {
	Term     string          `json:"term"`
	Status   NamespaceStatus `json:"status"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// SortKey selects the ordering of public listings
type SortKey string

const (
	SortNewest    SortKey = "created_at"
	SortName      SortKey = "name"
	SortDownloads SortKey = "downloads"
)

// ListFilter filters public namespace listings
type ListFilter struct {
	Query   string  `json:"query"`
	Sort    SortKey `json:"sort"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// PublicPackage is an approved namespace with the fields shown in public listings
type PublicPackage struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	License           string    `json:"license"`
	RepositoryURL     string    `json:"github_repo"`
	TotalDownloads    int64     `json:"total_downloads"`
	LatestVersion     string    `json:"latest_version"`
	AuthorDisplayName string    `json:"author_name"`
	AuthorAvatarURL   string    `json:"author_avatar_url"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationInfo computes page counts for a total
func NewPaginationInfo(page, perPage int, total int64) PaginationInfo {
	totalPages := 0
	if perPage > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return PaginationInfo{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	APIResponse
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

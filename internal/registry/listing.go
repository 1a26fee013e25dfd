package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
	"gorm.io/gorm"
)

// ErrVersionsUnavailable marks a failure to load the versions of a package
// whose namespace was found
var ErrVersionsUnavailable = errors.New("failed to fetch package versions")

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func likePattern(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}

func orderFor(sort types.SortKey) string {
	switch sort {
	case types.SortName:
		return "name ASC"
	case types.SortDownloads:
		return "total_downloads DESC, name ASC"
	case types.SortNewest:
		return "created_at DESC"
	default:
		return "created_at DESC"
	}
}

// ListPublic returns approved namespaces with their latest clean version and
// author display fields
func (s *NamespaceStore) ListPublic(ctx context.Context, filter types.ListFilter) ([]types.PublicPackage, types.PaginationInfo, error) {
	page, perPage := normalizePage(filter.Page, filter.PerPage)

	base := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&types.PackageNamespace{}).Where("status = ?", types.StatusApproved)
		if strings.TrimSpace(filter.Query) != "" {
			pattern := likePattern(filter.Query)
			query = query.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, types.PaginationInfo{}, fmt.Errorf("failed to count packages: %w", err)
	}

	var namespaces []types.PackageNamespace
	if err := base().
		Preload("Author").
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "package_namespace_id", "version").Where("scan_status = ?", types.ScanClean)
		}).
		Order(orderFor(filter.Sort)).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&namespaces).Error; err != nil {
		return nil, types.PaginationInfo{}, fmt.Errorf("failed to list packages: %w", err)
	}

	packages := make([]types.PublicPackage, 0, len(namespaces))
	for i := range namespaces {
		packages = append(packages, toPublicPackage(&namespaces[i]))
	}
	return packages, types.NewPaginationInfo(page, perPage, total), nil
}

func toPublicPackage(ns *types.PackageNamespace) types.PublicPackage {
	versions := make([]string, 0, len(ns.Versions))
	for _, v := range ns.Versions {
		versions = append(versions, v.Version)
	}

	pkg := types.PublicPackage{
		ID:             ns.ID,
		Name:           ns.Name,
		Description:    ns.Description,
		License:        ns.License,
		RepositoryURL:  ns.RepositoryURL,
		TotalDownloads: ns.TotalDownloads,
		LatestVersion:  utils.GetLatestVersion(versions),
		CreatedAt:      ns.CreatedAt,
		UpdatedAt:      ns.UpdatedAt,
	}
	if ns.Author != nil {
		pkg.AuthorDisplayName = ns.Author.DisplayName
		pkg.AuthorAvatarURL = ns.Author.AvatarURL
	}
	return pkg
}

// Search is the staff lookup over every namespace regardless of status.
// The term matches name, description and author email case-insensitively.
func (s *NamespaceStore) Search(ctx context.Context, filter types.SearchFilter) ([]types.PackageNamespace, types.PaginationInfo, error) {
	page, perPage := normalizePage(filter.Page, filter.PageSize)

	if filter.Status != "" {
		if _, ok := types.ParseNamespaceStatus(string(filter.Status)); !ok {
			return nil, types.PaginationInfo{}, types.ErrInvalidInput.WithMessage("unknown status %q", filter.Status)
		}
	}

	base := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&types.PackageNamespace{})
		if strings.TrimSpace(filter.Term) != "" {
			pattern := likePattern(filter.Term)
			query = query.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(author_email) LIKE ? ESCAPE '\')`,
				pattern, pattern, pattern)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, types.PaginationInfo{}, fmt.Errorf("failed to count packages: %w", err)
	}

	var namespaces []types.PackageNamespace
	if err := base().
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&namespaces).Error; err != nil {
		return nil, types.PaginationInfo{}, fmt.Errorf("failed to search packages: %w", err)
	}

	return namespaces, types.NewPaginationInfo(page, perPage, total), nil
}

// GetPublicPackage returns an approved namespace by name together with its
// author and clean versions, newest first
func (s *NamespaceStore) GetPublicPackage(ctx context.Context, name string) (*types.PackageNamespace, error) {
	ns, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if ns.Status != types.StatusApproved {
		return nil, types.ErrNotFound.WithMessage("package not found")
	}
	return s.withDetails(ctx, ns, true)
}

// withDetails loads the author and versions of ns
func (s *NamespaceStore) withDetails(ctx context.Context, ns *types.PackageNamespace, onlyClean bool) (*types.PackageNamespace, error) {
	var author types.Profile
	err := s.db.WithContext(ctx).Where("id = ?", ns.AuthorID).First(&author).Error
	switch {
	case err == nil:
		ns.Author = &author
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load author: %w", err)
	}

	versions, err := listVersions(s.db.WithContext(ctx), ns.ID, onlyClean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVersionsUnavailable, err)
	}
	ns.Versions = versions
	return ns, nil
}

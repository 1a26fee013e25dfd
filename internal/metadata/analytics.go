package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	defaultWindowDays = 30
	maxWindowDays     = 365
	defaultListLimit  = 10
	maxListLimit      = 100
	dayLayout         = "2006-01-02"
)

// Service builds download analytics from recorded download events
type Service struct {
	db *common.Database
}

// NewService creates a new analytics service
func NewService(db *common.Database) *Service {
	return &Service{db: db}
}

func normalizeQuery(query StatsQuery) StatsQuery {
	if query.Days < 1 {
		query.Days = defaultWindowDays
	}
	if query.Days > maxWindowDays {
		query.Days = maxWindowDays
	}
	if query.Now.IsZero() {
		query.Now = time.Now()
	}
	query.Now = query.Now.UTC()
	return query
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetPackageStats returns the download report of a namespace over the last
// query.Days days, including today
func (s *Service) GetPackageStats(ctx context.Context, namespaceID uuid.UUID, query StatsQuery) (*PackageStats, error) {
	query = normalizeQuery(query)
	today := startOfDay(query.Now)
	windowStart := today.AddDate(0, 0, -(query.Days - 1))

	var ns types.PackageNamespace
	if err := s.db.WithContext(ctx).Where("id = ?", namespaceID).First(&ns).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound.WithMessage("package not found")
		}
		return nil, fmt.Errorf("failed to get namespace: %w", err)
	}

	var versions []types.PackageVersion
	if err := s.db.WithContext(ctx).
		Where("package_namespace_id = ?", namespaceID).
		Order("created_at DESC").
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	var events []types.DownloadEvent
	if err := s.db.WithContext(ctx).
		Select("version_id", "created_at").
		Where("namespace_id = ? AND created_at >= ?", namespaceID, windowStart).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load download events: %w", err)
	}

	stats := &PackageStats{
		NamespaceID:    ns.ID,
		Name:           ns.Name,
		Status:         ns.Status,
		TotalDownloads: ns.TotalDownloads,
	}

	daily := make(map[string]int64, query.Days)
	perVersion := make(map[uuid.UUID]int64, len(versions))
	for _, e := range events {
		day := e.CreatedAt.UTC().Format(dayLayout)
		daily[day]++
		perVersion[e.VersionID]++
		stats.WindowDownloads++
		if !e.CreatedAt.Before(today) {
			stats.Today++
		}
	}

	for current := windowStart; !current.After(today); current = current.AddDate(0, 0, 1) {
		stats.RecentActivity = append(stats.RecentActivity, DailyDownloads{
			Date:      current,
			Downloads: daily[current.Format(dayLayout)],
		})
	}

	lastDownloads, err := s.lastDownloads(ctx, namespaceID)
	if err != nil {
		return nil, err
	}

	stats.Versions = make([]VersionStats, 0, len(versions))
	for _, v := range versions {
		vs := VersionStats{
			VersionID:       v.ID,
			Version:         v.Version,
			ScanStatus:      v.ScanStatus,
			Downloads:       v.Downloads,
			WindowDownloads: perVersion[v.ID],
		}
		if last, ok := lastDownloads[v.ID]; ok {
			vs.LastDownloadAt = &last
		}
		stats.Versions = append(stats.Versions, vs)
	}

	log.Debug().
		Str("namespace", ns.Name).
		Int("days", query.Days).
		Int64("window_downloads", stats.WindowDownloads).
		Msg("package stats computed")
	return stats, nil
}

// lastDownloads returns the newest download time of every version of a
// namespace. Only the newest event per version is read back.
func (s *Service) lastDownloads(ctx context.Context, namespaceID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	var rows []types.DownloadEvent
	if err := s.db.WithContext(ctx).
		Select("version_id", "created_at").
		Where("namespace_id = ?", namespaceID).
		Where("created_at = (SELECT MAX(latest.created_at) FROM download_events AS latest WHERE latest.version_id = download_events.version_id)").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load last downloads: %w", err)
	}

	last := make(map[uuid.UUID]time.Time, len(rows))
	for _, r := range rows {
		last[r.VersionID] = r.CreatedAt
	}
	return last, nil
}

// GetRegistryStats returns registry wide totals and the most downloaded
// approved packages
func (s *Service) GetRegistryStats(ctx context.Context, limit int) (*RegistryStats, error) {
	limit = clampLimit(limit)

	stats := &RegistryStats{Namespaces: make(map[types.NamespaceStatus]int64)}

	var byStatus []struct {
		Status types.NamespaceStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&types.PackageNamespace{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count namespaces: %w", err)
	}
	for _, row := range byStatus {
		stats.Namespaces[row.Status] = row.Count
	}

	if err := s.db.WithContext(ctx).Model(&types.PackageVersion{}).Count(&stats.Versions).Error; err != nil {
		return nil, fmt.Errorf("failed to count versions: %w", err)
	}

	var totalDownloads sql.NullInt64
	if err := s.db.WithContext(ctx).
		Model(&types.PackageNamespace{}).
		Select("SUM(total_downloads)").
		Scan(&totalDownloads).Error; err != nil {
		return nil, fmt.Errorf("failed to sum downloads: %w", err)
	}
	stats.TotalDownloads = totalDownloads.Int64

	if err := s.db.WithContext(ctx).
		Model(&types.PackageNamespace{}).
		Select("name, author_email, total_downloads").
		Where("status = ?", types.StatusApproved).
		Order("total_downloads DESC, name ASC").
		Limit(limit).
		Scan(&stats.PopularItems).Error; err != nil {
		return nil, fmt.Errorf("failed to get popular packages: %w", err)
	}

	return stats, nil
}

func periodStart(now time.Time, period string) time.Time {
	switch period {
	case "day":
		return now.AddDate(0, 0, -1)
	case "month":
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, 0, -7)
	}
}

// GetTrendingPackages ranks approved namespaces by download growth against
// the preceding period of the same length
func (s *Service) GetTrendingPackages(ctx context.Context, query TrendingQuery) ([]TrendingPackage, error) {
	query.Limit = clampLimit(query.Limit)
	now := query.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	start := periodStart(now, query.Period)
	previousStart := start.Add(-now.Sub(start))

	type countRow struct {
		NamespaceID uuid.UUID
		Downloads   int64
	}

	var current []countRow
	if err := s.db.WithContext(ctx).
		Model(&types.DownloadEvent{}).
		Select("namespace_id, COUNT(*) as downloads").
		Where("created_at >= ?", start).
		Group("namespace_id").
		Scan(&current).Error; err != nil {
		return nil, fmt.Errorf("failed to get trending data: %w", err)
	}

	var previous []countRow
	if err := s.db.WithContext(ctx).
		Model(&types.DownloadEvent{}).
		Select("namespace_id, COUNT(*) as downloads").
		Where("created_at >= ? AND created_at < ?", previousStart, start).
		Group("namespace_id").
		Scan(&previous).Error; err != nil {
		return nil, fmt.Errorf("failed to get previous period data: %w", err)
	}

	prevDownloads := make(map[uuid.UUID]int64, len(previous))
	for _, row := range previous {
		prevDownloads[row.NamespaceID] = row.Downloads
	}

	ids := make([]uuid.UUID, 0, len(current))
	for _, row := range current {
		ids = append(ids, row.NamespaceID)
	}
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) > 0 {
		var approved []types.PackageNamespace
		if err := s.db.WithContext(ctx).
			Select("id", "name").
			Where("id IN ? AND status = ?", ids, types.StatusApproved).
			Find(&approved).Error; err != nil {
			return nil, fmt.Errorf("failed to load namespaces: %w", err)
		}
		for _, ns := range approved {
			names[ns.ID] = ns.Name
		}
	}

	trending := make([]TrendingPackage, 0, len(current))
	for _, row := range current {
		name, ok := names[row.NamespaceID]
		if !ok {
			continue
		}
		prev := prevDownloads[row.NamespaceID]
		var growthRate float64
		if prev > 0 {
			growthRate = float64(row.Downloads-prev) / float64(prev) * 100
		} else if row.Downloads > 0 {
			growthRate = 100
		}
		trending = append(trending, TrendingPackage{Name: name, Downloads: row.Downloads, GrowthRate: growthRate})
	}

	sort.Slice(trending, func(i, j int) bool {
		if trending[i].GrowthRate != trending[j].GrowthRate {
			return trending[i].GrowthRate > trending[j].GrowthRate
		}
		if trending[i].Downloads != trending[j].Downloads {
			return trending[i].Downloads > trending[j].Downloads
		}
		return trending[i].Name < trending[j].Name
	})

	if len(trending) > query.Limit {
		trending = trending[:query.Limit]
	}
	for i := range trending {
		trending[i].Rank = i + 1
	}
	return trending, nil
}

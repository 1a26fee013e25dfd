package metadata

import (
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/pkg/types"
)

// StatsQuery selects the window of a download report
type StatsQuery struct {
	Days int       `json:"days"`
	Now  time.Time `json:"-"`
}

// PackageStats is the download report of one namespace
type PackageStats struct {
	NamespaceID     uuid.UUID             `json:"namespace_id"`
	Name            string                `json:"name"`
	Status          types.NamespaceStatus `json:"status"`
	TotalDownloads  int64                 `json:"total_downloads"`
	WindowDownloads int64                 `json:"window_downloads"`
	Today           int64                 `json:"today"`
	Versions        []VersionStats        `json:"versions"`
	RecentActivity  []DailyDownloads      `json:"recent_activity"`
}

// VersionStats is the download breakdown of one version
type VersionStats struct {
	VersionID       uuid.UUID        `json:"version_id"`
	Version         string           `json:"version"`
	ScanStatus      types.ScanStatus `json:"scan_status"`
	Downloads       int64            `json:"downloads"`
	WindowDownloads int64            `json:"window_downloads"`
	LastDownloadAt  *time.Time       `json:"last_download_at,omitempty"`
}

// DailyDownloads represents downloads for a specific day
type DailyDownloads struct {
	Date      time.Time `json:"date"`
	Downloads int64     `json:"downloads"`
}

// RegistryStats summarises the whole registry
type RegistryStats struct {
	Namespaces     map[types.NamespaceStatus]int64 `json:"namespaces"`
	Versions       int64                           `json:"versions"`
	TotalDownloads int64                           `json:"total_downloads"`
	PopularItems   []PopularPackage                `json:"popular_items"`
}

// PopularPackage is an approved namespace ranked by downloads
type PopularPackage struct {
	Name           string `json:"name"`
	AuthorEmail    string `json:"author_email"`
	TotalDownloads int64  `json:"total_downloads"`
}

// TrendingQuery selects the trending window
type TrendingQuery struct {
	Period string    `json:"period"` // day, week, month
	Limit  int       `json:"limit"`
	Now    time.Time `json:"-"`
}

// TrendingPackage is an approved namespace ranked by recent growth
type TrendingPackage struct {
	Name       string  `json:"name"`
	Downloads  int64   `json:"downloads"`
	GrowthRate float64 `json:"growth_rate"`
	Rank       int     `json:"rank"`
}

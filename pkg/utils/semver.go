package utils

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

// SortVersions sorts the given version strings in semantic versioning order (latest version first).
// Invalid versions are dropped.
func SortVersions(versions []string) []string {
	semverVersions := make([]*semver.Version, 0, len(versions))
	original := make(map[*semver.Version]string, len(versions))

	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			log.Warn().Str("version", v).Err(err).Msg("invalid semver version")
			continue
		}
		semverVersions = append(semverVersions, sv)
		original[sv] = v
	}

	sort.SliceStable(semverVersions, func(i, j int) bool {
		return semverVersions[i].GreaterThan(semverVersions[j])
	})

	result := make([]string, len(semverVersions))
	for i, v := range semverVersions {
		result[i] = original[v]
	}

	return result
}

// GetLatestVersion returns the latest version from the given version strings
func GetLatestVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}

	sortedVersions := SortVersions(versions)
	if len(sortedVersions) == 0 {
		return versions[0]
	}

	return sortedVersions[0]
}

// CompareVersions compares two version strings according to semver rules
// Returns:
//
//	-1 if v1 < v2
//	 0 if v1 == v2
//	 1 if v1 > v2
//	 2 if either version is invalid
func CompareVersions(v1, v2 string) int {
	sv1, err := semver.NewVersion(v1)
	if err != nil {
		return 2
	}

	sv2, err := semver.NewVersion(v2)
	if err != nil {
		return 2
	}

	return sv1.Compare(sv2)
}

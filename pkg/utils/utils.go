package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
	packageurl "github.com/package-url/packageurl-go"
)

var (
	packageNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	versionPattern     = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	storageUnsafe      = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// ComputeSHA256 computes the SHA256 hash of data
func ComputeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ComputeSHA256FromReader computes SHA256 hash from an io.Reader
func ComputeSHA256FromReader(reader io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, reader); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// IsValidPackageName checks the namespace naming rules
func IsValidPackageName(name string) bool {
	return len(name) >= 3 && packageNamePattern.MatchString(name)
}

// IsValidVersion checks for a plain MAJOR.MINOR.PATCH version
func IsValidVersion(version string) bool {
	return versionPattern.MatchString(version)
}

// IsGitHubRepoURL checks that raw is an https URL of a github.com repository,
// that is https://github.com/<owner>/<repo>
func IsGitHubRepoURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.User != nil || u.Port() != "" {
		return false
	}
	if !strings.EqualFold(u.Hostname(), "github.com") {
		return false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return false
	}
	return segments[0] != "" && segments[1] != ""
}

// SanitizeStorageSegment makes a value safe to use as a single blob path segment
func SanitizeStorageSegment(s string) string {
	s = storageUnsafe.ReplaceAllString(s, "-")
	s = strings.Trim(s, ".-")
	if s == "" {
		return "_"
	}
	return s
}

// NormalizeLicense trims a license string and reports whether it is a valid
// SPDX expression. Values that match an allow-list entry case-insensitively are
// rewritten to the allow-list spelling.
func NormalizeLicense(license string, allowList []string) (string, bool) {
	license = strings.TrimSpace(license)
	if license == "" {
		return "", false
	}
	for _, allowed := range allowList {
		if strings.EqualFold(allowed, license) {
			license = allowed
			break
		}
	}
	valid, _ := spdxexp.ValidateLicenses([]string{license})
	return license, valid
}

// PackageURL builds a generic package URL for a registry package
func PackageURL(registryURL, name, version string) string {
	var qualifiers packageurl.Qualifiers
	if registryURL != "" {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"repository_url": registryURL})
	}
	return packageurl.NewPackageURL(packageurl.TypeGeneric, "", name, version, qualifiers, "").ToString()
}

// FormatBytes formats byte size in human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	suffixes := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSHA256(t *testing.T) {
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	assert.Equal(t, want, ComputeSHA256([]byte("hello")))

	fromReader, err := ComputeSHA256FromReader(strings.NewReader("hello"))
	assert.NoError(t, err)
	assert.Equal(t, want, fromReader)
}

func TestIsValidPackageName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"my-lib", true},
		{"My.Lib_2", true},
		{"ab", false},
		{"", false},
		{"my lib", false},
		{"my/lib", false},
		{"lib@1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidPackageName(tt.name))
		})
	}
}

func TestIsValidVersion(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"1.0.0", true},
		{"10.20.30", true},
		{"1.0", false},
		{"v1.0.0", false},
		{"1.0.0-beta", false},
		{"1.0.0.0", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidVersion(tt.version))
		})
	}
}

func TestIsGitHubRepoURL(t *testing.T) {
	assert.True(t, IsGitHubRepoURL("https://github.com/owner/repo"))
	assert.True(t, IsGitHubRepoURL("https://GitHub.com/owner/repo"))
	assert.False(t, IsGitHubRepoURL("https://gitlab.com/owner/repo"))
	assert.False(t, IsGitHubRepoURL("https://github.com.evil.io/owner/repo"))
	assert.False(t, IsGitHubRepoURL("github.com/owner/repo"))
	assert.False(t, IsGitHubRepoURL("ftp://github.com/owner/repo"))
	assert.False(t, IsGitHubRepoURL("::not a url"))
	assert.True(t, IsGitHubRepoURL("https://github.com/owner/repo/tree/main"))
	assert.False(t, IsGitHubRepoURL("http://github.com/owner/repo"))
	assert.False(t, IsGitHubRepoURL("https://github.com"))
	assert.False(t, IsGitHubRepoURL("https://github.com/owner"))
	assert.False(t, IsGitHubRepoURL("https://github.com//repo"))
	assert.False(t, IsGitHubRepoURL(""))
}

func TestSanitizeStorageSegment(t *testing.T) {
	assert.Equal(t, "my-lib", SanitizeStorageSegment("my-lib"))
	assert.Equal(t, "a-b-c", SanitizeStorageSegment("a b/c"))
	assert.Equal(t, "_", SanitizeStorageSegment(".."))
}

func TestNormalizeLicense(t *testing.T) {
	allow := []string{"MIT", "Apache-2.0"}

	license, spdx := NormalizeLicense(" mit ", allow)
	assert.Equal(t, "MIT", license)
	assert.True(t, spdx)

	license, spdx = NormalizeLicense("apache-2.0", allow)
	assert.Equal(t, "Apache-2.0", license)
	assert.True(t, spdx)

	license, spdx = NormalizeLicense("do whatever you want", allow)
	assert.Equal(t, "do whatever you want", license)
	assert.False(t, spdx)

	license, spdx = NormalizeLicense("  ", allow)
	assert.Empty(t, license)
	assert.False(t, spdx)
}

func TestPackageURL(t *testing.T) {
	purl := PackageURL("", "my-lib", "1.0.0")
	assert.Equal(t, "pkg:generic/my-lib@1.0.0", purl)

	purl = PackageURL("https://jarhub.example", "my-lib", "1.0.0")
	assert.True(t, strings.HasPrefix(purl, "pkg:generic/my-lib@1.0.0?repository_url="))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{100 << 20, "100.0 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}

func TestSortVersions(t *testing.T) {
	sorted := SortVersions([]string{"1.0.0", "2.1.0", "not-a-version", "1.10.0", "1.2.3"})
	assert.Equal(t, []string{"2.1.0", "1.10.0", "1.2.3", "1.0.0"}, sorted)
}

func TestGetLatestVersion(t *testing.T) {
	assert.Equal(t, "", GetLatestVersion(nil))
	assert.Equal(t, "1.10.0", GetLatestVersion([]string{"1.9.0", "1.10.0"}))
	assert.Equal(t, "garbage", GetLatestVersion([]string{"garbage"}))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, -1, CompareVersions("1.0.0", "1.0.1"))
	assert.Equal(t, 0, CompareVersions("1.0.0", "1.0.0"))
	assert.Equal(t, 1, CompareVersions("2.0.0", "1.9.9"))
	assert.Equal(t, 2, CompareVersions("x", "1.0.0"))
}

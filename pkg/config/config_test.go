package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(100<<20), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, []string{".jar"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, "signature", cfg.Scanner.Mode)
	assert.Equal(t, 30*time.Second, cfg.Scanner.Timeout)
	assert.Equal(t, time.Minute, cfg.Cache.PackageTTL)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("UPLOAD_MAX_SIZE_BYTES", "1024")
	t.Setenv("UPLOAD_ALLOWED_EXTENSIONS", ".jar, .zip ,")
	t.Setenv("SCANNER_TIMEOUT", "5s")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("SCANNER_BLOCKED_HASHES", "abc,def")

	cfg := LoadFromEnv()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(1024), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, []string{".jar", ".zip"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, 5*time.Second, cfg.Scanner.Timeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"abc", "def"}, cfg.Scanner.BlockedHashes)
}

func TestLoadFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SCANNER_TIMEOUT", "soon")

	cfg := LoadFromEnv()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Scanner.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:    "remote without url",
			mutate:  func(c *Config) { c.Scanner.Mode = "remote" },
			wantErr: "SCANNER_REMOTE_URL",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Scanner.Mode = "keyword" },
			wantErr: "unsupported scanner mode",
		},
		{
			name:    "no extensions",
			mutate:  func(c *Config) { c.Upload.AllowedExtensions = nil },
			wantErr: "UPLOAD_ALLOWED_EXTENSIONS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadFromEnv()
			cfg.Auth.JWTSecret = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DatabaseURL())
}

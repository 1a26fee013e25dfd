// Package artifact checks uploaded artifact metadata before any content is read.
package artifact

import (
	"path/filepath"
	"strings"

	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/lgulliver/jarhub/pkg/utils"
)

const unsafeFilenameChars = "<>:\"|?*\x00"

// Validator enforces upload size, type and filename rules
type Validator struct {
	maxSize    int64
	extensions map[string]struct{}
}

// NewValidator creates a validator from upload configuration
func NewValidator(cfg *config.UploadConfig) *Validator {
	extensions := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = struct{}{}
	}
	return &Validator{maxSize: cfg.MaxSizeBytes, extensions: extensions}
}

// MaxSize returns the configured size limit in bytes
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// Validate checks size, then extension, then filename safety, and returns the
// first violation found.
func (v *Validator) Validate(filename string, size int64) error {
	if size > v.maxSize {
		return types.ErrFileTooLarge.WithMessage("file is %s, the maximum is %s",
			utils.FormatBytes(size), utils.FormatBytes(v.maxSize))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := v.extensions[ext]; !ok {
		return types.ErrUnsupportedType.WithMessage("file type %q is not allowed", ext)
	}

	if strings.Contains(filename, "..") || strings.ContainsAny(filename, unsafeFilenameChars) {
		return types.ErrUnsafeFilename
	}

	return nil
}

// ValidateUpload validates the metadata of an upload without opening it
func (v *Validator) ValidateUpload(upload *types.Upload) error {
	if upload == nil {
		return types.ErrInvalidInput.WithMessage("an artifact file is required")
	}
	return v.Validate(upload.Filename, upload.Size)
}

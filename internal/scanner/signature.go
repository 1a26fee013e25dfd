package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/lgulliver/jarhub/pkg/utils"
)

// eicarSignature is the industry standard anti-malware test string
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

const (
	// maxInspectedEntryBytes caps how much of one archive entry is read
	maxInspectedEntryBytes = 16 << 20
	// maxArchiveEntries bounds the work done on a single archive
	maxArchiveEntries = 65536
)

var nativeExtensions = map[string]struct{}{
	".exe":   {},
	".dll":   {},
	".so":    {},
	".dylib": {},
	".sh":    {},
	".bat":   {},
	".cmd":   {},
	".ps1":   {},
	".scr":   {},
	".com":   {},
}

// SignatureDetector is a deterministic detector based on known signatures,
// a hash block list and archive heuristics for JAR files.
type SignatureDetector struct {
	blocked       map[string]struct{}
	maxEntryRatio uint64
}

// NewSignatureDetector creates a detector. blockedHashes are hex SHA-256
// digests; maxEntryRatio is the largest compression ratio tolerated for a
// single archive entry (0 disables the check).
func NewSignatureDetector(blockedHashes []string, maxEntryRatio int64) *SignatureDetector {
	blocked := make(map[string]struct{}, len(blockedHashes))
	for _, h := range blockedHashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			blocked[h] = struct{}{}
		}
	}
	var ratio uint64
	if maxEntryRatio > 0 {
		ratio = uint64(maxEntryRatio)
	}
	return &SignatureDetector{blocked: blocked, maxEntryRatio: ratio}
}

// Name implements Detector
func (d *SignatureDetector) Name() string {
	return "signature"
}

// Detect implements Detector
func (d *SignatureDetector) Detect(ctx context.Context, content []byte) (string, error) {
	if _, ok := d.blocked[utils.ComputeSHA256(content)]; ok {
		return "Blocklisted.SHA256", nil
	}
	if bytes.Contains(content, []byte(eicarSignature)) {
		return "EICAR-Test-File", nil
	}

	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return "Heuristic.PathTraversal", nil
	}
	if err != nil {
		// Not an archive; only the raw checks above apply.
		return "", nil
	}
	if len(archive.File) > maxArchiveEntries {
		return "Heuristic.ArchiveBomb.EntryCount", nil
	}

	for _, entry := range archive.File {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if threat := d.inspectEntryHeader(entry); threat != "" {
			return threat, nil
		}
		if entry.FileInfo().IsDir() {
			continue
		}

		threat, err := d.inspectEntryContent(entry)
		if err != nil {
			return "", fmt.Errorf("failed to inspect archive entry %s: %w", entry.Name, err)
		}
		if threat != "" {
			return threat, nil
		}
	}

	return "", nil
}

func (d *SignatureDetector) inspectEntryHeader(entry *zip.File) string {
	name := strings.ToLower(entry.Name)
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return "Heuristic.PathTraversal"
	}
	if _, ok := nativeExtensions[path.Ext(name)]; ok {
		return "Heuristic.NativeExecutable"
	}
	if d.maxEntryRatio > 0 && entry.CompressedSize64 > 0 &&
		entry.UncompressedSize64/entry.CompressedSize64 > d.maxEntryRatio {
		return "Heuristic.ArchiveBomb.Ratio"
	}
	return ""
}

func (d *SignatureDetector) inspectEntryContent(entry *zip.File) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxInspectedEntryBytes))
	if err != nil {
		return "", err
	}

	if bytes.Contains(data, []byte(eicarSignature)) {
		return "EICAR-Test-File", nil
	}
	// Windows PE and ELF binaries hidden behind innocent names
	if bytes.HasPrefix(data, []byte("MZ")) && bytes.Contains(data, []byte("This program cannot be run in DOS mode")) {
		return "Heuristic.NativeExecutable", nil
	}
	if bytes.HasPrefix(data, []byte("\x7fELF")) {
		return "Heuristic.NativeExecutable", nil
	}
	return "", nil
}

package walker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the maximum document size to index (50 MB).
const DefaultMaxFileSize int64 = 50 << 20

// FileInfo holds metadata about a single document discovered during traversal.
type FileInfo struct {
	Path        string // Absolute path on disk.
	RelPath     string // Path relative to the root directory.
	Size        int64  // File size in bytes.
	Extension   string // Lower-cased extension including the dot.
	ContentHash string // SHA-256 hex digest of the file content.
}

// WalkerConfig controls the behaviour of the Walk function.
type WalkerConfig struct {
	RootDir     string   // Root directory to walk.
	Extensions  []string // Accepted extensions, e.g. ".pdf". Empty accepts all.
	Include     []string // Glob patterns; only matching files are included.
	Exclude     []string // Glob patterns; matching files are excluded.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
}

// Walk traverses the directory tree rooted at config.RootDir and returns
// every document that passes filtering, in lexical path order.
func Walk(config WalkerConfig) ([]FileInfo, error) {
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("walker: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("walker: %s is not a directory", root)
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []FileInfo

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Skip entries we cannot read instead of aborting.
			return nil
		}

		name := d.Name()

		if d.IsDir() {
			if path != root && shouldExcludeDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if !hasExtension(ext, config.Extensions) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if !MatchesInclude(relPath, config.Include) {
			return nil
		}
		if MatchesExclude(relPath, config.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}

		hash, err := HashFile(path)
		if err != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:        path,
			RelPath:     filepath.ToSlash(relPath),
			Size:        info.Size(),
			Extension:   ext,
			ContentHash: hash,
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walker: traversal: %w", err)
	}

	return files, nil
}

func hasExtension(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}

// HashFile computes the SHA-256 digest of the given file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

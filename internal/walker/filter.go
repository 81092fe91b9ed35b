package walker

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are directory names skipped during traversal.
var DefaultExcludes = []string{
	".git",
	".docqa",
	"node_modules",
	"__pycache__",
	".venv",
	".idea",
	".vscode",
}

// shouldExcludeDir reports whether a directory subtree is skipped. Hidden
// directories are always skipped.
func shouldExcludeDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, excl := range DefaultExcludes {
		if strings.EqualFold(name, excl) {
			return true
		}
	}
	return false
}

// MatchesInclude returns true if the given relative path matches any of the
// include patterns. If patterns is empty, everything is included.
func MatchesInclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchesAny(relPath, patterns)
}

// MatchesExclude returns true if the given relative path matches any of the
// exclude patterns. If patterns is empty, nothing is excluded.
func MatchesExclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matchesAny(relPath, patterns)
}

// matchesAny checks relPath and its basename against the patterns. Matching
// is case-insensitive so "**/*.pdf" also picks up REPORT.PDF.
func matchesAny(relPath string, patterns []string) bool {
	normalized := strings.ToLower(filepath.ToSlash(relPath))
	base := filepath.Base(normalized)

	for _, pattern := range patterns {
		pattern = strings.ToLower(filepath.ToSlash(pattern))

		if matched, err := doublestar.Match(pattern, normalized); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

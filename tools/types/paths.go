package types

import (
	"path"
	"strings"
)

// ValidatePrimPath checks that a prim path argument is usable: absolute,
// non-empty, and free of characters that never appear in prim paths. It
// returns an invalid_argument semantic error otherwise. Whether the path
// resolves on a given stage is a separate question answered at lookup time.
func ValidatePrimPath(primPath string) error {
	trimmed := strings.TrimSpace(primPath)
	if trimmed == "" {
		return NewInvalidArgumentError("prim path cannot be empty", nil)
	}
	if !strings.HasPrefix(trimmed, "/") {
		return NewInvalidArgumentError("prim path must be absolute (start with /): "+trimmed, map[string]any{
			"prim_path": trimmed,
		})
	}
	if strings.ContainsAny(trimmed, "<>\"'|?*\\") {
		return NewInvalidArgumentError("prim path contains invalid characters: "+trimmed, map[string]any{
			"prim_path": trimmed,
		})
	}
	return nil
}

// NormalizePrimPath trims whitespace and a trailing slash so /hello/ and
// /hello resolve identically. The pseudo-root path "/" is preserved.
func NormalizePrimPath(primPath string) string {
	trimmed := strings.TrimSpace(primPath)
	if len(trimmed) > 1 {
		trimmed = strings.TrimRight(trimmed, "/")
	}
	return trimmed
}

// NameMatcher matches prim names against a user supplied pattern. When the
// pattern contains glob metacharacters it is matched with path.Match
// semantics against the whole name; otherwise it is a case-sensitive
// substring test.
type NameMatcher struct {
	pattern string
	glob    bool
}

// NewNameMatcher validates the pattern and builds a matcher. Empty
// patterns and malformed globs are invalid_argument failures.
func NewNameMatcher(pattern string) (*NameMatcher, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, NewInvalidArgumentError("name pattern cannot be empty", nil)
	}
	glob := strings.ContainsAny(pattern, "*?[")
	if glob {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, NewInvalidArgumentError("malformed name pattern: "+pattern, map[string]any{
				"name_pattern": pattern,
			})
		}
	}
	return &NameMatcher{pattern: pattern, glob: glob}, nil
}

func (m *NameMatcher) Matches(name string) bool {
	if m.glob {
		matched, err := path.Match(m.pattern, name)
		return err == nil && matched
	}
	return strings.Contains(name, m.pattern)
}

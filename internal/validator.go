package internal

import (
	"fmt"
	"strings"

	pkgerrs "redveil/pkg/errors"
)

const (
	minCommunityLength = 2
	maxCommunityLength = 21
	maxUsernameLength  = 20
	maxCursorLength    = 64
	maxQueryLength     = 512
)

// ValidateCommunityName checks a community name against upstream naming
// rules before it is spliced into a request path.
func ValidateCommunityName(name string) error {
	if name == "" {
		return &pkgerrs.ConfigError{Field: "community", Message: "community name cannot be empty"}
	}
	if len(name) < minCommunityLength {
		return &pkgerrs.ConfigError{Field: "community", Message: fmt.Sprintf("community name must be at least %d characters", minCommunityLength)}
	}
	if len(name) > maxCommunityLength {
		return &pkgerrs.ConfigError{Field: "community", Message: fmt.Sprintf("community name cannot exceed %d characters", maxCommunityLength)}
	}
	for i, ch := range name {
		if !isWordChar(ch) && ch != '+' {
			return &pkgerrs.ConfigError{Field: "community", Message: fmt.Sprintf("community name contains invalid character %q at position %d", ch, i)}
		}
	}
	return nil
}

// ValidateUsername checks a profile name before it is spliced into a path.
func ValidateUsername(name string) error {
	if name == "" {
		return &pkgerrs.ConfigError{Field: "user", Message: "username cannot be empty"}
	}
	if len(name) > maxUsernameLength {
		return &pkgerrs.ConfigError{Field: "user", Message: fmt.Sprintf("username cannot exceed %d characters", maxUsernameLength)}
	}
	for i, ch := range name {
		if !isWordChar(ch) && ch != '-' {
			return &pkgerrs.ConfigError{Field: "user", Message: fmt.Sprintf("username contains invalid character %q at position %d", ch, i)}
		}
	}
	return nil
}

// ValidateCursor sanity-checks a continuation cursor. The cursor is opaque
// and passed back verbatim, but it still travels inside a query string.
func ValidateCursor(cursor string) error {
	if cursor == "" {
		return nil
	}
	if len(cursor) > maxCursorLength {
		return &pkgerrs.ConfigError{Field: "after", Message: fmt.Sprintf("cursor cannot exceed %d characters", maxCursorLength)}
	}
	if strings.ContainsAny(cursor, " \r\n") {
		return &pkgerrs.ConfigError{Field: "after", Message: "cursor cannot contain whitespace"}
	}
	return nil
}

// ValidateQuery checks a search query string.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return &pkgerrs.ConfigError{Field: "query", Message: "search query cannot be empty"}
	}
	if len(q) > maxQueryLength {
		return &pkgerrs.ConfigError{Field: "query", Message: fmt.Sprintf("search query cannot exceed %d characters", maxQueryLength)}
	}
	return nil
}

// ValidateUserAgent validates the impersonated User-Agent string to prevent
// header injection.
func ValidateUserAgent(ua string) error {
	if len(ua) == 0 {
		return fmt.Errorf("user agent cannot be empty")
	}
	if strings.ContainsAny(ua, "\r\n") {
		return fmt.Errorf("user agent cannot contain newline characters")
	}
	if len(ua) > 256 {
		return fmt.Errorf("user agent too long (max 256 characters)")
	}
	return nil
}

func isWordChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
}

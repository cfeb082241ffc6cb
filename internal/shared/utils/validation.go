package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String length limits
const (
	MaxUsernameLength = 64
	MinUsernameLength = 3
	MaxPasswordLength = 128
	MinPasswordLength = 8
	MaxTokenLength    = 128
	MaxURLLength      = 2048
	MaxSegmentLength  = 255
)

var (
	// UsernamePattern allows alphanumeric and underscores
	UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	// TokenPattern matches base64url session tokens
	TokenPattern = regexp.MustCompile(`^[A-Za-z0-9_=-]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateURL checks the raw download target. Reachability and syntax are
// left to the crawler, which fails the request on a bad URL.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url is required")
	}
	return ValidateString(raw, "url", 1, MaxURLLength, true)
}

// ValidateSegment checks that name can be used as one directory or file name
// directly under a parent directory.
func ValidateSegment(name, fieldName string) error {
	if err := ValidateString(name, fieldName, 1, MaxSegmentLength, true); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%s %q is not allowed", fieldName, name)
	}
	if strings.ContainsAny(name, `/\:*?"<>|`) {
		return fmt.Errorf("%s %q contains path characters", fieldName, name)
	}
	for _, r := range name {
		if r < 0x20 {
			return fmt.Errorf("%s contains control characters", fieldName)
		}
	}
	return nil
}

// ValidateUsername validates a username
func ValidateUsername(username string) error {
	if err := ValidateString(username, "username", MinUsernameLength, MaxUsernameLength, true); err != nil {
		return err
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only alphanumeric and underscores allowed)")
	}

	return nil
}

// ValidatePassword validates a password
func ValidatePassword(password string) error {
	return ValidateString(password, "password", MinPasswordLength, MaxPasswordLength, true)
}

// ValidateToken validates the shape of a bearer token
func ValidateToken(token string) error {
	if err := ValidateString(token, "token", 1, MaxTokenLength, true); err != nil {
		return err
	}
	if !TokenPattern.MatchString(token) {
		return fmt.Errorf("token contains invalid characters")
	}
	return nil
}

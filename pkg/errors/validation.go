package errors

import (
	"strings"
	"unicode"
)

// MinDescriptionLen is the minimum trimmed length of an incident description
// accepted by diagram generation and regeneration.
const MinDescriptionLen = 10

// Analysis level bounds.
const (
	MinLevel = 1
	MaxLevel = 5
)

// ValidateDescription validates an incident description for diagram generation.
// The description must be at least MinDescriptionLen characters after trimming.
func ValidateDescription(desc string) error {
	trimmed := strings.TrimSpace(desc)
	if trimmed == "" {
		return New(ErrCodeInvalidInput, "description cannot be empty")
	}
	if len(trimmed) < MinDescriptionLen {
		return New(ErrCodeInvalidInput, "description too short (min %d characters)", MinDescriptionLen)
	}
	return nil
}

// ValidateLevel validates an analysis level.
// Levels outside [MinLevel, MaxLevel] are rejected; callers that prefer
// clamping over rejection should clamp before validating.
func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return New(ErrCodeInvalidLevel, "analysis level must be between %d and %d, got %d", MinLevel, MaxLevel, level)
	}
	return nil
}

// ValidateNodeName validates a diagram node display name.
// Names that are empty after trimming are rejected.
func ValidateNodeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return New(ErrCodeInvalidName, "node name cannot be blank")
	}
	if len(name) > 256 {
		return New(ErrCodeInvalidName, "node name too long (max 256 characters)")
	}
	return nil
}

// ValidateTitle validates an incident or diagram title.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return New(ErrCodeInvalidTitle, "title cannot be blank")
	}
	if len(title) > 200 {
		return New(ErrCodeInvalidTitle, "title too long (max 200 characters)")
	}
	return nil
}

// ValidateUsername validates a user name for account operations.
//
// The rules are intentionally conservative:
//   - No empty names
//   - No control characters or spaces
//   - Maximum length of 64 characters
func ValidateUsername(name string) error {
	if name == "" {
		return New(ErrCodeInvalidUser, "username cannot be empty")
	}
	if len(name) > 64 {
		return New(ErrCodeInvalidUser, "username too long (max 64 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidUser, "username contains invalid characters")
		}
	}
	return nil
}

package security

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/Rrens/kb-chat/internal/domain"
)

const maxFileNameLength = 255

// FileNameValidator checks upload file names before they become object keys
type FileNameValidator struct {
	extension string
	blocked   []string
}

// NewFileNameValidator creates a validator that only accepts names ending
// in extension (case-insensitive, e.g. ".md").
func NewFileNameValidator(extension string) *FileNameValidator {
	ext := strings.ToLower(strings.TrimSpace(extension))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &FileNameValidator{
		extension: ext,
		blocked:   []string{"/", "\\", "..", ":"},
	}
}

// ValidationError represents a rejected file name
type ValidationError struct {
	Message string
	Name    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets callers match domain.ErrInvalidFileName
func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidFileName
}

// Validate checks that name is a bare file name with the required extension
func (v *FileNameValidator) Validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Message: "empty file name", Name: name}
	}
	if len(name) > maxFileNameLength {
		return &ValidationError{Message: "file name too long", Name: name}
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return &ValidationError{Message: "file name contains control characters", Name: name}
		}
	}

	for _, b := range v.blocked {
		if strings.Contains(name, b) {
			return &ValidationError{Message: fmt.Sprintf("file name must not contain %q", b), Name: name}
		}
	}

	if strings.HasPrefix(name, ".") {
		return &ValidationError{Message: "hidden files not allowed", Name: name}
	}

	if v.extension != "" && strings.ToLower(path.Ext(name)) != v.extension {
		return &ValidationError{Message: fmt.Sprintf("only %s files are allowed", v.extension), Name: name}
	}

	return nil
}

// Extension returns the required extension including the dot
func (v *FileNameValidator) Extension() string {
	return v.extension
}

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/heimdex/clipreel/internal/catalog"
)

// SanitizeName makes s safe for a file name and an EDL title: control
// characters are dropped, anything outside letters, digits and a little
// punctuation becomes '_', and the result is cut to maxLen runes.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		default:
			return '_'
		}
	}, s))

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

// ValidateOutputDir requires an existing, clean directory path without
// traversal segments.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return invalid("output_dir is required")
	}
	if slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), "..") {
		return invalid("output_dir cannot contain path traversal")
	}
	if filepath.Clean(dir) != dir {
		return invalid("output_dir must be clean path")
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return invalid("output_dir does not exist")
	case err != nil:
		return fmt.Errorf("invalid output_dir: %w", err)
	case !info.IsDir():
		return invalid("output_dir is not a directory")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", catalog.ErrValidation, msg)
}

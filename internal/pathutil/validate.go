// Package pathutil validates operator-supplied paths before they are opened.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath cleans path and resolves symlinks so that later opens see
// the real target. Paths that do not exist yet are returned cleaned.
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "\x00") {
		return "", ErrNullBytes
	}

	realPath, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return cleaned, nil
	}
	return realPath, nil
}

// ValidateInputFile validates path and requires it to name an existing
// regular file. Exports and inventories are read through it.
func ValidateInputFile(path string) (string, error) {
	cleaned, err := ValidatePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(cleaned)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", cleaned, ErrNotRegular)
	}
	return cleaned, nil
}

package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path within the workspace root.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return targetAbs, nil
}

// ResolveFrom resolves path against base (an absolute directory inside, at,
// or outside the workspace root) instead of r.Root, and reports whether the
// result escapes the workspace rather than hard-denying it. Tools like
// change_directory use this to let a ghost step outside its workspace once
// an operator has approved the move, instead of Resolve's unconditional
// deny.
func (r Resolver) ResolveFrom(base, path string) (resolved string, escaped bool, err error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", false, fmt.Errorf("path is required")
	}
	baseAbs, err := filepath.Abs(strings.TrimSpace(base))
	if err != nil {
		return "", false, fmt.Errorf("resolve base: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(baseAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", false, fmt.Errorf("resolve path: %w", err)
	}

	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", false, fmt.Errorf("resolve workspace root: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", false, fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return targetAbs, true, nil
	}
	return targetAbs, false, nil
}

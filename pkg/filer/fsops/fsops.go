// Package fsops provides the filesystem primitives filer builds on:
// directory creation, cross-device-safe moves and unconditional removal.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrDestinationExists is returned by Move when the target path is already taken.
var ErrDestinationExists = errors.New("destination already exists")

// EnsureDir creates dir and any missing parents. Surrounding whitespace and
// trailing separators are ignored.
func EnsureDir(dir string) error {
	dir = strings.TrimSpace(dir)
	dir = strings.TrimRight(dir, `/\`)
	if dir == "" {
		dir = string(filepath.Separator)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}
	return nil
}

// Move moves the file at src into destDir, keeping its base name, and
// returns the new path. It renames when possible and falls back to
// copy-then-delete when src and destDir are on different devices.
// The copy keeps the permission bits and modification time of src.
func Move(src, destDir string) (string, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return "", fmt.Errorf("cannot move %q: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot move %q: is a directory", src)
	}

	dst := filepath.Join(destDir, filepath.Base(src))
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("moving %q: %w: %s", src, ErrDestinationExists, dst)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking destination %q: %w", dst, err)
	}

	err = os.Rename(src, dst)
	if err == nil {
		return dst, nil
	}
	if !isCrossDevice(err) {
		return "", fmt.Errorf("moving %q to %q: %w", src, dst, err)
	}

	if err := copyAcross(src, dst, info); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return dst, fmt.Errorf("removing %q after copy: %w", src, err)
	}
	return dst, nil
}

// copyAcross copies src to dst, syncs it and restores mode and mtime.
// A partial dst is removed on failure.
func copyAcross(src, dst string, info os.FileInfo) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %q: %w", dst, err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %q to %q: %w", src, dst, err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("syncing %q: %w", dst, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", dst, err)
	}
	if err = os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("restoring times on %q: %w", dst, err)
	}
	return nil
}

// Remove permanently deletes a single file. There is no trash or undo.
func Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %q: %w", path, err)
	}
	return nil
}

// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package utils

import (
	"errors"
	"os"
	"path/filepath"
)

// Exists returns true if f can be stat()ed.
func Exists(f string) bool {
	_, err := os.Stat(f)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// EnsureParentDir creates the directory holding f if it is missing.
func EnsureParentDir(f string) error {
	dir := filepath.Dir(f)
	if Exists(dir) {
		return nil
	}
	return os.MkdirAll(dir, 0700)
}

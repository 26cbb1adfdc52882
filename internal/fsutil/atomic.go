// Package fsutil holds the file primitives shared by the draft store and
// manuscript export.
package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hpungsan/loom/internal/errors"
)

// WriteFileAtomic replaces path with data. The bytes go to a sibling temp file
// which is synced and then renamed over path, so readers see either the old
// file or the new one. The existing file is preserved on any failure.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Errorf("generate temp file name: %w", err)
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := OpenNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}

	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("cannot write to symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("finalize write: %w", err)
	}

	success = true
	return nil
}

// ReadFile reads path without following a symlink in the final component.
// A missing file yields FILE_NOT_FOUND.
func ReadFile(path string) ([]byte, error) {
	f, err := OpenNoFollowRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

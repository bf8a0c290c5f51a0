// Package archive unpacks zip-family bundle archives.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractZip unpacks archivePath into destDir, preserving relative paths.
// Entries that would escape destDir are rejected.
func ExtractZip(ctx context.Context, archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	cleanDest := filepath.Clean(destDir)
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(cleanDest, filepath.Clean(entry.Name))
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("unsafe archive path: %s", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		if err := extractFile(entry, target); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	mode := entry.Mode() & os.ModePerm
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	return dst.Close()
}

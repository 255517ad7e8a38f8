package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var filenameSafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// LocalStorage manages the upload and output directories on disk.
type LocalStorage struct {
	uploadDir string
	outputDir string
}

// NewLocalStorage creates the directories if they do not exist.
func NewLocalStorage(uploadDir, outputDir string) (*LocalStorage, error) {
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
	}
	return &LocalStorage{uploadDir: uploadDir, outputDir: outputDir}, nil
}

func (ls *LocalStorage) UploadDir() string { return ls.uploadDir }
func (ls *LocalStorage) OutputDir() string { return ls.outputDir }

// UniqueFilename builds the on-disk name for an uploaded source: the
// sanitized original base name with the asset id spliced in before the
// extension, so two uploads of "clip.mp4" never collide.
func UniqueFilename(original, assetID string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	ext := filepath.Ext(original)
	name := fmt.Sprintf("%s_%s%s", base, assetID, ext)
	return filenameSafe.ReplaceAllString(name, "_")
}

// SaveUpload streams an uploaded file into the upload directory under its
// unique name and returns the stored path and byte size.
func (ls *LocalStorage) SaveUpload(src io.Reader, original, assetID string) (string, int64, error) {
	path := filepath.Join(ls.uploadDir, UniqueFilename(original, assetID))

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %v", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write upload: %v", err)
	}
	return path, size, nil
}

// SegmentPath returns the absolute location of a produced segment file.
func (ls *LocalStorage) SegmentPath(fileName string) string {
	return filepath.Join(ls.outputDir, fileName)
}

// Package filestore stores uploaded blobs on local disk and hands out
// relative references that the CRUD engine embeds in record file columns.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxFileSize = 50 * 1024 * 1024 // 50 MB

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrInvalidMimeType = errors.New("file type is not allowed")
	ErrBadReference    = errors.New("file reference escapes the store")
)

// AllowedMimeTypes defines which file types are accepted.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/svg+xml":   true,
	"application/pdf": true,
	"text/plain":      true,
	"application/zip": true,
}

// Store writes uploads under baseDir and deletes them by reference.
// References are relative paths; deletion of an absent reference is not an
// error, only a logged warning.
type Store struct {
	baseDir string
	maxSize int64
}

func New(baseDir string, maxSize int64) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Store{baseDir: baseDir, maxSize: maxSize}
}

func (s *Store) BaseDir() string { return s.baseDir }

// Save writes one multipart file to disk and returns its relative reference.
// field names the form field the file arrived under and becomes part of the
// stored name, keeping references self-describing.
func (s *Store) Save(field string, fh *multipart.FileHeader) (string, error) {
	if fh.Size == 0 {
		return "", ErrEmptyFile
	}
	if fh.Size > s.maxSize {
		return "", ErrFileTooLarge
	}

	file, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	// Detect MIME type from the first 512 bytes
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	mimeType := strings.Split(http.DetectContentType(buf[:n]), ";")[0]
	if !AllowedMimeTypes[mimeType] {
		return "", ErrInvalidMimeType
	}
	if seeker, ok := file.(io.Seeker); ok {
		_, _ = seeker.Seek(0, io.SeekStart)
	}

	now := time.Now()
	relDir := fmt.Sprintf("%d/%02d/%02d", now.Year(), now.Month(), now.Day())
	absDir := filepath.Join(s.baseDir, relDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s", uuid.New().String(), sanitizeName(field), sanitizeName(fh.Filename))
	absPath := filepath.Join(absDir, name)

	dst, err := os.Create(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		_ = os.Remove(absPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(relDir, name)), nil
}

// Delete removes a stored file. Idempotent: a reference that no longer
// resolves to a file logs a warning and returns nil.
func (s *Store) Delete(ref string) error {
	abs, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			log.Printf("filestore: delete of absent reference %q", ref)
			return nil
		}
		return fmt.Errorf("failed to delete %q: %w", ref, err)
	}
	return nil
}

// Exists reports whether a reference currently resolves to a stored file.
func (s *Store) Exists(ref string) bool {
	abs, err := s.resolve(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

func (s *Store) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q", ErrBadReference, ref)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 64 {
		out = out[len(out)-64:]
	}
	return out
}

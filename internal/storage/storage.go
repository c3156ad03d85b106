// Package storage keeps ticket attachment blobs on local disk or an
// S3-compatible object store behind one Gateway interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/repairdesk/repairdesk/internal/config"
)

var (
	// ErrInvalidKey is returned for keys that could escape the storage root.
	ErrInvalidKey = errors.New("invalid storage key")
	// ErrObjectNotFound is returned when deleting or signing a missing object.
	ErrObjectNotFound = errors.New("object not found")
)

// Object describes a stored blob.
type Object struct {
	Key string
	URL string
}

// Gateway stores, deletes and signs attachment blobs.
type Gateway interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Cleanup removes objects last modified before now minus olderThan.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// New builds the gateway selected by cfg.Provider.
func New(cfg config.StorageConfig) (Gateway, error) {
	switch cfg.Provider {
	case config.StorageProviderS3:
		return NewS3Store(cfg)
	case config.StorageProviderLocal, "":
		return NewLocalStore(afero.NewOsFs(), cfg.LocalDir, cfg.PublicPath)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

// ObjectKey derives the key for the index-th file uploaded with a ticket.
func ObjectKey(ticketCode string, at time.Time, index int, fileName string) string {
	return fmt.Sprintf("%s-%d-%d-%s", ticketCode, at.UnixMilli(), index, sanitizeFileName(fileName))
}

func sanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := b.String()
	for strings.Contains(cleaned, "..") {
		cleaned = strings.ReplaceAll(cleaned, "..", ".")
	}
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}

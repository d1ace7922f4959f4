// Package blob stores product images and other opaque payloads behind a
// reference string.
package blob

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("blob not found")
	ErrInvalidReference = errors.New("invalid blob reference")
	ErrEmpty            = errors.New("empty blob")
)

const defaultContentType = "application/octet-stream"

// Store is a blob backend. References are opaque to callers.
type Store interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, string, error)
	Delete(ctx context.Context, ref string) error
	DeleteAll(ctx context.Context) error
}

// newReference returns a fresh reference whose extension reflects contentType.
func newReference(contentType string) string {
	ref := uuid.New().String()
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ref += exts[0]
	}
	return ref
}

// validReference rejects anything that could escape a flat namespace.
func validReference(ref string) bool {
	if ref == "" || ref == "." || ref == ".." {
		return false
	}
	if strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return false
	}
	return path.Base(ref) == ref
}

func contentTypeOf(ref string) string {
	if ct := mime.TypeByExtension(path.Ext(ref)); ct != "" {
		return ct
	}
	return defaultContentType
}

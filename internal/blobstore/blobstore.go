// Package blobstore stands in for the external object-storage boundary the
// spec assumes for auction images (the spec's data model carries image
// URLs/keys, not file bytes; object storage itself is declared external).
// Store is the seam a real S3/GCS-backed implementation would sit behind;
// the local filesystem implementation below keeps the teacher's upload
// mechanics (handlers/upload.go) so the dev stack runs without a cloud
// dependency.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const MaxUploadSize = 5 << 20 // 5 MB

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Store is the blob boundary collaborator: put bytes, get back a
// client-servable URL.
type Store interface {
	Put(ctx context.Context, contentType, filename string, r io.Reader) (url string, err error)
}

type localStore struct {
	dir       string
	publicURL string
}

// NewLocal builds a filesystem-backed Store rooted at dir, serving files
// under publicURL (e.g. "/uploads").
func NewLocal(dir, publicURL string) Store {
	return &localStore{dir: dir, publicURL: publicURL}
}

func (s *localStore) Put(_ context.Context, contentType, filename string, r io.Reader) (string, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", fmt.Errorf("blobstore: unsupported content type %q", contentType)
	}
	if orig := strings.ToLower(filepath.Ext(filename)); orig != "" {
		ext = orig
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("blobstore: create storage dir: %w", err)
	}

	name := uuid.NewString() + ext
	dest, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("blobstore: create file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, r); err != nil {
		return "", fmt.Errorf("blobstore: write file: %w", err)
	}

	return s.publicURL + "/" + name, nil
}

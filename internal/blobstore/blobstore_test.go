package blobstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutWritesFileAndReturnsPublicURL(t *testing.T) {
	dir := t.TempDir()
	s := NewLocal(dir, "/uploads")

	url, err := s.Put(context.Background(), "image/png", "lamp.png", strings.NewReader("fake-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))
}

func TestLocalStore_PutRejectsUnsupportedContentType(t *testing.T) {
	s := NewLocal(t.TempDir(), "/uploads")

	_, err := s.Put(context.Background(), "application/pdf", "doc.pdf", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocalStore_PutPrefersOriginalFilenameExtension(t *testing.T) {
	s := NewLocal(t.TempDir(), "/uploads")

	url, err := s.Put(context.Background(), "image/jpeg", "photo.JPEG", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".jpeg"))
}

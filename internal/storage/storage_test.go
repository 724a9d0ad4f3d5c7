package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sprintreport/internal/config"
	"github.com/timmy/sprintreport/internal/domain"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "reports/job-1/Board-Sprint-11_2239.pdf"
	data := []byte("%PDF-1.4 fake")
	require.NoError(t, s.Put(ctx, key, data, "application/pdf"))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, s.URL(key))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put(context.Background(), "../outside.pdf", []byte("x"), "application/pdf"))
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acct.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.us-east-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("minio.internal:9000"))
	assert.Equal(t, "minio.internal:9000", normalizeEndpoint("http://minio.internal:9000/bucket/"))
}

func TestNewStorageDefaultsToLocal(t *testing.T) {
	s, err := NewStorage(context.Background(), &config.StorageConfig{LocalDir: t.TempDir()})
	require.NoError(t, err)
	_, ok := s.(*LocalStorage)
	assert.True(t, ok)
}

package archive

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutGet(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root, zerolog.Nop())
	ctx := context.Background()

	body := []byte(`{"status":"SUCCESS","amount":2500}`)
	require.NoError(t, store.Put(ctx, "gateway/T1/1.json.gz", body))

	// The file on disk is gzip-compressed
	file, err := os.Open(filepath.Join(root, "gateway", "T1", "1.json.gz"))
	require.NoError(t, err)
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	require.NoError(t, err)
	onDisk, err := io.ReadAll(gzipReader)
	require.NoError(t, err)
	assert.Equal(t, body, onDisk)

	got, err := store.Get(ctx, "gateway/T1/1.json.gz")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	store := NewFileStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	for _, key := range []string{"../outside.gz", "/etc/passwd", "a/../../b.gz"} {
		t.Run(key, func(t *testing.T) {
			err := store.Put(ctx, key, []byte("x"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid archive key")
		})
	}
}

func TestFileStore_Get_NotFound(t *testing.T) {
	store := NewFileStore(t.TempDir(), zerolog.Nop())

	_, err := store.Get(context.Background(), "missing.json.gz")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open archive file")
}

func TestFileStore_Get_InvalidGzip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.json.gz"), []byte("not gzip"), 0o644))

	store := NewFileStore(root, zerolog.Nop())
	_, err := store.Get(context.Background(), "plain.json.gz")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create gzip reader")
}

func TestFileStore_ContextCancellation(t *testing.T) {
	store := NewFileStore(t.TempDir(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Put(ctx, "gateway/T1/1.json.gz", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

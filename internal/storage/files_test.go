package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reporttrack/internal/models"
)

func TestUploadOpenDelete(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/data/files", "http://localhost:8080/files/")

	stored, err := store.Upload(ctx, strings.NewReader("balance sheet"), Upload{
		FileName: "../Q1 report.pdf",
		Folder:   "900123456",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.FileID, "900123456/"))
	assert.True(t, strings.HasSuffix(stored.FileID, "-Q1_report.pdf"))
	assert.Equal(t, "http://localhost:8080/files/"+stored.FileID, stored.ViewURL)

	f, err := store.Open(stored.FileID)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, "balance sheet", string(data))

	require.NoError(t, store.Delete(ctx, stored.FileID))
	_, err = store.Open(stored.FileID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, store.Delete(ctx, stored.FileID))
}

func TestUploadsGetDistinctIDs(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "/files", "/files")
	a, err := store.Upload(context.Background(), strings.NewReader("a"), Upload{FileName: "r.xlsx"})
	require.NoError(t, err)
	b, err := store.Upload(context.Background(), strings.NewReader("b"), Upload{FileName: "r.xlsx"})
	require.NoError(t, err)
	assert.NotEqual(t, a.FileID, b.FileID)
	assert.True(t, strings.HasPrefix(a.FileID, "misc/"))
}

func TestResolveRejectsTraversal(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "/files", "/files")
	for _, id := range []string{"", "../etc/passwd", "a/../../b", "/abs"} {
		_, err := store.Open(id)
		assert.ErrorIs(t, err, models.ErrNotFound, id)
	}
}

func TestUploadReadOnlyFs(t *testing.T) {
	store := NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/files", "/files")
	_, err := store.Upload(context.Background(), strings.NewReader("x"), Upload{FileName: "r.pdf"})
	assert.ErrorIs(t, err, models.ErrDeliveryFailure)
}

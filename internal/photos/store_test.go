package photos

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-sync/internal/common/errors"
)

func TestFileStore_SaveLoadDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Save(ctx, "user-1", "person-1", []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "photo:user-1/person-1.png", ref)
	assert.True(t, IsRef(ref))
	assert.FileExists(t, filepath.Join(root, "user-1", "person-1.png"))

	data, mediaType, err := store.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
	assert.Equal(t, "image/png", mediaType)

	// A new picture in another format replaces the old file.
	ref2, err := store.Save(ctx, "user-1", "person-1", []byte{0xff, 0xd8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "photo:user-1/person-1.jpg", ref2)
	_, err = os.Stat(filepath.Join(root, "user-1", "person-1.png"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Delete(ctx, ref2))
	_, _, err = store.Load(ctx, ref2)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	assert.NoError(t, store.Delete(ctx, ref2))
}

func TestFileStore_RejectsBadInput(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "../etc", "p", []byte{1}, "image/jpeg")
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	_, err = store.Save(ctx, "u", "p", nil, "image/jpeg")
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	for _, ref := range []string{"https://example.com/a.jpg", "photo:u", "photo:../x/y.jpg", "photo:u/../../z"} {
		_, _, err = store.Load(ctx, ref)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation), ref)
	}
}

func TestNewFileStore_RequiresRoot(t *testing.T) {
	_, err := NewFileStore("")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

package tilecache

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	cache, err := Open(filepath.Join(t.TempDir(), "tiles.mbtiles"))
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get(1, 2, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(1, 2, 3, []byte("payload")))

	data, ok, err := cache.Get(1, 2, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), data)

	// replacing is allowed
	require.NoError(t, cache.Put(1, 2, 3, []byte("updated")))
	data, _, err = cache.Get(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), data)

	n, err := cache.TileCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateWithMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	cache, err := Create(path, map[string]string{
		"name":   "osm-mapnik",
		"format": "png",
	})
	require.NoError(t, err)
	defer cache.Close()

	metadata, err := cache.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "osm-mapnik", metadata["name"])
	assert.Equal(t, "png", metadata["format"])
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")

	cache, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put(0, 0, 0, []byte("root")))
	require.NoError(t, cache.Close())

	cache, err = Open(path)
	require.NoError(t, err)
	defer cache.Close()

	data, ok, err := cache.Get(0, 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("root"), data)
}

// Package tilecache stores fetched tile images in a local sqlite
// database using the MBTiles table layout, so cache files can be
// opened by standard MBTiles tooling.
//
// Note: the sqlite3 driver must be registered by the importing program
// (e.g. import _ "github.com/mattn/go-sqlite3").
package tilecache

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DB is a tile store backed by a single sqlite file. It implements
// mapsource.Cache. Safe for concurrent use; database/sql serializes
// access to the underlying connection.
type DB struct {
	db     *sql.DB
	get    *sql.Stmt
	put    *sql.Stmt
	logger *slog.Logger
}

type Option func(*DB)

func WithLogger(logger *slog.Logger) Option {
	return func(c *DB) { c.logger = logger }
}

// Open opens an existing cache file, creating the MBTiles schema if it
// is missing.
func Open(path string, opts ...Option) (*DB, error) {
	return open(path, nil, opts...)
}

// Create creates a cache file with the given metadata entries.
func Create(path string, metadata map[string]string, opts ...Option) (*DB, error) {
	return open(path, metadata, opts...)
}

func open(path string, metadata map[string]string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);
		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER,
			tile_column INTEGER,
			tile_row INTEGER,
			tile_data BLOB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`)
	if err != nil {
		return nil, fmt.Errorf("tilecache: initializing %s: %w", path, err)
	}

	for k, v := range metadata {
		_, err = db.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", k, v)
		if err != nil {
			return nil, err
		}
	}

	get, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		return nil, err
	}
	put, err := db.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		get.Close()
		return nil, err
	}

	c := &DB{db: db, get: get, put: put, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *DB) Close() error {
	return errors.Join(c.get.Close(), c.put.Close(), c.db.Close())
}

// Get reads one tile. The second return is false when the tile is not
// cached.
func (c *DB) Get(x, y, zoom int) ([]byte, bool, error) {
	row := (1 << zoom) - 1 - y // XYZ -> TMS

	var data []byte
	if err := c.get.QueryRow(zoom, x, row).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put stores one tile, replacing any previous data at that coordinate.
func (c *DB) Put(x, y, zoom int, data []byte) error {
	row := (1 << zoom) - 1 - y // XYZ -> TMS

	_, err := c.put.Exec(zoom, x, row, data)
	if err == nil {
		c.logger.Debug("cached tile", "x", x, "y", y, "zoom", zoom, "bytes", len(data))
	}
	return err
}

// Metadata reads the metadata table.
func (c *DB) Metadata() (map[string]string, error) {
	rows, err := c.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}
	return metadata, rows.Err()
}

// TileCount reports the number of cached tiles.
func (c *DB) TileCount() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&n)
	return n, err
}

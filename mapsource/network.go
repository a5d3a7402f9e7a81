package mapsource

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cache is the read-through tile store consulted before the network.
// tilecache.DB implements it.
type Cache interface {
	Get(x, y, zoom int) (data []byte, ok bool, err error)
	Put(x, y, zoom int, data []byte) error
}

// TileSource is an HTTP-backed Source built from a Descriptor.
//
// Fetches run on background goroutines, bounded by WithMaxInFlight.
// Completion callbacks are handed to the dispatcher, which must
// deliver them on the host's logical thread; the default dispatcher
// calls them directly from the fetch goroutine and is only suitable
// for hosts that drain a channel themselves. There is no retry: a
// failed fetch is reported once and the caller decides what to do.
type TileSource struct {
	desc     Descriptor
	client   *http.Client
	cache    Cache
	dispatch func(func())
	sem      chan struct{}
	logger   *slog.Logger
	offline  bool
}

type Option func(*TileSource)

func WithClient(client *http.Client) Option {
	return func(s *TileSource) { s.client = client }
}

func WithCache(cache Cache) Option {
	return func(s *TileSource) { s.cache = cache }
}

// WithDispatcher sets the function used to marshal completion
// callbacks onto the host's event loop.
func WithDispatcher(dispatch func(func())) Option {
	return func(s *TileSource) { s.dispatch = dispatch }
}

func WithMaxInFlight(n int) Option {
	return func(s *TileSource) { s.sem = make(chan struct{}, n) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *TileSource) { s.logger = logger }
}

// WithOffline disables the network: every fetch misses the cache and
// reports ErrTileUnavailable. Used for dry runs.
func WithOffline() Option {
	return func(s *TileSource) { s.offline = true }
}

func New(desc Descriptor, opts ...Option) *TileSource {
	s := &TileSource{
		desc:     desc,
		client:   &http.Client{Timeout: 30 * time.Second},
		dispatch: func(f func()) { f() },
		sem:      make(chan struct{}, 4),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TileSource) ID() string   { return s.desc.ID }
func (s *TileSource) Name() string { return s.desc.Name }

func (s *TileSource) License() (text, uri string) {
	return s.desc.License, s.desc.LicenseURI
}

func (s *TileSource) MinZoom() int  { return s.desc.MinZoom }
func (s *TileSource) MaxZoom() int  { return s.desc.MaxZoom }
func (s *TileSource) TileSize() int { return s.desc.TileSize }

func (s *TileSource) Bounds() (minLat, maxLat, minLon, maxLon float64) {
	return s.desc.Projection.Bounds()
}

func (s *TileSource) Columns(zoom int) int { return s.desc.Projection.columns(zoom) }
func (s *TileSource) Rows(zoom int) int    { return s.desc.Projection.rows(zoom) }

func (s *TileSource) X(zoom int, lon float64) (float64, error) {
	return s.desc.Projection.x(zoom, s.desc.TileSize, lon)
}

func (s *TileSource) Y(zoom int, lat float64) (float64, error) {
	return s.desc.Projection.y(zoom, s.desc.TileSize, lat)
}

func (s *TileSource) Longitude(zoom int, x float64) (float64, error) {
	return s.desc.Projection.longitude(zoom, s.desc.TileSize, x)
}

func (s *TileSource) Latitude(zoom int, y float64) (float64, error) {
	return s.desc.Projection.latitude(zoom, s.desc.TileSize, y)
}

// TileURL returns the fetch URL for one tile.
func (s *TileSource) TileURL(x, y, zoom int) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(zoom),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(s.desc.URLFormat)
}

func (s *TileSource) FetchTile(x, y, zoom int, done func(data []byte, err error)) {
	go func() {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		data, err := s.fetch(x, y, zoom)
		s.dispatch(func() { done(data, err) })
	}()
}

func (s *TileSource) fetch(x, y, zoom int) ([]byte, error) {
	if s.cache != nil {
		data, ok, err := s.cache.Get(x, y, zoom)
		if err != nil {
			s.logger.Warn("tile cache read failed", "x", x, "y", y, "zoom", zoom, "err", err)
		} else if ok {
			s.logger.Debug("tile cache hit", "x", x, "y", y, "zoom", zoom)
			return data, nil
		}
	}

	if s.offline {
		return nil, ErrTileUnavailable
	}

	url := s.TileURL(x, y, zoom)
	resp, err := s.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	if s.cache != nil {
		if err := s.cache.Put(x, y, zoom, data); err != nil {
			s.logger.Warn("tile cache write failed", "x", x, "y", y, "zoom", zoom, "err", err)
		}
	}
	return data, nil
}

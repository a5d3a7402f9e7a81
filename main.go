package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	_ "github.com/mattn/go-sqlite3"
	"github.com/muesli/reflow/wordwrap"
	"github.com/urfave/cli/v2"

	"github.com/lofgren/tideview/mapsource"
	"github.com/lofgren/tideview/tilecache"
	"github.com/lofgren/tideview/view"
)

const SOURCEID string = `source`
const CACHEPATH string = `cache`
const LATITUDE string = `lat`
const LONGITUDE string = `lon`
const ZOOM string = `zoom`
const WIDTH string = `width`
const HEIGHT string = `height`
const MINLAT string = `minlat`
const MINLON string = `minlon`
const MAXLAT string = `maxlat`
const MAXLON string = `maxlon`
const MINZOOM string = `minzoom`
const MAXZOOM string = `maxzoom`
const CONCURRENCY string = `concurrency`
const VERBOSE string = `verbose`

const licenseWrapWidth = 72

func main() {
	app := cli.NewApp()
	app.Name = "tideview"
	app.Usage = "A slippy map viewport and tile prefetching tool"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    VERBOSE,
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
			EnvVars: []string{strcase.ToScreamingSnake(VERBOSE)},
		},
	}

	sourceFlag := &cli.StringFlag{
		Name:    SOURCEID,
		Aliases: []string{"s"},
		Usage:   "ID of a built-in map source. E.g.: osm-mapnik",
		Value:   mapsource.DefaultSourceID,
		EnvVars: []string{strcase.ToScreamingSnake(SOURCEID)},
	}
	cacheFlag := &cli.StringFlag{
		Name:    CACHEPATH,
		Aliases: []string{"c"},
		Usage:   "Path to an MBTiles tile cache. Created when missing",
		EnvVars: []string{strcase.ToScreamingSnake(CACHEPATH)},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "sources",
			Usage:  "List the built-in map sources and their licenses",
			Action: listSources,
		},
		{
			Name:  "plan",
			Usage: "Show which tiles a viewport at the given center would display, without fetching",
			Flags: []cli.Flag{
				sourceFlag,
				&cli.Float64Flag{
					Name:     LATITUDE,
					Usage:    "Latitude of the viewport center",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(LATITUDE)},
				},
				&cli.Float64Flag{
					Name:     LONGITUDE,
					Usage:    "Longitude of the viewport center",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(LONGITUDE)},
				},
				&cli.IntFlag{
					Name:    ZOOM,
					Aliases: []string{"z"},
					Usage:   "Zoom level",
					Value:   12,
					EnvVars: []string{strcase.ToScreamingSnake(ZOOM)},
				},
				&cli.Float64Flag{
					Name:    WIDTH,
					Usage:   "Viewport width in pixels",
					Value:   800,
					EnvVars: []string{strcase.ToScreamingSnake(WIDTH)},
				},
				&cli.Float64Flag{
					Name:    HEIGHT,
					Usage:   "Viewport height in pixels",
					Value:   600,
					EnvVars: []string{strcase.ToScreamingSnake(HEIGHT)},
				},
			},
			Action: planViewport,
		},
		{
			Name:  "prefetch",
			Usage: "Fetch every tile covering a bounding box into an MBTiles cache",
			Flags: []cli.Flag{
				sourceFlag,
				cacheFlag,
				&cli.Float64Flag{
					Name:     MINLAT,
					Usage:    "South edge of the bounding box",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(MINLAT)},
				},
				&cli.Float64Flag{
					Name:     MINLON,
					Usage:    "West edge of the bounding box",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(MINLON)},
				},
				&cli.Float64Flag{
					Name:     MAXLAT,
					Usage:    "North edge of the bounding box",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(MAXLAT)},
				},
				&cli.Float64Flag{
					Name:     MAXLON,
					Usage:    "East edge of the bounding box",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(MAXLON)},
				},
				&cli.IntFlag{
					Name:    MINZOOM,
					Usage:   "First zoom level to fetch",
					Value:   0,
					EnvVars: []string{strcase.ToScreamingSnake(MINZOOM)},
				},
				&cli.IntFlag{
					Name:    MAXZOOM,
					Usage:   "Last zoom level to fetch",
					Value:   10,
					EnvVars: []string{strcase.ToScreamingSnake(MAXZOOM)},
				},
				&cli.IntFlag{
					Name:    CONCURRENCY,
					Aliases: []string{"n"},
					Usage:   "How many tile fetches run at once",
					Value:   4,
					EnvVars: []string{strcase.ToScreamingSnake(CONCURRENCY)},
				},
			},
			Action: prefetchTiles,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool(VERBOSE) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func listSources(c *cli.Context) error {
	registry, err := mapsource.LoadEmbeddedRegistry()
	if err != nil {
		return err
	}

	for _, id := range registry.IDs() {
		desc, err := registry.Get(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n  %s\n", desc.ID, desc.Name)
		fmt.Printf("  zoom %d-%d, %dpx %s tiles\n", desc.MinZoom, desc.MaxZoom, desc.TileSize, desc.Projection)
		if desc.License != "" {
			fmt.Println(indent(wordwrap.String(desc.License, licenseWrapWidth)))
		}
		if desc.LicenseURI != "" {
			fmt.Printf("  %s\n", desc.LicenseURI)
		}
		fmt.Println()
	}
	return nil
}

// planViewport drives a headless offline view and reports the tiles it
// would display. Every fetch misses, so the plan never touches the
// network.
func planViewport(c *cli.Context) error {
	registry, err := mapsource.LoadEmbeddedRegistry()
	if err != nil {
		return err
	}
	desc, err := registry.Get(c.String(SOURCEID))
	if err != nil {
		return err
	}

	logger := newLogger(c)
	queue := make(chan func(), 256)
	source := mapsource.New(desc,
		mapsource.WithOffline(),
		mapsource.WithDispatcher(func(f func()) { queue <- f }),
		mapsource.WithLogger(logger),
	)

	display := &view.RecordingDisplay{}
	v := view.New(source, display,
		view.WithZoom(c.Int(ZOOM)),
		view.WithLogger(logger),
	)
	v.SetVisibleRect(0, 0, c.Float64(WIDTH), c.Float64(HEIGHT))
	if err := v.CenterOn(c.Float64(LATITUDE), c.Float64(LONGITUDE)); err != nil {
		return err
	}
	for v.State() == view.StateLoading {
		f := <-queue
		f()
	}

	level := v.Level()
	fmt.Printf("%s @ zoom %d, %gx%g viewport centered on %g,%g: %d tiles\n",
		desc.ID, v.Zoom(), c.Float64(WIDTH), c.Float64(HEIGHT),
		c.Float64(LATITUDE), c.Float64(LONGITUDE), level.TileCount())
	if ax, ay := v.Anchor(); ax != 0 || ay != 0 {
		fmt.Printf("anchor %g,%g\n", ax, ay)
	}
	level.EachTile(func(t *view.Tile) bool {
		fmt.Printf("  %d/%d/%d  %s\n", t.Zoom, t.X, t.Y, source.TileURL(t.X, t.Y, t.Zoom))
		return true
	})
	return nil
}

func prefetchTiles(c *cli.Context) error {
	registry, err := mapsource.LoadEmbeddedRegistry()
	if err != nil {
		return err
	}
	desc, err := registry.Get(c.String(SOURCEID))
	if err != nil {
		return err
	}

	cachePath := c.String(CACHEPATH)
	if cachePath == "" {
		return fmt.Errorf("prefetch needs a --%s path", CACHEPATH)
	}
	logger := newLogger(c)
	cache, err := openOrCreateCache(cachePath, desc, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	queue := make(chan func(), 256)
	source := mapsource.New(desc,
		mapsource.WithCache(cache),
		mapsource.WithDispatcher(func(f func()) { queue <- f }),
		mapsource.WithMaxInFlight(c.Int(CONCURRENCY)),
		mapsource.WithLogger(logger),
	)

	minZoom := max(c.Int(MINZOOM), desc.MinZoom)
	maxZoom := min(c.Int(MAXZOOM), desc.MaxZoom)

	var pending, fetched, failed int
	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		x1, y1, x2, y2, err := tileRange(source, zoom,
			c.Float64(MINLAT), c.Float64(MINLON), c.Float64(MAXLAT), c.Float64(MAXLON))
		if err != nil {
			return err
		}
		logger.Info("prefetching zoom level", "zoom", zoom, "tiles", (x2-x1+1)*(y2-y1+1))
		for x := x1; x <= x2; x++ {
			for y := y1; y <= y2; y++ {
				pending++
				source.FetchTile(x, y, zoom, func(data []byte, err error) {
					pending--
					if err != nil {
						failed++
						return
					}
					fetched++
				})
			}
		}
		for pending > 0 {
			f := <-queue
			f()
		}
	}

	count, err := cache.TileCount()
	if err != nil {
		return err
	}
	logger.Info("prefetch done", "fetched", fetched, "failed", failed, "cached_total", count)
	if failed > 0 {
		return fmt.Errorf("%d tiles failed to fetch", failed)
	}
	return nil
}

// tileRange converts a geographic bounding box to an inclusive tile
// coordinate range, clamped to the grid.
func tileRange(source *mapsource.TileSource, zoom int, minLat, minLon, maxLat, maxLon float64) (x1, y1, x2, y2 int, err error) {
	left, err := source.X(zoom, minLon)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	right, err := source.X(zoom, maxLon)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	// North edge has the smaller pixel y.
	top, err := source.Y(zoom, maxLat)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	bottom, err := source.Y(zoom, minLat)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	size := source.TileSize()
	x1 = max(int(left)/size, 0)
	y1 = max(int(top)/size, 0)
	x2 = min(int(right)/size, source.Columns(zoom)-1)
	y2 = min(int(bottom)/size, source.Rows(zoom)-1)
	return x1, y1, x2, y2, nil
}

func openOrCreateCache(path string, desc mapsource.Descriptor, logger *slog.Logger) (*tilecache.DB, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return tilecache.Create(path, map[string]string{
			"name":   desc.Name,
			"format": "png",
		}, tilecache.WithLogger(logger))
	}
	return tilecache.Open(path, tilecache.WithLogger(logger))
}

func indent(s string) string {
	out := "  "
	for _, r := range s {
		out += string(r)
		if r == '\n' {
			out += "  "
		}
	}
	return out
}

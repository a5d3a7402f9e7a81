package view

// Renderable is an opaque handle to whatever the host display uses to
// draw one tile (a texture, a widget, a scene graph node).
type Renderable any

// Display is the surface the view drives. All calls happen on the
// host's logical thread; implementations never need locking.
//
// Positions handed to SetPosition are anchored pixel coordinates and
// stay within the host's signed 16-bit addressing range.
type Display interface {
	// NewTileRenderable allocates a placeholder renderable for a tile
	// about to load.
	NewTileRenderable() Renderable
	// Attach adds the renderable to the display group.
	Attach(r Renderable)
	// Detach removes the renderable from the display group.
	Detach(r Renderable)
	SetPosition(r Renderable, x, y float64)
	SetSize(r Renderable, w, h float64)
	// SetTileImage hands the renderable its decoded tile payload.
	SetTileImage(r Renderable, data []byte)
	// SetTileError marks the renderable as failed so the host can show
	// an error placeholder.
	SetTileError(r Renderable)
}

// RecordedTile is the renderable handed out by RecordingDisplay.
type RecordedTile struct {
	X, Y     float64
	W, H     float64
	Attached bool
	HasImage bool
	Failed   bool
	Bytes    int
}

// RecordingDisplay is a headless Display that records what the view
// asked it to draw. It backs the plan command and tests.
type RecordingDisplay struct {
	tiles []*RecordedTile
}

func (d *RecordingDisplay) NewTileRenderable() Renderable {
	rt := &RecordedTile{}
	d.tiles = append(d.tiles, rt)
	return rt
}

func (d *RecordingDisplay) Attach(r Renderable) { r.(*RecordedTile).Attached = true }
func (d *RecordingDisplay) Detach(r Renderable) { r.(*RecordedTile).Attached = false }

func (d *RecordingDisplay) SetPosition(r Renderable, x, y float64) {
	rt := r.(*RecordedTile)
	rt.X, rt.Y = x, y
}

func (d *RecordingDisplay) SetSize(r Renderable, w, h float64) {
	rt := r.(*RecordedTile)
	rt.W, rt.H = w, h
}

func (d *RecordingDisplay) SetTileImage(r Renderable, data []byte) {
	rt := r.(*RecordedTile)
	rt.HasImage = true
	rt.Bytes = len(data)
}

func (d *RecordingDisplay) SetTileError(r Renderable) { r.(*RecordedTile).Failed = true }

// Attached returns the renderables currently in the display group, in
// allocation order.
func (d *RecordingDisplay) Attached() []*RecordedTile {
	var out []*RecordedTile
	for _, rt := range d.tiles {
		if rt.Attached {
			out = append(out, rt)
		}
	}
	return out
}

// Allocated returns every renderable ever handed out.
func (d *RecordingDisplay) Allocated() []*RecordedTile { return d.tiles }

package mapsource

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
)

//go:embed sources/*.json
var embeddedSourcesFS embed.FS

// DefaultSourceID is the descriptor used when the host does not pick one.
const DefaultSourceID = "osm-mapnik"

// Descriptor describes one tile source: where its tiles come from and
// how its pixel grid is laid out. Descriptors are loaded from JSON and
// validated; a zero Descriptor is not usable.
type Descriptor struct {
	// Source identifier, e.g. "osm-mapnik"
	ID string `validate:"required" json:"id"`
	// Human-readable name, normally used for display
	Name string `validate:"required" json:"name"`
	// Attribution text the host is expected to display
	License string `json:"license,omitempty"`
	// Reference to the full license terms
	LicenseURI string `validate:"omitempty,uri" json:"licenseUri,omitempty"`
	// Lowest zoom level the source serves
	MinZoom int `validate:"min=0" json:"minZoom"`
	// Highest zoom level the source serves
	MaxZoom int `default:"18" validate:"required,gtefield=MinZoom" json:"maxZoom"`
	// Edge length of the square tiles, in pixels
	TileSize int `default:"256" validate:"required,min=1" json:"tileSize"`
	// Projection between geographic coordinates and the pixel grid
	Projection Projection `default:"mercator" validate:"required,oneof=mercator platecarree" json:"projection"`
	// Tile URL template with {z}, {x} and {y} placeholders
	URLFormat string `validate:"required,contains={z},contains={x},contains={y}" json:"urlFormat"`
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	err := defaults.Set(d)
	if err != nil {
		return err
	}

	_, err = marshmallow.Unmarshal(data, d, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(d)
}

// Registry holds the known source descriptors. The host owns the
// registry and its lifecycle; the view only ever sees the Source
// values built from it.
type Registry struct {
	descriptors map[string]Descriptor
	ids         []string
}

// LoadEmbeddedRegistry loads every descriptor shipped with the library.
func LoadEmbeddedRegistry() (*Registry, error) {
	entries, err := embeddedSourcesFS.ReadDir("sources")
	if err != nil {
		return nil, err
	}

	reg := &Registry{descriptors: make(map[string]Descriptor, len(entries))}
	for _, entry := range entries {
		data, err := embeddedSourcesFS.ReadFile("sources/" + entry.Name())
		if err != nil {
			return nil, err
		}
		var desc Descriptor
		if err := json.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("mapsource: parsing %s: %w", entry.Name(), err)
		}
		if err := reg.Add(desc); err != nil {
			return nil, err
		}
	}

	if _, ok := reg.descriptors[DefaultSourceID]; !ok {
		return nil, fmt.Errorf("mapsource: embedded sources are missing %q", DefaultSourceID)
	}
	return reg, nil
}

// Add registers a descriptor. Duplicate ids are rejected.
func (r *Registry) Add(desc Descriptor) error {
	if _, ok := r.descriptors[desc.ID]; ok {
		return fmt.Errorf("mapsource: duplicate source id %q", desc.ID)
	}
	r.descriptors[desc.ID] = desc
	r.ids = append(r.ids, desc.ID)
	return nil
}

func (r *Registry) Get(id string) (Descriptor, error) {
	desc, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownSource, id)
	}
	return desc, nil
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Registry) Default() Descriptor {
	return r.descriptors[DefaultSourceID]
}

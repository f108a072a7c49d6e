// Package localfs serves elevation tiles and SAR scenes from a directory,
// for offline runs against generated fixtures.
//
// Layout:
//
//	<root>/dem/<TileID>.tif       e.g. dem/N23_E072.tif
//	<root>/sar/scenes.json        []scene.Candidate; endpoints are paths relative to sar/
package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/samber/lo"
)

// ManifestName is the scene manifest file inside the sar directory.
const ManifestName = "scenes.json"

// Dir is a fixture directory.
type Dir struct {
	root string
}

// New returns a Dir rooted at root.
func New(root string) *Dir {
	return &Dir{root: root}
}

// TilePath is where the tile id is expected.
func (d *Dir) TilePath(id geo.TileID) string {
	return filepath.Join(d.root, "dem", id.String()+".tif")
}

func (d *Dir) Exists(_ context.Context, id geo.TileID) (bool, error) {
	_, err := os.Stat(d.TilePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe tile %s: %w", id, err)
	}
	return true, nil
}

func (d *Dir) Open(_ context.Context, id geo.TileID) (raster.Handle, error) {
	return raster.NewFileHandle(id.String(), d.TilePath(id), nil), nil
}

// Search reads the manifest and keeps scenes acquired in [start, end].
// Bounds are not checked; fixtures are generated for one area.
func (d *Dir) Search(_ context.Context, _ geo.BoundingBox, start, end time.Time) ([]scene.Candidate, error) {
	data, err := os.ReadFile(filepath.Join(d.root, "sar", ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read scene manifest: %w", err)
	}
	var all []scene.Candidate
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode scene manifest: %w", err)
	}
	out := lo.Filter(all, func(c scene.Candidate, _ int) bool {
		return !c.AcquiredAt.Before(start) && !c.AcquiredAt.After(end)
	})
	scene.SortByAcquisition(out)
	return out, nil
}

// Load opens a scene raster; relative endpoints resolve against sar/.
func (d *Dir) Load(_ context.Context, endpoint string) (raster.Handle, error) {
	p := endpoint
	if !filepath.IsAbs(p) {
		p = filepath.Join(d.root, "sar", filepath.FromSlash(endpoint))
	}
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("load scene raster %s: %w", endpoint, err)
	}
	return raster.NewFileHandle(filepath.Base(p), p, nil), nil
}

// WriteManifest stores the scene list for Search.
func (d *Dir) WriteManifest(scenes []scene.Candidate) error {
	dir := filepath.Join(d.root, "sar")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(scenes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644)
}

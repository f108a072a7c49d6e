package raster

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/couchcryptid/terrain-change-etl/pkg/geotiff"
)

// GeoTransform is a GDAL-ordered affine transform:
// x = t[0] + col*t[1] + row*t[2], y = t[3] + col*t[4] + row*t[5].
type GeoTransform [6]float64

func (t GeoTransform) PixelWidth() float64  { return t[1] }
func (t GeoTransform) PixelHeight() float64 { return t[5] }

// NorthUp reports whether the transform has no rotation and rows run southwards.
func (t GeoTransform) NorthUp() bool { return t[2] == 0 && t[4] == 0 && t[1] > 0 && t[5] < 0 }

// Raster is a single-band grid with its georeference.
type Raster struct {
	Grid        Grid
	Transform   GeoTransform
	NoData      *float64
	EPSG        int
	Driver      string
	Compression string
}

// Profile describes a raster the way it would be written to disk.
type Profile struct {
	Driver      string       `json:"driver"`
	Compression string       `json:"compression"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Transform   GeoTransform `json:"transform"`
	NoData      *float64     `json:"nodata,omitempty"`
	EPSG        int          `json:"epsg,omitempty"`
}

func (r *Raster) Profile() Profile {
	return Profile{
		Driver:      r.Driver,
		Compression: r.Compression,
		Width:       r.Grid.Cols,
		Height:      r.Grid.Rows,
		Transform:   r.Transform,
		NoData:      r.NoData,
		EPSG:        r.EPSG,
	}
}

// IsNoData reports whether v is missing under this raster's nodata rule.
func (r *Raster) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return r.NoData != nil && v == *r.NoData
}

// FromImage converts a decoded GeoTIFF.
func FromImage(img *geotiff.Image) (*Raster, error) {
	if !img.Georeferenced {
		return nil, fmt.Errorf("raster has no georeference")
	}
	g, err := GridFrom(img.Height, img.Width, img.Data)
	if err != nil {
		return nil, err
	}
	return &Raster{
		Grid:      g,
		Transform: GeoTransform(img.Transform),
		NoData:    img.NoData,
		EPSG:      img.EPSG,
		Driver:    "GTiff",
	}, nil
}

// WriteGeoTIFF encodes r as an LZW-compressed float32 GeoTIFF.
func WriteGeoTIFF(w io.Writer, r *Raster) error {
	img := &geotiff.Image{
		Width:         r.Grid.Cols,
		Height:        r.Grid.Rows,
		Data:          r.Grid.Data,
		Transform:     r.Transform,
		Georeferenced: true,
		NoData:        r.NoData,
		EPSG:          r.EPSG,
	}
	return geotiff.Encode(w, img, &geotiff.Options{Compression: geotiff.CompressionLZW, RowsPerStrip: 64})
}

// Handle is an openable raster source. Read may be called once; Close
// releases whatever backs the handle and is always called by the consumer.
type Handle interface {
	Name() string
	Read() (*Raster, error)
	Close() error
}

// FileHandle reads a GeoTIFF from disk.
type FileHandle struct {
	name    string
	path    string
	cleanup func() error
}

// NewFileHandle wraps a local GeoTIFF. cleanup, if set, runs on Close.
func NewFileHandle(name, path string, cleanup func() error) *FileHandle {
	return &FileHandle{name: name, path: path, cleanup: cleanup}
}

func (h *FileHandle) Name() string { return h.name }
func (h *FileHandle) Path() string { return h.path }

func (h *FileHandle) Read() (*Raster, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", h.name, err)
	}
	defer f.Close()

	img, err := geotiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.name, err)
	}
	return FromImage(img)
}

func (h *FileHandle) Close() error {
	if h.cleanup == nil {
		return nil
	}
	cleanup := h.cleanup
	h.cleanup = nil
	return cleanup()
}

// MemHandle serves an in-memory raster.
type MemHandle struct {
	name   string
	raster *Raster
	err    error
	closed bool
}

// NewMemHandle returns a handle whose Read yields r, or err when r is nil.
func NewMemHandle(name string, r *Raster, err error) *MemHandle {
	return &MemHandle{name: name, raster: r, err: err}
}

func (h *MemHandle) Name() string { return h.name }

func (h *MemHandle) Read() (*Raster, error) {
	if h.raster == nil {
		return nil, h.err
	}
	return h.raster, nil
}

func (h *MemHandle) Close() error {
	h.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (h *MemHandle) Closed() bool { return h.closed }

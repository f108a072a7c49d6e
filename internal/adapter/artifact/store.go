// Package artifact persists analysis outputs: the merged elevation GeoTIFF,
// the feature table and the summary document.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
)

// Object names written under each request prefix.
const (
	ElevationObject = "elevation.tif"
	FeaturesObject  = "features.csv"
	SummaryObject   = "summary.json"
)

// Store writes named objects and returns where each landed.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// FileStore writes objects below a local directory.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return dst, nil
}

// Persist writes every available output of res under {request_id}/ and
// returns their locations in write order.
func Persist(ctx context.Context, s Store, res *domain.AnalysisResult) ([]string, error) {
	var objects []struct {
		name, contentType string
		data              []byte
	}
	add := func(name, contentType string, data []byte) {
		objects = append(objects, struct {
			name, contentType string
			data              []byte
		}{name, contentType, data})
	}

	if res.ElevationGT != nil {
		var buf bytes.Buffer
		if err := raster.WriteGeoTIFF(&buf, res.ElevationGT); err != nil {
			return nil, fmt.Errorf("encode elevation: %w", err)
		}
		add(ElevationObject, "image/tiff", buf.Bytes())
	}
	if res.Table != nil {
		var buf bytes.Buffer
		if err := res.Table.WriteCSV(&buf); err != nil {
			return nil, fmt.Errorf("encode features: %w", err)
		}
		add(FeaturesObject, "text/csv", buf.Bytes())
	}
	summary, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	add(SummaryObject, "application/json", summary)

	locations := make([]string, 0, len(objects))
	for _, o := range objects {
		loc, err := s.Put(ctx, path.Join(res.RequestID, o.name), bytes.NewReader(o.data), int64(len(o.data)), o.contentType)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// Sink binds a Store to Persist.
type Sink struct {
	Store Store
}

// Persist writes res to the bound store.
func (s Sink) Persist(ctx context.Context, res *domain.AnalysisResult) ([]string, error) {
	return Persist(ctx, s.Store, res)
}

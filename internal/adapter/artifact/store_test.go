package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/feature"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/pkg/geotiff"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *domain.AnalysisResult {
	nodata := -32767.0
	return &domain.AnalysisResult{
		RequestID: "r1",
		SARSource: domain.SARObserved,
		ElevationGT: &raster.Raster{
			Grid:      raster.Filled(2, 3, 812.5),
			Transform: raster.GeoTransform{72.5, 0.001, 0, 23.2, 0, -0.001},
			NoData:    &nodata,
			EPSG:      4326,
		},
		Table: &feature.Table{
			Rows: 1, Cols: 2,
			Slope:             []float64{12, 31},
			BackscatterChange: []float64{-0.5, 2},
			Correlation:       []float64{0.8, 0.2},
			RatioChange:       []float64{0, 0.1},
		},
	}
}

func TestPersist_FileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	locs, err := Persist(context.Background(), store, testResult())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "r1", ElevationObject),
		filepath.Join(dir, "r1", FeaturesObject),
		filepath.Join(dir, "r1", SummaryObject),
	}, locs)

	f, err := os.Open(locs[0])
	require.NoError(t, err)
	defer f.Close()
	img, err := geotiff.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 812.5, img.Data[0])

	csvData, err := os.ReadFile(locs[1])
	require.NoError(t, err)
	table, err := feature.ReadCSV(bytes.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 31}, table.Slope)

	summary, err := os.ReadFile(locs[2])
	require.NoError(t, err)
	assert.Contains(t, string(summary), `"request_id": "r1"`)
}

func TestPersist_SummaryOnly(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	res := &domain.AnalysisResult{RequestID: "r2"}
	locs, err := Persist(context.Background(), store, res)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, SummaryObject, filepath.Base(locs[0]))
}

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = data
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestMinIOStore_CreatesBucketAndPuts(t *testing.T) {
	fake := &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	s := &MinIOStore{client: fake, bucket: "terrain-artifacts", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	require.NoError(t, s.ensureBucket(context.Background()))
	assert.True(t, fake.buckets["terrain-artifacts"])

	locs, err := Persist(context.Background(), s, testResult())
	require.NoError(t, err)
	assert.Equal(t, "s3://terrain-artifacts/r1/elevation.tif", locs[0])
	assert.Equal(t, "image/tiff", fake.types["terrain-artifacts/r1/elevation.tif"])
	assert.Equal(t, "text/csv", fake.types["terrain-artifacts/r1/features.csv"])
	assert.Len(t, fake.objects, 3)
}

func TestMinIOStore_PutError(t *testing.T) {
	fake := &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}, putErr: errors.New("access denied")}
	s := &MinIOStore{client: fake, bucket: "b", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	locs, err := Persist(context.Background(), s, testResult())
	require.Error(t, err)
	assert.Empty(t, locs)
	assert.Contains(t, err.Error(), "r1/elevation.tif")
}

package copernicus

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/adapter/fetch"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testClient(t *testing.T, baseURL string) *Client {
	return NewClient(baseURL, 2*time.Second, fetch.New(5*time.Second, "", t.TempDir(), discard()), discard())
}

func TestClient_Exists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch {
		case strings.Contains(r.URL.Path, "N23_00_E072_00"):
			w.WriteHeader(http.StatusOK)
		case strings.Contains(r.URL.Path, "N00_00_W030_00"):
			w.WriteHeader(http.StatusForbidden)
		case strings.Contains(r.URL.Path, "N45_00_E007_00"):
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.Contains(r.URL.Path, "N46_00_E007_00"):
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := testClient(t, srv.URL)

	ok, err := c.Exists(context.Background(), geo.TileID{Lat: 23, Lon: 72})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), geo.TileID{Lat: 0, Lon: -30})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Exists(context.Background(), geo.TileID{Lat: 10, Lon: 10})
	require.NoError(t, err)
	assert.False(t, ok)

	for _, tc := range []struct {
		id   geo.TileID
		code int
	}{
		{geo.TileID{Lat: 45, Lon: 7}, http.StatusServiceUnavailable},
		{geo.TileID{Lat: 46, Lon: 7}, http.StatusTooManyRequests},
	} {
		ok, err = c.Exists(context.Background(), tc.id)
		require.Error(t, err, tc.id.String())
		assert.False(t, ok)
		assert.Contains(t, err.Error(), tc.id.String())

		var se *fetch.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, tc.code, se.Code)
		assert.Equal(t, http.MethodHead, se.Method)
	}
}

func TestClient_ExistsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := testClient(t, srv.URL).Exists(context.Background(), geo.TileID{Lat: 23, Lon: 72})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "N23_E072")
}

func TestClient_Open(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, raster.WriteGeoTIFF(&buf, &raster.Raster{
		Grid:      raster.Filled(3, 3, 42),
		Transform: raster.GeoTransform{72, 1.0 / 3, 0, 24, 0, -1.0 / 3},
		EPSG:      4326,
	}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t,
			"/Copernicus_DSM_COG_10_N23_00_E072_00_DEM/Copernicus_DSM_COG_10_N23_00_E072_00_DEM.tif",
			r.URL.Path)
		w.Write(buf.Bytes()) //nolint:errcheck
	}))
	defer srv.Close()

	h, err := testClient(t, srv.URL).Open(context.Background(), geo.TileID{Lat: 23, Lon: 72})
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "N23_E072", h.Name())
	r, err := h.Read()
	require.NoError(t, err)
	assert.Equal(t, 42.0, r.Grid.At(1, 1))
}

package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTilesFor_SingleTileAOI(t *testing.T) {
	b, err := ParseBounds(ahmedabadAOI)
	require.NoError(t, err)

	tiles := TilesFor(b)
	require.Len(t, tiles, 1)
	assert.Equal(t, TileID{Lat: 23, Lon: 72}, tiles[0])
	assert.Equal(t, "N23_E072", tiles[0].String())
}

func TestTilesFor_IntegerEdgesBelongToLowerTile(t *testing.T) {
	tiles := TilesFor(BoundingBox{West: 72, South: 23, East: 73, North: 24})
	assert.Equal(t, []TileID{{Lat: 23, Lon: 72}}, tiles)
}

func TestTilesFor_CountMatchesFloorCeil(t *testing.T) {
	boxes := []BoundingBox{
		{West: -3, South: -2, East: 2, North: 1},
		{West: 10, South: 40, East: 13, North: 44},
		{West: -180, South: -90, East: -178, North: -89},
		{West: 0.5, South: 0.5, East: 2.5, North: 1.5},
	}
	for _, b := range boxes {
		tiles := TilesFor(b)
		want := int((math.Ceil(b.East) - math.Floor(b.West)) * (math.Ceil(b.North) - math.Floor(b.South)))
		assert.Len(t, tiles, want, b.String())

		seen := make(map[TileID]bool, len(tiles))
		for _, id := range tiles {
			assert.False(t, seen[id], "duplicate tile %s", id)
			seen[id] = true
		}
	}
}

func TestTilesFor_LongitudeMajorOrder(t *testing.T) {
	tiles := TilesFor(BoundingBox{West: -0.5, South: -0.5, East: 0.5, North: 0.5})
	assert.Equal(t, []TileID{
		{Lat: -1, Lon: -1},
		{Lat: 0, Lon: -1},
		{Lat: -1, Lon: 0},
		{Lat: 0, Lon: 0},
	}, tiles)
}

func TestTileID_StringAndParse(t *testing.T) {
	tests := []struct {
		id   TileID
		name string
	}{
		{TileID{Lat: 23, Lon: 72}, "N23_E072"},
		{TileID{Lat: -1, Lon: -5}, "S01_W005"},
		{TileID{Lat: 0, Lon: 0}, "N00_E000"},
		{TileID{Lat: -90, Lon: -180}, "S90_W180"},
		{TileID{Lat: 89, Lon: 179}, "N89_E179"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.id.String())
		got, err := ParseTileID(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.id, got)
	}
}

func TestParseTileID_Rejects(t *testing.T) {
	for _, s := range []string{"", "N23E072", "X23_E072", "N23_Q072", "N+1_E072", "S00_E000", "N90_E000"} {
		_, err := ParseTileID(s)
		assert.ErrorIs(t, err, ErrTileID, s)
	}
}

func TestCopernicusLocator_RoundTrip(t *testing.T) {
	loc := CopernicusLocator{}
	id := TileID{Lat: 23, Lon: 72}

	u := loc.Locate(id)
	assert.Equal(t,
		"https://copernicus-dem-30m.s3.eu-central-1.amazonaws.com/Copernicus_DSM_COG_10_N23_00_E072_00_DEM/Copernicus_DSM_COG_10_N23_00_E072_00_DEM.tif",
		u)

	back, err := loc.TileFromLocator(u)
	require.NoError(t, err)
	assert.Equal(t, id, back)

	custom := CopernicusLocator{BaseURL: "http://localhost:9000/dem/"}
	for _, id := range TilesFor(BoundingBox{West: -2.5, South: -1.5, East: 1.5, North: 0.5}) {
		back, err := custom.TileFromLocator(custom.Locate(id))
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}
}

package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultCopernicusBaseURL hosts the Copernicus GLO-30 DEM as public COGs.
const DefaultCopernicusBaseURL = "https://copernicus-dem-30m.s3.eu-central-1.amazonaws.com"

// ErrTileID is returned when a tile name or locator cannot be parsed.
var ErrTileID = errors.New("invalid tile id")

// TileID names the 1x1 degree tile whose south-west corner is (Lon, Lat).
type TileID struct {
	Lat int `json:"lat"`
	Lon int `json:"lon"`
}

// String renders the canonical name, e.g. N23_E072 or S01_W005.
func (t TileID) String() string {
	ns, ew := 'N', 'E'
	if t.Lat < 0 {
		ns = 'S'
	}
	if t.Lon < 0 {
		ew = 'W'
	}
	return fmt.Sprintf("%c%02d_%c%03d", ns, abs(t.Lat), ew, abs(t.Lon))
}

func (t TileID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TileID) UnmarshalText(b []byte) error {
	id, err := ParseTileID(string(b))
	if err != nil {
		return err
	}
	*t = id
	return nil
}

// ParseTileID is the inverse of TileID.String.
func ParseTileID(s string) (TileID, error) {
	if len(s) != 8 || s[3] != '_' {
		return TileID{}, fmt.Errorf("%w: %q", ErrTileID, s)
	}
	lat, err1 := strconv.Atoi(s[1:3])
	lon, err2 := strconv.Atoi(s[5:8])
	if err1 != nil || err2 != nil || lat < 0 || lon < 0 {
		return TileID{}, fmt.Errorf("%w: %q", ErrTileID, s)
	}
	switch s[0] {
	case 'N':
	case 'S':
		lat = -lat
	default:
		return TileID{}, fmt.Errorf("%w: latitude hemisphere %q in %q", ErrTileID, s[0], s)
	}
	switch s[4] {
	case 'E':
	case 'W':
		lon = -lon
	default:
		return TileID{}, fmt.Errorf("%w: longitude hemisphere %q in %q", ErrTileID, s[4], s)
	}
	if lat < -90 || lat >= 90 || lon < -180 || lon >= 180 {
		return TileID{}, fmt.Errorf("%w: %q out of range", ErrTileID, s)
	}
	id := TileID{Lat: lat, Lon: lon}
	if id.String() != s {
		return TileID{}, fmt.Errorf("%w: %q is not canonical", ErrTileID, s)
	}
	return id, nil
}

// Bounds returns the tile's one-degree extent.
func (t TileID) Bounds() BoundingBox {
	return BoundingBox{West: float64(t.Lon), South: float64(t.Lat), East: float64(t.Lon + 1), North: float64(t.Lat + 1)}
}

// TilesFor lists every tile intersecting b, longitude-major. Ranges are
// half-open on floor/ceil, so an edge lying exactly on a whole degree belongs
// to the tile below it only.
func TilesFor(b BoundingBox) []TileID {
	lonStart, lonEnd := int(math.Floor(b.West)), int(math.Ceil(b.East))
	latStart, latEnd := int(math.Floor(b.South)), int(math.Ceil(b.North))

	tiles := make([]TileID, 0, max(0, lonEnd-lonStart)*max(0, latEnd-latStart))
	for lon := lonStart; lon < lonEnd; lon++ {
		for lat := latStart; lat < latEnd; lat++ {
			tiles = append(tiles, TileID{Lat: lat, Lon: lon})
		}
	}
	return tiles
}

// CopernicusLocator maps tiles to Copernicus DSM COG object URLs.
type CopernicusLocator struct {
	BaseURL string
}

func (l CopernicusLocator) base() string {
	if l.BaseURL == "" {
		return DefaultCopernicusBaseURL
	}
	return strings.TrimRight(l.BaseURL, "/")
}

// Locate returns the object URL of a tile.
func (l CopernicusLocator) Locate(t TileID) string {
	stem := copernicusStem(t)
	return l.base() + "/" + stem + "/" + stem + ".tif"
}

// TileFromLocator recovers the tile from a URL produced by Locate.
func (l CopernicusLocator) TileFromLocator(u string) (TileID, error) {
	rest, ok := strings.CutPrefix(u, l.base()+"/")
	if !ok {
		return TileID{}, fmt.Errorf("%w: %q is not under %s", ErrTileID, u, l.base())
	}
	dir, file, ok := strings.Cut(rest, "/")
	if !ok || file != dir+".tif" {
		return TileID{}, fmt.Errorf("%w: unexpected object path %q", ErrTileID, rest)
	}
	name, ok := strings.CutPrefix(dir, "Copernicus_DSM_COG_10_")
	if !ok {
		return TileID{}, fmt.Errorf("%w: unexpected object name %q", ErrTileID, dir)
	}
	name, ok = strings.CutSuffix(name, "_00_DEM")
	if !ok {
		return TileID{}, fmt.Errorf("%w: unexpected object name %q", ErrTileID, dir)
	}
	latPart, lonPart, ok := strings.Cut(name, "_00_")
	if !ok {
		return TileID{}, fmt.Errorf("%w: unexpected object name %q", ErrTileID, dir)
	}
	return ParseTileID(latPart + "_" + lonPart)
}

func copernicusStem(t TileID) string {
	lat, lon, _ := strings.Cut(t.String(), "_")
	return "Copernicus_DSM_COG_10_" + lat + "_00_" + lon + "_00_DEM"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

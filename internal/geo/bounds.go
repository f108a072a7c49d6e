// Package geo turns an area-of-interest polygon into a bounding box and the
// integer-degree elevation tiles that cover it.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrMalformed means the text could not be read as a simple polygon.
	ErrMalformed = errors.New("malformed geometry")
	// ErrInvalid means the polygon parsed but is self-intersecting or has zero area.
	ErrInvalid = errors.New("invalid geometry")
	// ErrBounds means the box violates west < east, south < north.
	ErrBounds = errors.New("invalid bounding box")
)

// BoundingBox is an axis-aligned extent in degrees.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// NewBoundingBox validates and returns a box.
func NewBoundingBox(west, south, east, north float64) (BoundingBox, error) {
	for _, v := range []float64{west, south, east, north} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BoundingBox{}, fmt.Errorf("%w: non-finite coordinate", ErrBounds)
		}
	}
	if west >= east {
		return BoundingBox{}, fmt.Errorf("%w: west %.7f must be less than east %.7f", ErrBounds, west, east)
	}
	if south >= north {
		return BoundingBox{}, fmt.Errorf("%w: south %.7f must be less than north %.7f", ErrBounds, south, north)
	}
	return BoundingBox{West: west, South: south, East: east, North: north}, nil
}

func (b BoundingBox) Width() float64  { return b.East - b.West }
func (b BoundingBox) Height() float64 { return b.North - b.South }

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%.7f, %.7f, %.7f, %.7f]", b.West, b.South, b.East, b.North)
}

// ParseBounds reads a WKT POLYGON and returns the extent of its outer ring.
func ParseBounds(text string) (BoundingBox, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return BoundingBox{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return BoundingBox{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		return BoundingBox{}, fmt.Errorf("%w: expected POLYGON, got %s", ErrMalformed, g.GeoJSONType())
	}
	if len(poly) == 0 {
		return BoundingBox{}, fmt.Errorf("%w: polygon has no rings", ErrMalformed)
	}
	outer := poly[0]
	if len(outer) < 4 {
		return BoundingBox{}, fmt.Errorf("%w: outer ring has %d points, need at least 4", ErrMalformed, len(outer))
	}
	if !outer.Closed() {
		return BoundingBox{}, fmt.Errorf("%w: outer ring is not closed", ErrMalformed)
	}

	if area := math.Abs(planar.Area(orb.Polygon{outer})); area == 0 {
		return BoundingBox{}, fmt.Errorf("%w: polygon has zero area", ErrInvalid)
	}
	if i, j, hit := selfIntersection(outer); hit {
		return BoundingBox{}, fmt.Errorf("%w: ring segments %d and %d intersect", ErrInvalid, i, j)
	}

	bound := outer.Bound()
	b, err := NewBoundingBox(bound.Left(), bound.Bottom(), bound.Right(), bound.Top())
	if err != nil {
		return BoundingBox{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return b, nil
}

// selfIntersection reports the first pair of non-adjacent ring segments that
// touch or cross. Adjacent segments share exactly one endpoint and are skipped.
func selfIntersection(ring orb.Ring) (int, int, bool) {
	n := len(ring) - 1
	for i := range n {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				if collinearOverlap(ring[i], ring[i+1], ring[j], ring[j+1]) {
					return i, j, true
				}
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

// collinearOverlap reports whether two adjacent segments fold back over each
// other, which makes the ring degenerate even though they share one vertex.
func collinearOverlap(p1, p2, q1, q2 orb.Point) bool {
	if orient(p1, p2, q1) != 0 || orient(p1, p2, q2) != 0 {
		return false
	}
	shared := p2
	if p1 == q2 {
		shared = p1
	}
	var a, b orb.Point
	if shared == p2 {
		a, b = p1, q2
	} else {
		a, b = p2, q1
	}
	// Collinear with the shared vertex between them means the ring continues straight.
	return (a[0]-shared[0])*(b[0]-shared[0])+(a[1]-shared[1])*(b[1]-shared[1]) > 0
}

package scene

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const operaTimeLayout = "20060102T150405Z"

// ErrGranuleName is returned for names that are not OPERA RTC-S1 granules.
var ErrGranuleName = errors.New("not an OPERA RTC-S1 granule name")

// Granule is the metadata encoded in an OPERA RTC-S1 file or scene name, e.g.
// OPERA_L2_RTC-S1_T034-071821-IW3_20250823T010222Z_20250823T070234Z_S1A_30_v1.0_VV.tif
type Granule struct {
	Mission      string
	Level        string
	Product      string
	BurstID      string
	Start        time.Time
	Processed    time.Time
	Platform     string
	ResolutionM  int
	Version      string
	Polarization Polarization
}

// ParseOperaName parses a granule name or URL. Scene names carry no
// polarization suffix; file names do.
func ParseOperaName(name string) (Granule, error) {
	base := strings.TrimSuffix(path.Base(name), ".tif")
	parts := strings.Split(base, "_")
	if len(parts) < 9 || parts[0] != "OPERA" {
		return Granule{}, fmt.Errorf("%w: %q", ErrGranuleName, name)
	}
	start, err := time.Parse(operaTimeLayout, parts[4])
	if err != nil {
		return Granule{}, fmt.Errorf("%w: start time in %q: %v", ErrGranuleName, name, err)
	}
	processed, err := time.Parse(operaTimeLayout, parts[5])
	if err != nil {
		return Granule{}, fmt.Errorf("%w: processing time in %q: %v", ErrGranuleName, name, err)
	}
	res, err := strconv.Atoi(parts[7])
	if err != nil {
		return Granule{}, fmt.Errorf("%w: resolution in %q: %v", ErrGranuleName, name, err)
	}
	g := Granule{
		Mission:     parts[0],
		Level:       parts[1],
		Product:     parts[2],
		BurstID:     parts[3],
		Start:       start,
		Processed:   processed,
		Platform:    parts[6],
		ResolutionM: res,
		Version:     parts[8],
	}
	if len(parts) > 9 {
		p, err := ParsePolarization(parts[9])
		if err != nil {
			return Granule{}, fmt.Errorf("%w: %v", ErrGranuleName, err)
		}
		g.Polarization = p
	}
	return g, nil
}

// ChangePair is two acquisitions of the same burst close enough in time to
// difference.
type ChangePair struct {
	BurstID string
	Before  Candidate
	After   Candidate
	GapDays int
}

// DefaultMaxPairGap is the widest acquisition gap ChangePairs accepts by default.
const DefaultMaxPairGap = 15 * 24 * time.Hour

// ChangePairs groups scenes by burst and returns every ordered pair within a
// burst whose acquisition gap, in whole days, is at most maxGap. Scenes
// without a burst id are grouped under "unknown".
func ChangePairs(scenes []Candidate, maxGap time.Duration) []ChangePair {
	sorted := append([]Candidate(nil), scenes...)
	SortByAcquisition(sorted)

	groups := make(map[string][]Candidate)
	var order []string
	for _, c := range sorted {
		burst := c.BurstID
		if burst == "" {
			burst = "unknown"
		}
		if _, ok := groups[burst]; !ok {
			order = append(order, burst)
		}
		groups[burst] = append(groups[burst], c)
	}
	sort.Strings(order)

	maxDays := int(maxGap / (24 * time.Hour))
	var pairs []ChangePair
	for _, burst := range order {
		items := groups[burst]
		for i := 0; i < len(items)-1; i++ {
			for j := i + 1; j < len(items); j++ {
				gap := int(items[j].AcquiredAt.Sub(items[i].AcquiredAt) / (24 * time.Hour))
				if gap <= maxDays {
					pairs = append(pairs, ChangePair{BurstID: burst, Before: items[i], After: items[j], GapDays: gap})
				}
			}
		}
	}
	return pairs
}

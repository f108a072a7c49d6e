package scene

import (
	"slices"
	"sort"
	"time"
)

// Candidate is one catalog product.
type Candidate struct {
	ID         string                    `json:"id"`
	AcquiredAt time.Time                 `json:"acquired_at"`
	Endpoints  map[Polarization][]string `json:"endpoints,omitempty"`
	Platform   string                    `json:"platform,omitempty"`
	BurstID    string                    `json:"burst_id,omitempty"`
}

// Qualifies reports whether c offers at least one endpoint for every pol.
func (c Candidate) Qualifies(pols []Polarization) bool {
	for _, p := range pols {
		if len(c.Endpoints[p]) == 0 {
			return false
		}
	}
	return true
}

// Endpoint returns the first endpoint for p.
func (c Candidate) Endpoint(p Polarization) (string, bool) {
	if urls := c.Endpoints[p]; len(urls) > 0 {
		return urls[0], true
	}
	return "", false
}

// Selection is the oldest and newest qualifying scenes. Both are nil when
// nothing qualified; both point at the same scene when only one did.
type Selection struct {
	Oldest *Candidate
	Newest *Candidate
}

// Empty reports that no scene qualified.
func (s Selection) Empty() bool { return s.Oldest == nil }

// Single reports that one unique scene was selected for both ends.
func (s Selection) Single() bool {
	return s.Oldest != nil && s.Newest != nil && s.Oldest.ID == s.Newest.ID
}

// Pair reports whether two distinct scenes were selected.
func (s Selection) Pair() bool { return s.Oldest != nil && s.Newest != nil && !s.Single() }

// Unique returns the selected scenes without repeats, oldest first.
func (s Selection) Unique() []Candidate {
	switch {
	case s.Empty():
		return nil
	case s.Single():
		return []Candidate{*s.Oldest}
	default:
		return []Candidate{*s.Oldest, *s.Newest}
	}
}

// Select scans scenes forward for the first qualifying scene and backward for
// the last one. scenes must be in ascending acquisition order; the scan does
// not check this, and unsorted input yields the wrong pair. Callers that
// cannot guarantee the order should apply SortByAcquisition first.
func Select(scenes []Candidate, pols []Polarization) Selection {
	first := slices.IndexFunc(scenes, func(c Candidate) bool { return c.Qualifies(pols) })
	if first < 0 {
		return Selection{}
	}
	last := first
	for i := len(scenes) - 1; i > first; i-- {
		if scenes[i].Qualifies(pols) {
			last = i
			break
		}
	}

	oldest := scenes[first]
	newest := scenes[last]
	if newest.ID == oldest.ID {
		return Selection{Oldest: &oldest, Newest: &oldest}
	}
	return Selection{Oldest: &oldest, Newest: &newest}
}

// SortByAcquisition orders scenes by acquisition time, keeping catalog order
// for equal timestamps.
func SortByAcquisition(scenes []Candidate) {
	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].AcquiredAt.Before(scenes[j].AcquiredAt)
	})
}

// Package scene picks the SAR acquisitions that bracket an analysis window.
package scene

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Polarization is a SAR transmit/receive channel.
type Polarization string

const (
	VV Polarization = "VV"
	VH Polarization = "VH"
	HH Polarization = "HH"
	HV Polarization = "HV"
)

// DefaultPolarizations is the dual-pol pair Sentinel-1 IW acquires over land.
var DefaultPolarizations = []Polarization{VV, VH}

// ErrInvalidPolarization is a configuration error, never a runtime fault.
var ErrInvalidPolarization = errors.New("invalid polarization")

// ParsePolarization accepts VV, VH, HH or HV in any case.
func ParsePolarization(s string) (Polarization, error) {
	p := Polarization(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case VV, VH, HH, HV:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q (want VV, VH, HH or HV)", ErrInvalidPolarization, s)
}

// ParsePolarizations parses a list, dropping duplicates and keeping order.
func ParsePolarizations(items []string) ([]Polarization, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty set", ErrInvalidPolarization)
	}
	out := make([]Polarization, 0, len(items))
	for _, s := range items {
		p, err := ParsePolarization(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return lo.Uniq(out), nil
}

// ParsePolarizationList parses a comma separated list such as "VV,VH".
func ParsePolarizationList(s string) ([]Polarization, error) {
	return ParsePolarizations(lo.Compact(strings.Split(s, ",")))
}

// CrossPol returns the cross-polarised channel paired with a co-polarised one.
func (p Polarization) CrossPol() (Polarization, bool) {
	switch p {
	case VV:
		return VH, true
	case HH:
		return HV, true
	}
	return "", false
}

// EndpointsFromURLs groups product URLs by the polarization suffix of their
// file name, e.g. ..._VV.tif. URLs without a recognised suffix are dropped.
func EndpointsFromURLs(urls []string) map[Polarization][]string {
	out := make(map[Polarization][]string)
	for _, u := range urls {
		for _, p := range []Polarization{VV, VH, HH, HV} {
			if strings.HasSuffix(u, "_"+string(p)+".tif") {
				out[p] = append(out[p], u)
				break
			}
		}
	}
	return out
}

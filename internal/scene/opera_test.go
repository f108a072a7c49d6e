package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperaName(t *testing.T) {
	g, err := ParseOperaName("https://datapool.asf.alaska.edu/RTC/OPERA-S1/OPERA_L2_RTC-S1_T034-071821-IW3_20250823T010222Z_20250823T070234Z_S1A_30_v1.0_VV.tif")
	require.NoError(t, err)

	assert.Equal(t, "T034-071821-IW3", g.BurstID)
	assert.Equal(t, time.Date(2025, time.August, 23, 1, 2, 22, 0, time.UTC), g.Start)
	assert.Equal(t, "S1A", g.Platform)
	assert.Equal(t, 30, g.ResolutionM)
	assert.Equal(t, "v1.0", g.Version)
	assert.Equal(t, VV, g.Polarization)
}

func TestParseOperaName_SceneWithoutPolarization(t *testing.T) {
	g, err := ParseOperaName("OPERA_L2_RTC-S1_T034-071821-IW3_20250823T010222Z_20250823T070234Z_S1A_30_v1.0")
	require.NoError(t, err)
	assert.Empty(t, g.Polarization)
}

func TestParseOperaName_Rejects(t *testing.T) {
	for _, name := range []string{
		"S1A_IW_GRDH_1SDV_20240101T000000_20240101T000025_051000_062000_ABCD",
		"OPERA_L2_RTC-S1_T034-071821-IW3_notatime_20250823T070234Z_S1A_30_v1.0",
		"OPERA_L2_RTC-S1_T034-071821-IW3_20250823T010222Z_20250823T070234Z_S1A_xx_v1.0",
	} {
		_, err := ParseOperaName(name)
		assert.ErrorIs(t, err, ErrGranuleName, name)
	}
}

func TestChangePairs_SameBurstWithinGap(t *testing.T) {
	day := 24 * time.Hour
	scenes := []Candidate{
		{ID: "a3", BurstID: "A", AcquiredAt: t0.Add(30 * day)},
		{ID: "a1", BurstID: "A", AcquiredAt: t0},
		{ID: "a2", BurstID: "A", AcquiredAt: t0.Add(12 * day)},
		{ID: "b1", BurstID: "B", AcquiredAt: t0.Add(1 * day)},
		{ID: "b2", BurstID: "B", AcquiredAt: t0.Add(40 * day)},
	}

	pairs := ChangePairs(scenes, DefaultMaxPairGap)
	require.Len(t, pairs, 1)
	assert.Equal(t, "A", pairs[0].BurstID)
	assert.Equal(t, "a1", pairs[0].Before.ID)
	assert.Equal(t, "a2", pairs[0].After.ID)
	assert.Equal(t, 12, pairs[0].GapDays)

	wide := ChangePairs(scenes, 20*day)
	assert.Len(t, wide, 2)
}

package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeNPCStateDefaults(t *testing.T) {
	assert.Equal(t, NPCState{}, DecodeNPCState(nil))
	assert.Equal(t, NPCState{}, DecodeNPCState([]byte(`{}`)))
	assert.Equal(t, NPCState{}, DecodeNPCState([]byte(`not json`)))
}

func TestNPCStateRoundTrip(t *testing.T) {
	st := NPCState{
		Cycles:                   4,
		HarvestActive:            true,
		HarvestingPlayerID:       7,
		HarvestStartTime:         1700000000000,
		EffectiveHarvestableTime: 9000,
	}
	got := DecodeNPCState(st.Encode())
	assert.Equal(t, st, got)
}

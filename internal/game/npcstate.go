package game

import (
	"encoding/json"
	"sync"
)

// NPCState is the typed shape of a placement's opaque JSON state. Legacy
// empty blobs decode to the zero value.
type NPCState struct {
	Cycles                    int   `json:"cycles"`
	HarvestActive             bool  `json:"harvest_active"`
	HarvestingPlayerID        int64 `json:"harvesting_player_id,omitempty"`
	HarvestStartTime          int64 `json:"harvest_start_time,omitempty"` // epoch ms
	CooldownUntil             int64 `json:"cooldown_until,omitempty"`     // epoch ms
	EffectiveHarvestableTime  int64 `json:"effective_harvestable_time,omitempty"`
	HarvestingPlayerResonance int   `json:"harvesting_player_resonance,omitempty"`
	HarvestingPlayerFortitude int   `json:"harvesting_player_fortitude,omitempty"`
}

// DecodeNPCState parses a placement state blob, defaulting all fields on
// empty or malformed input (legacy rows carry '{}' or nothing at all).
func DecodeNPCState(raw []byte) NPCState {
	var s NPCState
	if len(raw) == 0 {
		return s
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return NPCState{}
	}
	return s
}

// Encode serializes the state for persistence.
func (s NPCState) Encode() []byte {
	data, err := json.Marshal(s)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}

// StatusLabel classifies the placement for room listings.
func (s NPCState) StatusLabel(nowMS int64) string {
	switch {
	case s.HarvestActive:
		return "harvesting"
	case s.CooldownUntil > nowMS:
		return "cooldown"
	case s.Cycles > 0:
		return "ready"
	default:
		return "idle"
	}
}

// placementLocks serializes read-modify-write cycles on placement state.
// One mutex per placement id, allocated on first use.
type placementLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newPlacementLocks() *placementLocks {
	return &placementLocks{locks: map[int64]*sync.Mutex{}}
}

func (p *placementLocks) get(placementID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.locks[placementID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[placementID] = m
	}
	return m
}

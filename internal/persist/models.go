package persist

import (
	"encoding/json"
	"time"
)

// MapRow is one world map.
type MapRow struct {
	ID     int64
	Name   string
	Width  int
	Height int
}

// Portal links a room to a room on another map.
type Portal struct {
	ToMapID   int64
	ToX       int
	ToY       int
	Direction string // 8-way compass code
}

// Room is one grid tile of a map.
type Room struct {
	ID          int64
	MapID       int64
	X           int
	Y           int
	Name        string
	Description string
	Kind        string // normal/factory/warehouse/merchant/bank/...
	Portal      *Portal
}

// Player is the durable character record.
type Player struct {
	ID              int64
	Account         string
	Name            string
	RoomID          int64
	Resonance       int
	Fortitude       int
	Vitalis         int
	Clarity         int
	Verve           int
	Grit            int
	UnspentPoints   int
	EncumbranceCap  float64
	GodMode         bool
	AlwaysFirstTime bool
	AutoLoopTimeMS  int
	AutoNavTimeMS   int
}

// Stats returns the six stat values keyed by attribute name.
func (p *Player) Stats() map[string]int {
	return map[string]int{
		"resonance": p.Resonance,
		"fortitude": p.Fortitude,
		"vitalis":   p.Vitalis,
		"clarity":   p.Clarity,
		"verve":     p.Verve,
		"grit":      p.Grit,
	}
}

// ItemDef is an item definition from the catalogue.
type ItemDef struct {
	ID            int64
	Name          string
	Kind          string // ingredient/rune/deed/currency/sundries
	Encumbrance   float64
	Poofable      bool
	WarehouseID   *int64 // deeds only
	CurrencyValue int    // currency only, value in smallest denomination
}

// ItemStack is a named quantity (room floor, inventory, recipes).
type ItemStack struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// NPCDef is a scriptable NPC definition.
type NPCDef struct {
	ID               int64
	Name             string
	Kind             string
	BaseCycleMS      int64
	Difficulty       int
	InputItems       []ItemStack
	OutputItems      []ItemStack
	HarvestableMS    int64
	CooldownMS       int64
	PrerequisiteItem string
	PrerequisiteMsg  string
	HitRate          float64
	CycleReduction   float64
	HitVitalis       int
	MissVitalis      int
	FortitudeBonus   bool
}

// Placement is an NPC placed in a room with its opaque state blob.
type Placement struct {
	ID     int64
	NPCID  int64
	RoomID int64
	Slot   int
	State  []byte // JSON, decoded by game.DecodeNPCState
	Def    *NPCDef
}

// LoreKeeper is the flattened lorekeeper decoration for one NPC.
type LoreKeeper struct {
	NPCID             int64
	PlacementID       int64
	RoomID            int64
	Name              string
	LoreKind          string // dialogue/puzzle
	EngageEnabled     bool
	EngageDelayMS     int64
	InitialMessage    string
	InitialColor      string
	NPCColor          string
	Keywords          map[string]string
	KeywordColor      string
	IncorrectResponse string
	PuzzleMode        string // word/combination/cipher/glowcodex
	Clues             []string
	Solution          string
	SuccessMessage    string
	FailureMessage    string
	HintResponses     []string
	FollowupResponses []string
	IncorrectAttempts []string
	ExtractionPattern []int // 1-based indices into each clue's <...> region
	RewardItem        string
	AwardOnce         bool
	AwardAfterDelay   bool
	DelaySeconds      int
}

// WarehouseDef is one warehouse with its capacity limits.
type WarehouseDef struct {
	ID         int64
	RoomID     int64
	MaxTypes   int
	MaxPerType int
}

// MerchantItem is one catalogue row of a merchant room.
type MerchantItem struct {
	ItemName  string
	Price     int
	SellPrice int
	Stock     int
	Unlimited bool
}

// PathRow is a saved path or loop.
type PathRow struct {
	ID           int64
	PlayerID     int64
	MapID        int64
	OriginRoomID int64
	Name         string
	Kind         string // path/loop
}

// PathStepRow is one ordered step of a saved path. Direction is the compass
// code travelled into the step's room; the first step has none.
type PathStepRow struct {
	Seq       int
	RoomID    int64
	Direction string
}

// WebSession is a stored external session looked up by token digest.
type WebSession struct {
	TokenDigest string
	Account     string
	ExpiresAt   time.Time
}

// TerminalLine is one persisted terminal message.
type TerminalLine struct {
	Message string
	Kind    string
	SavedAt time.Time
}

func decodeStacks(raw []byte) []ItemStack {
	if len(raw) == 0 {
		return nil
	}
	var out []ItemStack
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeInts(raw []byte) []int {
	if len(raw) == 0 {
		return nil
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeStringMap(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := map[string]string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

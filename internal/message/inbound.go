// Package message defines the wire protocol: self-delimited JSON objects
// tagged with a "type" string. Inbound frames decode into a sealed set of
// variants; unknown tags are rejected at decode time.
package message

import (
	"encoding/json"
	"fmt"
)

// Envelope carries the raw payload alongside the decoded tag so the
// dispatcher can route before the per-variant decode.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

// ParseEnvelope splits a frame into its type tag and raw payload.
func ParseEnvelope(data []byte) (Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if head.Type == "" {
		return Envelope{}, fmt.Errorf("frame missing type tag")
	}
	return Envelope{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// Decode unmarshals the envelope payload into the given variant struct.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", e.Type, err)
	}
	return nil
}

// Inbound frame variants. Field names follow the client protocol.

type AuthenticateSession struct {
	SessionToken string `json:"sessionToken"`
	PlayerName   string `json:"playerName"`
	WindowID     string `json:"windowId"`
}

type Move struct {
	Direction string `json:"direction"`
}

type Take struct {
	ItemName string `json:"itemName"`
	Quantity string `json:"quantity"` // number or "all"; empty means 1
}

type Drop struct {
	ItemName string `json:"itemName"`
	Quantity string `json:"quantity"`
}

type FactoryWidgetAddItem struct {
	Slot     int    `json:"slot"`
	ItemName string `json:"itemName"`
}

type Harvest struct {
	Target string `json:"target"`
}

type Resonate struct {
	Message string `json:"message"`
}

type Talk struct {
	Message string `json:"message"`
}

type Ask struct {
	NPCName  string `json:"npcName"`
	Question string `json:"question"`
}

type Telepath struct {
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

type Solve struct {
	Target string `json:"target"`
	Answer string `json:"answer"`
}

type Clue struct {
	Target string `json:"target"`
}

type Greet struct {
	Target string `json:"target"`
}

type Store struct {
	ItemName string `json:"itemName"`
	Quantity string `json:"quantity"`
}

// Withdraw serves both the warehouse (items) and the bank (currency); the
// handler routes on the kind of room the caller stands in.
type Withdraw struct {
	ItemName     string `json:"itemName"`
	CurrencyName string `json:"currencyName"`
	Quantity     string `json:"quantity"`
}

type Deposit struct {
	CurrencyName string `json:"currencyName"`
	Quantity     string `json:"quantity"`
}

type Buy struct {
	ItemName string `json:"itemName"`
	Quantity string `json:"quantity"`
}

type Sell struct {
	ItemName string `json:"itemName"`
	Quantity string `json:"quantity"`
}

type SaveTerminalMessage struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type AssignAttributePoint struct {
	Attribute string `json:"attribute"`
}

type GetAutoPathRooms struct {
	MapID int64 `json:"mapId"`
}

type CalculateAutoPath struct {
	FromRoomID int64 `json:"fromRoomId"`
	ToRoomID   int64 `json:"toRoomId"`
}

type StartAutoNavigation struct {
	ToRoomID int64 `json:"toRoomId"`
}

type UpdateWidgetConfig struct {
	Config json.RawMessage `json:"config"`
}

type AddPathStep struct {
	RoomID         int64 `json:"roomId"`
	PreviousRoomID int64 `json:"previousRoomId"`
}

type SavePathStep struct {
	RoomID    int64  `json:"roomId"`
	Direction string `json:"direction"`
}

type SavePath struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"` // "path" or "loop"
	Steps        []SavePathStep `json:"steps"`
	MapID        int64          `json:"mapId"`
	OriginRoomID int64          `json:"originRoomId"`
}

type GetMapData struct {
	MapID int64 `json:"mapId"`
}

type GetPathDetails struct {
	PathID int64 `json:"pathId"`
}

type StartPathExecution struct {
	PathID int64 `json:"pathId"`
}

type ContinuePathExecution struct {
	PathID int64 `json:"pathId"`
}

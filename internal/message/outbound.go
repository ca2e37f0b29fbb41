package message

import "encoding/json"

// Outbound frame variants. Constructors stamp the type tag so a frame can
// never go out untagged.

type ErrorFrame struct {
	Type string `json:"type"`
	Text string `json:"message"`
}

func Error(text string) ErrorFrame {
	return ErrorFrame{Type: "error", Text: text}
}

type TextFrame struct {
	Type string `json:"type"`
	Text string `json:"message"`
	HTML bool   `json:"html,omitempty"`
}

func Text(text string) TextFrame {
	return TextFrame{Type: "message", Text: text}
}

func HTMLText(text string) TextFrame {
	return TextFrame{Type: "message", Text: text, HTML: true}
}

type SystemFrame struct {
	Type string `json:"type"`
	Text string `json:"message"`
}

func System(text string) SystemFrame {
	return SystemFrame{Type: "systemMessage", Text: text}
}

// NPCSummary decorates an NPC listing with its harvest status label.
type NPCSummary struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Status string `json:"status"` // idle / ready / harvesting / cooldown
	Slot   int    `json:"slot"`
}

type ItemQty struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type FactorySlot struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
}

type FactoryWidgetState struct {
	Type  string        `json:"type"`
	Slots []FactorySlot `json:"slots"`
}

func FactoryWidget(slots []FactorySlot) FactoryWidgetState {
	return FactoryWidgetState{Type: "factoryWidgetState", Slots: slots}
}

type WarehouseWidgetState struct {
	Type        string    `json:"type"`
	WarehouseID int64     `json:"warehouseId"`
	Items       []ItemQty `json:"items"`
	MaxTypes    int       `json:"maxItemTypes"`
	MaxPerType  int       `json:"maxQuantityPerType"`
	ViewOnly    bool      `json:"viewOnly"`
}

// RoomFrame is the canonical room view, sent under the "moved" tag on both
// arrival and plain look-style refreshes.
type RoomFrame struct {
	Type        string                `json:"type"`
	RoomID      int64                 `json:"roomId"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	MapName     string                `json:"mapName"`
	RoomType    string                `json:"roomType"`
	X           int                   `json:"x"`
	Y           int                   `json:"y"`
	MapID       int64                 `json:"mapId"`
	FirstTime   bool                  `json:"firstTime,omitempty"`
	Players     []string              `json:"players"`
	NPCs        []NPCSummary          `json:"npcs"`
	Items       []ItemQty             `json:"items"`
	Exits       []string              `json:"exits"`
	Factory     *FactoryWidgetState   `json:"factoryWidget,omitempty"`
	Warehouse   *WarehouseWidgetState `json:"warehouseWidget,omitempty"`
}

type MapRoom struct {
	RoomID   int64  `json:"roomId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Name     string `json:"name"`
	RoomType string `json:"roomType"`
}

type MapDataFrame struct {
	Type           string            `json:"type"`
	MapID          int64             `json:"mapId"`
	MapName        string            `json:"mapName"`
	Rooms          []MapRoom         `json:"rooms"`
	RoomTypeColors map[string]string `json:"roomTypeColors"`
}

type MapUpdateFrame struct {
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	MapID int64  `json:"mapId"`
}

func MapUpdate(x, y int, mapID int64) MapUpdateFrame {
	return MapUpdateFrame{Type: "mapUpdate", X: x, Y: y, MapID: mapID}
}

type PlayerStatsFrame struct {
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Stats          map[string]int `json:"stats"`
	Encumbrance    float64        `json:"encumbrance"`
	EncumbranceCap float64        `json:"encumbranceCap"`
	UnspentPoints  int            `json:"unspentPoints"`
}

type PlayerJoinedFrame struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
}

func PlayerJoined(name string) PlayerJoinedFrame {
	return PlayerJoinedFrame{Type: "playerJoined", PlayerName: name}
}

type PlayerLeftFrame struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
}

func PlayerLeft(name string) PlayerLeftFrame {
	return PlayerLeftFrame{Type: "playerLeft", PlayerName: name}
}

type TalkedFrame struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
	Text       string `json:"message"`
}

func Talked(player, text string) TalkedFrame {
	return TalkedFrame{Type: "talked", PlayerName: player, Text: text}
}

type ResonatedFrame struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
	Text       string `json:"message"`
}

func Resonated(player, text string) ResonatedFrame {
	return ResonatedFrame{Type: "resonated", PlayerName: player, Text: text}
}

type TelepathFrame struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"message"`
}

func TelepathMsg(from, text string) TelepathFrame {
	return TelepathFrame{Type: "telepath", From: from, Text: text}
}

type TelepathSentFrame struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Text string `json:"message"`
}

func TelepathSent(to, text string) TelepathSentFrame {
	return TelepathSentFrame{Type: "telepathSent", To: to, Text: text}
}

// LoreKeeperFrame carries colored NPC speech.
type LoreKeeperFrame struct {
	Type         string `json:"type"`
	NPCName      string `json:"npcName"`
	NPCColor     string `json:"npcColor"`
	Text         string `json:"message"`
	MessageColor string `json:"messageColor"`
	KeywordColor string `json:"keywordColor"`
}

func LoreKeeper(npcName, npcColor, text, messageColor, keywordColor string) LoreKeeperFrame {
	return LoreKeeperFrame{
		Type:         "loreKeeperMessage",
		NPCName:      npcName,
		NPCColor:     npcColor,
		Text:         text,
		MessageColor: messageColor,
		KeywordColor: keywordColor,
	}
}

type InventoryListFrame struct {
	Type        string    `json:"type"`
	Items       []ItemQty `json:"items"`
	Encumbrance float64   `json:"encumbrance"`
}

type MerchantEntry struct {
	Name      string `json:"name"`
	Price     int    `json:"price"`
	SellPrice int    `json:"sellPrice"`
	Stock     int    `json:"stock"`
	Unlimited bool   `json:"unlimited"`
}

type MerchantListFrame struct {
	Type  string          `json:"type"`
	Items []MerchantEntry `json:"items"`
}

type WidgetConfigFrame struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

func WidgetConfig(cfg json.RawMessage) WidgetConfigFrame {
	return WidgetConfigFrame{Type: "widgetConfig", Config: cfg}
}

func WidgetConfigUpdated(cfg json.RawMessage) WidgetConfigFrame {
	return WidgetConfigFrame{Type: "widgetConfigUpdated", Config: cfg}
}

type TerminalLine struct {
	Text      string `json:"message"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
}

type TerminalHistoryFrame struct {
	Type  string         `json:"type"`
	Lines []TerminalLine `json:"lines"`
}

type GameMessagesFrame struct {
	Type     string            `json:"type"`
	Messages map[string]string `json:"messages"`
}

// Pathing frames.

type PathingModeStartedFrame struct {
	Type         string `json:"type"`
	OriginRoomID int64  `json:"originRoomId"`
	MapID        int64  `json:"mapId"`
}

type PathStepAddedFrame struct {
	Type      string `json:"type"`
	RoomID    int64  `json:"roomId"`
	Direction string `json:"direction"`
	StepCount int    `json:"stepCount"`
}

type PathSavedFrame struct {
	Type   string `json:"type"`
	PathID int64  `json:"pathId"`
	Name   string `json:"name"`
}

type SimpleFrame struct {
	Type string `json:"type"`
}

func Simple(tag string) SimpleFrame { return SimpleFrame{Type: tag} }

type PathingRoomFrame struct {
	Type   string `json:"type"`
	RoomID int64  `json:"roomId"`
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	MapID  int64  `json:"mapId"`
}

type PathSummary struct {
	PathID    int64  `json:"pathId"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	MapID     int64  `json:"mapId"`
	StepCount int    `json:"stepCount"`
}

type AllPlayerPathsFrame struct {
	Type  string        `json:"type"`
	Paths []PathSummary `json:"paths"`
}

type PathStepDetail struct {
	Seq       int    `json:"seq"`
	RoomID    int64  `json:"roomId"`
	Direction string `json:"direction"`
}

type PathDetailsFrame struct {
	Type         string           `json:"type"`
	PathID       int64            `json:"pathId"`
	Name         string           `json:"name"`
	Kind         string           `json:"kind"`
	MapID        int64            `json:"mapId"`
	OriginRoomID int64            `json:"originRoomId"`
	Steps        []PathStepDetail `json:"steps"`
}

type PathExecutionFrame struct {
	Type    string `json:"type"`
	PathID  int64  `json:"pathId"`
	Step    int    `json:"step,omitempty"`
	Looping bool   `json:"looping,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func PathExecutionStarted(pathID int64, looping bool) PathExecutionFrame {
	return PathExecutionFrame{Type: "pathExecutionStarted", PathID: pathID, Looping: looping}
}

func PathExecutionComplete(pathID int64) PathExecutionFrame {
	return PathExecutionFrame{Type: "pathExecutionComplete", PathID: pathID}
}

func PathExecutionStopped(pathID int64, step int) PathExecutionFrame {
	return PathExecutionFrame{Type: "pathExecutionStopped", PathID: pathID, Step: step}
}

func PathExecutionResumed(pathID int64, step int) PathExecutionFrame {
	return PathExecutionFrame{Type: "pathExecutionResumed", PathID: pathID, Step: step}
}

func PathExecutionFailed(pathID int64, reason string) PathExecutionFrame {
	return PathExecutionFrame{Type: "pathExecutionFailed", PathID: pathID, Reason: reason}
}

// Auto-navigation frames.

type AutoPathMapEntry struct {
	MapID int64  `json:"mapId"`
	Name  string `json:"name"`
}

type AutoPathMapsFrame struct {
	Type string             `json:"type"`
	Maps []AutoPathMapEntry `json:"maps"`
}

type AutoPathRoomsFrame struct {
	Type  string    `json:"type"`
	MapID int64     `json:"mapId"`
	Rooms []MapRoom `json:"rooms"`
}

type AutoPathStep struct {
	Direction string `json:"direction"`
	RoomID    int64  `json:"roomId"`
}

type AutoPathCalculatedFrame struct {
	Type       string         `json:"type"`
	FromRoomID int64          `json:"fromRoomId"`
	ToRoomID   int64          `json:"toRoomId"`
	Steps      []AutoPathStep `json:"steps"`
}

type AutoNavigationFrame struct {
	Type     string `json:"type"`
	ToRoomID int64  `json:"toRoomId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func AutoNavigationStarted(toRoomID int64) AutoNavigationFrame {
	return AutoNavigationFrame{Type: "autoNavigationStarted", ToRoomID: toRoomID}
}

func AutoNavigationComplete(toRoomID int64) AutoNavigationFrame {
	return AutoNavigationFrame{Type: "autoNavigationComplete", ToRoomID: toRoomID}
}

func AutoNavigationFailed(reason string) AutoNavigationFrame {
	return AutoNavigationFrame{Type: "autoNavigationFailed", Reason: reason}
}

func ForceClose() SimpleFrame { return Simple("forceClose") }

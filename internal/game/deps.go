// Package game implements the real-time session and world-interaction
// engine: dispatch, sessions, broadcasting, movement, harvesting, lore
// keepers, economy, and path execution.
package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/resonara/server/internal/config"
	"github.com/resonara/server/internal/persist"
	"github.com/resonara/server/internal/scripting"
	"go.uber.org/zap"
)

// Repository interfaces. The engine consumes these; internal/persist
// implements them over PostgreSQL and tests implement them over maps.

type PlayerRepo interface {
	GetByName(ctx context.Context, name string) (*persist.Player, error)
	GetByID(ctx context.Context, id int64) (*persist.Player, error)
	List(ctx context.Context) ([]*persist.Player, error)
	UpdateRoom(ctx context.Context, playerID, roomID int64) error
	CurrentEncumbrance(ctx context.Context, playerID int64) (float64, error)
	SetWidgetConfig(ctx context.Context, playerID int64, cfg json.RawMessage) error
	GetWidgetConfig(ctx context.Context, playerID int64) (json.RawMessage, error)
	AssignStatPoint(ctx context.Context, playerID int64, attribute string) (bool, error)
	AdjustVitalis(ctx context.Context, playerID int64, delta int) error
}

type RoomRepo interface {
	GetByID(ctx context.Context, id int64) (*persist.Room, error)
	GetByCoords(ctx context.Context, mapID int64, x, y int) (*persist.Room, error)
	ByMap(ctx context.Context, mapID int64) ([]*persist.Room, error)
	MapByID(ctx context.Context, id int64) (*persist.MapRow, error)
	AllMaps(ctx context.Context) ([]*persist.MapRow, error)
	RoomTypeColors(ctx context.Context) (map[string]string, error)
	StartingRoom(ctx context.Context) (*persist.Room, error)
}

type NPCRepo interface {
	GetDefinition(ctx context.Context, id int64) (*persist.NPCDef, error)
	PlacementsInRoom(ctx context.Context, roomID int64) ([]*persist.Placement, error)
	GetPlacement(ctx context.Context, placementID int64) (*persist.Placement, error)
	ActiveHarvests(ctx context.Context) ([]*persist.Placement, error)
	UpdateState(ctx context.Context, placementID int64, state []byte) error
	LoreKeepersInRoom(ctx context.Context, roomID int64) ([]*persist.LoreKeeper, error)
	HasGreeted(ctx context.Context, playerID, npcID int64) (bool, error)
	MarkGreeted(ctx context.Context, playerID, npcID int64) error
	LastAwardTime(ctx context.Context, playerID, npcID int64, itemName string) (time.Time, error)
	RecordAward(ctx context.Context, playerID, npcID int64, itemName string) error
}

type ItemRepo interface {
	All(ctx context.Context) ([]*persist.ItemDef, error)
	GetByName(ctx context.Context, name string) (*persist.ItemDef, error)
	Encumbrance(ctx context.Context, name string) (float64, error)
	PlayerItems(ctx context.Context, playerID int64) ([]persist.ItemStack, error)
	AddPlayerItem(ctx context.Context, playerID int64, itemName string, qty int) error
	RemovePlayerItem(ctx context.Context, playerID int64, itemName string, qty int) (bool, error)
	RoomItems(ctx context.Context, roomID int64) ([]persist.ItemStack, error)
	AddRoomItem(ctx context.Context, roomID int64, itemName string, qty int) error
	RemoveRoomItem(ctx context.Context, roomID int64, itemName string, qty int) (bool, error)
	RemovePoofables(ctx context.Context, roomID int64) error
}

type CurrencyRepo interface {
	PlayerCurrency(ctx context.Context, playerID int64) ([]persist.CurrencyStack, error)
	AddPlayerCurrency(ctx context.Context, playerID int64, itemName string, qty int) error
	RemovePlayerCurrency(ctx context.Context, playerID int64, itemName string, qty int) (bool, error)
	BankBalance(ctx context.Context, playerID int64) ([]persist.CurrencyStack, error)
	Deposit(ctx context.Context, playerID int64, itemName string, qty int) error
	Withdraw(ctx context.Context, playerID int64, itemName string, qty int) (bool, error)
	CurrencyCatalogue(ctx context.Context) ([]*persist.ItemDef, error)
}

type WarehouseRepo interface {
	ByRoom(ctx context.Context, roomID int64) (*persist.WarehouseDef, error)
	Capacity(ctx context.Context, warehouseID int64) (*persist.WarehouseDef, error)
	HasDeed(ctx context.Context, playerID, warehouseID int64) (bool, error)
	Deeds(ctx context.Context, playerID int64) ([]int64, error)
	Items(ctx context.Context, warehouseID, playerID int64) ([]persist.ItemStack, error)
	AddItem(ctx context.Context, warehouseID, playerID int64, itemName string, qty int) error
	RemoveItem(ctx context.Context, warehouseID, playerID int64, itemName string, qty int) (bool, error)
	TypeCount(ctx context.Context, warehouseID, playerID int64) (int, error)
	Quantity(ctx context.Context, warehouseID, playerID int64, itemName string) (int, error)
}

type MerchantRepo interface {
	ItemsForList(ctx context.Context, roomID int64) ([]persist.MerchantItem, error)
	ItemsForRoom(ctx context.Context, roomID int64) ([]persist.MerchantItem, error)
	AdjustStock(ctx context.Context, roomID int64, itemName string, delta int) error
}

type PathRepo interface {
	Create(ctx context.Context, row *persist.PathRow, steps []persist.PathStepRow) (int64, error)
	AllByPlayer(ctx context.Context, playerID int64) ([]*persist.PathRow, error)
	GetByID(ctx context.Context, pathID int64) (*persist.PathRow, error)
	Steps(ctx context.Context, pathID int64) ([]persist.PathStepRow, error)
	StepCounts(ctx context.Context, playerID int64) (map[int64]int, error)
}

type MessageRepo interface {
	AllGameMessages(ctx context.Context) (map[string]string, error)
	TerminalHistory(ctx context.Context, playerID int64, limit int) ([]persist.TerminalLine, error)
	SaveTerminalMessage(ctx context.Context, playerID int64, msg, kind string) error
}

type WebSessionRepo interface {
	GetByToken(ctx context.Context, token string) (*persist.WebSession, error)
}

// TxRunner runs a function inside a repository transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Formulas is the scripted collaborator owning harvest math.
type Formulas interface {
	CalcHarvest(ctx scripting.HarvestContext) scripting.HarvestResult
	EffectiveWindow(baseMS int64, fortitude int, bonusEnabled bool) int64
}

// Deps holds shared dependencies injected into all handlers.
type Deps struct {
	Players    PlayerRepo
	Rooms      RoomRepo
	NPCs       NPCRepo
	Items      ItemRepo
	Currency   CurrencyRepo
	Warehouses WarehouseRepo
	Merchants  MerchantRepo
	Paths      PathRepo
	Messages   MessageRepo
	WebSess    WebSessionRepo
	Tx         TxRunner

	Registry  *Registry
	Broadcast *Broadcaster
	Templates *TemplateCache
	Formulas  Formulas
	Config    *config.Config
	Log       *zap.Logger

	// Restart is invoked by the port-gated restartServer command.
	Restart func()

	placements *placementLocks
	nowFn      func() time.Time
}

// NewDeps finishes Deps initialization (placement locks, clock).
func NewDeps(d *Deps) *Deps {
	d.placements = newPlacementLocks()
	if d.nowFn == nil {
		d.nowFn = time.Now
	}
	return d
}

func (d *Deps) now() time.Time {
	return d.nowFn()
}

func (d *Deps) nowMS() int64 {
	return d.nowFn().UnixMilli()
}

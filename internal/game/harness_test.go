package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/resonara/server/internal/config"
	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"github.com/resonara/server/internal/scripting"
	"go.uber.org/zap"
)

// fakeConn collects outbound frames for assertions.
type fakeConn struct {
	mu     sync.Mutex
	frames []any
	closed bool
}

func (c *fakeConn) Send(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.frames = append(c.frames, v)
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) CloseAfter(d time.Duration) { c.Close() }

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// frameTypes returns the type tags of everything sent so far.
func (c *fakeConn) frameTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.frames {
		data, err := json.Marshal(f)
		if err != nil {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &head) == nil {
			out = append(out, head.Type)
		}
	}
	return out
}

func (c *fakeConn) sent(tag string) bool {
	for _, t := range c.frameTypes() {
		if t == tag {
			return true
		}
	}
	return false
}

// lastText returns the last plain-message text sent.
func (c *fakeConn) lastText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		data, _ := json.Marshal(c.frames[i])
		var head struct {
			Type string `json:"type"`
			Text string `json:"message"`
		}
		if json.Unmarshal(data, &head) == nil && (head.Type == "message" || head.Type == "error") {
			return head.Text
		}
	}
	return ""
}

// memRepo is a map-backed implementation of every repository interface the
// engine consumes.
type memRepo struct {
	mu sync.Mutex

	players    map[int64]*persist.Player
	rooms      map[int64]*persist.Room
	maps       map[int64]*persist.MapRow
	placements map[int64]*persist.Placement
	keepers    map[int64][]*persist.LoreKeeper

	greeted map[[2]int64]bool
	awards  map[string]time.Time

	itemDefs    map[string]*persist.ItemDef
	playerItems map[int64]map[string]int
	roomItems   map[int64]map[string]int

	wallet map[int64]map[string]int
	bank   map[int64]map[string]int

	warehouses map[int64]*persist.WarehouseDef
	whItems    map[int64]map[int64]map[string]int
	deeds      map[int64][]int64

	merchants map[int64][]persist.MerchantItem

	paths      map[int64]*persist.PathRow
	pathSteps  map[int64][]persist.PathStepRow
	nextPathID int64

	terminal     map[int64][]persist.TerminalLine
	gameMessages map[string]string
	webSessions  map[string]*persist.WebSession
}

func newMemRepo() *memRepo {
	return &memRepo{
		players:      map[int64]*persist.Player{},
		rooms:        map[int64]*persist.Room{},
		maps:         map[int64]*persist.MapRow{},
		placements:   map[int64]*persist.Placement{},
		keepers:      map[int64][]*persist.LoreKeeper{},
		greeted:      map[[2]int64]bool{},
		awards:       map[string]time.Time{},
		itemDefs:     map[string]*persist.ItemDef{},
		playerItems:  map[int64]map[string]int{},
		roomItems:    map[int64]map[string]int{},
		wallet:       map[int64]map[string]int{},
		bank:         map[int64]map[string]int{},
		warehouses:   map[int64]*persist.WarehouseDef{},
		whItems:      map[int64]map[int64]map[string]int{},
		deeds:        map[int64][]int64{},
		merchants:    map[int64][]persist.MerchantItem{},
		paths:        map[int64]*persist.PathRow{},
		pathSteps:    map[int64][]persist.PathStepRow{},
		terminal:     map[int64][]persist.TerminalLine{},
		gameMessages: map[string]string{},
		webSessions:  map[string]*persist.WebSession{},
	}
}

// --- PlayerRepo ---

func (m *memRepo) GetByName(ctx context.Context, name string) (*persist.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (*persist.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) List(ctx context.Context) ([]*persist.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.Player
	for _, p := range m.players {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) UpdateRoom(ctx context.Context, playerID, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[playerID]; ok {
		p.RoomID = roomID
	}
	return nil
}

func (m *memRepo) CurrentEncumbrance(ctx context.Context, playerID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for name, qty := range m.playerItems[playerID] {
		if def, ok := m.itemDefs[name]; ok {
			total += def.Encumbrance * float64(qty)
		}
	}
	return total, nil
}

func (m *memRepo) SetWidgetConfig(ctx context.Context, playerID int64, cfg json.RawMessage) error {
	return nil
}

func (m *memRepo) GetWidgetConfig(ctx context.Context, playerID int64) (json.RawMessage, error) {
	return nil, nil
}

func (m *memRepo) AssignStatPoint(ctx context.Context, playerID int64, attribute string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok || p.UnspentPoints <= 0 {
		return false, nil
	}
	switch attribute {
	case "resonance":
		p.Resonance++
	case "fortitude":
		p.Fortitude++
	case "vitalis":
		p.Vitalis++
	case "clarity":
		p.Clarity++
	case "verve":
		p.Verve++
	case "grit":
		p.Grit++
	default:
		return false, errBadQuantity
	}
	p.UnspentPoints--
	return true, nil
}

func (m *memRepo) AdjustVitalis(ctx context.Context, playerID int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[playerID]; ok {
		p.Vitalis += delta
		if p.Vitalis < 0 {
			p.Vitalis = 0
		}
	}
	return nil
}

// --- RoomRepo ---

func (m *memRepo) GetByIDRoom(id int64) *persist.Room { return m.rooms[id] }

func (m *memRepo) roomByID(id int64) (*persist.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) GetByCoords(ctx context.Context, mapID int64, x, y int) (*persist.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.MapID == mapID && r.X == x && r.Y == y {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ByMap(ctx context.Context, mapID int64) ([]*persist.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.Room
	for _, r := range m.rooms {
		if r.MapID == mapID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) MapByID(ctx context.Context, id int64) (*persist.MapRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.maps[id]
	if !ok {
		return nil, nil
	}
	cp := *mp
	return &cp, nil
}

func (m *memRepo) AllMaps(ctx context.Context) ([]*persist.MapRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.MapRow
	for _, mp := range m.maps {
		cp := *mp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) RoomTypeColors(ctx context.Context) (map[string]string, error) {
	return map[string]string{"normal": "#888888"}, nil
}

func (m *memRepo) StartingRoom(ctx context.Context) (*persist.Room, error) {
	return m.roomByID(1)
}

// --- NPCRepo ---

func (m *memRepo) GetDefinition(ctx context.Context, id int64) (*persist.NPCDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.placements {
		if p.NPCID == id {
			cp := *p.Def
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) PlacementsInRoom(ctx context.Context, roomID int64) ([]*persist.Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.Placement
	for _, p := range m.placements {
		if p.RoomID == roomID {
			out = append(out, copyPlacement(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetPlacement(ctx context.Context, placementID int64) (*persist.Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.placements[placementID]
	if !ok {
		return nil, nil
	}
	return copyPlacement(p), nil
}

func (m *memRepo) ActiveHarvests(ctx context.Context) ([]*persist.Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.Placement
	for _, p := range m.placements {
		if DecodeNPCState(p.State).HarvestActive {
			out = append(out, copyPlacement(p))
		}
	}
	return out, nil
}

func (m *memRepo) UpdateState(ctx context.Context, placementID int64, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.placements[placementID]; ok {
		p.State = append([]byte(nil), state...)
	}
	return nil
}

func (m *memRepo) LoreKeepersInRoom(ctx context.Context, roomID int64) ([]*persist.LoreKeeper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*persist.LoreKeeper(nil), m.keepers[roomID]...), nil
}

func (m *memRepo) HasGreeted(ctx context.Context, playerID, npcID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.greeted[[2]int64{playerID, npcID}], nil
}

func (m *memRepo) MarkGreeted(ctx context.Context, playerID, npcID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.greeted[[2]int64{playerID, npcID}] = true
	return nil
}

func awardKey(playerID, npcID int64, itemName string) string {
	return fmt.Sprintf("%d|%d|%s", playerID, npcID, itemName)
}

func (m *memRepo) LastAwardTime(ctx context.Context, playerID, npcID int64, itemName string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.awards[awardKey(playerID, npcID, itemName)], nil
}

func (m *memRepo) RecordAward(ctx context.Context, playerID, npcID int64, itemName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awards[awardKey(playerID, npcID, itemName)] = time.Now()
	return nil
}

func copyPlacement(p *persist.Placement) *persist.Placement {
	cp := *p
	cp.State = append([]byte(nil), p.State...)
	if p.Def != nil {
		def := *p.Def
		cp.Def = &def
	}
	return &cp
}

// --- ItemRepo ---

func (m *memRepo) All(ctx context.Context) ([]*persist.ItemDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.ItemDef
	for _, d := range m.itemDefs {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) GetByNameItem(ctx context.Context, name string) (*persist.ItemDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.itemDefs[name]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (m *memRepo) Encumbrance(ctx context.Context, name string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.itemDefs[name]; ok {
		return d.Encumbrance, nil
	}
	return 0, nil
}

func stacksOf(items map[string]int) []persist.ItemStack {
	var out []persist.ItemStack
	for name, qty := range items {
		if qty > 0 {
			out = append(out, persist.ItemStack{Name: name, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memRepo) PlayerItems(ctx context.Context, playerID int64) ([]persist.ItemStack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return stacksOf(m.playerItems[playerID]), nil
}

func (m *memRepo) AddPlayerItem(ctx context.Context, playerID int64, itemName string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playerItems[playerID] == nil {
		m.playerItems[playerID] = map[string]int{}
	}
	m.playerItems[playerID][itemName] += qty
	return nil
}

func (m *memRepo) RemovePlayerItem(ctx context.Context, playerID int64, itemName string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.playerItems[playerID][itemName]
	if held < qty {
		return false, nil
	}
	m.playerItems[playerID][itemName] = held - qty
	return true, nil
}

func (m *memRepo) RoomItems(ctx context.Context, roomID int64) ([]persist.ItemStack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return stacksOf(m.roomItems[roomID]), nil
}

func (m *memRepo) AddRoomItem(ctx context.Context, roomID int64, itemName string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roomItems[roomID] == nil {
		m.roomItems[roomID] = map[string]int{}
	}
	m.roomItems[roomID][itemName] += qty
	return nil
}

func (m *memRepo) RemoveRoomItem(ctx context.Context, roomID int64, itemName string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.roomItems[roomID][itemName]
	if held < qty {
		return false, nil
	}
	m.roomItems[roomID][itemName] = held - qty
	return true, nil
}

func (m *memRepo) RemovePoofables(ctx context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.roomItems[roomID] {
		if def, ok := m.itemDefs[name]; ok && def.Poofable {
			delete(m.roomItems[roomID], name)
		}
	}
	return nil
}

// --- CurrencyRepo ---

func (m *memRepo) currencyStacks(holdings map[string]int) []persist.CurrencyStack {
	var out []persist.CurrencyStack
	for name, qty := range holdings {
		val := 0
		if def, ok := m.itemDefs[name]; ok {
			val = def.CurrencyValue
		}
		out = append(out, persist.CurrencyStack{Name: name, Quantity: qty, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

func (m *memRepo) PlayerCurrency(ctx context.Context, playerID int64) ([]persist.CurrencyStack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currencyStacks(m.wallet[playerID]), nil
}

func (m *memRepo) AddPlayerCurrency(ctx context.Context, playerID int64, itemName string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet[playerID] == nil {
		m.wallet[playerID] = map[string]int{}
	}
	m.wallet[playerID][itemName] += qty
	return nil
}

func (m *memRepo) RemovePlayerCurrency(ctx context.Context, playerID int64, itemName string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet[playerID][itemName] < qty {
		return false, nil
	}
	m.wallet[playerID][itemName] -= qty
	return true, nil
}

func (m *memRepo) BankBalance(ctx context.Context, playerID int64) ([]persist.CurrencyStack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currencyStacks(m.bank[playerID]), nil
}

func (m *memRepo) Deposit(ctx context.Context, playerID int64, itemName string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bank[playerID] == nil {
		m.bank[playerID] = map[string]int{}
	}
	m.bank[playerID][itemName] += qty
	return nil
}

func (m *memRepo) Withdraw(ctx context.Context, playerID int64, itemName string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bank[playerID][itemName] < qty {
		return false, nil
	}
	m.bank[playerID][itemName] -= qty
	return true, nil
}

func (m *memRepo) CurrencyCatalogue(ctx context.Context) ([]*persist.ItemDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.ItemDef
	for _, d := range m.itemDefs {
		if d.Kind == "currency" {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- WarehouseRepo ---

func (m *memRepo) ByRoom(ctx context.Context, roomID int64) (*persist.WarehouseDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.warehouses {
		if w.RoomID == roomID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) Capacity(ctx context.Context, warehouseID int64) (*persist.WarehouseDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.warehouses[warehouseID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *memRepo) HasDeed(ctx context.Context, playerID, warehouseID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.deeds[playerID] {
		if id == warehouseID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) Deeds(ctx context.Context, playerID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.deeds[playerID]...), nil
}

func (m *memRepo) Items(ctx context.Context, warehouseID, playerID int64) ([]persist.ItemStack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return stacksOf(m.whItems[warehouseID][playerID]), nil
}

func (m *memRepo) AddItem(ctx context.Context, warehouseID, playerID int64, itemName string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.whItems[warehouseID] == nil {
		m.whItems[warehouseID] = map[int64]map[string]int{}
	}
	if m.whItems[warehouseID][playerID] == nil {
		m.whItems[warehouseID][playerID] = map[string]int{}
	}
	m.whItems[warehouseID][playerID][itemName] += qty
	return nil
}

func (m *memRepo) RemoveItem(ctx context.Context, warehouseID, playerID int64, itemName string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.whItems[warehouseID][playerID][itemName] < qty {
		return false, nil
	}
	m.whItems[warehouseID][playerID][itemName] -= qty
	return true, nil
}

func (m *memRepo) TypeCount(ctx context.Context, warehouseID, playerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, qty := range m.whItems[warehouseID][playerID] {
		if qty > 0 {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) Quantity(ctx context.Context, warehouseID, playerID int64, itemName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.whItems[warehouseID][playerID][itemName], nil
}

// --- MerchantRepo ---

func (m *memRepo) ItemsForList(ctx context.Context, roomID int64) ([]persist.MerchantItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]persist.MerchantItem(nil), m.merchants[roomID]...), nil
}

func (m *memRepo) ItemsForRoom(ctx context.Context, roomID int64) ([]persist.MerchantItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]persist.MerchantItem(nil), m.merchants[roomID]...), nil
}

func (m *memRepo) AdjustStock(ctx context.Context, roomID int64, itemName string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stock := m.merchants[roomID]
	for i := range stock {
		if strings.EqualFold(stock[i].ItemName, itemName) {
			stock[i].Stock += delta
			if stock[i].Stock < 0 {
				stock[i].Stock = 0
			}
		}
	}
	return nil
}

// --- PathRepo ---

func (m *memRepo) Create(ctx context.Context, row *persist.PathRow, steps []persist.PathStepRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPathID++
	cp := *row
	cp.ID = m.nextPathID
	m.paths[cp.ID] = &cp
	m.pathSteps[cp.ID] = append([]persist.PathStepRow(nil), steps...)
	return cp.ID, nil
}

func (m *memRepo) AllByPlayer(ctx context.Context, playerID int64) ([]*persist.PathRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*persist.PathRow
	for _, p := range m.paths {
		if p.PlayerID == playerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetByIDPath(ctx context.Context, pathID int64) (*persist.PathRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.paths[pathID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) Steps(ctx context.Context, pathID int64) ([]persist.PathStepRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]persist.PathStepRow(nil), m.pathSteps[pathID]...), nil
}

func (m *memRepo) StepCounts(ctx context.Context, playerID int64) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]int{}
	for id, p := range m.paths {
		if p.PlayerID == playerID {
			out[id] = len(m.pathSteps[id])
		}
	}
	return out, nil
}

// --- MessageRepo ---

func (m *memRepo) AllGameMessages(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.gameMessages {
		out[k] = v
	}
	return out, nil
}

func (m *memRepo) TerminalHistory(ctx context.Context, playerID int64, limit int) ([]persist.TerminalLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.terminal[playerID]
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return append([]persist.TerminalLine(nil), lines...), nil
}

func (m *memRepo) SaveTerminalMessage(ctx context.Context, playerID int64, msg, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminal[playerID] = append(m.terminal[playerID], persist.TerminalLine{
		Message: msg, Kind: kind, SavedAt: time.Now(),
	})
	return nil
}

// --- WebSessionRepo ---

func (m *memRepo) GetByToken(ctx context.Context, token string) (*persist.WebSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.webSessions[token]
	if !ok {
		return nil, nil
	}
	cp := *ws
	return &cp, nil
}

// --- TxRunner ---

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Interface shims where the aggregate method names collide.

type memRooms struct{ *memRepo }

func (r memRooms) GetByID(ctx context.Context, id int64) (*persist.Room, error) {
	return r.roomByID(id)
}

type memItems struct{ *memRepo }

func (r memItems) GetByName(ctx context.Context, name string) (*persist.ItemDef, error) {
	return r.GetByNameItem(ctx, name)
}

type memPaths struct{ *memRepo }

func (r memPaths) GetByID(ctx context.Context, pathID int64) (*persist.PathRow, error) {
	return r.GetByIDPath(ctx, pathID)
}

// fixedFormulas is a deterministic stand-in for the Lua engine.
type fixedFormulas struct{}

func (fixedFormulas) CalcHarvest(ctx scripting.HarvestContext) scripting.HarvestResult {
	return scripting.HarvestResult{Hits: 1, VitalisDrain: ctx.HitVitalis}
}

func (fixedFormulas) EffectiveWindow(baseMS int64, fortitude int, bonusEnabled bool) int64 {
	return baseMS
}

// testWorld bundles the fakes with the wired Deps. The clock is guarded:
// timer callbacks read it while tests advance it.
type testWorld struct {
	repo  *memRepo
	deps  *Deps
	nowMu sync.Mutex
	now   time.Time
}

// newTestWorld builds a 3x3 grid on map 1: room ids are 1..9 laid out
// row-major from (0,0). Room 3 (2,0) is a factory, room 7 (0,2) a bank,
// room 9 (2,2) a merchant, room 4 (0,1) a warehouse.
func newTestWorld() *testWorld {
	repo := newMemRepo()

	repo.maps[1] = &persist.MapRow{ID: 1, Name: "Hearthvale", Width: 3, Height: 3}
	id := int64(1)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			kind := "normal"
			switch id {
			case 3:
				kind = "factory"
			case 4:
				kind = "warehouse"
			case 7:
				kind = "bank"
			case 9:
				kind = "merchant"
			}
			repo.rooms[id] = &persist.Room{
				ID: id, MapID: 1, X: x, Y: y,
				Name: "Room", Description: "A quiet tile.", Kind: kind,
			}
			id++
		}
	}

	repo.players[1] = &persist.Player{
		ID: 1, Account: "acct-alice", Name: "alice", RoomID: 1,
		Resonance: 10, Fortitude: 10, Vitalis: 50, Clarity: 10, Verve: 10, Grit: 10,
		UnspentPoints: 2, EncumbranceCap: 100,
		AutoLoopTimeMS: 10, AutoNavTimeMS: 10,
	}
	repo.players[2] = &persist.Player{
		ID: 2, Account: "acct-bo", Name: "bo", RoomID: 1,
		Resonance: 10, Fortitude: 10, Vitalis: 50,
		EncumbranceCap: 100, AutoLoopTimeMS: 10, AutoNavTimeMS: 10,
	}

	repo.webSessions["tok-alice"] = &persist.WebSession{
		TokenDigest: "tok-alice", Account: "acct-alice",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	repo.webSessions["tok-bo"] = &persist.WebSession{
		TokenDigest: "tok-bo", Account: "acct-bo",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	repo.itemDefs["stone"] = &persist.ItemDef{ID: 1, Name: "stone", Kind: "ingredient", Encumbrance: 10}
	repo.itemDefs["feather"] = &persist.ItemDef{ID: 2, Name: "feather", Kind: "ingredient", Encumbrance: 0.1}
	repo.itemDefs["ember"] = &persist.ItemDef{ID: 3, Name: "ember", Kind: "ingredient", Encumbrance: 1, Poofable: true}
	repo.itemDefs["crown"] = &persist.ItemDef{ID: 4, Name: "crown", Kind: "currency", CurrencyValue: 100}
	repo.itemDefs["shard"] = &persist.ItemDef{ID: 5, Name: "shard", Kind: "currency", CurrencyValue: 1}

	registry := NewRegistry()
	log := zap.NewNop()
	cfg := &config.Config{}
	cfg.Server.Port = 3434
	cfg.Game.AutoLoopTime = 10 * time.Millisecond
	cfg.Game.AutoNavigationTime = 10 * time.Millisecond

	w := &testWorld{repo: repo, now: time.Unix(1_700_000_000, 0)}
	w.deps = NewDeps(&Deps{
		Players:    repo,
		Rooms:      memRooms{repo},
		NPCs:       repo,
		Items:      memItems{repo},
		Currency:   repo,
		Warehouses: repo,
		Merchants:  repo,
		Paths:      memPaths{repo},
		Messages:   repo,
		WebSess:    repo,
		Tx:         repo,

		Registry:  registry,
		Broadcast: NewBroadcaster(registry, log),
		Templates: NewStaticTemplateCache(map[string]string{}),
		Formulas:  fixedFormulas{},
		Config:    cfg,
		Log:       log,
	})
	w.deps.nowFn = func() time.Time {
		w.nowMu.Lock()
		defer w.nowMu.Unlock()
		return w.now
	}
	return w
}

// connect registers a live session for the player without running the
// authenticate handshake.
func (w *testWorld) connect(playerID int64, connID string) (*SessionState, *fakeConn) {
	conn := &fakeConn{}
	p := w.repo.players[playerID]
	s := newSessionState(conn, connID)
	s.PlayerID = p.ID
	s.Name = p.Name
	s.Account = p.Account
	s.RoomID = p.RoomID
	s.MapID = 1
	w.deps.Registry.Add(s)
	return s, conn
}

func (w *testWorld) advance(d time.Duration) {
	w.nowMu.Lock()
	w.now = w.now.Add(d)
	w.nowMu.Unlock()
}

// env builds an inbound envelope from a payload map.
func env(typ string, payload map[string]any) message.Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["type"] = typ
	data, _ := json.Marshal(payload)
	e, _ := message.ParseEnvelope(data)
	return e
}

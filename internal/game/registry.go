package game

import (
	"strings"
	"sync"
	"time"

	"github.com/resonara/server/internal/persist"
)

// Conn is the transport face of a connection: sends marshal to JSON and are
// silent no-ops once the channel is closed.
type Conn interface {
	Send(v any)
	Close()
	CloseAfter(d time.Duration)
	IsClosed() bool
}

// GlowCodexState binds a session to an active glow-codex puzzle.
type GlowCodexState struct {
	NPCID    int64
	RoomID   int64
	Solution string
	Keeper   *persist.LoreKeeper
}

// NavStep is one computed auto-navigation hop.
type NavStep struct {
	Direction Direction
	RoomID    int64
}

// AutoNavState is a volatile auto-navigation record on the session.
type AutoNavState struct {
	Steps       []NavStep
	Current     int
	TargetRoom  int64
	TimerID     int64
	PendingPath *PathExecState // promoted when navigation reaches the origin
}

// PathStep is one step of a loaded path.
type PathStep struct {
	Direction Direction
	RoomID    int64
}

// PathExecState is a volatile path-execution record on the session.
type PathExecState struct {
	PathID      int64
	Steps       []PathStep
	CurrentStep int
	IsLooping   bool
	IsPaused    bool
	TimerID     int64
}

// RecordingStep is one step captured while pathing mode is active.
type RecordingStep struct {
	RoomID    int64
	Direction Direction
}

// PathRecording is the volatile pathing-mode state.
type PathRecording struct {
	MapID        int64
	OriginRoomID int64
	Steps        []RecordingStep
}

// SessionState is the volatile per-connection state (§C4). Field access is
// serialized by mu; never hold mu across repository calls or broadcasts.
type SessionState struct {
	Conn     Conn
	ID       string // synthetic connection id
	PlayerID int64
	Name     string
	Account  string
	WindowID string

	mu sync.Mutex

	RoomID       int64
	MapID        int64
	NextMoveTime time.Time

	FactorySlots [2]*persist.ItemStack // nil slot = empty

	WarehouseID       int64 // active warehouse widget (0 = none)
	WarehouseViewOnly bool

	HarvestPlacementID int64 // placement the session is harvesting (0 = none)

	Glow      *GlowCodexState
	AutoNav   *AutoNavState
	PathExec  *PathExecState
	Recording *PathRecording

	engagements map[int64]int64 // npc id → timer id
	sched       *Scheduler
}

func newSessionState(conn Conn, connID string) *SessionState {
	return &SessionState{
		Conn:        conn,
		ID:          connID,
		engagements: map[int64]int64{},
		sched:       newScheduler(),
	}
}

// Lock/Unlock expose the session mutex to handlers that mutate several
// fields together.
func (s *SessionState) Lock()   { s.mu.Lock() }
func (s *SessionState) Unlock() { s.mu.Unlock() }

// Room returns the current room id under the session lock.
func (s *SessionState) Room() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RoomID
}

// HarvestPlacement returns the active harvest placement id (0 = none).
func (s *SessionState) HarvestPlacement() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.HarvestPlacementID
}

// Schedule arms a one-shot timer owned by this session.
func (s *SessionState) Schedule(d time.Duration, fn func()) int64 {
	return s.sched.Schedule(d, fn)
}

// CancelTimer cancels a pending timer by id.
func (s *SessionState) CancelTimer(id int64) {
	s.sched.Cancel(id)
}

// CancelAllTimers releases every timer the session owns.
func (s *SessionState) CancelAllTimers() {
	s.sched.CancelAll()
}

// Registry is the connection-id → session table with a reverse room index
// so room fan-out is O(|occupants|).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
	byPlayer map[int64]*SessionState
	byRoom   map[int64]map[string]*SessionState
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[string]*SessionState{},
		byPlayer: map[int64]*SessionState{},
		byRoom:   map[int64]map[string]*SessionState{},
	}
}

// Add registers a session and indexes it by player and room.
func (r *Registry) Add(s *SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.byPlayer[s.PlayerID] = s
	room := s.Room()
	if r.byRoom[room] == nil {
		r.byRoom[room] = map[string]*SessionState{}
	}
	r.byRoom[room][s.ID] = s
}

// Remove drops a session from all indexes. Idempotent.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.sessions, connID)
	if cur, ok := r.byPlayer[s.PlayerID]; ok && cur.ID == connID {
		delete(r.byPlayer, s.PlayerID)
	}
	for roomID, set := range r.byRoom {
		if _, ok := set[connID]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.byRoom, roomID)
			}
		}
	}
}

func (r *Registry) Get(connID string) *SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[connID]
}

func (r *Registry) ByPlayer(playerID int64) *SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPlayer[playerID]
}

func (r *Registry) ByPlayerName(name string) *SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

// InRoom returns a consistent snapshot of the room's occupants.
func (r *Registry) InRoom(roomID int64) []*SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byRoom[roomID]
	out := make([]*SessionState, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// All returns a snapshot of every registered session.
func (r *Registry) All() []*SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SetRoom moves a session to a new room in both the session state and the
// reverse index.
func (r *Registry) SetRoom(s *SessionState, roomID, mapID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.mu.Lock()
	old := s.RoomID
	s.RoomID = roomID
	s.MapID = mapID
	s.mu.Unlock()

	if set, ok := r.byRoom[old]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(r.byRoom, old)
		}
	}
	if r.byRoom[roomID] == nil {
		r.byRoom[roomID] = map[string]*SessionState{}
	}
	r.byRoom[roomID][s.ID] = s
}

// OccupantCount reports how many live sessions are in the room.
func (r *Registry) OccupantCount(roomID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[roomID])
}

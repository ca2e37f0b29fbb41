package game

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/resonara/server/internal/message"
	"go.uber.org/zap"
)

// harvestGrace is the window after harvest start during which other commands
// do not interrupt the harvest. Protects against the race between the
// harvest-start frame and the next client frame.
const harvestGrace = 2 * time.Second

type handlerFunc func(ctx context.Context, s *SessionState, env message.Envelope)

type handlerEntry struct {
	fn   handlerFunc
	safe bool // safe handlers never interrupt an active harvest
}

// Dispatcher routes inbound frames to typed handlers, enforcing the
// authentication gate and the harvest-interruption rule.
type Dispatcher struct {
	d        *Deps
	handlers map[string]handlerEntry
}

func NewDispatcher(d *Deps) *Dispatcher {
	dp := &Dispatcher{d: d, handlers: map[string]handlerEntry{}}
	dp.register()
	return dp
}

func (dp *Dispatcher) handle(typ string, safe bool, fn handlerFunc) {
	dp.handlers[typ] = handlerEntry{fn: fn, safe: safe}
}

func (dp *Dispatcher) register() {
	d := dp.d

	// Reads and chat never interrupt a harvest.
	dp.handle("look", true, d.handleLook)
	dp.handle("inventory", true, d.handleInventory)
	dp.handle("who", true, d.handleWho)
	dp.handle("talk", true, d.handleTalk)
	dp.handle("ask", true, d.handleAsk)
	dp.handle("telepath", true, d.handleTelepath)
	dp.handle("resonate", true, d.handleResonate)
	dp.handle("greet", true, d.handleGreet)
	dp.handle("solve", true, d.handleSolve)
	dp.handle("clue", true, d.handleClue)
	dp.handle("list", true, d.handleMerchantList)
	dp.handle("balance", true, d.handleBalance)
	dp.handle("wealth", true, d.handleWealth)
	dp.handle("saveTerminalMessage", true, d.handleSaveTerminalMessage)
	dp.handle("getWidgetConfig", true, d.handleGetWidgetConfig)
	dp.handle("updateWidgetConfig", true, d.handleUpdateWidgetConfig)
	dp.handle("getMapData", true, d.handleGetMapData)
	dp.handle("getAutoPathMaps", true, d.handleGetAutoPathMaps)
	dp.handle("getAutoPathRooms", true, d.handleGetAutoPathRooms)
	dp.handle("calculateAutoPath", true, d.handleCalculateAutoPath)
	dp.handle("getPathingRoom", true, d.handleGetPathingRoom)
	dp.handle("getAllPlayerPaths", true, d.handleGetAllPlayerPaths)
	dp.handle("getPathDetails", true, d.handleGetPathDetails)

	// Harvest starts are exempt from the interruption rule by definition.
	dp.handle("harvest", true, d.handleHarvest)

	// World mutations interrupt an active harvest past the grace window.
	dp.handle("move", false, d.handleMove)
	dp.handle("take", false, d.handleTake)
	dp.handle("drop", false, d.handleDrop)
	dp.handle("factoryWidgetAddItem", false, d.handleFactoryWidgetAddItem)
	dp.handle("warehouse", false, d.handleWarehouseView)
	dp.handle("store", false, d.handleStore)
	dp.handle("withdraw", false, d.handleWithdraw)
	dp.handle("deposit", false, d.handleDeposit)
	dp.handle("buy", false, d.handleBuy)
	dp.handle("sell", false, d.handleSell)
	dp.handle("assignAttributePoint", false, d.handleAssignAttributePoint)
	dp.handle("startAutoNavigation", false, d.handleStartAutoNavigation)
	dp.handle("startPathingMode", false, d.handleStartPathingMode)
	dp.handle("addPathStep", false, d.handleAddPathStep)
	dp.handle("savePath", false, d.handleSavePath)
	dp.handle("cancelPathing", false, d.handleCancelPathing)
	dp.handle("startPathExecution", false, d.handleStartPathExecution)
	dp.handle("stopPathExecution", false, d.handleStopPathExecution)
	dp.handle("continuePathExecution", false, d.handleContinuePathExecution)
	dp.handle("restartServer", false, d.handleRestartServer)
}

// HandleFrame processes one inbound frame for a connection. Panics in a
// handler are logged and terminate only that frame.
func (dp *Dispatcher) HandleFrame(ctx context.Context, conn Conn, connID string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			dp.d.Log.Error("handler panic",
				zap.String("conn", connID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			conn.Send(message.Error("internal error"))
		}
	}()

	env, err := message.ParseEnvelope(data)
	if err != nil {
		conn.Send(message.Error("malformed message"))
		return
	}

	if env.Type == "authenticateSession" {
		dp.d.handleAuthenticate(ctx, conn, connID, env)
		return
	}

	s := dp.d.Registry.Get(connID)
	if s == nil {
		conn.Send(message.Error("not authenticated"))
		return
	}

	entry, ok := dp.handlers[env.Type]
	if !ok {
		s.Conn.Send(message.Error("unknown command: " + env.Type))
		return
	}

	if !entry.safe {
		dp.d.maybeInterruptHarvest(ctx, s)
	}
	entry.fn(ctx, s, env)
}

// HandleDisconnect runs the channel-close cleanup for a connection.
func (dp *Dispatcher) HandleDisconnect(ctx context.Context, connID string) {
	dp.d.cleanupSession(ctx, connID)
}

// maybeInterruptHarvest ends the caller's active harvest unless it started
// inside the grace window.
func (d *Deps) maybeInterruptHarvest(ctx context.Context, s *SessionState) {
	placementID := s.HarvestPlacement()
	if placementID == 0 {
		return
	}
	st, ok := d.readPlacementState(ctx, placementID)
	if !ok || !st.HarvestActive || st.HarvestingPlayerID != s.PlayerID {
		s.Lock()
		s.HarvestPlacementID = 0
		s.Unlock()
		return
	}
	if d.nowMS()-st.HarvestStartTime < harvestGrace.Milliseconds() {
		return
	}
	d.interruptHarvest(ctx, s, placementID, true)
}

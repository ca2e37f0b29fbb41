package game

import (
	"context"
	"sort"
	"strings"

	"github.com/resonara/server/internal/config"
	"github.com/resonara/server/internal/message"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleCaser renders stored lower-case names for display.
var titleCaser = cases.Title(language.English)

func (d *Deps) handleWho(ctx context.Context, s *SessionState, env message.Envelope) {
	var names []string
	for _, occ := range d.Registry.All() {
		names = append(names, titleCaser.String(occ.Name))
	}
	sort.Strings(names)
	s.Conn.Send(message.Text("Online: " + strings.Join(names, ", ")))
}

func (d *Deps) handleResonate(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Resonate
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		s.Conn.Send(message.Error("resonate what?"))
		return
	}
	d.Broadcast.ToAll(message.Resonated(s.Name, strings.TrimSpace(req.Message)))
}

func (d *Deps) handleTelepath(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Telepath
	if err := env.Decode(&req); err != nil || req.PlayerName == "" || strings.TrimSpace(req.Message) == "" {
		s.Conn.Send(message.Error("telepath whom?"))
		return
	}
	target := d.Registry.ByPlayerName(req.PlayerName)
	if target == nil || target.Conn.IsClosed() {
		s.Conn.Send(message.Text(d.Templates.Render("telepath_offline",
			"{player} is not in the world.", map[string]any{"player": req.PlayerName})))
		return
	}
	text := strings.TrimSpace(req.Message)
	target.Conn.Send(message.TelepathMsg(s.Name, text))
	s.Conn.Send(message.TelepathSent(target.Name, text))
}

func (d *Deps) handleSaveTerminalMessage(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.SaveTerminalMessage
	if err := env.Decode(&req); err != nil || req.Message == "" {
		return
	}
	if err := d.Messages.SaveTerminalMessage(ctx, s.PlayerID, req.Message, req.Kind); err != nil {
		d.Log.Error("save terminal message", zap.Error(err))
	}
}

func (d *Deps) handleAssignAttributePoint(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.AssignAttributePoint
	if err := env.Decode(&req); err != nil || req.Attribute == "" {
		s.Conn.Send(message.Error("assign which attribute?"))
		return
	}
	assigned, err := d.Players.AssignStatPoint(ctx, s.PlayerID, strings.ToLower(req.Attribute))
	if err != nil {
		s.Conn.Send(message.Error("unknown attribute: " + req.Attribute))
		return
	}
	if !assigned {
		s.Conn.Send(message.Error("you have no unspent points"))
		return
	}
	d.sendPlayerStats(ctx, s)
}

func (d *Deps) handleGetWidgetConfig(ctx context.Context, s *SessionState, env message.Envelope) {
	cfg, err := d.Players.GetWidgetConfig(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not load your widget config"))
		return
	}
	s.Conn.Send(message.WidgetConfig(cfg))
}

func (d *Deps) handleUpdateWidgetConfig(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.UpdateWidgetConfig
	if err := env.Decode(&req); err != nil || len(req.Config) == 0 {
		s.Conn.Send(message.Error("malformed widget config"))
		return
	}
	if err := d.Players.SetWidgetConfig(ctx, s.PlayerID, req.Config); err != nil {
		d.Log.Error("save widget config", zap.Error(err))
		s.Conn.Send(message.Error("could not save your widget config"))
		return
	}
	s.Conn.Send(message.WidgetConfigUpdated(req.Config))
}

func (d *Deps) handleGetMapData(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.GetMapData
	if err := env.Decode(&req); err != nil {
		s.Conn.Send(message.Error("malformed map request"))
		return
	}
	mapID := req.MapID
	if mapID == 0 {
		s.Lock()
		mapID = s.MapID
		s.Unlock()
	}
	frame, err := d.mapData(ctx, mapID)
	if err != nil || frame == nil {
		s.Conn.Send(message.Error("no such map"))
		return
	}
	s.Conn.Send(frame)
}

// handleRestartServer is the maintenance backdoor, accepted only on the
// dedicated restart port.
func (d *Deps) handleRestartServer(ctx context.Context, s *SessionState, env message.Envelope) {
	if d.Config.Server.Port != config.RestartPort {
		s.Conn.Send(message.Error("restart is not available on this server"))
		return
	}
	d.Log.Warn("restart requested", zap.String("player", s.Name))
	d.Broadcast.ToAll(message.System(d.Templates.Render("restart_notice",
		"The server is restarting.", nil)))
	if d.Restart != nil {
		d.Restart()
	}
}

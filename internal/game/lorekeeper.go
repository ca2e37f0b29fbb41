package game

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

// clueCycleMS rotates the served clue every 30 seconds of wall clock.
const clueCycleMS = 30_000

// glowCluePush is the interval between pushed glow-codex clues.
const glowCluePush = time.Second

// armEngagements cancels the session's pending engagement timers and arms
// new ones for every keeper in the room that has not yet greeted the player.
func (d *Deps) armEngagements(ctx context.Context, s *SessionState, roomID int64) {
	s.Lock()
	for _, timerID := range s.engagements {
		s.sched.Cancel(timerID)
	}
	s.engagements = map[int64]int64{}
	s.Unlock()

	keepers, err := d.NPCs.LoreKeepersInRoom(ctx, roomID)
	if err != nil {
		d.Log.Error("lorekeepers in room", zap.Int64("room", roomID), zap.Error(err))
		return
	}
	for _, k := range keepers {
		if !k.EngageEnabled || k.InitialMessage == "" {
			continue
		}
		greeted, err := d.NPCs.HasGreeted(ctx, s.PlayerID, k.NPCID)
		if err != nil || greeted {
			continue
		}
		keeper := k
		timerID := s.Schedule(time.Duration(k.EngageDelayMS)*time.Millisecond, func() {
			d.fireEngagement(context.Background(), s, keeper, roomID)
		})
		s.Lock()
		s.engagements[k.NPCID] = timerID
		s.Unlock()
	}
}

// fireEngagement delivers a keeper's initial message if the session is still
// present when the timer fires.
func (d *Deps) fireEngagement(ctx context.Context, s *SessionState, k *persist.LoreKeeper, roomID int64) {
	if d.Registry.Get(s.ID) == nil || s.Conn.IsClosed() || s.Room() != roomID {
		return
	}
	if err := d.NPCs.MarkGreeted(ctx, s.PlayerID, k.NPCID); err != nil {
		d.Log.Error("mark greeted", zap.Error(err))
		return
	}
	s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, k.InitialMessage, k.InitialColor, k.KeywordColor))
}

func (d *Deps) handleTalk(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Talk
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		s.Conn.Send(message.Error("say what?"))
		return
	}
	text := strings.TrimSpace(req.Message)
	roomID := s.Room()
	d.Broadcast.ToRoom(roomID, message.Talked(s.Name, text))

	s.Lock()
	glow := s.Glow
	s.Unlock()
	if glow != nil && glow.RoomID == roomID {
		d.classifyGlowAnswer(ctx, s, glow, text)
		return
	}

	keepers, err := d.NPCs.LoreKeepersInRoom(ctx, roomID)
	if err != nil {
		d.Log.Error("lorekeepers in room", zap.Int64("room", roomID), zap.Error(err))
		return
	}
	for _, k := range keepers {
		if d.talkSolvesPuzzle(ctx, s, k, text) {
			continue
		}
		if k.PuzzleMode == "glowcodex" && mentionsName(text, k.Name) {
			d.startGlowCodex(s, k, roomID)
			if isHelpRequest(text) {
				d.sendGlowHint(s, k)
			}
			continue
		}
		if reply, ok := matchKeyword(k, text); ok {
			d.Broadcast.ToRoom(roomID, message.LoreKeeper(k.Name, k.NPCColor, reply, k.InitialColor, k.KeywordColor))
			continue
		}
		if k.IncorrectResponse != "" && mentionsName(text, k.Name) {
			d.Broadcast.ToRoom(roomID, message.LoreKeeper(k.Name, k.NPCColor, k.IncorrectResponse, k.InitialColor, k.KeywordColor))
		}
	}
}

// talkSolvesPuzzle lets plain talk answer a puzzle: an exact solution, or a
// message that names the keeper and contains the solution.
func (d *Deps) talkSolvesPuzzle(ctx context.Context, s *SessionState, k *persist.LoreKeeper, text string) bool {
	if k.LoreKind != "puzzle" || k.Solution == "" {
		return false
	}
	lower := strings.ToLower(text)
	solution := strings.ToLower(k.Solution)
	if lower == solution || (mentionsName(text, k.Name) && strings.Contains(lower, solution)) {
		d.solvePuzzle(ctx, s, k)
		return true
	}
	return false
}

func (d *Deps) handleAsk(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Ask
	if err := env.Decode(&req); err != nil || req.NPCName == "" {
		s.Conn.Send(message.Error("ask whom?"))
		return
	}
	k, ok := d.matchKeeper(ctx, s, req.NPCName)
	if !ok {
		return
	}
	if k.PuzzleMode == "glowcodex" {
		d.startGlowCodex(s, k, s.Room())
		return
	}
	if reply, found := matchKeyword(k, req.Question); found {
		d.Broadcast.ToRoom(s.Room(), message.LoreKeeper(k.Name, k.NPCColor, reply, k.InitialColor, k.KeywordColor))
		return
	}
	if k.IncorrectResponse != "" {
		s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, k.IncorrectResponse, k.InitialColor, k.KeywordColor))
	}
}

func (d *Deps) handleGreet(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Greet
	if err := env.Decode(&req); err != nil || req.Target == "" {
		s.Conn.Send(message.Error("greet whom?"))
		return
	}
	k, ok := d.matchKeeper(ctx, s, req.Target)
	if !ok {
		return
	}
	if k.InitialMessage == "" {
		s.Conn.Send(message.Text(d.Templates.Render("not_implemented",
			"That is not something you can do here.", nil)))
		return
	}
	if err := d.NPCs.MarkGreeted(ctx, s.PlayerID, k.NPCID); err != nil {
		d.Log.Error("mark greeted", zap.Error(err))
	}
	s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, k.InitialMessage, k.InitialColor, k.KeywordColor))
}

func (d *Deps) handleSolve(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Solve
	if err := env.Decode(&req); err != nil || req.Target == "" {
		s.Conn.Send(message.Error("solve what?"))
		return
	}
	k, ok := d.matchKeeper(ctx, s, req.Target)
	if !ok {
		return
	}
	if k.LoreKind != "puzzle" || k.Solution == "" {
		s.Conn.Send(message.Text(d.Templates.Render("not_implemented",
			"That is not something you can do here.", nil)))
		return
	}
	if strings.EqualFold(strings.TrimSpace(req.Answer), k.Solution) {
		d.solvePuzzle(ctx, s, k)
		return
	}
	failure := k.FailureMessage
	if failure == "" {
		failure = "That is not the answer."
	}
	s.Conn.Send(message.Text(d.Templates.Render("puzzle_failed",
		"{npc} frowns: {message}", map[string]any{"npc": k.Name, "message": failure})))
}

// solvePuzzle runs the success branch: room-wide success message, reward via
// the eligibility ladder, and glow-codex state cleared.
func (d *Deps) solvePuzzle(ctx context.Context, s *SessionState, k *persist.LoreKeeper) {
	success := k.SuccessMessage
	if success == "" {
		success = "You have solved it."
	}
	d.Broadcast.ToRoom(s.Room(), message.LoreKeeper(k.Name, k.NPCColor, success, k.InitialColor, k.KeywordColor))

	s.Lock()
	if s.Glow != nil && s.Glow.NPCID == k.NPCID {
		s.Glow = nil
	}
	s.Unlock()

	if k.RewardItem != "" {
		d.awardItem(ctx, s, k)
	}
}

func (d *Deps) handleClue(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Clue
	if err := env.Decode(&req); err != nil || req.Target == "" {
		s.Conn.Send(message.Error("whose clue?"))
		return
	}
	k, ok := d.matchKeeper(ctx, s, req.Target)
	if !ok {
		return
	}
	if len(k.Clues) == 0 {
		s.Conn.Send(message.Text(d.Templates.Render("not_implemented",
			"That is not something you can do here.", nil)))
		return
	}
	idx := int((d.nowMS() / clueCycleMS) % int64(len(k.Clues)))
	s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, k.Clues[idx], k.InitialColor, k.KeywordColor))
}

// startGlowCodex pushes every clue at one-second intervals and binds the
// session to the puzzle. A session already bound to this keeper keeps its
// state rather than restarting the pushes.
func (d *Deps) startGlowCodex(s *SessionState, k *persist.LoreKeeper, roomID int64) {
	s.Lock()
	if s.Glow != nil && s.Glow.NPCID == k.NPCID {
		s.Unlock()
		return
	}
	s.Glow = &GlowCodexState{NPCID: k.NPCID, RoomID: roomID, Solution: k.Solution, Keeper: k}
	s.Unlock()

	for i, clue := range k.Clues {
		text := clue
		s.Schedule(time.Duration(i+1)*glowCluePush, func() {
			if d.Registry.Get(s.ID) == nil || s.Conn.IsClosed() || s.Room() != roomID {
				return
			}
			s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, text, k.InitialColor, k.KeywordColor))
		})
	}
}

// classifyGlowAnswer routes a talk message through the glow-codex three-way
// classifier: solution, help request, attempted answer, or chatter.
func (d *Deps) classifyGlowAnswer(ctx context.Context, s *SessionState, glow *GlowCodexState, text string) {
	k := glow.Keeper
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.EqualFold(trimmed, glow.Solution):
		d.solvePuzzle(ctx, s, k)
	case isHelpRequest(trimmed):
		d.sendGlowHint(s, k)
	case hasLetters(trimmed):
		if reply := sample(k.IncorrectAttempts); reply != "" {
			s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, reply, k.InitialColor, k.KeywordColor))
		}
	default:
		if reply := sample(k.FollowupResponses); reply != "" {
			s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, reply, k.InitialColor, k.KeywordColor))
		}
	}
}

// sendGlowHint delivers a sampled hint, falling back to a followup line and
// then a generic nudge.
func (d *Deps) sendGlowHint(s *SessionState, k *persist.LoreKeeper) {
	reply := sample(k.HintResponses)
	if reply == "" {
		reply = sample(k.FollowupResponses)
	}
	if reply == "" {
		reply = "Look to the glowing letters."
	}
	s.Conn.Send(message.LoreKeeper(k.Name, k.NPCColor, reply, k.InitialColor, k.KeywordColor))
}

// CheckExtraction verifies a glow-codex puzzle's internal consistency: the
// pattern picks one 1-based position inside each clue's <...> region, and
// the picked letters concatenated must spell the solution, lower-cased.
func CheckExtraction(clues []string, pattern []int, solution string) bool {
	if len(clues) == 0 || len(pattern) == 0 {
		return false
	}
	var b strings.Builder
	for i, clue := range clues {
		region := glowRegion(clue)
		if region == "" {
			return false
		}
		idx := pattern[i%len(pattern)]
		if idx < 1 || idx > len(region) {
			return false
		}
		b.WriteByte(region[idx-1])
	}
	return strings.EqualFold(b.String(), solution)
}

// glowRegion extracts the text between the first <...> pair.
func glowRegion(clue string) string {
	start := strings.Index(clue, "<")
	if start < 0 {
		return ""
	}
	end := strings.Index(clue[start:], ">")
	if end < 0 {
		return ""
	}
	return clue[start+1 : start+end]
}

// matchKeeper partial-matches a lorekeeper by name in the session's room.
func (d *Deps) matchKeeper(ctx context.Context, s *SessionState, target string) (*persist.LoreKeeper, bool) {
	keepers, err := d.NPCs.LoreKeepersInRoom(ctx, s.Room())
	if err != nil {
		s.Conn.Send(message.Error("could not look around"))
		return nil, false
	}
	needle := strings.ToLower(strings.TrimSpace(target))
	var matches []*persist.LoreKeeper
	for _, k := range keepers {
		if strings.Contains(strings.ToLower(k.Name), needle) {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		s.Conn.Send(message.Text(d.Templates.Render("npc_not_found",
			"There is no {target} here.", map[string]any{"target": target})))
		return nil, false
	case 1:
		return matches[0], true
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		s.Conn.Send(message.Text(d.Templates.Render("npc_ambiguous",
			"Which do you mean: [candidates]?", map[string]any{"candidates": names})))
		return nil, false
	}
}

// matchKeyword finds the first keyword of the keeper's dictionary contained
// in the message, case-insensitively. Keys are checked in sorted order so a
// message holding several keywords always yields the same reply.
func matchKeyword(k *persist.LoreKeeper, text string) (string, bool) {
	if len(k.Keywords) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(k.Keywords))
	for keyword := range k.Keywords {
		keys = append(keys, keyword)
	}
	sort.Strings(keys)
	lower := strings.ToLower(text)
	for _, keyword := range keys {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return k.Keywords[keyword], true
		}
	}
	return "", false
}

// mentionsName reports whether the text names the keeper or any word of its
// name.
func mentionsName(text, name string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(name)) {
		return true
	}
	for _, token := range strings.Fields(strings.ToLower(name)) {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func isHelpRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"help", "hint", "what", "how", "?"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func hasLetters(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func sample(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[rand.Intn(len(options))]
}

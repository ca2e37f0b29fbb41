// Package scripting hosts the tunable game formulas in Lua so designers can
// adjust harvest behavior without a server rebuild. The NPC cycle engine is
// the main consumer.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Calls are serialized; the VM is not
// safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // scripts optional; Go fallbacks apply
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

// HarvestContext is pre-packed data for one finished harvest window.
type HarvestContext struct {
	Difficulty     int
	HitRate        float64
	CycleReduction float64
	Cycles         int
	Resonance      int
	Fortitude      int
	HitVitalis     int
	MissVitalis    int
}

// HarvestResult is what the Lua formula decided.
type HarvestResult struct {
	Hits         int // output recipe multiples granted
	Misses       int
	VitalisDrain int // total drain to apply to the harvester
}

// CalcHarvest evaluates the harvest yield formula. Falls back to one hit and
// the flat hit drain when the script is absent or fails.
func (e *Engine) CalcHarvest(ctx HarvestContext) HarvestResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("calc_harvest")
	if fn.Type() != lua.LTFunction {
		return HarvestResult{Hits: 1, VitalisDrain: ctx.HitVitalis}
	}

	tbl := e.vm.NewTable()
	tbl.RawSetString("difficulty", lua.LNumber(ctx.Difficulty))
	tbl.RawSetString("hit_rate", lua.LNumber(ctx.HitRate))
	tbl.RawSetString("cycle_reduction", lua.LNumber(ctx.CycleReduction))
	tbl.RawSetString("cycles", lua.LNumber(ctx.Cycles))
	tbl.RawSetString("resonance", lua.LNumber(ctx.Resonance))
	tbl.RawSetString("fortitude", lua.LNumber(ctx.Fortitude))
	tbl.RawSetString("hit_vitalis", lua.LNumber(ctx.HitVitalis))
	tbl.RawSetString("miss_vitalis", lua.LNumber(ctx.MissVitalis))

	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, tbl); err != nil {
		e.log.Error("calc_harvest failed", zap.Error(err))
		return HarvestResult{Hits: 1, VitalisDrain: ctx.HitVitalis}
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	res := HarvestResult{Hits: 1, VitalisDrain: ctx.HitVitalis}
	if rt, ok := ret.(*lua.LTable); ok {
		if v, ok := rt.RawGetString("hits").(lua.LNumber); ok {
			res.Hits = int(v)
		}
		if v, ok := rt.RawGetString("misses").(lua.LNumber); ok {
			res.Misses = int(v)
		}
		if v, ok := rt.RawGetString("vitalis_drain").(lua.LNumber); ok {
			res.VitalisDrain = int(v)
		}
	}
	return res
}

// EffectiveWindow computes the effective harvestable window in ms, applying
// the fortitude bonus curve when the NPC enables it.
func (e *Engine) EffectiveWindow(baseMS int64, fortitude int, bonusEnabled bool) int64 {
	if !bonusEnabled {
		return baseMS
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("effective_window")
	if fn.Type() != lua.LTFunction {
		// Default curve: +1% per fortitude point over 10, capped at +50%.
		bonus := float64(fortitude-10) / 100
		if bonus < 0 {
			bonus = 0
		}
		if bonus > 0.5 {
			bonus = 0.5
		}
		return int64(float64(baseMS) * (1 + bonus))
	}

	err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
		lua.LNumber(baseMS), lua.LNumber(fortitude))
	if err != nil {
		e.log.Error("effective_window failed", zap.Error(err))
		return baseMS
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	if v, ok := ret.(lua.LNumber); ok && int64(v) >= baseMS {
		return int64(v)
	}
	return baseMS
}

package game

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/resonara/server/internal/gamedata"
	"go.uber.org/zap"
)

// TemplateCache holds parametric message templates: embedded defaults
// overridden by game_messages rows. Templates substitute {name} scalars and
// [name] arrays (joined with ", ").
type TemplateCache struct {
	mu        sync.RWMutex
	templates map[string]string
	log       *zap.Logger
}

// NewTemplateCache loads the embedded defaults and overlays DB overrides.
func NewTemplateCache(ctx context.Context, repo MessageRepo, log *zap.Logger) (*TemplateCache, error) {
	defaults, err := gamedata.DefaultTemplates()
	if err != nil {
		return nil, err
	}
	c := &TemplateCache{templates: defaults, log: log}
	if repo != nil {
		overrides, err := repo.AllGameMessages(ctx)
		if err != nil {
			// Missing table or DB hiccup: run on defaults.
			log.Warn("game message overrides unavailable", zap.Error(err))
		} else {
			c.mu.Lock()
			for k, v := range overrides {
				c.templates[k] = v
			}
			c.mu.Unlock()
		}
	}
	return c, nil
}

// NewStaticTemplateCache builds a cache from a literal map (tests).
func NewStaticTemplateCache(templates map[string]string) *TemplateCache {
	return &TemplateCache{templates: templates, log: zap.NewNop()}
}

// Reload replaces the DB overrides on top of fresh defaults.
func (c *TemplateCache) Reload(ctx context.Context, repo MessageRepo) error {
	defaults, err := gamedata.DefaultTemplates()
	if err != nil {
		return err
	}
	overrides, err := repo.AllGameMessages(ctx)
	if err != nil {
		return err
	}
	for k, v := range overrides {
		defaults[k] = v
	}
	c.mu.Lock()
	c.templates = defaults
	c.mu.Unlock()
	return nil
}

// All returns a copy of the active template set.
func (c *TemplateCache) All() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.templates))
	for k, v := range c.templates {
		out[k] = v
	}
	return out
}

// Render formats the named template. A missing template falls back to the
// literal default.
func (c *TemplateCache) Render(key, fallback string, vars map[string]any) string {
	c.mu.RLock()
	tmpl, ok := c.templates[key]
	c.mu.RUnlock()
	if !ok {
		tmpl = fallback
	}
	return substitute(tmpl, vars)
}

func substitute(tmpl string, vars map[string]any) string {
	out := tmpl
	for k, v := range vars {
		switch val := v.(type) {
		case []string:
			out = strings.ReplaceAll(out, "["+k+"]", strings.Join(val, ", "))
		case string:
			out = strings.ReplaceAll(out, "{"+k+"}", val)
		default:
			out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(val))
		}
	}
	return out
}

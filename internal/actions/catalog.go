// Package actions holds the remediation action catalog and the rollback
// eligibility policy shared by the coordinator and its read-only queries.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Wikid82/aegis/internal/models"
)

// Effector performs the real-world action and returns opaque snapshots of the
// affected state before and after it.
type Effector interface {
	Execute(ctx context.Context, data json.RawMessage) (before, after json.RawMessage, err error)
}

// Compensator reverses an effector's action from the snapshots it captured.
type Compensator interface {
	Rollback(ctx context.Context, before, after json.RawMessage) error
}

// Validator is implemented by effectors that can reject a payload at
// suggestion time, before anything is persisted.
type Validator interface {
	Validate(data json.RawMessage) error
}

// EffectorFunc adapts a function to Effector.
type EffectorFunc func(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error)

func (f EffectorFunc) Execute(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	return f(ctx, data)
}

// CompensatorFunc adapts a function to Compensator.
type CompensatorFunc func(ctx context.Context, before, after json.RawMessage) error

func (f CompensatorFunc) Rollback(ctx context.Context, before, after json.RawMessage) error {
	return f(ctx, before, after)
}

// Definition is the behavioral contract of one action type.
type Definition struct {
	Type        models.ActionType
	Description string
	UndoWindow  time.Duration
	Reversible  bool
	Effector    Effector
	Compensator Compensator
}

// Policy is the configurable part of a Definition.
type Policy struct {
	UndoWindow  time.Duration
	Reversible  bool
	Description string
}

// DefaultPolicies are the built-in undo windows. Harder-to-reverse actions get
// shorter windows.
var DefaultPolicies = map[models.ActionType]Policy{
	models.ActionBlockIP:        {UndoWindow: time.Hour, Reversible: true, Description: "Block traffic from an IP address"},
	models.ActionIsolateHost:    {UndoWindow: 4 * time.Hour, Reversible: true, Description: "Disconnect a host from its networks"},
	models.ActionQuarantineFile: {UndoWindow: 24 * time.Hour, Reversible: true, Description: "Move a file into quarantine"},
	models.ActionAddToWatchlist: {UndoWindow: 72 * time.Hour, Reversible: true, Description: "Add an indicator to the watchlist"},
	models.ActionCreateTicket:   {UndoWindow: 24 * time.Hour, Reversible: false, Description: "Open a ticket in the ticketing system"},
}

// Catalog maps action types to their definitions. It is populated at startup
// and read concurrently afterwards.
type Catalog struct {
	mu   sync.RWMutex
	defs map[models.ActionType]Definition
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[models.ActionType]Definition)}
}

// Register adds a definition. Reversible types must carry a compensator.
func (c *Catalog) Register(def Definition) error {
	if def.Type == "" {
		return fmt.Errorf("register action type: empty type")
	}
	if def.Effector == nil {
		return fmt.Errorf("register %s: effector required", def.Type)
	}
	if def.Reversible && def.Compensator == nil {
		return fmt.Errorf("register %s: reversible type requires a compensator", def.Type)
	}
	if def.UndoWindow < 0 {
		return fmt.Errorf("register %s: negative undo window", def.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateActionType, def.Type)
	}
	c.defs[def.Type] = def
	return nil
}

// Lookup returns the definition for t.
func (c *Catalog) Lookup(t models.ActionType) (Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[t]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
	return def, nil
}

// ApplyOverrides replaces undo windows and reversibility of registered types.
// Overrides for unregistered types are rejected so typos surface at startup.
func (c *Catalog) ApplyOverrides(overrides map[models.ActionType]Override) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t, o := range overrides {
		def, ok := c.defs[t]
		if !ok {
			return fmt.Errorf("override %q: %w", t, ErrUnknownActionType)
		}
		if o.UndoWindow != nil {
			if *o.UndoWindow < 0 {
				return fmt.Errorf("override %s: negative undo window", t)
			}
			def.UndoWindow = *o.UndoWindow
		}
		if o.Reversible != nil {
			if *o.Reversible && def.Compensator == nil {
				return fmt.Errorf("override %s: no compensator registered", t)
			}
			def.Reversible = *o.Reversible
		}
		c.defs[t] = def
	}
	return nil
}

// Definitions lists registered definitions ordered by type.
func (c *Catalog) Definitions() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Definition, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

package actions

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Wikid82/aegis/internal/models"
)

// Override changes the policy of a registered type. Nil fields keep the default.
type Override struct {
	UndoWindow *time.Duration
	Reversible *bool
}

type catalogFile struct {
	ActionTypes map[string]struct {
		UndoWindow string `yaml:"undo_window"`
		Reversible *bool  `yaml:"reversible"`
	} `yaml:"action_types"`
}

// LoadOverrides parses a YAML catalog file of the form
//
//	action_types:
//	  block_ip:
//	    undo_window: 30m
//	  create_ticket:
//	    reversible: true
func LoadOverrides(path string) (map[models.ActionType]Override, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	out := make(map[models.ActionType]Override, len(file.ActionTypes))
	for name, entry := range file.ActionTypes {
		var o Override
		if entry.UndoWindow != "" {
			d, err := time.ParseDuration(entry.UndoWindow)
			if err != nil {
				return nil, fmt.Errorf("catalog file: %s undo_window: %w", name, err)
			}
			o.UndoWindow = &d
		}
		o.Reversible = entry.Reversible
		out[models.ActionType(name)] = o
	}
	return out, nil
}

// MergeOverrides layers b over a, field by field.
func MergeOverrides(a, b map[models.ActionType]Override) map[models.ActionType]Override {
	out := make(map[models.ActionType]Override, len(a)+len(b))
	for t, o := range a {
		out[t] = o
	}
	for t, o := range b {
		cur := out[t]
		if o.UndoWindow != nil {
			cur.UndoWindow = o.UndoWindow
		}
		if o.Reversible != nil {
			cur.Reversible = o.Reversible
		}
		out[t] = cur
	}
	return out
}

// OverridesFromMaps builds overrides from the per-type maps loaded from the environment.
func OverridesFromMaps(windows map[string]time.Duration, reversible map[string]bool) map[models.ActionType]Override {
	out := make(map[models.ActionType]Override)
	for name, d := range windows {
		d := d
		o := out[models.ActionType(name)]
		o.UndoWindow = &d
		out[models.ActionType(name)] = o
	}
	for name, r := range reversible {
		r := r
		o := out[models.ActionType(name)]
		o.Reversible = &r
		out[models.ActionType(name)] = o
	}
	return out
}

package actions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/aegis/internal/models"
)

var noopEffector = EffectorFunc(func(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	return nil, nil, nil
})

var noopCompensator = CompensatorFunc(func(ctx context.Context, before, after json.RawMessage) error {
	return nil
})

func TestCatalog_RegisterAndLookup(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{
		Type:        models.ActionBlockIP,
		UndoWindow:  time.Hour,
		Reversible:  true,
		Effector:    noopEffector,
		Compensator: noopCompensator,
	}))

	def, err := c.Lookup(models.ActionBlockIP)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, def.UndoWindow)
	assert.True(t, def.Reversible)

	_, err = c.Lookup("launch_missiles")
	assert.True(t, errors.Is(err, ErrUnknownActionType))
}

func TestCatalog_RegisterValidation(t *testing.T) {
	c := NewCatalog()

	assert.Error(t, c.Register(Definition{Effector: noopEffector}))
	assert.Error(t, c.Register(Definition{Type: models.ActionBlockIP}))
	assert.Error(t, c.Register(Definition{Type: models.ActionBlockIP, Effector: noopEffector, Reversible: true}))
	assert.Error(t, c.Register(Definition{Type: models.ActionBlockIP, Effector: noopEffector, UndoWindow: -time.Second}))

	require.NoError(t, c.Register(Definition{Type: models.ActionCreateTicket, Effector: noopEffector}))
	err := c.Register(Definition{Type: models.ActionCreateTicket, Effector: noopEffector})
	assert.True(t, errors.Is(err, ErrDuplicateActionType))
}

func TestCatalog_ApplyOverrides(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{Type: models.ActionBlockIP, UndoWindow: time.Hour, Reversible: true, Effector: noopEffector, Compensator: noopCompensator}))
	require.NoError(t, c.Register(Definition{Type: models.ActionCreateTicket, UndoWindow: time.Hour, Effector: noopEffector}))

	window := 30 * time.Minute
	off := false
	require.NoError(t, c.ApplyOverrides(map[models.ActionType]Override{
		models.ActionBlockIP: {UndoWindow: &window, Reversible: &off},
	}))
	def, _ := c.Lookup(models.ActionBlockIP)
	assert.Equal(t, 30*time.Minute, def.UndoWindow)
	assert.False(t, def.Reversible)

	on := true
	err := c.ApplyOverrides(map[models.ActionType]Override{models.ActionCreateTicket: {Reversible: &on}})
	assert.Error(t, err, "cannot make a type reversible without a compensator")

	err = c.ApplyOverrides(map[models.ActionType]Override{"nope": {Reversible: &on}})
	assert.True(t, errors.Is(err, ErrUnknownActionType))
}

func TestCatalog_Definitions(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Definition{Type: models.ActionIsolateHost, Effector: noopEffector}))
	require.NoError(t, c.Register(Definition{Type: models.ActionBlockIP, Effector: noopEffector}))

	defs := c.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, models.ActionBlockIP, defs[0].Type)
	assert.Equal(t, models.ActionIsolateHost, defs[1].Type)
}

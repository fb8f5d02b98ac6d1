package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperator_Password(t *testing.T) {
	o := &Operator{}
	err := o.SetPassword("password123")
	assert.NoError(t, err)
	assert.NotEmpty(t, o.PasswordHash)
	assert.NotEqual(t, "password123", o.PasswordHash)

	assert.True(t, o.CheckPassword("password123"))
	assert.False(t, o.CheckPassword("wrongpassword"))
}

func TestOperator_CanActOnActions(t *testing.T) {
	assert.True(t, (&Operator{Role: "admin", Enabled: true}).CanActOnActions())
	assert.True(t, (&Operator{Role: "operator", Enabled: true}).CanActOnActions())
	assert.False(t, (&Operator{Role: "viewer", Enabled: true}).CanActOnActions())
	assert.False(t, (&Operator{Role: "operator", Enabled: false}).CanActOnActions())
}

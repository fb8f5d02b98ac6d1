package effectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// DockerAPI is the subset of the docker client used to isolate containers.
type DockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error
	NetworkConnect(ctx context.Context, networkID, containerID string, config *network.EndpointSettings) error
}

// NewDockerClient connects to host, or to the environment's docker daemon
// when host is empty.
func NewDockerClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return cli, nil
}

// IsolateHostRequest is the action data of an IsolateHost suggestion. Host
// is a container name or id.
type IsolateHostRequest struct {
	Host string `json:"host"`
}

type isolatedNetwork struct {
	Name      string   `json:"name"`
	IPAddress string   `json:"ip_address,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
}

type isolateBefore struct {
	ContainerID string            `json:"container_id"`
	Networks    []isolatedNetwork `json:"networks"`
}

type isolateAfter struct {
	ContainerID  string   `json:"container_id"`
	Disconnected []string `json:"disconnected"`
}

// IsolateHost cuts a container off every network it is attached to.
type IsolateHost struct {
	docker DockerAPI
}

func NewIsolateHost(docker DockerAPI) *IsolateHost {
	return &IsolateHost{docker: docker}
}

func parseIsolate(data json.RawMessage) (IsolateHostRequest, error) {
	var req IsolateHostRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode isolate_host data: %w", err)
	}
	req.Host = strings.TrimSpace(req.Host)
	if req.Host == "" {
		return req, errors.New("host is required")
	}
	return req, nil
}

func (i *IsolateHost) Validate(data json.RawMessage) error {
	_, err := parseIsolate(data)
	return err
}

// Execute disconnects the container from all networks. If a disconnect fails
// midway, the networks already removed are reconnected before returning.
func (i *IsolateHost) Execute(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	req, err := parseIsolate(data)
	if err != nil {
		return nil, nil, err
	}
	if i.docker == nil {
		return nil, nil, errors.New("docker is not configured")
	}

	info, err := i.docker.ContainerInspect(ctx, req.Host)
	if err != nil {
		return nil, nil, fmt.Errorf("inspect %s: %w", req.Host, err)
	}
	if info.ContainerJSONBase == nil {
		return nil, nil, fmt.Errorf("inspect %s: empty response", req.Host)
	}

	before := isolateBefore{ContainerID: info.ID}
	if info.NetworkSettings != nil {
		for name, ep := range info.NetworkSettings.Networks {
			n := isolatedNetwork{Name: name}
			if ep != nil {
				n.IPAddress = ep.IPAddress
				n.Aliases = ep.Aliases
			}
			before.Networks = append(before.Networks, n)
		}
	}
	sort.Slice(before.Networks, func(a, b int) bool { return before.Networks[a].Name < before.Networks[b].Name })

	after := isolateAfter{ContainerID: info.ID}
	for _, n := range before.Networks {
		if err := i.docker.NetworkDisconnect(ctx, n.Name, info.ID, true); err != nil {
			undoErr := i.reconnect(ctx, info.ID, before.Networks, after.Disconnected)
			return nil, nil, errors.Join(fmt.Errorf("disconnect %s from %s: %w", req.Host, n.Name, err), undoErr)
		}
		after.Disconnected = append(after.Disconnected, n.Name)
	}

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)
	return b, a, nil
}

// Rollback reconnects the container to the networks Execute removed.
func (i *IsolateHost) Rollback(ctx context.Context, before, after json.RawMessage) error {
	if i.docker == nil {
		return errors.New("docker is not configured")
	}
	var b isolateBefore
	if err := json.Unmarshal(before, &b); err != nil {
		return fmt.Errorf("decode before state: %w", err)
	}
	var a isolateAfter
	if err := json.Unmarshal(after, &a); err != nil {
		return fmt.Errorf("decode after state: %w", err)
	}
	return i.reconnect(ctx, a.ContainerID, b.Networks, a.Disconnected)
}

func (i *IsolateHost) reconnect(ctx context.Context, containerID string, networks []isolatedNetwork, names []string) error {
	byName := make(map[string]isolatedNetwork, len(networks))
	for _, n := range networks {
		byName[n.Name] = n
	}
	var errs []error
	for _, name := range names {
		settings := &network.EndpointSettings{Aliases: byName[name].Aliases}
		if err := i.docker.NetworkConnect(ctx, name, containerID, settings); err != nil {
			errs = append(errs, fmt.Errorf("reconnect %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

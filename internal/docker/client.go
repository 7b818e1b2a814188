// Package docker talks to the Docker Engine API for the database container
// that create starts through docker compose.
package docker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"go.uber.org/multierr"
)

// Labels docker compose puts on the containers it creates.
const (
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
)

// ErrNoContainer is returned when no container matches a lookup.
var ErrNoContainer = errors.New("no matching container")

// Client wraps the Engine API client.
type Client struct {
	api *client.Client
}

// ContainerInfo is the subset of container fields oenv reports.
type ContainerInfo struct {
	ID     string
	Name   string
	Image  string
	State  string // e.g. "running", "exited"
	Status string // human readable, e.g. "Up 5 minutes"
}

// NewClient builds a client from the environment (DOCKER_HOST and friends).
// It does not contact the daemon; use Ping for that.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Client{api: cli}, nil
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Ping(ctx)
	return err
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

// ComposeService returns the container of service in the given compose
// project, preferring a running one. Returns ErrNoContainer if there is none.
func (c *Client) ComposeService(ctx context.Context, project, service string) (ContainerInfo, error) {
	args := filters.NewArgs(
		filters.Arg("label", LabelComposeProject+"="+project),
		filters.Arg("label", LabelComposeService+"="+service),
	)
	list, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return ContainerInfo{}, err
	}
	if len(list) == 0 {
		return ContainerInfo{}, ErrNoContainer
	}
	return toInfo(selectContainer(list)), nil
}

// Ping connects to the daemon described by the environment, pings it and
// closes the connection.
func Ping(ctx context.Context) (retErr error) {
	cli, err := NewClient()
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, cli.Close())
	}()
	return cli.Ping(ctx)
}

// ProjectName returns the compose project name docker compose derives from
// the directory holding the compose file: lowercased, keeping only
// letters, digits, dashes and underscores, starting with a letter or digit.
func ProjectName(dir string) string {
	base := strings.ToLower(filepath.Base(filepath.Clean(dir)))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func selectContainer(list []types.Container) types.Container {
	for _, item := range list {
		if item.State == "running" {
			return item
		}
	}
	return list[0]
}

func toInfo(c types.Container) ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return ContainerInfo{
		ID:     c.ID,
		Name:   name,
		Image:  c.Image,
		State:  c.State,
		Status: c.Status,
	}
}

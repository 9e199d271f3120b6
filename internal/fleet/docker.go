package fleet

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"

	"github.com/timmy/textfleet/internal/logger"
)

const (
	labelManaged = "textfleet.managed"
	labelRole    = "textfleet.role"
)

// DockerConfig configures containers started for each role.
type DockerConfig struct {
	Image    string
	Network  string
	Env      []string
	Commands map[string][]string
}

// DockerController runs fleet members as local containers.
type DockerController struct {
	cli *client.Client
	cfg DockerConfig
}

// NewDockerController connects to the Docker daemon from the environment.
func NewDockerController(cfg DockerConfig) (*DockerController, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerController{cli: cli, cfg: cfg}, nil
}

func (d *DockerController) Active(ctx context.Context, role string) (int, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		Filters: roleFilters(role),
	})
	if err != nil {
		return 0, fmt.Errorf("list %s containers: %w", role, err)
	}
	return len(containers), nil
}

func (d *DockerController) Launch(ctx context.Context, role string, count int) ([]string, error) {
	cmd, ok := d.cfg.Commands[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	var ids []string
	for i := 0; i < count; i++ {
		id, err := d.start(ctx, role, cmd)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *DockerController) start(ctx context.Context, role string, cmd []string) (string, error) {
	cfg := &container.Config{
		Image: d.cfg.Image,
		Cmd:   cmd,
		Env:   d.cfg.Env,
		Labels: map[string]string{
			labelManaged: "true",
			labelRole:    role,
		},
	}
	hostCfg := &container.HostConfig{}
	if d.cfg.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(d.cfg.Network)
	}
	name := fmt.Sprintf("textfleet-%s-%s", role, uuid.NewString()[:8])

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		logger.CtxInfo(ctx, "Pulling image %s", d.cfg.Image)
		reader, pullErr := d.cli.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
		if pullErr != nil {
			return "", fmt.Errorf("pull image %s: %w", d.cfg.Image, pullErr)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = d.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return "", fmt.Errorf("create %s container: %w", role, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start %s container: %w", role, err)
	}
	return resp.ID, nil
}

func (d *DockerController) TerminateAll(ctx context.Context, role string) (int, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: roleFilters(role),
	})
	if err != nil {
		return 0, fmt.Errorf("list %s containers: %w", role, err)
	}

	removed := 0
	var firstErr error
	for _, c := range containers {
		if err := d.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove container %s: %w", c.ID, err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

func roleFilters(role string) filters.Args {
	args := filters.NewArgs()
	args.Add("label", labelManaged+"=true")
	args.Add("label", labelRole+"="+role)
	return args
}

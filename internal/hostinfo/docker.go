package hostinfo

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/arenadata/report-poster/internal/report"
)

const (
	DockerTimeout = 5 * time.Second
	shortIDLen    = 12
)

type containerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	Close() error
}

// Docker reports the container this process runs in. Docker sets the
// container hostname to the short container ID, which is what gets
// inspected.
type Docker struct {
	cli      containerAPI
	hostname string
	log      *slog.Logger
}

func NewDocker(logger *slog.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()
	return newDocker(cli, hostname, logger), nil
}

func newDocker(cli containerAPI, hostname string, logger *slog.Logger) *Docker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Docker{cli: cli, hostname: hostname, log: logger}
}

func (d *Docker) Close() error {
	if d != nil && d.cli != nil {
		return d.cli.Close()
	}
	return nil
}

func (d *Docker) Collect(ctx context.Context) report.Env {
	if d == nil || d.cli == nil || d.hostname == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, DockerTimeout)
	defer cancel()

	inspect, err := d.cli.ContainerInspect(ctx, d.hostname)
	if err != nil {
		if client.IsErrNotFound(err) {
			d.log.Debug("not running in a container", "hostname", d.hostname)
		} else {
			d.log.Debug("docker inspect", "err", err)
		}
		return nil
	}
	if inspect.ContainerJSONBase == nil {
		return nil
	}

	env := report.Env{
		"docker.container": strings.TrimPrefix(inspect.Name, "/"),
		"docker.id":        shortID(inspect.ID),
	}
	if inspect.Config != nil && inspect.Config.Image != "" {
		env["docker.image"] = inspect.Config.Image
	} else if inspect.Image != "" {
		env["docker.image"] = inspect.Image
	}
	return env
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

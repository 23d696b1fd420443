package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
)

const execPollInterval = 100 * time.Millisecond

// ErrNoSuchPath is returned by CopyFromByID when the source path does not
// exist inside the container.
var ErrNoSuchPath = errors.New("no such path in container")

type dockerClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, container.PathStat, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	Close() error
}

// DockerRuntime implements Runtime and Controller on top of the Docker
// Engine API.
type DockerRuntime struct {
	cli    dockerClient
	logger zerolog.Logger
}

func NewDockerRuntime(cli dockerClient, logger zerolog.Logger) *DockerRuntime {
	return &DockerRuntime{cli: cli, logger: logger}
}

func (dr *DockerRuntime) ListByLabel(ctx context.Context, label string) ([]Container, error) {
	return dr.list(ctx, filters.NewArgs(filters.Arg("label", label)))
}

func (dr *DockerRuntime) InspectByName(ctx context.Context, name, label string) ([]Container, error) {
	return dr.list(ctx, filters.NewArgs(
		filters.Arg("name", name),
		filters.Arg("label", label),
	))
}

func (dr *DockerRuntime) RemoveByID(ctx context.Context, id string, force bool) error {
	dr.logger.Debug().Str("container_id", id).Bool("force", force).Msg("Removing container")
	return dr.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
}

func (dr *DockerRuntime) StartByID(ctx context.Context, id string) error {
	return dr.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (dr *DockerRuntime) StopByID(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout / time.Second)
	return dr.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds})
}

func (dr *DockerRuntime) LogsByID(ctx context.Context, id string, opts LogOptions, stdout, stderr io.Writer) error {
	logs, err := dr.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: true,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	_, err = stdcopy.StdCopy(stdout, stderr, logs)
	return err
}

// ExecByID attaching to the exec instance also starts it. The exit code is
// read once the output stream is drained.
func (dr *DockerRuntime) ExecByID(ctx context.Context, id string, opts ExecOptions, stdout, stderr io.Writer) (int, error) {
	created, err := dr.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          opts.Cmd,
		WorkingDir:   opts.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, err
	}
	dr.logger.Debug().Str("container_id", id).Str("exec_id", created.ID).Strs("cmd", opts.Cmd).Msg("Running exec")

	attached, err := dr.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return 0, err
	}
	defer attached.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, attached.Reader); err != nil {
		return 0, err
	}

	for {
		inspect, err := dr.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return 0, err
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(execPollInterval):
		}
	}
}

func (dr *DockerRuntime) CopyFromByID(ctx context.Context, id, srcPath, destDir string) error {
	content, _, err := dr.cli.CopyFromContainer(ctx, id, srcPath)
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNoSuchPath, srcPath)
	}
	if err != nil {
		return err
	}
	defer content.Close()

	return archive.Untar(content, destDir, &archive.TarOptions{NoLchown: true})
}

func (dr *DockerRuntime) RemoveImage(ctx context.Context, ref string) error {
	_, err := dr.cli.ImageRemove(ctx, ref, image.RemoveOptions{PruneChildren: true})
	return err
}

func (dr *DockerRuntime) Close() error {
	return dr.cli.Close()
}

func (dr *DockerRuntime) list(ctx context.Context, args filters.Args) ([]Container, error) {
	summaries, err := dr.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, err
	}
	result := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, fromContainerSummary(s))
	}
	return result, nil
}

func fromContainerSummary(s container.Summary) Container {
	ports := make([]Port, 0, len(s.Ports))
	for _, p := range s.Ports {
		ports = append(ports, Port{PrivatePort: p.PrivatePort, PublicPort: p.PublicPort})
	}
	return Container{
		ID:     s.ID,
		Names:  s.Names,
		Image:  s.Image,
		Status: s.Status,
		State:  s.State,
		Ports:  ports,
		Labels: s.Labels,
	}
}

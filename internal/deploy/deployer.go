package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/util"
)

const bridgeNetwork = "bridge"

type dockerClient interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Deployer builds an image from a template and runs it as a managed
// container.
type Deployer struct {
	cli    dockerClient
	logger zerolog.Logger
}

func NewDeployer(cli dockerClient, logger zerolog.Logger) *Deployer {
	return &Deployer{cli: cli, logger: logger}
}

// Deploy builds desc's image and (re)creates its container, returning the
// container's bridge network address. labels are added to the container's
// management labels.
func (d *Deployer) Deploy(ctx context.Context, desc *domain.DeploymentDescriptor, labels map[string]string) (string, error) {
	if err := desc.Validate(); err != nil {
		return "", err
	}
	if desc.ImageName == "" {
		desc.ImageName = desc.DefaultImageName()
	}

	if err := d.buildImage(ctx, desc); err != nil {
		return "", err
	}
	ip, err := d.startContainer(ctx, desc, labels)
	if err != nil {
		return "", err
	}
	return ip, nil
}

func (d *Deployer) buildImage(ctx context.Context, desc *domain.DeploymentDescriptor) error {
	d.logger.Info().Str("image", desc.ImageName).Msg("Building image")

	buildCtx, err := buildContext(desc.Template.Dockerfile, desc.SourcePath)
	if err != nil {
		return domain.NewValidationError(fmt.Sprintf("build context for %s", desc.SourcePath), err)
	}
	defer buildCtx.Close()

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{desc.ImageName},
		Dockerfile: "Dockerfile",
		Remove:     true,
		BuildArgs:  buildArgs(desc.Template.BuildArgs),
		Labels: map[string]string{
			domain.BuiltByLabelKey: domain.ManagedLabelValue,
		},
	})
	if err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("build image %s", desc.ImageName), err)
	}
	defer resp.Body.Close()

	if err := d.drainBuildOutput(resp.Body); err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("build image %s", desc.ImageName), err)
	}

	d.logger.Info().Str("image", desc.ImageName).Msg("Image built")
	return nil
}

// drainBuildOutput consumes the build stream; the build only finishes once
// the stream has been read. An error message in the stream fails the build.
func (d *Deployer) drainBuildOutput(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read build output: %w", err)
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.ErrorMessage != "" {
			return errors.New(msg.ErrorMessage)
		}
		if msg.Stream != "" {
			d.logger.Debug().Msg(msg.Stream)
		}
	}
}

func (d *Deployer) startContainer(ctx context.Context, desc *domain.DeploymentDescriptor, extra map[string]string) (string, error) {
	if err := d.removeExisting(ctx, desc.ContainerName); err != nil {
		return "", err
	}

	tpl := desc.Template
	port := nat.Port(tpl.Port + "/tcp")

	labels := map[string]string{
		domain.ManagedLabelKey: domain.ManagedLabelValue,
		domain.ModeLabelKey:    desc.Mode(),
	}
	for k, v := range extra {
		labels[k] = v
	}

	cfg := &container.Config{
		Image:        desc.ImageName,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Env:          envVars(tpl.Environment),
		Labels:       labels,
		WorkingDir:   tpl.MountPath,
	}
	if cmd := tpl.Command(desc.DevMode); len(cmd) > 0 {
		cfg.Cmd = cmd
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: desc.HostPort}},
		},
	}
	if desc.DevMode {
		hostCfg.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: desc.SourcePath,
				Target: tpl.MountPath,
				BindOptions: &mount.BindOptions{
					Propagation: mount.PropagationRPrivate,
				},
			},
			{
				// Keeps the image's dependencies from being shadowed by the bind mount.
				Type:   mount.TypeVolume,
				Source: desc.ContainerName + "-node_modules",
				Target: path.Join(tpl.MountPath, "node_modules"),
			},
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, desc.ContainerName)
	if err != nil {
		return "", domain.NewRuntimeError(fmt.Sprintf("create container %s", desc.ContainerName), err)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", domain.NewRuntimeError(fmt.Sprintf("start container %s", desc.ContainerName), err)
	}

	inspect, err := d.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return "", domain.NewRuntimeError(fmt.Sprintf("inspect container %s", desc.ContainerName), err)
	}

	ip := containerIP(inspect)

	d.logger.Info().
		Str("container", desc.ContainerName).
		Str("mode", desc.Mode()).
		Str("ip", ip).
		Msg("Container started")
	return ip, nil
}

func (d *Deployer) removeExisting(ctx context.Context, name string) error {
	existing, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+name+"$")),
	})
	if err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("find container %s", name), err)
	}
	for _, c := range existing {
		d.logger.Info().Str("container", name).Msg("Removing existing container")
		if err := d.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return domain.NewRuntimeError(fmt.Sprintf("remove container %s", name), err)
		}
	}
	return nil
}

// containerIP prefers the default bridge network and falls back to any
// network the container joined.
func containerIP(inspect types.ContainerJSON) string {
	if inspect.NetworkSettings == nil {
		return ""
	}
	networks := inspect.NetworkSettings.Networks
	if bridge, ok := networks[bridgeNetwork]; ok && bridge != nil {
		return bridge.IPAddress
	}
	if other, ok := util.FirstValue(networks); ok && other != nil {
		return other.IPAddress
	}
	return ""
}

func buildArgs(args map[string]string) map[string]*string {
	converted := make(map[string]*string, len(args))
	for key, value := range args {
		v := value
		converted[key] = &v
	}
	return converted
}

func envVars(env map[string]string) []string {
	vars := make([]string, 0, len(env))
	for key, value := range env {
		vars = append(vars, key+"="+value)
	}
	sort.Strings(vars)
	return vars
}

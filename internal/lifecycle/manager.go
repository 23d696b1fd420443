package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/util"
)

const (
	shortIDLength      = 12
	defaultStopTimeout = 10 * time.Second
	stateRunning       = "running"
)

var errNoController = errors.New("runtime does not support container control")

// Manager answers lifecycle questions about managed containers. Every
// operation is scoped to containers carrying the management label.
type Manager struct {
	rt     Runtime
	label  string
	logger zerolog.Logger
}

func NewManager(rt Runtime, label string, logger zerolog.Logger) *Manager {
	if label == "" {
		label = domain.ManagedLabel()
	}
	return &Manager{rt: rt, label: label, logger: logger}
}

// ListManaged returns a fresh snapshot of every managed container.
func (m *Manager) ListManaged(ctx context.Context) ([]domain.ContainerInfo, error) {
	containers, err := m.rt.ListByLabel(ctx, m.label)
	if err != nil {
		return nil, domain.NewRuntimeError("list managed containers", err)
	}
	return util.Map(containers, toContainerInfo), nil
}

// RemoveByName removes the container matching name and returns a snapshot
// taken before removal, so the caller can remove its image and route too.
func (m *Manager) RemoveByName(ctx context.Context, name string, force bool) (domain.ContainerInfo, error) {
	c, err := m.resolve(ctx, name)
	if err != nil {
		return domain.ContainerInfo{}, err
	}
	if err := m.rt.RemoveByID(ctx, c.ID, force); err != nil {
		return domain.ContainerInfo{}, domain.NewRuntimeError(fmt.Sprintf("remove container %s", name), err)
	}
	m.logger.Info().Str("container", name).Str("image", c.Image).Msg("Removed container")
	return toContainerInfo(c), nil
}

// GetStatus returns the status of the container matching name, or
// domain.StatusNotFound when there is none.
func (m *Manager) GetStatus(ctx context.Context, name string) (string, error) {
	c, err := m.resolve(ctx, name)
	if domain.IsNotFound(err) {
		return domain.StatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

// Start starts a stopped managed container.
func (m *Manager) Start(ctx context.Context, name string) error {
	ctl, c, err := m.controlled(ctx, name)
	if err != nil {
		return err
	}
	if c.State == stateRunning {
		return domain.NewValidationError(fmt.Sprintf("container %q is already running", name), nil)
	}
	if err := ctl.StartByID(ctx, c.ID); err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("start container %s", name), err)
	}
	return nil
}

// Stop stops a running managed container.
func (m *Manager) Stop(ctx context.Context, name string) error {
	ctl, c, err := m.controlled(ctx, name)
	if err != nil {
		return err
	}
	if c.State != stateRunning {
		return domain.NewValidationError(fmt.Sprintf("container %q is not running", name), nil)
	}
	if err := ctl.StopByID(ctx, c.ID, defaultStopTimeout); err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("stop container %s", name), err)
	}
	return nil
}

// Logs copies the logs of a managed container to stdout and stderr.
func (m *Manager) Logs(ctx context.Context, name string, opts LogOptions, stdout, stderr io.Writer) error {
	ctl, c, err := m.controlled(ctx, name)
	if err != nil {
		return err
	}
	if err := ctl.LogsByID(ctx, c.ID, opts, stdout, stderr); err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("logs for container %s", name), err)
	}
	return nil
}

// Exec runs cmd inside a running managed container and returns its exit
// code. A non-zero exit code is not an error.
func (m *Manager) Exec(ctx context.Context, name string, opts ExecOptions, stdout, stderr io.Writer) (int, error) {
	if len(opts.Cmd) == 0 {
		return 0, domain.NewValidationError("exec requires a command", nil)
	}
	ctl, c, err := m.controlled(ctx, name)
	if err != nil {
		return 0, err
	}
	if c.State != stateRunning {
		return 0, domain.NewValidationError(fmt.Sprintf("container %q is not running", name), nil)
	}
	code, err := ctl.ExecByID(ctx, c.ID, opts, stdout, stderr)
	if err != nil {
		return 0, domain.NewRuntimeError(fmt.Sprintf("exec in container %s", name), err)
	}
	m.logger.Debug().Str("container", name).Strs("cmd", opts.Cmd).Int("exit_code", code).Msg("Exec finished")
	return code, nil
}

// CopyFrom copies srcPath out of a managed container into destDir.
func (m *Manager) CopyFrom(ctx context.Context, name, srcPath, destDir string) error {
	ctl, c, err := m.controlled(ctx, name)
	if err != nil {
		return err
	}
	err = ctl.CopyFromByID(ctx, c.ID, srcPath, destDir)
	if errors.Is(err, ErrNoSuchPath) {
		return domain.NewNotFoundError("path", srcPath)
	}
	if err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("copy %s from container %s", srcPath, name), err)
	}
	return nil
}

// RemoveImage removes an image, typically the one returned by RemoveByName.
func (m *Manager) RemoveImage(ctx context.Context, image string) error {
	ctl, ok := m.rt.(Controller)
	if !ok {
		return domain.NewRuntimeError("remove image", errNoController)
	}
	if err := ctl.RemoveImage(ctx, image); err != nil {
		return domain.NewRuntimeError(fmt.Sprintf("remove image %s", image), err)
	}
	return nil
}

// Routes returns the routes recorded in the labels of running managed
// containers.
func (m *Manager) Routes(ctx context.Context) ([]domain.RoutingEntry, error) {
	containers, err := m.rt.ListByLabel(ctx, m.label)
	if err != nil {
		return nil, domain.NewRuntimeError("list managed containers", err)
	}
	routed := util.Filter(containers, func(c Container) bool {
		return c.State == stateRunning &&
			c.Labels[domain.SubdomainLabelKey] != "" &&
			c.Labels[domain.TargetLabelKey] != ""
	})
	return util.Map(routed, func(c Container) domain.RoutingEntry {
		return domain.RoutingEntry{
			Subdomain: c.Labels[domain.SubdomainLabelKey],
			Target:    c.Labels[domain.TargetLabelKey],
			Container: containerName(c),
		}
	}), nil
}

func (m *Manager) controlled(ctx context.Context, name string) (Controller, Container, error) {
	ctl, ok := m.rt.(Controller)
	if !ok {
		return nil, Container{}, domain.NewRuntimeError("container control", errNoController)
	}
	c, err := m.resolve(ctx, name)
	if err != nil {
		return nil, Container{}, err
	}
	return ctl, c, nil
}

// resolve picks the container an operation on name applies to. An exact
// name match wins; otherwise the first match in runtime order is used.
func (m *Manager) resolve(ctx context.Context, name string) (Container, error) {
	matches, err := m.rt.InspectByName(ctx, name, m.label)
	if err != nil {
		return Container{}, domain.NewRuntimeError(fmt.Sprintf("find container %s", name), err)
	}
	if len(matches) == 0 {
		return Container{}, domain.NewNotFoundError("container", name)
	}
	if len(matches) > 1 {
		m.logger.Warn().
			Str("container", name).
			Int("matches", len(matches)).
			Msg("Container name is ambiguous")
	}
	for _, c := range matches {
		if containerName(c) == name {
			return c, nil
		}
	}
	return matches[0], nil
}

func toContainerInfo(c Container) domain.ContainerInfo {
	published := util.Filter(c.Ports, func(p Port) bool { return p.PublicPort != 0 })
	ports := util.Map(published, func(p Port) string {
		return fmt.Sprintf("%d:%d", p.PublicPort, p.PrivatePort)
	})
	return domain.ContainerInfo{
		ID:        shortID(c.ID),
		Name:      containerName(c),
		Image:     c.Image,
		Status:    c.Status,
		Ports:     strings.Join(ports, ", "),
		Subdomain: c.Labels[domain.SubdomainLabelKey],
	}
}

func containerName(c Container) string {
	if len(c.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/source"
)

// DeployRequest is a deployment as entered on the command line.
type DeployRequest struct {
	AppType       string
	ContainerName string
	Source        string
	HostPort      string
	ImageName     string
	Subdomain     string
	DevMode       bool
}

// DeployResult describes a started deployment.
type DeployResult struct {
	DeploymentID  string
	ContainerName string
	ImageName     string
	Subdomain     string
	FQDN          string
	Target        string
	ContainerIP   string
	SourcePath    string
}

// Deploy builds and starts req's container and records its route in the
// container labels so Run can restore it.
func (a *App) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	tpl, err := a.catalog.GetTemplate(req.AppType)
	if err != nil {
		return nil, fmt.Errorf("failed to load template for %s: %w", req.AppType, err)
	}

	path, cleanup, err := a.resolver.Resolve(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	if req.DevMode && source.IsRemote(req.Source) {
		// The dev container bind-mounts the clone, so it has to outlive this call.
		a.logger.Info().Str("dir", path).Msg("Keeping cloned source for live editing")
	} else {
		defer cleanup()
	}

	subdomain := req.Subdomain
	if subdomain == "" {
		subdomain = "preview-" + req.ContainerName
	}
	target := "http://localhost:" + req.HostPort

	desc := &domain.DeploymentDescriptor{
		AppType:       req.AppType,
		ContainerName: req.ContainerName,
		ImageName:     req.ImageName,
		SourcePath:    path,
		HostPort:      req.HostPort,
		Template:      tpl,
		DevMode:       req.DevMode,
	}
	id := uuid.New().String()
	ip, err := a.deployer.Deploy(ctx, desc, map[string]string{
		domain.SubdomainLabelKey:  subdomain,
		domain.TargetLabelKey:     target,
		domain.DeploymentLabelKey: id,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info().Str("deployment", id).Str("container", req.ContainerName).Msg("Deployment finished")
	return &DeployResult{
		DeploymentID:  id,
		ContainerName: req.ContainerName,
		ImageName:     desc.ImageName,
		Subdomain:     subdomain,
		FQDN:          domain.FQDN(subdomain, a.cfg.Proxy.Domain),
		Target:        target,
		ContainerIP:   ip,
		SourcePath:    path,
	}, nil
}

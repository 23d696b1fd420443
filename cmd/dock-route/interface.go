package main

import (
	"context"

	"github.com/auto-dns/dock-route/internal/app"
	"github.com/auto-dns/dock-route/internal/domain"
	"github.com/auto-dns/dock-route/internal/lifecycle"
	"github.com/auto-dns/dock-route/internal/templates"
)

type application interface {
	Run(ctx context.Context) error
	Deploy(ctx context.Context, req app.DeployRequest) (*app.DeployResult, error)
	Teardown(ctx context.Context, name string, force bool) (domain.ContainerInfo, error)
	Manager() *lifecycle.Manager
	Catalog() *templates.Catalog
	Close() error
}

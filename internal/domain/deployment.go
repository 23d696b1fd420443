package domain

import "fmt"

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// DeploymentDescriptor describes a single deployment request.
type DeploymentDescriptor struct {
	AppType       string
	ContainerName string
	ImageName     string
	SourcePath    string
	HostPort      string
	Template      *Template
	DevMode       bool
}

func (d *DeploymentDescriptor) Mode() string {
	if d.DevMode {
		return ModeDevelopment
	}
	return ModeProduction
}

// DefaultImageName is the tag used when the caller did not pick one.
func (d *DeploymentDescriptor) DefaultImageName() string {
	mode := "prod"
	if d.DevMode {
		mode = "dev"
	}
	return fmt.Sprintf("%s-%s-%s:latest", d.AppType, d.ContainerName, mode)
}

func (d *DeploymentDescriptor) Validate() error {
	switch {
	case d.Template == nil:
		return NewValidationError(fmt.Sprintf("deployment %q has no template", d.ContainerName), nil)
	case d.ContainerName == "":
		return NewValidationError("container name is required", nil)
	case d.HostPort == "":
		return NewValidationError("host port is required", nil)
	case d.Template.Port == "":
		return NewValidationError(fmt.Sprintf("template %q does not expose a port", d.AppType), nil)
	}
	return nil
}

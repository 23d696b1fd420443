package domain

import (
	"maps"
	"slices"
)

// Template is the build recipe for one application type.
type Template struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Dockerfile  string            `yaml:"dockerfile" json:"dockerfile"`
	Port        string            `yaml:"port" json:"port"`
	MountPath   string            `yaml:"mount_path" json:"mount_path"`
	Environment map[string]string `yaml:"environment" json:"environment"`
	BuildArgs   map[string]string `yaml:"build_args" json:"build_args"`
	DevCommand  []string          `yaml:"dev_command" json:"dev_command"`
	ProdCommand []string          `yaml:"prod_command" json:"prod_command"`
}

// Command returns the start command for the given mode. Dev mode falls back
// to the prod command when the template has no dev command.
func (t *Template) Command(dev bool) []string {
	if dev && len(t.DevCommand) > 0 {
		return t.DevCommand
	}
	return t.ProdCommand
}

// Clone returns a deep copy of t.
func (t *Template) Clone() *Template {
	c := *t
	c.Environment = maps.Clone(t.Environment)
	c.BuildArgs = maps.Clone(t.BuildArgs)
	c.DevCommand = slices.Clone(t.DevCommand)
	c.ProdCommand = slices.Clone(t.ProdCommand)
	return &c
}

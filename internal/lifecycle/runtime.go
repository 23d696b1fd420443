package lifecycle

import (
	"context"
	"io"
	"time"
)

// Port is a single port mapping of a container. PublicPort is zero when the
// port is not published on the host.
type Port struct {
	PrivatePort uint16
	PublicPort  uint16
}

// Container is the runtime's view of a container, independent of the
// underlying runtime SDK.
type Container struct {
	ID     string
	Names  []string
	Image  string
	Status string
	State  string
	Ports  []Port
	Labels map[string]string
}

// Runtime is the capability the lifecycle manager needs from a container
// runtime. Implementations must not retry.
type Runtime interface {
	// ListByLabel returns running and stopped containers carrying label (key=value).
	ListByLabel(ctx context.Context, label string) ([]Container, error)
	// InspectByName returns containers carrying label whose name matches
	// name exactly or as a substring, in runtime order.
	InspectByName(ctx context.Context, name, label string) ([]Container, error)
	RemoveByID(ctx context.Context, id string, force bool) error
}

// LogOptions controls log retrieval.
type LogOptions struct {
	Follow bool
	Tail   string
}

// ExecOptions describes a command run inside a container. An empty WorkDir
// uses the container's working directory.
type ExecOptions struct {
	Cmd     []string
	WorkDir string
}

// Controller is implemented by runtimes that can also start, stop, exec into
// and stream logs of containers and remove images.
type Controller interface {
	StartByID(ctx context.Context, id string) error
	StopByID(ctx context.Context, id string, timeout time.Duration) error
	LogsByID(ctx context.Context, id string, opts LogOptions, stdout, stderr io.Writer) error
	// ExecByID runs a command to completion and returns its exit code.
	ExecByID(ctx context.Context, id string, opts ExecOptions, stdout, stderr io.Writer) (int, error)
	// CopyFromByID copies srcPath out of the container into the host
	// directory destDir.
	CopyFromByID(ctx context.Context, id, srcPath, destDir string) error
	RemoveImage(ctx context.Context, image string) error
}

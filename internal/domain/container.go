package domain

// ManagedLabelKey and ManagedLabelValue mark every container created by dock-route.
const (
	ManagedLabelKey   = "managed-by"
	ManagedLabelValue = "dock-route"
	BuiltByLabelKey   = "built-by"
	ModeLabelKey      = "mode"

	// SubdomainLabelKey and TargetLabelKey let routes be restored from running containers.
	SubdomainLabelKey = "dock-route.subdomain"
	TargetLabelKey    = "dock-route.target"

	// DeploymentLabelKey carries the ID of the deploy that created a container.
	DeploymentLabelKey = "dock-route.deployment"

	// StatusNotFound is returned by status queries when no container matches.
	StatusNotFound = "not found"
)

// ManagedLabel is the filter expression selecting managed containers.
func ManagedLabel() string {
	return ManagedLabelKey + "=" + ManagedLabelValue
}

// ContainerInfo is a point-in-time view of a managed container. Subdomain is
// empty for containers deployed without a route.
type ContainerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Status    string `json:"status"`
	Ports     string `json:"ports"`
	Subdomain string `json:"subdomain,omitempty"`
}

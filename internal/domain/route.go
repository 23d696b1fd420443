package domain

// RoutingEntry maps a subdomain to the scheme+host its traffic is relayed to.
// Container names the managed container serving the route, when known.
type RoutingEntry struct {
	Subdomain string `json:"subdomain"`
	Target    string `json:"target"`
	Container string `json:"container,omitempty"`
}

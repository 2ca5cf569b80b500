// Package relay forwards an inbound trace context to peer services and
// reports every peer's outcome.
package relay

import (
	"strings"
)

// PeerService is a downstream service the relay can call.
type PeerService struct {
	Name    string `json:"name" yaml:"name"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Route is the path segment of the single-peer endpoint (/api/call-<route>).
	// Empty means the name is used.
	Route string `json:"route,omitempty" yaml:"route,omitempty"`
}

// Slug returns the route segment for the peer.
func (p PeerService) Slug() string {
	if p.Route != "" {
		return p.Route
	}
	return p.Name
}

// DataURL is the endpoint called on the peer.
func (p PeerService) DataURL() string {
	return strings.TrimRight(p.BaseURL, "/") + "/api/data"
}

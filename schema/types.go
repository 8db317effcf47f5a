package schema

import "fmt"

// PaneID identifies a pane.
type PaneID string

// TabID identifies the tab a pane belongs to.
type TabID string

// OperatorID identifies a console operator account.
type OperatorID string

// IntentSeq is a per-pane monotonic resize sequence number.
type IntentSeq uint64

// EventSeq is a global monotonic lifecycle event sequence number.
type EventSeq uint64

// WorkClass ranks intents for scheduling priority.
type WorkClass string

const (
	// WorkClassInteractive marks operator-driven resizes. Scheduled first.
	WorkClassInteractive WorkClass = "interactive"
	// WorkClassBackground marks automation-driven resizes.
	WorkClassBackground WorkClass = "background"
)

// DomainKind discriminates Domain variants.
type DomainKind string

const (
	// DomainLocal marks a pane backed by a local PTY.
	DomainLocal DomainKind = "local"
	// DomainRemote marks a pane backed by an SSH host.
	DomainRemote DomainKind = "remote"
	// DomainMultiplexed marks a pane backed by a multiplexer endpoint.
	DomainMultiplexed DomainKind = "mux"
)

// Domain groups panes for fairness and storm accounting. It carries no
// connection state.
type Domain struct {
	Kind     DomainKind `json:"kind"`
	Host     string     `json:"host,omitempty"`
	Endpoint string     `json:"endpoint,omitempty"`
}

// LocalDomain returns the local domain.
func LocalDomain() Domain {
	return Domain{Kind: DomainLocal}
}

// RemoteDomain returns the domain for an SSH host.
func RemoteDomain(host string) Domain {
	return Domain{Kind: DomainRemote, Host: host}
}

// MultiplexedDomain returns the domain for a multiplexer endpoint.
func MultiplexedDomain(endpoint string) Domain {
	return Domain{Kind: DomainMultiplexed, Endpoint: endpoint}
}

// Key returns the grouping key used for budget shares and metrics labels.
func (d Domain) Key() string {
	switch d.Kind {
	case DomainRemote:
		return fmt.Sprintf("remote:%s", d.Host)
	case DomainMultiplexed:
		return fmt.Sprintf("mux:%s", d.Endpoint)
	default:
		return "local"
	}
}

func (d Domain) String() string { return d.Key() }

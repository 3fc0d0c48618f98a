package domain

// PeerLinkState is the per-remote-participant negotiation state machine.
// Closed is terminal.
type PeerLinkState string

const (
	LinkIdle           PeerLinkState = "idle"
	LinkAwaitingRemote PeerLinkState = "awaiting_remote"
	LinkNegotiating    PeerLinkState = "negotiating"
	LinkConnected      PeerLinkState = "connected"
	LinkClosed         PeerLinkState = "closed"
)

// NegotiationRole records which side drives the offer/answer exchange.
// The side that observes the join event initiates.
type NegotiationRole string

const (
	RoleInitiator NegotiationRole = "initiator"
	RoleResponder NegotiationRole = "responder"
)

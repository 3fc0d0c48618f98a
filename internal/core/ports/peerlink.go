package ports

import (
	"meetcore/internal/core/domain"
)

// RemoteHandle is the live media handle of one connected peer, exposed to
// the rendering layer through the event sink, never through the roster.
type RemoteHandle interface {
	ConnectionID() domain.ConnectionID
	// Kinds returns the codec kinds received so far ("audio", "video").
	Kinds() []string
	// Stats reports inbound RTP packet and byte counts across all tracks.
	Stats() (packets, bytes uint64)
}

// PeerLinkCallbacks are invoked by the link implementation. They are
// re-entrant safe: the orchestrator funnels them back onto the event loop.
type PeerLinkCallbacks struct {
	OnLocalCandidate func(candidate string)
	OnRemoteMedia    func(handle RemoteHandle)
	OnFailure        func(err error)
}

// PeerLink drives one bidirectional media connection. Close is idempotent.
type PeerLink interface {
	CreateOffer() (sdp string, err error)
	HandleOffer(sdp string) (answer string, err error)
	HandleAnswer(sdp string) error
	AddCandidate(candidate string) error
	ReplaceVideoTrack(track LocalTrack) error
	Close() error
}

// PeerLinkFactory builds links bound to a remote connection id, attaching
// whatever local tracks exist at creation time.
type PeerLinkFactory interface {
	NewLink(connectionID domain.ConnectionID, role domain.NegotiationRole, media LocalMedia, cb PeerLinkCallbacks) (PeerLink, error)
}

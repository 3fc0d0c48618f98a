package ports

import (
	"context"

	"meetcore/internal/core/domain"
)

// EventHandler receives the raw payload of one named signaling event.
// Handlers registered before Connect survive every reconnect.
type EventHandler func(payload []byte)

// StateHandler observes signaling channel state transitions.
type StateHandler func(state domain.ConnectionState)

// SignalTransport is the bidirectional real-time event channel. The
// implementation owns connect/reconnect with backoff and re-registers all
// handlers before reporting Connected again.
type SignalTransport interface {
	// Connect dials the channel and returns the transport-level connection
	// id assigned to this attendance. The id changes on every reconnect.
	Connect(ctx context.Context, participantID domain.ParticipantID) (domain.ConnectionID, error)
	Disconnect() error

	// ConnectionID returns the current transport id, empty while disconnected.
	ConnectionID() domain.ConnectionID
	State() domain.ConnectionState

	On(event string, handler EventHandler)
	OnStateChange(handler StateHandler)

	// Send delivers one event to the session, or to a single connection when
	// target is non-empty. It fails fast with domain.ErrConnectionUnavailable
	// while disconnected and queues while reconnecting.
	Send(event string, target domain.ConnectionID, payload any) error
}

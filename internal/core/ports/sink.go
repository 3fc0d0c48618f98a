package ports

import "meetcore/internal/core/domain"

// EventSink is the read-only surface exposed to the UI layer. The UI never
// mutates core entities; it only issues intents through the lifecycle
// controller. Implementations must not block: callbacks run on the event
// loop.
type EventSink interface {
	OnRosterChanged(snapshot []domain.Participant)
	OnConnectionState(state domain.ConnectionState)
	OnLocalMedia(state domain.LocalMediaState)
	OnRemoteMedia(participantID domain.ParticipantID, handle RemoteHandle)
	OnChatMessage(msg domain.ChatMessage)
	OnSessionEnded(reason string)
	// OnNotice surfaces a dismissible, non-fatal condition (for example a
	// denied camera permission).
	OnNotice(notice string)
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) OnRosterChanged([]domain.Participant)                 {}
func (NopSink) OnConnectionState(domain.ConnectionState)             {}
func (NopSink) OnLocalMedia(domain.LocalMediaState)                  {}
func (NopSink) OnRemoteMedia(domain.ParticipantID, RemoteHandle)     {}
func (NopSink) OnChatMessage(domain.ChatMessage)                     {}
func (NopSink) OnSessionEnded(string)                                {}
func (NopSink) OnNotice(string)                                      {}

package ports

import (
	"meetcore/internal/core/domain"
)

// Roster is the authoritative in-memory set of remote participants. All
// mutation happens on the event loop; reads may come from any goroutine.
type Roster interface {
	SetHostID(id domain.ParticipantID)
	ApplySnapshot(infos []domain.ParticipantInfo)
	ApplyJoin(info domain.ParticipantInfo) (created bool)
	ApplyLeave(connectionID domain.ConnectionID) (removed *domain.Participant)
	ApplyToggle(field domain.ToggleField, enabled bool, participantID domain.ParticipantID, connectionID domain.ConnectionID) bool
	ByParticipantID(id domain.ParticipantID) (*domain.Participant, bool)
	ByConnectionID(id domain.ConnectionID) (*domain.Participant, bool)
	Snapshot() []domain.Participant
	Len() int
	Clear()
}

// Metrics is the monitoring surface the services report into.
type Metrics interface {
	SetRosterSize(n int)
	SetConnectionState(state domain.ConnectionState)
	SetLinkCount(state domain.PeerLinkState, n int)
	RecordEvent(event string)
	RecordReconnect()
	RecordNegotiationFailure()
	RecordReconciliation(resolved bool)
}

// NopMetrics is used where monitoring is disabled.
type NopMetrics struct{}

func (NopMetrics) SetRosterSize(int)                      {}
func (NopMetrics) SetConnectionState(domain.ConnectionState) {}
func (NopMetrics) SetLinkCount(domain.PeerLinkState, int) {}
func (NopMetrics) RecordEvent(string)                     {}
func (NopMetrics) RecordReconnect()                       {}
func (NopMetrics) RecordNegotiationFailure()              {}
func (NopMetrics) RecordReconciliation(bool)              {}

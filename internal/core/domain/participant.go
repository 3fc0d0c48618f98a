package domain

import "time"

type ParticipantID string
type ConnectionID string
type SessionID string

// Participant is one remote member of the session. The roster is keyed by
// ParticipantID; ConnectionID is the transport-level id and changes whenever
// the remote side reconnects.
type Participant struct {
	ID            ParticipantID
	ConnectionID  ConnectionID
	Name          string
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
	IsHost        bool
	IsSpeaking    bool
	JoinedAt      time.Time
	UpdatedAt     time.Time
}

// ParticipantInfo is the canonical shape every ingestion path (snapshot,
// join event, REST record) is normalized into before it touches the roster.
// AudioEnabled/VideoEnabled always mean "true is on".
type ParticipantInfo struct {
	ID            ParticipantID
	ConnectionID  ConnectionID
	Name          string
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
}

// ToggleField names a media flag addressed by a toggle event.
type ToggleField string

const (
	FieldAudioEnabled  ToggleField = "audioEnabled"
	FieldVideoEnabled  ToggleField = "videoEnabled"
	FieldScreenSharing ToggleField = "screenSharing"
)

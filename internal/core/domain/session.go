package domain

import "time"

// ConnectionState describes the signaling channel, not any peer link.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// Session holds the metadata of the single meeting this process is
// attending. Created on join, torn down on leave/end, never reused.
type Session struct {
	ID        SessionID
	Topic     string
	HostID    ParticipantID
	Settings  MeetingSettings
	StartedAt time.Time
	ExpiresAt time.Time
}

type MeetingSettings struct {
	MuteOnEntry      bool
	AllowChat        bool
	AllowScreenShare bool
	MaxParticipants  int
	WaitingRoom      bool
}

// LocalMediaState is owned exclusively by the lifecycle controller and
// mirrored outward by the media synchronizer. It never roundtrips through
// the roster.
type LocalMediaState struct {
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
}

type ChatMessage struct {
	ID       string
	SenderID ParticipantID
	Sender   string
	Body     string
	SentAt   time.Time
	IsLocal  bool
}

package ports

import (
	"context"

	"meetcore/internal/core/domain"
)

// ParticipantRecord is the REST collaborator's shape for one participant.
// Note the inverted polarity: IsMuted/IsVideoOff mean "true is off". Records
// pass through the media synchronizer before they reach the roster.
type ParticipantRecord struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	IsMuted    bool   `json:"isMuted"`
	IsVideoOff bool   `json:"isVideoOff"`
	IsHost     bool   `json:"isHost"`
}

type MeetingRecord struct {
	MeetingID        string `json:"meetingId"`
	Topic            string `json:"topic"`
	HostID           string `json:"hostId"`
	HostName         string `json:"hostName"`
	IsActive         bool   `json:"isActive"`
	ParticipantCount int    `json:"participantCount"`

	Settings struct {
		MuteOnEntry      bool `json:"muteOnEntry"`
		AllowChat        bool `json:"allowChat"`
		AllowScreenShare bool `json:"allowScreenShare"`
		MaxParticipants  int  `json:"maxParticipants"`
		WaitingRoom      bool `json:"waitingRoom"`
	} `json:"settings"`
}

// StatusUpdate mirrors a local toggle into the durable participant record.
type StatusUpdate struct {
	IsMuted    *bool `json:"isMuted,omitempty"`
	IsVideoOff *bool `json:"isVideoOff,omitempty"`
}

// MeetingAPI is the REST collaborator. Every response is advisory; the core
// reconciles it through the same normalization path as real-time events.
type MeetingAPI interface {
	Validate(ctx context.Context, meetingID domain.SessionID) error
	GetMeeting(ctx context.Context, meetingID domain.SessionID) (*MeetingRecord, error)
	Join(ctx context.Context, meetingID domain.SessionID, userID, userName string) error
	Leave(ctx context.Context, meetingID domain.SessionID, userID string) error
	End(ctx context.Context, meetingID domain.SessionID, userID string) error
	Participants(ctx context.Context, meetingID domain.SessionID) ([]ParticipantRecord, error)
	UpdateStatus(ctx context.Context, meetingID domain.SessionID, userID string, update StatusUpdate) error
}

package domain

import "encoding/json"

// Event names on the signaling channel. Inbound events are raised by the
// server, outbound invocations are sent by this client.
const (
	// inbound
	EventCurrentParticipants   = "CurrentParticipants"
	EventParticipantJoined     = "ParticipantJoined"
	EventParticipantLeft       = "ParticipantLeft"
	EventParticipantDisconnect = "ParticipantDisconnected"
	EventReceiveOffer          = "ReceiveOffer"
	EventReceiveAnswer         = "ReceiveAnswer"
	EventReceiveIceCandidate   = "ReceiveIceCandidate"
	EventAudioToggled          = "AudioToggled"
	EventVideoToggled          = "VideoToggled"
	EventScreenShareStarted    = "ScreenShareStarted"
	EventScreenShareStopped    = "ScreenShareStopped"
	EventReceiveChatMessage    = "ReceiveChatMessage"
	EventMeetingEnded          = "MeetingEnded"

	// outbound
	InvokeJoinMeeting      = "JoinMeeting"
	InvokeLeaveMeeting     = "LeaveMeeting"
	InvokeEndMeeting       = "EndMeeting"
	InvokeSendOffer        = "SendOffer"
	InvokeSendAnswer       = "SendAnswer"
	InvokeSendIceCandidate = "SendIceCandidate"
	InvokeToggleAudio      = "ToggleAudio"
	InvokeToggleVideo      = "ToggleVideo"
	InvokeStartScreenShare = "StartScreenShare"
	InvokeStopScreenShare  = "StopScreenShare"
	InvokeSendChatMessage  = "SendChatMessage"
)

// JoinPayload announces the local participant. Audio/video flags are the
// requested flags, not necessarily what the devices granted.
type JoinPayload struct {
	SessionID     SessionID     `json:"sessionId"`
	ParticipantID ParticipantID `json:"participantId"`
	ConnectionID  ConnectionID  `json:"connectionId"`
	Name          string        `json:"name"`
	AudioEnabled  bool          `json:"audioEnabled"`
	VideoEnabled  bool          `json:"videoEnabled"`
}

// ParticipantPayload carries one remote participant on the wire.
type ParticipantPayload struct {
	ParticipantID ParticipantID `json:"participantId"`
	ConnectionID  ConnectionID  `json:"connectionId"`
	Name          string        `json:"name"`
	AudioEnabled  bool          `json:"audioEnabled"`
	VideoEnabled  bool          `json:"videoEnabled"`
	ScreenSharing bool          `json:"screenSharing"`
}

type SnapshotPayload struct {
	Participants []ParticipantPayload `json:"participants"`
}

// ConnectionPayload identifies a participant only by its transport id,
// used by leave/disconnect events.
type ConnectionPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
}

// TogglePayload flips one media flag. Toggle events reference the sender
// by connection id on the wire.
type TogglePayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Enabled      bool         `json:"enabled"`
}

// SignalPayload relays one negotiation artifact to or from a specific
// connection. Kind is offer, answer or candidate.
type SignalPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
	SDP          string       `json:"sdp,omitempty"`
	Candidate    string       `json:"candidate,omitempty"`
}

type ChatPayload struct {
	MessageID     string        `json:"messageId"`
	ParticipantID ParticipantID `json:"participantId"`
	Sender        string        `json:"sender"`
	Body          string        `json:"body"`
	SentAt        int64         `json:"sentAt"`
}

type MeetingEndedPayload struct {
	SessionID SessionID `json:"sessionId"`
	Reason    string    `json:"reason,omitempty"`
}

// Envelope is the framing for every message on the signaling channel.
// Target addresses a single connection; empty means the whole session.
type Envelope struct {
	Event   string          `json:"event"`
	Target  ConnectionID    `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

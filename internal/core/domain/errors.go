package domain

import "errors"

var (
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrPeerLinkNotFound      = errors.New("peer link not found")
	ErrPeerLinkClosed        = errors.New("peer link closed")
	ErrConnectionUnavailable = errors.New("signaling connection unavailable")
	ErrSessionEnded          = errors.New("session already ended")
	ErrNotHost               = errors.New("operation requires host privileges")
	ErrInvalidSessionID      = errors.New("invalid or missing session identifier")
	ErrMediaUnavailable      = errors.New("media device unavailable")
	ErrAlreadyJoined         = errors.New("already joined a session")
)

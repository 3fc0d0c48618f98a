package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const meetingIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewConnectionID generates a fresh signaling connection identifier. Every
// transport (re)connect produces a new one.
func NewConnectionID() string {
	return uuid.NewString()
}

// NewChatMessageID generates a unique chat message ID
func NewChatMessageID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("msg_%d_%s", timestamp, hex.EncodeToString(b))
}

// GenerateMeetingID generates a shareable meeting code of the form
// MEET-XXXXXX. Ambiguous characters are excluded from the alphabet.
func GenerateMeetingID() string {
	b := make([]byte, 6)
	rand.Read(b)
	code := make([]byte, 6)
	for i, v := range b {
		code[i] = meetingIDAlphabet[int(v)%len(meetingIDAlphabet)]
	}
	return fmt.Sprintf("MEET-%s", code)
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}

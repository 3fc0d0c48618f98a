package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// MeetingIDRegex validates the shareable meeting code format
	MeetingIDRegex = regexp.MustCompile(`^MEET-[A-Z0-9]{6}$`)

	// UserIDRegex validates user ID format
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ConnectionIDRegex validates signaling connection ID format
	ConnectionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateMeetingID validates a meeting code
func ValidateMeetingID(meetingID string) error {
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return fmt.Errorf("meeting ID is required")
	}
	if !MeetingIDRegex.MatchString(meetingID) {
		return fmt.Errorf("invalid meeting ID format (expected MEET-XXXXXX)")
	}
	return nil
}

// ValidateUserID validates user ID
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(userID) > 100 {
		return fmt.Errorf("user ID is too long (max 100 characters)")
	}
	if !UserIDRegex.MatchString(userID) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidateConnectionID validates a signaling connection ID
func ValidateConnectionID(connectionID string) error {
	if connectionID == "" {
		return fmt.Errorf("connection ID is required")
	}
	if len(connectionID) > 100 {
		return fmt.Errorf("connection ID is too long (max 100 characters)")
	}
	if !ConnectionIDRegex.MatchString(connectionID) {
		return fmt.Errorf("invalid connection ID format")
	}
	return nil
}

// ValidateDisplayName validates a participant display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidateChatMessage validates a chat message body
func ValidateChatMessage(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message body is required")
	}
	if utf8.RuneCountInString(body) > 2000 {
		return fmt.Errorf("message is too long (max 2000 characters)")
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message contains invalid characters")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateMaxParticipants validates the meeting capacity setting
func ValidateMaxParticipants(max int) error {
	if max < 2 {
		return fmt.Errorf("max participants must be at least 2")
	}
	if max > 500 {
		return fmt.Errorf("max participants is too high (max 500)")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}

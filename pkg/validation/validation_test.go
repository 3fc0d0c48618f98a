package validation

import (
	"strings"
	"testing"
)

func TestValidateMeetingID(t *testing.T) {
	tests := []struct {
		name      string
		meetingID string
		wantErr   bool
	}{
		{"valid code", "MEET-ABC123", false},
		{"valid with padding", "  MEET-XY99ZZ  ", false},
		{"empty", "", true},
		{"lowercase", "meet-abc123", true},
		{"missing prefix", "ABC123", true},
		{"too short", "MEET-ABC12", true},
		{"too long", "MEET-ABC1234", true},
		{"invalid characters", "MEET-ABC!@#", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMeetingID(tt.meetingID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMeetingID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{"valid", "user123", false},
		{"valid with underscore", "user_123", false},
		{"valid with dash", "user-123", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid characters", "user 123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		wantErr     bool
	}{
		{"valid", "Alex Kim", false},
		{"valid unicode", "Алексей", false},
		{"empty", "", true},
		{"only whitespace", "   ", true},
		{"too long", strings.Repeat("a", 65), true},
		{"max length", strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.displayName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDisplayName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChatMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", "hello", false},
		{"empty", "", true},
		{"only whitespace", "  \t ", true},
		{"max length", strings.Repeat("a", 2000), false},
		{"too long", strings.Repeat("a", 2001), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatMessage(tt.body)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChatMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://localhost:5000/api", false},
		{"valid wss", "wss://hub.example.com/meetingHub", false},
		{"empty", "", true},
		{"bad scheme", "ftp://example.com", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMaxParticipants(t *testing.T) {
	if err := ValidateMaxParticipants(1); err == nil {
		t.Error("expected error for capacity below 2")
	}
	if err := ValidateMaxParticipants(501); err == nil {
		t.Error("expected error for capacity above 500")
	}
	if err := ValidateMaxParticipants(25); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

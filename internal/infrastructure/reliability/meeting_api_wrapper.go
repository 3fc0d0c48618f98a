package reliability

import (
	"context"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"
	"meetcore/pkg/retry"

	"go.uber.org/zap"
)

// MeetingAPIWrapper decorates a MeetingAPI with retry logic. Reads are
// passed straight through: the underlying client already guards them with
// a circuit breaker, and stale data is tolerable. Writes are the durable
// record of the attendance, so they get retried.
type MeetingAPIWrapper struct {
	api         ports.MeetingAPI
	retryConfig retry.Config
	logger      *zap.SugaredLogger
}

var _ ports.MeetingAPI = (*MeetingAPIWrapper)(nil)

func NewMeetingAPIWrapper(api ports.MeetingAPI, retryConfig retry.Config, logger *zap.SugaredLogger) *MeetingAPIWrapper {
	return &MeetingAPIWrapper{
		api:         api,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

func (w *MeetingAPIWrapper) Validate(ctx context.Context, meetingID domain.SessionID) error {
	return w.api.Validate(ctx, meetingID)
}

func (w *MeetingAPIWrapper) GetMeeting(ctx context.Context, meetingID domain.SessionID) (*ports.MeetingRecord, error) {
	return w.api.GetMeeting(ctx, meetingID)
}

func (w *MeetingAPIWrapper) Participants(ctx context.Context, meetingID domain.SessionID) ([]ports.ParticipantRecord, error) {
	return w.api.Participants(ctx, meetingID)
}

func (w *MeetingAPIWrapper) Join(ctx context.Context, meetingID domain.SessionID, userID, userName string) error {
	return w.withRetry(ctx, "join", func() error {
		return w.api.Join(ctx, meetingID, userID, userName)
	})
}

func (w *MeetingAPIWrapper) Leave(ctx context.Context, meetingID domain.SessionID, userID string) error {
	return w.withRetry(ctx, "leave", func() error {
		return w.api.Leave(ctx, meetingID, userID)
	})
}

func (w *MeetingAPIWrapper) End(ctx context.Context, meetingID domain.SessionID, userID string) error {
	return w.withRetry(ctx, "end", func() error {
		return w.api.End(ctx, meetingID, userID)
	})
}

func (w *MeetingAPIWrapper) UpdateStatus(ctx context.Context, meetingID domain.SessionID, userID string, update ports.StatusUpdate) error {
	return w.withRetry(ctx, "update_status", func() error {
		return w.api.UpdateStatus(ctx, meetingID, userID, update)
	})
}

func (w *MeetingAPIWrapper) withRetry(ctx context.Context, operation string, fn func() error) error {
	if !w.retryConfig.Enabled {
		return fn()
	}
	err := retry.Retry(ctx, w.retryConfig, fn)
	if err != nil {
		w.logger.Warnw("meeting api write failed after retries",
			"operation", operation, "error", err)
	}
	return err
}

package services

import (
	"context"
	"io"
	"sync"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"

	"go.uber.org/zap"
)

// NormalizeRecord converts a REST participant record into the canonical
// "enabled means on" representation. This is the single place where the
// polarity inversion between the REST source (isMuted, isVideoOff) and the
// core happens; every ingestion path funnels through here or through
// NormalizePayload.
func NormalizeRecord(rec ports.ParticipantRecord, connectionID domain.ConnectionID) domain.ParticipantInfo {
	return domain.ParticipantInfo{
		ID:           domain.ParticipantID(rec.UserID),
		ConnectionID: connectionID,
		Name:         rec.UserName,
		AudioEnabled: !rec.IsMuted,
		VideoEnabled: !rec.IsVideoOff,
	}
}

// NormalizePayload converts a real-time participant payload. The channel
// already uses the canonical polarity, so this is a straight mapping kept
// next to NormalizeRecord so the two sources cannot drift apart.
func NormalizePayload(p domain.ParticipantPayload) domain.ParticipantInfo {
	return domain.ParticipantInfo{
		ID:            p.ParticipantID,
		ConnectionID:  p.ConnectionID,
		Name:          p.Name,
		AudioEnabled:  p.AudioEnabled,
		VideoEnabled:  p.VideoEnabled,
		ScreenSharing: p.ScreenSharing,
	}
}

// videoSwapper is the slice of the orchestrator the synchronizer needs to
// swap the outgoing video track across live links.
type videoSwapper interface {
	ReplaceVideoTrack(track ports.LocalTrack) error
}

// MediaSync mirrors local toggle state outward: it flips the local track
// enabled flags, announces the change on the signaling channel and updates
// the durable participant record. It never starts or stops capture devices;
// that stays with the lifecycle controller.
type MediaSync struct {
	mu    sync.Mutex
	state domain.LocalMediaState

	sessionID domain.SessionID
	userID    domain.ParticipantID

	transport ports.SignalTransport
	api       ports.MeetingAPI
	devices   ports.MediaDevices
	links     videoSwapper

	media       ports.LocalMedia
	screenTrack ports.LocalTrack

	logger *zap.SugaredLogger
}

func NewMediaSync(
	sessionID domain.SessionID,
	userID domain.ParticipantID,
	transport ports.SignalTransport,
	api ports.MeetingAPI,
	devices ports.MediaDevices,
	links videoSwapper,
	logger *zap.SugaredLogger,
) *MediaSync {
	return &MediaSync{
		sessionID: sessionID,
		userID:    userID,
		transport: transport,
		api:       api,
		devices:   devices,
		links:     links,
		logger:    logger,
	}
}

// SetMedia binds the acquired local media and seeds the state from what the
// devices actually granted.
func (m *MediaSync) SetMedia(media ports.LocalMedia, state domain.LocalMediaState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media = media
	m.state = state
}

func (m *MediaSync) State() domain.LocalMediaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MediaSync) SetLocalAudio(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	m.state.AudioEnabled = enabled
	if m.media != nil && m.media.AudioTrack() != nil {
		m.media.AudioTrack().SetEnabled(enabled)
	}
	m.mu.Unlock()

	m.announceToggle(domain.InvokeToggleAudio, enabled)
	m.mirrorStatus(ctx, ports.StatusUpdate{IsMuted: boolPtr(!enabled)})
	return nil
}

func (m *MediaSync) SetLocalVideo(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	m.state.VideoEnabled = enabled
	if m.media != nil && m.media.VideoTrack() != nil {
		m.media.VideoTrack().SetEnabled(enabled)
	}
	m.mu.Unlock()

	m.announceToggle(domain.InvokeToggleVideo, enabled)
	m.mirrorStatus(ctx, ports.StatusUpdate{IsVideoOff: boolPtr(!enabled)})
	return nil
}

// StartScreenShare acquires the display track and swaps it into every live
// link in place of the camera track. Links survive the swap.
func (m *MediaSync) StartScreenShare(ctx context.Context) error {
	m.mu.Lock()
	if m.state.ScreenSharing {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	track, err := m.devices.AcquireScreen(ctx)
	if err != nil {
		return err
	}
	if err := m.links.ReplaceVideoTrack(track); err != nil {
		return err
	}

	m.mu.Lock()
	m.screenTrack = track
	m.state.ScreenSharing = true
	m.mu.Unlock()

	m.announceToggle(domain.InvokeStartScreenShare, true)
	return nil
}

// StopScreenShare restores the camera track. Stopping when no share is
// active is a no-op.
func (m *MediaSync) StopScreenShare(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.ScreenSharing {
		m.mu.Unlock()
		return nil
	}
	camera := ports.LocalTrack(nil)
	if m.media != nil {
		camera = m.media.VideoTrack()
	}
	screen := m.screenTrack
	m.screenTrack = nil
	m.state.ScreenSharing = false
	m.mu.Unlock()

	if closer, ok := screen.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			m.logger.Debugw("screen track close", "error", err)
		}
	}

	if camera != nil {
		if err := m.links.ReplaceVideoTrack(camera); err != nil {
			m.logger.Warnw("restoring camera track failed", "error", err)
		}
	}
	m.announceToggle(domain.InvokeStopScreenShare, false)
	return nil
}

func (m *MediaSync) announceToggle(event string, enabled bool) {
	payload := domain.TogglePayload{
		ConnectionID: m.transport.ConnectionID(),
		Enabled:      enabled,
	}
	if err := m.transport.Send(event, "", payload); err != nil {
		// A toggle lost to a dead channel is recovered by the next snapshot.
		m.logger.Warnw("toggle announcement not delivered", "event", event, "error", err)
	}
}

// mirrorStatus persists the toggle through the REST collaborator. The
// record is advisory, so failures only log.
func (m *MediaSync) mirrorStatus(ctx context.Context, update ports.StatusUpdate) {
	if m.api == nil {
		return
	}
	if err := m.api.UpdateStatus(ctx, m.sessionID, string(m.userID), update); err != nil {
		m.logger.Warnw("participant status update failed", "error", err)
	}
}

func boolPtr(b bool) *bool { return &b }

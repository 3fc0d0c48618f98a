package services

import (
	"context"
	"testing"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"
	cerr "meetcore/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type meetingFixture struct {
	meeting   *Meeting
	transport *fakeTransport
	api       *fakeAPI
	devices   *fakeDevices
	factory   *fakeFactory
	sink      *captureSink
	metrics   *recordingMetrics
	media     *fakeMedia
}

func defaultJoinParams() JoinParams {
	return JoinParams{
		SessionID:   "MEET-ABC123",
		UserID:      "local-user",
		DisplayName: "Local User",
		WantAudio:   true,
		WantVideo:   true,
	}
}

func newMeetingFixture(t *testing.T, params JoinParams, configure func(*meetingFixture)) *meetingFixture {
	t.Helper()
	f := &meetingFixture{
		transport: newFakeTransport(),
		api:       &fakeAPI{},
		factory:   newFakeFactory(),
		sink:      &captureSink{},
		metrics:   newRecordingMetrics(),
		media:     testMedia(),
	}
	f.devices = &fakeDevices{media: f.media}
	if configure != nil {
		configure(f)
	}
	f.meeting = NewMeeting(params, Deps{
		Transport: f.transport,
		API:       f.api,
		Devices:   f.devices,
		Factory:   f.factory,
		Sink:      f.sink,
		Metrics:   f.metrics,
		Reconcile: ReconcileConfig{PollInterval: 10 * time.Millisecond, MaxAttempts: 5},
		Logger:    zaptest.NewLogger(t).Sugar(),
	})
	return f
}

func (f *meetingFixture) join(t *testing.T) {
	t.Helper()
	require.NoError(t, f.meeting.Join(context.Background()))
	t.Cleanup(func() { _ = f.meeting.Leave(context.Background()) })
}

func TestMeetingJoinRejectsInvalidID(t *testing.T) {
	params := defaultJoinParams()
	params.SessionID = "not-a-meeting-code"
	f := newMeetingFixture(t, params, nil)

	err := f.meeting.Join(context.Background())
	require.Error(t, err)
	appErr := cerr.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, cerr.CodeInvalidSession, appErr.Code)
	assert.Equal(t, 0, f.transport.countSent(domain.InvokeJoinMeeting))
}

func TestMeetingJoinRejectsUnknownMeeting(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		f.api.validateErr = cerr.NewNotFound("meeting")
	})

	err := f.meeting.Join(context.Background())
	require.Error(t, err)
	appErr := cerr.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, cerr.CodeInvalidSession, appErr.Code)
}

func TestMeetingJoinAnnouncesRequestedFlags(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		rec := &ports.MeetingRecord{MeetingID: "MEET-ABC123", Topic: "Standup", HostID: "someone-else", IsActive: true}
		rec.Settings.AllowChat = true
		rec.Settings.AllowScreenShare = true
		f.api.record = rec
	})
	f.join(t)

	msg, ok := f.transport.lastSent(domain.InvokeJoinMeeting)
	require.True(t, ok)
	join := msg.Payload.(domain.JoinPayload)
	assert.Equal(t, domain.SessionID("MEET-ABC123"), join.SessionID)
	assert.Equal(t, domain.ParticipantID("local-user"), join.ParticipantID)
	assert.Equal(t, domain.ConnectionID("local-conn"), join.ConnectionID)
	assert.True(t, join.AudioEnabled)
	assert.True(t, join.VideoEnabled)

	assert.Equal(t, 1, f.api.joins)
	assert.Equal(t, "Standup", f.meeting.Session().Topic)
	assert.False(t, f.meeting.IsHost())

	granted := f.meeting.LocalMedia()
	assert.True(t, granted.AudioEnabled)
	assert.True(t, granted.VideoEnabled)
}

func TestMeetingJoinTwice(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	f.join(t)

	err := f.meeting.Join(context.Background())
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
}

func TestMeetingMuteOnEntry(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		rec := &ports.MeetingRecord{MeetingID: "MEET-ABC123", HostID: "someone-else", IsActive: true}
		rec.Settings.MuteOnEntry = true
		rec.Settings.AllowChat = true
		f.api.record = rec
	})
	f.join(t)

	msg, ok := f.transport.lastSent(domain.InvokeJoinMeeting)
	require.True(t, ok)
	join := msg.Payload.(domain.JoinPayload)
	assert.False(t, join.AudioEnabled, "mute on entry overrides the requested audio flag")
	assert.True(t, join.VideoEnabled)
	assert.False(t, f.meeting.LocalMedia().AudioEnabled)

	// The microphone is held but gated, not dropped.
	audio := f.media.audio.(*fakeTrack)
	assert.False(t, audio.Enabled())

	require.NoError(t, f.meeting.ToggleAudio(context.Background(), true))
	assert.True(t, audio.Enabled(), "unmute re-enables the held track")
	assert.True(t, f.meeting.LocalMedia().AudioEnabled)
	toggle, ok := f.transport.lastSent(domain.InvokeToggleAudio)
	require.True(t, ok)
	assert.True(t, toggle.Payload.(domain.TogglePayload).Enabled)
}

func TestMeetingJoinDegradesWithoutDevices(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		f.devices.mediaErr = domain.ErrMediaUnavailable
	})
	f.join(t)

	granted := f.meeting.LocalMedia()
	assert.False(t, granted.AudioEnabled)
	assert.False(t, granted.VideoEnabled)
	assert.GreaterOrEqual(t, f.sink.noticeCount(), 1, "a denied device surfaces as a notice")

	// The attendance itself succeeded.
	assert.Equal(t, 1, f.transport.countSent(domain.InvokeJoinMeeting))
}

func TestMeetingRosterFromSnapshotEvent(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	f.join(t)

	f.transport.emit(domain.EventCurrentParticipants, domain.SnapshotPayload{
		Participants: []domain.ParticipantPayload{
			{ParticipantID: "remote-1", ConnectionID: "conn-1", Name: "Remote One", AudioEnabled: true},
			{ParticipantID: "remote-2", ConnectionID: "conn-2", Name: "Remote Two"},
		},
	})

	require.Eventually(t, func() bool {
		return len(f.meeting.Roster()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Snapshots never create initiator links; only join events do.
	_, ok := f.factory.link("conn-1")
	assert.False(t, ok)
}

func TestMeetingJoinEventCreatesInitiatorLink(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	f.join(t)

	f.transport.emit(domain.EventParticipantJoined, domain.ParticipantPayload{
		ParticipantID: "remote-1", ConnectionID: "conn-1", Name: "Remote",
	})

	require.Eventually(t, func() bool {
		_, ok := f.factory.link("conn-1")
		return ok && f.transport.countSent(domain.InvokeSendOffer) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMeetingToggleEventUpdatesRoster(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	f.join(t)

	f.transport.emit(domain.EventParticipantJoined, domain.ParticipantPayload{
		ParticipantID: "remote-1", ConnectionID: "conn-1", AudioEnabled: true,
	})
	f.transport.emit(domain.EventAudioToggled, domain.TogglePayload{ConnectionID: "conn-1", Enabled: false})

	require.Eventually(t, func() bool {
		roster := f.meeting.Roster()
		return len(roster) == 1 && !roster[0].AudioEnabled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMeetingLeaveIsIdempotent(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	require.NoError(t, f.meeting.Join(context.Background()))

	require.NoError(t, f.meeting.Leave(context.Background()))
	require.NoError(t, f.meeting.Leave(context.Background()))

	assert.Equal(t, 1, f.transport.countSent(domain.InvokeLeaveMeeting))
	assert.Equal(t, 1, f.api.leaves)
	assert.Equal(t, 1, f.transport.disconnects)
	assert.Equal(t, 1, f.media.closeCount())
}

func TestMeetingEndRequiresHost(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	f.join(t)

	err := f.meeting.End(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotHost)
	assert.Equal(t, 0, f.transport.countSent(domain.InvokeEndMeeting))
	assert.Equal(t, 0, f.api.ends)
}

func TestMeetingEndAsHost(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		rec := &ports.MeetingRecord{MeetingID: "MEET-ABC123", HostID: "local-user", IsActive: true}
		rec.Settings.AllowChat = true
		f.api.record = rec
	})
	require.NoError(t, f.meeting.Join(context.Background()))
	require.True(t, f.meeting.IsHost())

	require.NoError(t, f.meeting.End(context.Background()))

	assert.Equal(t, 1, f.transport.countSent(domain.InvokeEndMeeting))
	assert.Equal(t, 1, f.api.ends)
	assert.Equal(t, 1, f.transport.disconnects)

	// A later Leave finds nothing left to release.
	require.NoError(t, f.meeting.Leave(context.Background()))
	assert.Equal(t, 0, f.transport.countSent(domain.InvokeLeaveMeeting))
	assert.Equal(t, 1, f.transport.disconnects)
}

func TestMeetingEndedByServer(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	f.join(t)

	f.transport.emit(domain.EventMeetingEnded, domain.MeetingEndedPayload{SessionID: "MEET-ABC123"})

	require.Eventually(t, func() bool {
		return len(f.sink.endedReasons()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ended by host", f.sink.endedReasons()[0])
	assert.Empty(t, f.meeting.Roster())
	assert.Equal(t, 1, f.media.closeCount())
}

func TestMeetingRejoinAfterReconnect(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), nil)
	f.join(t)
	require.Equal(t, 1, f.transport.countSent(domain.InvokeJoinMeeting))

	f.transport.emitState(domain.StateReconnecting)
	f.transport.mu.Lock()
	f.transport.connID = "local-conn-2"
	f.transport.mu.Unlock()
	f.transport.emitState(domain.StateConnected)

	require.Eventually(t, func() bool {
		return f.transport.countSent(domain.InvokeJoinMeeting) == 2
	}, 2*time.Second, 10*time.Millisecond, "the join must be re-announced after a reconnect")

	msg, _ := f.transport.lastSent(domain.InvokeJoinMeeting)
	join := msg.Payload.(domain.JoinPayload)
	assert.Equal(t, domain.ConnectionID("local-conn-2"), join.ConnectionID)
	assert.Equal(t, 1, f.metrics.reconnectCount())
}

func TestMeetingScreenShareDisabledBySettings(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		rec := &ports.MeetingRecord{MeetingID: "MEET-ABC123", HostID: "someone-else", IsActive: true}
		rec.Settings.AllowChat = true
		rec.Settings.AllowScreenShare = false
		f.api.record = rec
	})
	f.join(t)

	err := f.meeting.SetScreenShare(context.Background(), true)
	require.Error(t, err)
	appErr := cerr.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, cerr.CodeNotAllowed, appErr.Code)
}

func TestMeetingChatDisabledBySettings(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		rec := &ports.MeetingRecord{MeetingID: "MEET-ABC123", HostID: "someone-else", IsActive: true}
		rec.Settings.AllowChat = false
		f.api.record = rec
	})
	f.join(t)

	_, err := f.meeting.SendChat("hello")
	require.Error(t, err)
}

func TestMeetingRecoverySnapshotNormalizesPolarity(t *testing.T) {
	f := newMeetingFixture(t, defaultJoinParams(), func(f *meetingFixture) {
		f.api.participants = []ports.ParticipantRecord{
			{UserID: "remote-1", UserName: "Remote One", IsMuted: true, IsVideoOff: false},
		}
	})
	f.join(t)

	require.Eventually(t, func() bool {
		roster := f.meeting.Roster()
		return len(roster) == 1
	}, 2*time.Second, 10*time.Millisecond)

	roster := f.meeting.Roster()
	assert.False(t, roster[0].AudioEnabled)
	assert.True(t, roster[0].VideoEnabled)
}

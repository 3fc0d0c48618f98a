package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"
	cerr "meetcore/pkg/errors"
	"meetcore/pkg/tracing"
	"meetcore/pkg/utils"
	"meetcore/pkg/validation"

	"encoding/json"

	"go.uber.org/zap"
)

// JoinParams is the UI's join intent.
type JoinParams struct {
	SessionID   domain.SessionID
	UserID      domain.ParticipantID
	DisplayName string
	WantAudio   bool
	WantVideo   bool
}

// Deps wires the meeting controller to its collaborators.
type Deps struct {
	Transport ports.SignalTransport
	API       ports.MeetingAPI
	Devices   ports.MediaDevices
	Factory   ports.PeerLinkFactory
	Sink      ports.EventSink
	Metrics   ports.Metrics
	Reconcile ReconcileConfig
	Logger    *zap.SugaredLogger
}

// Meeting is the lifecycle controller: it owns the local media handle and
// the session, bounds the whole attendance with Join/Leave/End, and drains
// every signaling event on one loop goroutine so roster and link state are
// never mutated concurrently.
type Meeting struct {
	params JoinParams
	deps   Deps

	roster ports.Roster
	orch   *Orchestrator
	sync   *MediaSync
	chat   *Chat

	queue chan func()
	stop  chan struct{}

	mu        sync.Mutex
	session   domain.Session
	media     ports.LocalMedia
	isHost    bool
	joined    bool
	joinedAt  time.Time
	connState domain.ConnectionState

	leaveOnce sync.Once
	stopOnce  sync.Once
}

func NewMeeting(params JoinParams, deps Deps) *Meeting {
	if deps.Sink == nil {
		deps.Sink = ports.NopSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if deps.Reconcile.PollInterval == 0 {
		deps.Reconcile = DefaultReconcileConfig()
	}
	m := &Meeting{
		params:    params,
		deps:      deps,
		queue:     make(chan func(), 256),
		stop:      make(chan struct{}),
		connState: domain.StateDisconnected,
	}
	m.roster = NewRoster(params.UserID, deps.Logger)
	m.orch = NewOrchestrator(deps.Reconcile, m.roster, deps.Transport,
		deps.Factory, deps.Sink, deps.Metrics, m.enqueue, deps.Logger)
	m.sync = NewMediaSync(params.SessionID, params.UserID, deps.Transport,
		deps.API, deps.Devices, m.orch, deps.Logger)
	return m
}

// Join validates the meeting, acquires local media best-effort, connects
// the signaling channel with the requested flags and fans the recovery
// snapshot into the roster. An invalid or missing meeting id is the only
// hard failure; a denied camera or microphone degrades the join instead of
// failing it.
func (m *Meeting) Join(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "meeting.join")
	defer span.End()

	m.mu.Lock()
	if m.joined {
		m.mu.Unlock()
		return domain.ErrAlreadyJoined
	}
	m.mu.Unlock()

	if err := validation.ValidateMeetingID(string(m.params.SessionID)); err != nil {
		return cerr.NewInvalidSession(err.Error())
	}
	if err := m.deps.API.Validate(ctx, m.params.SessionID); err != nil {
		tracing.RecordError(ctx, err)
		return cerr.NewInvalidSession(fmt.Sprintf("meeting %s not joinable", m.params.SessionID))
	}

	record, err := m.deps.API.GetMeeting(ctx, m.params.SessionID)
	if err != nil {
		// Metadata is advisory: the hub still has the authoritative state.
		m.deps.Logger.Warnw("meeting metadata fetch failed", "error", err)
	} else {
		m.applyRecord(record)
	}

	m.mu.Lock()
	muteOnEntry := m.session.Settings.MuteOnEntry
	m.mu.Unlock()

	granted := m.acquireMedia(ctx, m.params.WantAudio, m.params.WantVideo, muteOnEntry)

	go m.runLoop()
	m.registerHandlers()

	connID, err := m.deps.Transport.Connect(ctx, m.params.UserID)
	if err != nil {
		m.shutdownLoop()
		return cerr.NewTransport("connecting signaling channel", err)
	}

	if err := m.deps.API.Join(ctx, m.params.SessionID, string(m.params.UserID), m.params.DisplayName); err != nil {
		m.deps.Logger.Warnw("durable join record failed", "error", err)
	}

	// The join announcement carries the requested flags, not what the
	// devices granted; remote rosters converge through toggle events.
	join := domain.JoinPayload{
		SessionID:     m.params.SessionID,
		ParticipantID: m.params.UserID,
		ConnectionID:  connID,
		Name:          m.params.DisplayName,
		AudioEnabled:  m.params.WantAudio && !muteOnEntry,
		VideoEnabled:  m.params.WantVideo,
	}
	if err := m.deps.Transport.Send(domain.InvokeJoinMeeting, "", join); err != nil {
		m.shutdownLoop()
		return cerr.NewTransport("announcing join", err)
	}

	m.mu.Lock()
	m.joined = true
	m.joinedAt = time.Now()
	m.mu.Unlock()

	m.fetchRecoverySnapshot(ctx)

	m.deps.Sink.OnLocalMedia(granted)
	m.deps.Logger.Infow("joined meeting",
		"session_id", m.params.SessionID,
		"connection_id", connID,
		"audio", granted.AudioEnabled,
		"video", granted.VideoEnabled)
	return nil
}

func (m *Meeting) applyRecord(record *ports.MeetingRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = domain.Session{
		ID:     m.params.SessionID,
		Topic:  record.Topic,
		HostID: domain.ParticipantID(record.HostID),
		Settings: domain.MeetingSettings{
			MuteOnEntry:      record.Settings.MuteOnEntry,
			AllowChat:        record.Settings.AllowChat,
			AllowScreenShare: record.Settings.AllowScreenShare,
			MaxParticipants:  record.Settings.MaxParticipants,
			WaitingRoom:      record.Settings.WaitingRoom,
		},
		StartedAt: time.Now(),
	}
	m.isHost = m.session.HostID == m.params.UserID
	m.roster.SetHostID(m.session.HostID)
	m.chat = NewChat(m.params.UserID, m.params.DisplayName,
		m.session.Settings.AllowChat, m.deps.Transport, m.deps.Sink, m.deps.Logger)
}

// acquireMedia is best-effort: each denied modality degrades to disabled.
// When both modalities are off no device is held at all. muteOnEntry gates
// the audio track instead of dropping it, so the microphone stays held and
// a later unmute flows into links that already carry the track.
func (m *Meeting) acquireMedia(ctx context.Context, audio, video, muteOnEntry bool) domain.LocalMediaState {
	granted := domain.LocalMediaState{}
	if !audio && !video {
		m.sync.SetMedia(nil, granted)
		return granted
	}

	media, err := m.deps.Devices.AcquireMedia(ctx, audio, video)
	if err != nil {
		m.deps.Logger.Warnw("media acquisition failed, continuing without devices", "error", err)
		m.deps.Sink.OnNotice("Could not access camera or microphone")
		m.sync.SetMedia(nil, granted)
		return granted
	}

	granted.AudioEnabled = audio && media.AudioTrack() != nil
	granted.VideoEnabled = video && media.VideoTrack() != nil
	if audio && !granted.AudioEnabled {
		m.deps.Sink.OnNotice("Microphone unavailable, joining muted")
	}
	if video && !granted.VideoEnabled {
		m.deps.Sink.OnNotice("Camera unavailable, joining without video")
	}

	if muteOnEntry && granted.AudioEnabled {
		media.AudioTrack().SetEnabled(false)
		granted.AudioEnabled = false
	}

	m.mu.Lock()
	m.media = media
	m.mu.Unlock()
	m.sync.SetMedia(media, granted)
	m.orch.SetMedia(media)
	return granted
}

// fetchRecoverySnapshot pulls the REST participant list as a fallback
// roster source; the live CurrentParticipants event remains authoritative
// because both merge through the same normalization path.
func (m *Meeting) fetchRecoverySnapshot(ctx context.Context) {
	records, err := m.deps.API.Participants(ctx, m.params.SessionID)
	if err != nil {
		m.deps.Logger.Debugw("recovery snapshot unavailable", "error", err)
		return
	}
	infos := make([]domain.ParticipantInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, NormalizeRecord(rec, ""))
	}
	m.enqueue(func() {
		m.roster.ApplySnapshot(infos)
		m.publishRoster()
	})
}

func (m *Meeting) registerHandlers() {
	t := m.deps.Transport

	t.OnStateChange(func(state domain.ConnectionState) {
		m.enqueue(func() { m.onConnectionState(state) })
	})

	on := func(event string, fn func(payload []byte)) {
		t.On(event, func(payload []byte) {
			m.deps.Metrics.RecordEvent(event)
			m.enqueue(func() { fn(payload) })
		})
	}

	on(domain.EventCurrentParticipants, m.onSnapshot)
	on(domain.EventParticipantJoined, m.onParticipantJoined)
	on(domain.EventParticipantLeft, m.onParticipantGone)
	on(domain.EventParticipantDisconnect, m.onParticipantGone)
	on(domain.EventReceiveOffer, m.onOffer)
	on(domain.EventReceiveAnswer, m.onAnswer)
	on(domain.EventReceiveIceCandidate, m.onCandidate)
	on(domain.EventAudioToggled, m.onToggle(domain.FieldAudioEnabled))
	on(domain.EventVideoToggled, m.onToggle(domain.FieldVideoEnabled))
	on(domain.EventScreenShareStarted, m.onScreenShare(true))
	on(domain.EventScreenShareStopped, m.onScreenShare(false))
	on(domain.EventReceiveChatMessage, m.onChat)
	on(domain.EventMeetingEnded, m.onMeetingEnded)
}

// runLoop is the single consumer of the event queue. No two handlers ever
// run concurrently with respect to roster or link state.
func (m *Meeting) runLoop() {
	for {
		select {
		case <-m.stop:
			return
		case fn := <-m.queue:
			fn()
		}
	}
}

func (m *Meeting) enqueue(fn func()) {
	select {
	case <-m.stop:
	case m.queue <- fn:
	}
}

// shutdownLoop signals the loop to drain and exit. It must not block on the
// loop goroutine: teardown can run on the loop itself when the server ends
// the meeting.
func (m *Meeting) shutdownLoop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// --- inbound event handlers, all on the loop goroutine ---

func (m *Meeting) onConnectionState(state domain.ConnectionState) {
	m.mu.Lock()
	prev := m.connState
	m.connState = state
	joined := m.joined
	m.mu.Unlock()

	m.deps.Metrics.SetConnectionState(state)
	m.deps.Sink.OnConnectionState(state)

	// After a reconnect the transport has a fresh connection id, so the
	// join must be re-announced before any staleness can be trusted.
	if state == domain.StateConnected && prev == domain.StateReconnecting && joined {
		m.deps.Metrics.RecordReconnect()
		local := m.sync.State()
		join := domain.JoinPayload{
			SessionID:     m.params.SessionID,
			ParticipantID: m.params.UserID,
			ConnectionID:  m.deps.Transport.ConnectionID(),
			Name:          m.params.DisplayName,
			AudioEnabled:  local.AudioEnabled,
			VideoEnabled:  local.VideoEnabled,
		}
		if err := m.deps.Transport.Send(domain.InvokeJoinMeeting, "", join); err != nil {
			m.deps.Logger.Warnw("rejoin announcement failed", "error", err)
		}
	}
}

func (m *Meeting) onSnapshot(payload []byte) {
	var snap domain.SnapshotPayload
	if err := json.Unmarshal(payload, &snap); err != nil {
		m.deps.Logger.Warnw("malformed roster snapshot dropped", "error", err)
		return
	}
	infos := make([]domain.ParticipantInfo, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		infos = append(infos, NormalizePayload(p))
	}
	m.roster.ApplySnapshot(infos)
	m.publishRoster()
}

func (m *Meeting) onParticipantJoined(payload []byte) {
	var p domain.ParticipantPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.deps.Logger.Warnw("malformed join event dropped", "error", err)
		return
	}
	info := NormalizePayload(p)
	m.roster.ApplyJoin(info)
	m.publishRoster()
	// Observing the join makes this side the initiator.
	m.orch.HandleParticipantJoined(info)
}

func (m *Meeting) onParticipantGone(payload []byte) {
	var p domain.ConnectionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	removed := m.roster.ApplyLeave(p.ConnectionID)
	m.orch.HandleLeave(p.ConnectionID)
	if removed != nil {
		m.publishRoster()
	}
}

func (m *Meeting) onOffer(payload []byte) {
	var s domain.SignalPayload
	if err := json.Unmarshal(payload, &s); err != nil {
		return
	}
	m.orch.HandleOffer(s.ConnectionID, s.SDP)
}

func (m *Meeting) onAnswer(payload []byte) {
	var s domain.SignalPayload
	if err := json.Unmarshal(payload, &s); err != nil {
		return
	}
	m.orch.HandleAnswer(s.ConnectionID, s.SDP)
}

func (m *Meeting) onCandidate(payload []byte) {
	var s domain.SignalPayload
	if err := json.Unmarshal(payload, &s); err != nil {
		return
	}
	m.orch.HandleCandidate(s.ConnectionID, s.Candidate)
}

func (m *Meeting) onToggle(field domain.ToggleField) func(payload []byte) {
	return func(payload []byte) {
		var t domain.TogglePayload
		if err := json.Unmarshal(payload, &t); err != nil {
			return
		}
		if m.roster.ApplyToggle(field, t.Enabled, "", t.ConnectionID) {
			m.publishRoster()
		}
	}
}

func (m *Meeting) onScreenShare(active bool) func(payload []byte) {
	return func(payload []byte) {
		var t domain.TogglePayload
		if err := json.Unmarshal(payload, &t); err != nil {
			return
		}
		if m.roster.ApplyToggle(domain.FieldScreenSharing, active, "", t.ConnectionID) {
			m.publishRoster()
		}
	}
}

func (m *Meeting) onChat(payload []byte) {
	var p domain.ChatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	if c := m.chatService(); c != nil {
		c.HandleInbound(p)
	}
}

func (m *Meeting) onMeetingEnded(payload []byte) {
	var p domain.MeetingEndedPayload
	_ = json.Unmarshal(payload, &p)
	reason := p.Reason
	if reason == "" {
		reason = "ended by host"
	}
	m.teardown(false)
	m.deps.Sink.OnSessionEnded(reason)
}

func (m *Meeting) publishRoster() {
	snapshot := m.roster.Snapshot()
	m.deps.Metrics.SetRosterSize(len(snapshot))
	m.deps.Sink.OnRosterChanged(snapshot)
}

// --- UI intents ---

func (m *Meeting) ToggleAudio(ctx context.Context, enabled bool) error {
	return m.sync.SetLocalAudio(ctx, enabled)
}

func (m *Meeting) ToggleVideo(ctx context.Context, enabled bool) error {
	return m.sync.SetLocalVideo(ctx, enabled)
}

func (m *Meeting) SetScreenShare(ctx context.Context, active bool) error {
	m.mu.Lock()
	allowed := m.session.Settings.AllowScreenShare
	m.mu.Unlock()
	if active && !allowed {
		return cerr.New(cerr.CodeNotAllowed, "screen sharing is disabled for this meeting")
	}
	if active {
		return m.sync.StartScreenShare(ctx)
	}
	return m.sync.StopScreenShare(ctx)
}

func (m *Meeting) SendChat(body string) (domain.ChatMessage, error) {
	c := m.chatService()
	if c == nil {
		return domain.ChatMessage{}, domain.ErrSessionEnded
	}
	return c.Send(body)
}

// Leave tears the attendance down. Idempotent: the second and later calls
// return immediately without touching any resource again.
func (m *Meeting) Leave(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "meeting.leave")
	defer span.End()

	m.leaveOnce.Do(func() {
		m.mu.Lock()
		isHost := m.isHost
		m.mu.Unlock()

		if !isHost {
			if err := m.deps.Transport.Send(domain.InvokeLeaveMeeting, "", domain.ConnectionPayload{
				ConnectionID: m.deps.Transport.ConnectionID(),
			}); err != nil {
				m.deps.Logger.Debugw("leave notification not delivered", "error", err)
			}
		}
		if err := m.deps.API.Leave(ctx, m.params.SessionID, string(m.params.UserID)); err != nil {
			m.deps.Logger.Warnw("durable leave record failed", "error", err)
		}

		m.mu.Lock()
		joinedAt := m.joinedAt
		m.mu.Unlock()
		m.teardown(true)

		if !joinedAt.IsZero() {
			m.deps.Logger.Infow("left meeting",
				"session_id", m.params.SessionID,
				"attended", utils.FormatDuration(time.Since(joinedAt)))
		}
	})
	return nil
}

// End terminates the session for everyone. Non-host attempts are rejected
// locally without a network round-trip.
func (m *Meeting) End(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "meeting.end")
	defer span.End()

	m.mu.Lock()
	isHost := m.isHost
	m.mu.Unlock()
	if !isHost {
		return domain.ErrNotHost
	}

	if err := m.deps.Transport.Send(domain.InvokeEndMeeting, "", domain.MeetingEndedPayload{
		SessionID: m.params.SessionID,
	}); err != nil {
		return cerr.NewTransport("announcing meeting end", err)
	}
	if err := m.deps.API.End(ctx, m.params.SessionID, string(m.params.UserID)); err != nil {
		m.deps.Logger.Warnw("durable end record failed", "error", err)
	}

	m.leaveOnce.Do(func() { m.teardown(true) })
	return nil
}

// teardown releases everything exactly once per resource: links, local
// media, the transport and the loop. Safe to call repeatedly.
func (m *Meeting) teardown(disconnect bool) {
	m.orch.CloseAll()

	m.mu.Lock()
	media := m.media
	m.media = nil
	m.joined = false
	m.mu.Unlock()

	if media != nil {
		if err := media.Close(); err != nil {
			m.deps.Logger.Debugw("local media close", "error", err)
		}
	}
	m.roster.Clear()
	m.deps.Metrics.SetRosterSize(0)

	if disconnect {
		if err := m.deps.Transport.Disconnect(); err != nil {
			m.deps.Logger.Debugw("transport disconnect", "error", err)
		}
	}
	m.shutdownLoop()
}

// --- read surface for the UI layer ---

func (m *Meeting) Roster() []domain.Participant { return m.roster.Snapshot() }

func (m *Meeting) LocalMedia() domain.LocalMediaState { return m.sync.State() }

func (m *Meeting) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Meeting) IsHost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isHost
}

func (m *Meeting) ConnectionState() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connState
}

func (m *Meeting) ChatHistory() []domain.ChatMessage {
	if c := m.chatService(); c != nil {
		return c.History()
	}
	return nil
}

func (m *Meeting) chatService() *Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chat
}

package services

import (
	"context"
	"encoding/json"
	"sync"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"

	"github.com/pion/webrtc/v3"
)

// sentMessage records one outbound envelope on the fake transport.
type sentMessage struct {
	Event   string
	Target  domain.ConnectionID
	Payload any
}

type fakeTransport struct {
	mu            sync.Mutex
	sent          []sentMessage
	sendErr       error
	connID        domain.ConnectionID
	state         domain.ConnectionState
	handlers      map[string][]ports.EventHandler
	stateHandlers []ports.StateHandler
	disconnects   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connID:   "local-conn",
		state:    domain.StateDisconnected,
		handlers: make(map[string][]ports.EventHandler),
	}
}

func (f *fakeTransport) Connect(ctx context.Context, participantID domain.ParticipantID) (domain.ConnectionID, error) {
	f.mu.Lock()
	f.state = domain.StateConnected
	id := f.connID
	f.mu.Unlock()
	f.emitState(domain.StateConnected)
	return id, nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	f.state = domain.StateDisconnected
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) ConnectionID() domain.ConnectionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connID
}

func (f *fakeTransport) State() domain.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) On(event string, handler ports.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
}

func (f *fakeTransport) OnStateChange(handler ports.StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateHandlers = append(f.stateHandlers, handler)
}

func (f *fakeTransport) Send(event string, target domain.ConnectionID, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{Event: event, Target: target, Payload: payload})
	return nil
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) countSent(event string) int {
	n := 0
	for _, msg := range f.sentMessages() {
		if msg.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastSent(event string) (sentMessage, bool) {
	var found sentMessage
	ok := false
	for _, msg := range f.sentMessages() {
		if msg.Event == event {
			found = msg
			ok = true
		}
	}
	return found, ok
}

// emit delivers a raw inbound event to every registered handler, the way the
// real channel dispatches.
func (f *fakeTransport) emit(event string, payload any) {
	raw, _ := json.Marshal(payload)
	f.mu.Lock()
	handlers := append([]ports.EventHandler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(raw)
	}
}

func (f *fakeTransport) emitState(state domain.ConnectionState) {
	f.mu.Lock()
	f.state = state
	handlers := append([]ports.StateHandler(nil), f.stateHandlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(state)
	}
}

type fakeAPI struct {
	mu            sync.Mutex
	validateErr   error
	record        *ports.MeetingRecord
	recordErr     error
	participants  []ports.ParticipantRecord
	statusUpdates []ports.StatusUpdate
	joins         int
	leaves        int
	ends          int
	endErr        error
}

func (f *fakeAPI) Validate(ctx context.Context, meetingID domain.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateErr
}

func (f *fakeAPI) GetMeeting(ctx context.Context, meetingID domain.SessionID) (*ports.MeetingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	if f.record == nil {
		rec := &ports.MeetingRecord{MeetingID: string(meetingID), IsActive: true}
		rec.Settings.AllowChat = true
		rec.Settings.AllowScreenShare = true
		return rec, nil
	}
	return f.record, nil
}

func (f *fakeAPI) Join(ctx context.Context, meetingID domain.SessionID, userID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	return nil
}

func (f *fakeAPI) Leave(ctx context.Context, meetingID domain.SessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakeAPI) End(ctx context.Context, meetingID domain.SessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	return f.endErr
}

func (f *fakeAPI) Participants(ctx context.Context, meetingID domain.SessionID) ([]ports.ParticipantRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants, nil
}

func (f *fakeAPI) UpdateStatus(ctx context.Context, meetingID domain.SessionID, userID string, update ports.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, update)
	return nil
}

func (f *fakeAPI) recordedStatusUpdates() []ports.StatusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.StatusUpdate, len(f.statusUpdates))
	copy(out, f.statusUpdates)
	return out
}

type fakeTrack struct {
	mu      sync.Mutex
	kind    webrtc.RTPCodecType
	enabled bool
	closes  int
}

func (t *fakeTrack) Track() webrtc.TrackLocal  { return nil }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *fakeTrack) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

type fakeMedia struct {
	mu     sync.Mutex
	audio  ports.LocalTrack
	video  ports.LocalTrack
	closes int
}

func (m *fakeMedia) AudioTrack() ports.LocalTrack { return m.audio }
func (m *fakeMedia) VideoTrack() ports.LocalTrack { return m.video }

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *fakeMedia) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type fakeDevices struct {
	media     ports.LocalMedia
	mediaErr  error
	screen    ports.LocalTrack
	screenErr error

	mu       sync.Mutex
	acquires int
	screens  int
}

func (d *fakeDevices) AcquireMedia(ctx context.Context, audio, video bool) (ports.LocalMedia, error) {
	d.mu.Lock()
	d.acquires++
	d.mu.Unlock()
	if d.mediaErr != nil {
		return nil, d.mediaErr
	}
	return d.media, nil
}

func (d *fakeDevices) AcquireScreen(ctx context.Context) (ports.LocalTrack, error) {
	d.mu.Lock()
	d.screens++
	d.mu.Unlock()
	if d.screenErr != nil {
		return nil, d.screenErr
	}
	return d.screen, nil
}

func (d *fakeDevices) screenAcquires() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screens
}

type fakeLink struct {
	mu         sync.Mutex
	connID     domain.ConnectionID
	role       domain.NegotiationRole
	cb         ports.PeerLinkCallbacks
	offers     []string
	answers    []string
	candidates []string
	replaced   []ports.LocalTrack
	closes     int
	offerErr   error
}

func (l *fakeLink) CreateOffer() (string, error) {
	if l.offerErr != nil {
		return "", l.offerErr
	}
	return "offer-sdp", nil
}

func (l *fakeLink) HandleOffer(sdp string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offers = append(l.offers, sdp)
	return "answer-sdp", nil
}

func (l *fakeLink) HandleAnswer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers = append(l.answers, sdp)
	return nil
}

func (l *fakeLink) AddCandidate(candidate string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, candidate)
	return nil
}

func (l *fakeLink) ReplaceVideoTrack(track ports.LocalTrack) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replaced = append(l.replaced, track)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

func (l *fakeLink) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

func (l *fakeLink) receivedCandidates() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.candidates))
	copy(out, l.candidates)
	return out
}

type fakeFactory struct {
	mu    sync.Mutex
	links map[domain.ConnectionID]*fakeLink
	err   error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{links: make(map[domain.ConnectionID]*fakeLink)}
}

func (f *fakeFactory) NewLink(connectionID domain.ConnectionID, role domain.NegotiationRole, media ports.LocalMedia, cb ports.PeerLinkCallbacks) (ports.PeerLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	link := &fakeLink{connID: connectionID, role: role, cb: cb}
	f.mu.Lock()
	f.links[connectionID] = link
	f.mu.Unlock()
	return link, nil
}

func (f *fakeFactory) link(connectionID domain.ConnectionID) (*fakeLink, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[connectionID]
	return l, ok
}

// captureSink records every notification for assertions.
type captureSink struct {
	mu          sync.Mutex
	rosters     [][]domain.Participant
	states      []domain.ConnectionState
	localMedia  []domain.LocalMediaState
	remoteMedia []domain.ParticipantID
	chats       []domain.ChatMessage
	ended       []string
	notices     []string
}

func (s *captureSink) OnRosterChanged(snapshot []domain.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters = append(s.rosters, snapshot)
}

func (s *captureSink) OnConnectionState(state domain.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *captureSink) OnLocalMedia(state domain.LocalMediaState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localMedia = append(s.localMedia, state)
}

func (s *captureSink) OnRemoteMedia(participantID domain.ParticipantID, handle ports.RemoteHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteMedia = append(s.remoteMedia, participantID)
}

func (s *captureSink) OnChatMessage(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, msg)
}

func (s *captureSink) OnSessionEnded(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, reason)
}

func (s *captureSink) OnNotice(notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
}

func (s *captureSink) endedReasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ended))
	copy(out, s.ended)
	return out
}

func (s *captureSink) noticeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notices)
}

func (s *captureSink) remoteMediaIDs() []domain.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ParticipantID, len(s.remoteMedia))
	copy(out, s.remoteMedia)
	return out
}

// recordingMetrics counts metric calls.
type recordingMetrics struct {
	mu               sync.Mutex
	rosterSize       int
	reconnects       int
	negotiationFails int
	reconciliations  map[bool]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{reconciliations: make(map[bool]int)}
}

func (m *recordingMetrics) SetRosterSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosterSize = n
}

func (m *recordingMetrics) SetConnectionState(domain.ConnectionState) {}
func (m *recordingMetrics) SetLinkCount(domain.PeerLinkState, int)   {}
func (m *recordingMetrics) RecordEvent(string)                       {}

func (m *recordingMetrics) RecordReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
}

func (m *recordingMetrics) RecordNegotiationFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.negotiationFails++
}

func (m *recordingMetrics) RecordReconciliation(resolved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciliations[resolved]++
}

func (m *recordingMetrics) reconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

func (m *recordingMetrics) reconciliationCount(resolved bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconciliations[resolved]
}

type fakeSwapper struct {
	mu       sync.Mutex
	replaced []ports.LocalTrack
	err      error
}

func (s *fakeSwapper) ReplaceVideoTrack(track ports.LocalTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replaced = append(s.replaced, track)
	return nil
}

func (s *fakeSwapper) replacedTracks() []ports.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.LocalTrack, len(s.replaced))
	copy(out, s.replaced)
	return out
}

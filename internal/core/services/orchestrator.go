package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"

	"go.uber.org/zap"
)

// ReconcileConfig bounds the roster catch-up poll that runs when a
// negotiation message arrives before the roster knows its sender.
type ReconcileConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		PollInterval: 200 * time.Millisecond,
		MaxAttempts:  15,
	}
}

// peerEntry is the orchestrator's bookkeeping for one remote connection.
// All fields are mutated on the event loop only.
type peerEntry struct {
	participantID domain.ParticipantID
	connectionID  domain.ConnectionID
	name          string
	role          domain.NegotiationRole
	state         domain.PeerLinkState
	link          ports.PeerLink

	// negotiation artifacts that arrived before the link existed
	pendingOffer      string
	pendingCandidates []string

	cancelPoll context.CancelFunc
}

// Orchestrator drives one peer link state machine per remote participant:
// Idle -> AwaitingRemote -> Negotiating -> Connected -> Closed. Every
// method and callback continuation runs on the meeting event loop; pion and
// poll goroutines re-enter through enqueue.
type Orchestrator struct {
	cfg       ReconcileConfig
	roster    ports.Roster
	transport ports.SignalTransport
	factory   ports.PeerLinkFactory
	sink      ports.EventSink
	metrics   ports.Metrics
	logger    *zap.SugaredLogger

	enqueue func(fn func())

	mu     sync.Mutex
	links  map[domain.ConnectionID]*peerEntry
	media  ports.LocalMedia
	closed bool
}

func NewOrchestrator(
	cfg ReconcileConfig,
	roster ports.Roster,
	transport ports.SignalTransport,
	factory ports.PeerLinkFactory,
	sink ports.EventSink,
	metrics ports.Metrics,
	enqueue func(fn func()),
	logger *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		roster:    roster,
		transport: transport,
		factory:   factory,
		sink:      sink,
		metrics:   metrics,
		enqueue:   enqueue,
		logger:    logger,
		links:     make(map[domain.ConnectionID]*peerEntry),
	}
}

// SetMedia binds the local media handle and resumes any initiator links
// whose creation was deferred because media was not ready at join time.
func (o *Orchestrator) SetMedia(media ports.LocalMedia) {
	o.mu.Lock()
	o.media = media
	deferred := make([]*peerEntry, 0)
	for _, e := range o.links {
		if e.state == domain.LinkIdle && e.role == domain.RoleInitiator {
			deferred = append(deferred, e)
		}
	}
	o.mu.Unlock()

	for _, e := range deferred {
		o.startInitiator(e)
	}
}

// HandleParticipantJoined reacts to roster growth: the side observing the
// join becomes the initiator. Joins redelivered for a connection we already
// track are ignored; a new connection id for a known participant means the
// remote rejoined, so a fresh link is opened alongside the stale one until
// its leave arrives.
func (o *Orchestrator) HandleParticipantJoined(info domain.ParticipantInfo) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if _, exists := o.links[info.ConnectionID]; exists {
		o.mu.Unlock()
		return
	}
	e := &peerEntry{
		participantID: info.ID,
		connectionID:  info.ConnectionID,
		name:          info.Name,
		role:          domain.RoleInitiator,
		state:         domain.LinkIdle,
	}
	o.links[info.ConnectionID] = e
	mediaReady := o.media != nil
	o.mu.Unlock()
	o.reportLinkCounts()

	if mediaReady {
		o.startInitiator(e)
	} else {
		o.logger.Debugw("link creation deferred until media is ready",
			"connection_id", info.ConnectionID)
	}
}

func (o *Orchestrator) startInitiator(e *peerEntry) {
	o.mu.Lock()
	if o.closed || e.state != domain.LinkIdle {
		o.mu.Unlock()
		return
	}
	link, err := o.factory.NewLink(e.connectionID, domain.RoleInitiator, o.media, o.callbacks(e))
	if err != nil {
		o.mu.Unlock()
		o.failLink(e, fmt.Errorf("creating initiator link: %w", err))
		return
	}
	e.link = link
	e.state = domain.LinkNegotiating
	o.mu.Unlock()
	o.reportLinkCounts()

	offer, err := link.CreateOffer()
	if err != nil {
		o.failLink(e, fmt.Errorf("creating offer: %w", err))
		return
	}
	o.relay(domain.InvokeSendOffer, e.connectionID, domain.SignalPayload{
		ConnectionID: o.transport.ConnectionID(),
		SDP:          offer,
	})
}

// HandleOffer routes an inbound offer. For an unknown connection id the
// entry parks in AwaitingRemote and a bounded poll waits for the roster to
// catch up; when the bound is exceeded the negotiation proceeds anyway with
// a placeholder identity, because the offer itself proves the peer exists.
func (o *Orchestrator) HandleOffer(from domain.ConnectionID, sdp string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	e, exists := o.links[from]
	if exists && e.state == domain.LinkClosed {
		o.mu.Unlock()
		return
	}
	if !exists {
		e = &peerEntry{
			connectionID: from,
			role:         domain.RoleResponder,
			state:        domain.LinkIdle,
		}
		o.links[from] = e
	}
	e.pendingOffer = sdp

	if p, ok := o.roster.ByConnectionID(from); ok {
		e.participantID = p.ID
		e.name = p.Name
		o.mu.Unlock()
		o.answerOffer(e)
		return
	}

	if e.cancelPoll != nil {
		// Already waiting on the roster for this connection; keep the
		// newest offer and let the running poll pick it up.
		o.mu.Unlock()
		return
	}
	e.state = domain.LinkAwaitingRemote
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelPoll = cancel
	o.mu.Unlock()
	o.reportLinkCounts()

	go o.awaitRoster(ctx, from)
}

// awaitRoster polls the roster at a fixed interval up to the configured
// bound, then hands the entry back to the event loop either way.
func (o *Orchestrator) awaitRoster(ctx context.Context, conn domain.ConnectionID) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p, ok := o.roster.ByConnectionID(conn); ok {
			o.metrics.RecordReconciliation(true)
			o.enqueue(func() { o.resumeResponder(conn, p.ID, p.Name) })
			return
		}
	}

	o.metrics.RecordReconciliation(false)
	o.logger.Warnw("roster never caught up, proceeding with placeholder",
		"connection_id", conn)
	o.enqueue(func() { o.resumeResponder(conn, "", "") })
}

// resumeResponder continues a parked responder once the roster caught up,
// or with a synthesized identity after the reconciliation window expired.
func (o *Orchestrator) resumeResponder(conn domain.ConnectionID, pid domain.ParticipantID, name string) {
	o.mu.Lock()
	e, ok := o.links[conn]
	if !ok || o.closed || e.state != domain.LinkAwaitingRemote {
		o.mu.Unlock()
		return
	}
	if pid == "" {
		pid = placeholderID(conn)
		name = placeholderName(conn)
		o.mu.Unlock()
		// The placeholder participant keeps the roster and the UI
		// consistent until a real join or snapshot overwrites it.
		o.roster.ApplyJoin(domain.ParticipantInfo{
			ID: pid, ConnectionID: conn, Name: name, AudioEnabled: true,
		})
		o.mu.Lock()
	}
	e.participantID = pid
	e.name = name
	e.cancelPoll = nil
	o.mu.Unlock()

	o.answerOffer(e)
}

func (o *Orchestrator) answerOffer(e *peerEntry) {
	o.mu.Lock()
	if o.closed || e.state == domain.LinkClosed {
		o.mu.Unlock()
		return
	}
	sdp := e.pendingOffer
	e.pendingOffer = ""
	if e.link == nil {
		link, err := o.factory.NewLink(e.connectionID, domain.RoleResponder, o.media, o.callbacks(e))
		if err != nil {
			o.mu.Unlock()
			o.failLink(e, fmt.Errorf("creating responder link: %w", err))
			return
		}
		e.link = link
	}
	e.state = domain.LinkNegotiating
	link := e.link
	buffered := e.pendingCandidates
	e.pendingCandidates = nil
	o.mu.Unlock()
	o.reportLinkCounts()

	answer, err := link.HandleOffer(sdp)
	if err != nil {
		o.failLink(e, fmt.Errorf("answering offer: %w", err))
		return
	}
	for _, c := range buffered {
		if err := link.AddCandidate(c); err != nil {
			o.logger.Warnw("buffered candidate rejected", "connection_id", e.connectionID, "error", err)
		}
	}
	o.relay(domain.InvokeSendAnswer, e.connectionID, domain.SignalPayload{
		ConnectionID: o.transport.ConnectionID(),
		SDP:          answer,
	})
}

func (o *Orchestrator) HandleAnswer(from domain.ConnectionID, sdp string) {
	o.mu.Lock()
	e, ok := o.links[from]
	if !ok || e.link == nil || e.state != domain.LinkNegotiating {
		o.mu.Unlock()
		o.logger.Debugw("answer for unknown or idle link dropped", "connection_id", from)
		return
	}
	link := e.link
	o.mu.Unlock()

	if err := link.HandleAnswer(sdp); err != nil {
		o.failLink(e, fmt.Errorf("applying answer: %w", err))
	}
}

// HandleCandidate routes an inbound ICE candidate, buffering it when it
// outruns the offer for the same connection.
func (o *Orchestrator) HandleCandidate(from domain.ConnectionID, candidate string) {
	o.mu.Lock()
	e, ok := o.links[from]
	if !ok {
		e = &peerEntry{
			connectionID: from,
			role:         domain.RoleResponder,
			state:        domain.LinkIdle,
		}
		o.links[from] = e
	}
	if e.link == nil || e.state == domain.LinkAwaitingRemote {
		e.pendingCandidates = append(e.pendingCandidates, candidate)
		o.mu.Unlock()
		return
	}
	link := e.link
	o.mu.Unlock()

	if err := link.AddCandidate(candidate); err != nil {
		o.logger.Warnw("candidate rejected", "connection_id", from, "error", err)
	}
}

// HandleLeave closes the link bound to a departed connection. Closing an
// absent or already-closed link is a no-op.
func (o *Orchestrator) HandleLeave(conn domain.ConnectionID) {
	o.mu.Lock()
	e, ok := o.links[conn]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.links, conn)
	o.mu.Unlock()

	o.closeEntry(e)
	o.reportLinkCounts()
}

// CloseAll tears down every link; used on leave, session end and transport
// loss. Idempotent.
func (o *Orchestrator) CloseAll() {
	o.mu.Lock()
	o.closed = true
	entries := make([]*peerEntry, 0, len(o.links))
	for _, e := range o.links {
		entries = append(entries, e)
	}
	o.links = make(map[domain.ConnectionID]*peerEntry)
	o.mu.Unlock()

	for _, e := range entries {
		o.closeEntry(e)
	}
	o.reportLinkCounts()
}

// ReplaceVideoTrack swaps the outgoing video track on every live link
// without tearing any of them down.
func (o *Orchestrator) ReplaceVideoTrack(track ports.LocalTrack) error {
	o.mu.Lock()
	live := make([]*peerEntry, 0, len(o.links))
	for _, e := range o.links {
		if e.link != nil && e.state != domain.LinkClosed {
			live = append(live, e)
		}
	}
	o.mu.Unlock()

	var firstErr error
	for _, e := range live {
		if err := e.link.ReplaceVideoTrack(track); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LinkState reports the state machine position for one connection, mainly
// for the UI surface and tests.
func (o *Orchestrator) LinkState(conn domain.ConnectionID) (domain.PeerLinkState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.links[conn]
	if !ok {
		return domain.LinkClosed, false
	}
	return e.state, true
}

func (o *Orchestrator) callbacks(e *peerEntry) ports.PeerLinkCallbacks {
	return ports.PeerLinkCallbacks{
		OnLocalCandidate: func(candidate string) {
			o.relay(domain.InvokeSendIceCandidate, e.connectionID, domain.SignalPayload{
				ConnectionID: o.transport.ConnectionID(),
				Candidate:    candidate,
			})
		},
		OnRemoteMedia: func(handle ports.RemoteHandle) {
			o.enqueue(func() {
				o.mu.Lock()
				if e.state == domain.LinkClosed {
					o.mu.Unlock()
					return
				}
				e.state = domain.LinkConnected
				pid := e.participantID
				o.mu.Unlock()
				o.reportLinkCounts()
				o.sink.OnRemoteMedia(pid, handle)
			})
		},
		OnFailure: func(err error) {
			o.enqueue(func() { o.failLink(e, err) })
		},
	}
}

// failLink contains a negotiation failure to the one affected link.
func (o *Orchestrator) failLink(e *peerEntry, err error) {
	o.metrics.RecordNegotiationFailure()
	o.logger.Warnw("peer link failed",
		"connection_id", e.connectionID, "participant_id", e.participantID, "error", err)

	o.mu.Lock()
	delete(o.links, e.connectionID)
	o.mu.Unlock()
	o.closeEntry(e)
	o.reportLinkCounts()
}

func (o *Orchestrator) closeEntry(e *peerEntry) {
	o.mu.Lock()
	if e.state == domain.LinkClosed {
		o.mu.Unlock()
		return
	}
	e.state = domain.LinkClosed
	cancel := e.cancelPoll
	e.cancelPoll = nil
	link := e.link
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if link != nil {
		if err := link.Close(); err != nil {
			o.logger.Debugw("link close", "connection_id", e.connectionID, "error", err)
		}
	}
}

func (o *Orchestrator) relay(event string, target domain.ConnectionID, payload domain.SignalPayload) {
	if err := o.transport.Send(event, target, payload); err != nil {
		o.logger.Warnw("negotiation relay failed", "event", event,
			"target", target, "error", err)
	}
}

func (o *Orchestrator) reportLinkCounts() {
	o.mu.Lock()
	counts := map[domain.PeerLinkState]int{}
	for _, e := range o.links {
		counts[e.state]++
	}
	o.mu.Unlock()
	for _, s := range []domain.PeerLinkState{
		domain.LinkIdle, domain.LinkAwaitingRemote, domain.LinkNegotiating, domain.LinkConnected,
	} {
		o.metrics.SetLinkCount(s, counts[s])
	}
}

func placeholderID(conn domain.ConnectionID) domain.ParticipantID {
	return domain.ParticipantID("guest-" + shortConn(conn))
}

func placeholderName(conn domain.ConnectionID) string {
	return "Guest " + shortConn(conn)
}

func shortConn(conn domain.ConnectionID) string {
	s := string(conn)
	if len(s) > 6 {
		return s[:6]
	}
	return s
}

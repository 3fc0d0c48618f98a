package services

import (
	"testing"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type orchFixture struct {
	orch      *Orchestrator
	roster    ports.Roster
	transport *fakeTransport
	factory   *fakeFactory
	sink      *captureSink
	metrics   *recordingMetrics
}

func newOrchFixture(t *testing.T, cfg ReconcileConfig) *orchFixture {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	f := &orchFixture{
		roster:    NewRoster("local-user", logger),
		transport: newFakeTransport(),
		factory:   newFakeFactory(),
		sink:      &captureSink{},
		metrics:   newRecordingMetrics(),
	}
	// Tests drive the orchestrator directly, so continuations run inline
	// instead of going through a loop goroutine.
	enqueue := func(fn func()) { fn() }
	f.orch = NewOrchestrator(cfg, f.roster, f.transport, f.factory, f.sink, f.metrics, enqueue, logger)
	return f
}

func testMedia() *fakeMedia {
	return &fakeMedia{
		audio: &fakeTrack{kind: webrtc.RTPCodecTypeAudio, enabled: true},
		video: &fakeTrack{kind: webrtc.RTPCodecTypeVideo, enabled: true},
	}
}

type stubHandle struct{ conn domain.ConnectionID }

func (h stubHandle) ConnectionID() domain.ConnectionID { return h.conn }
func (h stubHandle) Kinds() []string                   { return []string{"audio"} }
func (h stubHandle) Stats() (uint64, uint64)           { return 0, 0 }

func TestOrchestratorInitiatorFlow(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())

	f.orch.HandleParticipantJoined(domain.ParticipantInfo{
		ID: "remote-1", ConnectionID: "conn-1", Name: "Remote",
	})

	link, ok := f.factory.link("conn-1")
	require.True(t, ok, "observing the join must create an initiator link")
	assert.Equal(t, domain.RoleInitiator, link.role)

	msg, ok := f.transport.lastSent(domain.InvokeSendOffer)
	require.True(t, ok)
	assert.Equal(t, domain.ConnectionID("conn-1"), msg.Target)
	payload := msg.Payload.(domain.SignalPayload)
	assert.Equal(t, "offer-sdp", payload.SDP)

	state, ok := f.orch.LinkState("conn-1")
	require.True(t, ok)
	assert.Equal(t, domain.LinkNegotiating, state)

	f.orch.HandleAnswer("conn-1", "remote-answer")
	assert.Equal(t, []string{"remote-answer"}, link.answers)

	// Media arriving marks the link connected and surfaces the handle.
	link.cb.OnRemoteMedia(stubHandle{conn: "conn-1"})
	state, _ = f.orch.LinkState("conn-1")
	assert.Equal(t, domain.LinkConnected, state)
	assert.Equal(t, []domain.ParticipantID{"remote-1"}, f.sink.remoteMediaIDs())
}

func TestOrchestratorDefersLinkUntilMediaReady(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())

	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1"})
	_, ok := f.factory.link("conn-1")
	assert.False(t, ok, "link creation must wait for local media")

	f.orch.SetMedia(testMedia())
	_, ok = f.factory.link("conn-1")
	assert.True(t, ok, "binding media must resume deferred initiators")
	assert.Equal(t, 1, f.transport.countSent(domain.InvokeSendOffer))
}

func TestOrchestratorDuplicateJoinIgnored(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())

	info := domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1"}
	f.orch.HandleParticipantJoined(info)
	f.orch.HandleParticipantJoined(info)

	assert.Equal(t, 1, f.transport.countSent(domain.InvokeSendOffer))
}

func TestOrchestratorResponderWithKnownPeer(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())
	f.roster.ApplyJoin(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1", Name: "Remote"})

	f.orch.HandleOffer("conn-1", "remote-offer")

	link, ok := f.factory.link("conn-1")
	require.True(t, ok)
	assert.Equal(t, domain.RoleResponder, link.role)
	assert.Equal(t, []string{"remote-offer"}, link.offers)

	msg, ok := f.transport.lastSent(domain.InvokeSendAnswer)
	require.True(t, ok)
	assert.Equal(t, domain.ConnectionID("conn-1"), msg.Target)
	assert.Equal(t, "answer-sdp", msg.Payload.(domain.SignalPayload).SDP)
}

func TestOrchestratorOfferBeforeJoinResolvesViaPoll(t *testing.T) {
	f := newOrchFixture(t, ReconcileConfig{PollInterval: 10 * time.Millisecond, MaxAttempts: 50})
	f.orch.SetMedia(testMedia())

	f.orch.HandleOffer("conn-1", "early-offer")
	state, ok := f.orch.LinkState("conn-1")
	require.True(t, ok)
	assert.Equal(t, domain.LinkAwaitingRemote, state)

	// The join catches up while the poll is running.
	f.roster.ApplyJoin(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1", Name: "Remote"})

	require.Eventually(t, func() bool {
		return f.transport.countSent(domain.InvokeSendAnswer) == 1
	}, 2*time.Second, 10*time.Millisecond, "poll must resolve once the roster catches up")

	assert.Equal(t, 1, f.metrics.reconciliationCount(true))
	link, _ := f.factory.link("conn-1")
	assert.Equal(t, []string{"early-offer"}, link.offers)
}

func TestOrchestratorPlaceholderAfterReconciliationTimeout(t *testing.T) {
	f := newOrchFixture(t, ReconcileConfig{PollInterval: 5 * time.Millisecond, MaxAttempts: 3})
	f.orch.SetMedia(testMedia())

	f.orch.HandleOffer("conn-abcdef123", "early-offer")

	require.Eventually(t, func() bool {
		return f.transport.countSent(domain.InvokeSendAnswer) == 1
	}, 2*time.Second, 5*time.Millisecond, "negotiation must proceed with a placeholder")

	assert.Equal(t, 1, f.metrics.reconciliationCount(false))

	// The placeholder keeps the roster consistent until the real join lands.
	p, ok := f.roster.ByConnectionID("conn-abcdef123")
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID("guest-conn-a"), p.ID)
	assert.Equal(t, "Guest conn-a", p.Name)
}

func TestOrchestratorBuffersEarlyCandidates(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())
	f.roster.ApplyJoin(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1"})

	f.orch.HandleCandidate("conn-1", "candidate-1")
	f.orch.HandleCandidate("conn-1", "candidate-2")

	f.orch.HandleOffer("conn-1", "remote-offer")

	link, ok := f.factory.link("conn-1")
	require.True(t, ok)
	assert.Equal(t, []string{"candidate-1", "candidate-2"}, link.receivedCandidates())

	// Candidates arriving after the link exists are applied directly.
	f.orch.HandleCandidate("conn-1", "candidate-3")
	assert.Equal(t, []string{"candidate-1", "candidate-2", "candidate-3"}, link.receivedCandidates())
}

func TestOrchestratorHandleLeave(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1"})

	link, _ := f.factory.link("conn-1")
	f.orch.HandleLeave("conn-1")
	assert.Equal(t, 1, link.closeCount())

	_, ok := f.orch.LinkState("conn-1")
	assert.False(t, ok)

	// Leaving again, or leaving an unknown connection, is a no-op.
	f.orch.HandleLeave("conn-1")
	f.orch.HandleLeave("never-seen")
	assert.Equal(t, 1, link.closeCount())
}

func TestOrchestratorCloseAll(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1"})
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-2", ConnectionID: "conn-2"})

	link1, _ := f.factory.link("conn-1")
	link2, _ := f.factory.link("conn-2")

	f.orch.CloseAll()
	assert.Equal(t, 1, link1.closeCount())
	assert.Equal(t, 1, link2.closeCount())

	f.orch.CloseAll()
	assert.Equal(t, 1, link1.closeCount())

	// A closed orchestrator refuses new links.
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-3", ConnectionID: "conn-3"})
	_, ok := f.factory.link("conn-3")
	assert.False(t, ok)
}

func TestOrchestratorReplaceVideoTrack(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1"})
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-2", ConnectionID: "conn-2"})

	track := &fakeTrack{kind: webrtc.RTPCodecTypeVideo}
	require.NoError(t, f.orch.ReplaceVideoTrack(track))

	link1, _ := f.factory.link("conn-1")
	link2, _ := f.factory.link("conn-2")
	require.Len(t, link1.replaced, 1)
	require.Len(t, link2.replaced, 1)
}

func TestOrchestratorNegotiationFailureIsContained(t *testing.T) {
	f := newOrchFixture(t, DefaultReconcileConfig())
	f.orch.SetMedia(testMedia())
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-1", ConnectionID: "conn-1"})
	f.orch.HandleParticipantJoined(domain.ParticipantInfo{ID: "remote-2", ConnectionID: "conn-2"})

	link1, _ := f.factory.link("conn-1")
	link1.cb.OnFailure(assert.AnError)

	_, ok := f.orch.LinkState("conn-1")
	assert.False(t, ok, "failed link must be dropped")
	assert.Equal(t, 1, link1.closeCount())

	// The other link is untouched.
	state, ok := f.orch.LinkState("conn-2")
	require.True(t, ok)
	assert.Equal(t, domain.LinkNegotiating, state)
}

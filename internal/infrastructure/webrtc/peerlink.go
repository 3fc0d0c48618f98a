package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"
	"meetcore/pkg/optimize"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const pliInterval = 3 * time.Second

// packetPool is shared by all drain loops; packets are MTU sized.
var packetPool = optimize.NewBytePool(1500)

// Config holds the connection settings shared by every link.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Factory builds peer links on a shared pion API instance.
type Factory struct {
	cfg    Config
	api    *webrtc.API
	logger *zap.SugaredLogger
}

var _ ports.PeerLinkFactory = (*Factory)(nil)

func NewFactory(cfg Config, logger *zap.SugaredLogger) *Factory {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}
	return &Factory{
		cfg:    cfg,
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		logger: logger,
	}
}

func (f *Factory) NewLink(connectionID domain.ConnectionID, role domain.NegotiationRole, media ports.LocalMedia, cb ports.PeerLinkCallbacks) (ports.PeerLink, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   f.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	l := &link{
		connID: connectionID,
		role:   role,
		pc:     pc,
		cb:     cb,
		handle: &remoteHandle{connID: connectionID},
		logger: f.logger,
	}

	if err := l.attachLocalTracks(media); err != nil {
		pc.Close()
		return nil, err
	}
	l.wireCallbacks()
	return l, nil
}

// link is one bidirectional connection to a remote peer. Negotiation
// methods are called from the event loop; pion callbacks arrive on pion's
// goroutines and are handed back through PeerLinkCallbacks.
type link struct {
	connID domain.ConnectionID
	role   domain.NegotiationRole
	pc     *webrtc.PeerConnection
	cb     ports.PeerLinkCallbacks

	mu          sync.Mutex
	videoSender *webrtc.RTPSender
	pending     []webrtc.ICECandidateInit
	remoteSet   bool
	closed      bool

	handle    *remoteHandle
	mediaOnce sync.Once

	logger *zap.SugaredLogger
}

func (l *link) attachLocalTracks(media ports.LocalMedia) error {
	var audio, video ports.LocalTrack
	if media != nil {
		audio = media.AudioTrack()
		video = media.VideoTrack()
	}

	if audio != nil {
		if _, err := l.pc.AddTrack(audio.Track()); err != nil {
			return fmt.Errorf("adding audio track: %w", err)
		}
	} else {
		if _, err := l.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			return fmt.Errorf("adding audio transceiver: %w", err)
		}
	}

	if video != nil {
		sender, err := l.pc.AddTrack(video.Track())
		if err != nil {
			return fmt.Errorf("adding video track: %w", err)
		}
		l.videoSender = sender
	} else {
		if _, err := l.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			return fmt.Errorf("adding video transceiver: %w", err)
		}
	}
	return nil
}

func (l *link) wireCallbacks() {
	l.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		encoded, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			l.logger.Warnw("encoding local candidate failed", "error", err)
			return
		}
		if l.cb.OnLocalCandidate != nil {
			l.cb.OnLocalCandidate(string(encoded))
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		l.logger.Infow("remote track arrived",
			"connection_id", l.connID,
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType)

		l.handle.addKind(track.Kind().String())
		go l.drainTrack(track)
		go l.drainRTCP(receiver)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go l.keyframeLoop(track)
		}

		l.mediaOnce.Do(func() {
			if l.cb.OnRemoteMedia != nil {
				l.cb.OnRemoteMedia(l.handle)
			}
		})
	})

	l.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.logger.Debugw("peer connection state",
			"connection_id", l.connID, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed {
			if l.cb.OnFailure != nil {
				l.cb.OnFailure(fmt.Errorf("peer connection %s failed", l.connID))
			}
		}
	})
}

func (l *link) CreateOffer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("creating offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("setting local offer: %w", err)
	}
	return offer.SDP, nil
}

func (l *link) HandleOffer(sdp string) (string, error) {
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		return "", fmt.Errorf("setting remote offer: %w", err)
	}
	l.applyPending()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("creating answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("setting local answer: %w", err)
	}
	return answer.SDP, nil
}

func (l *link) HandleAnswer(sdp string) error {
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		return fmt.Errorf("setting remote answer: %w", err)
	}
	l.applyPending()
	return nil
}

// AddCandidate applies one remote candidate, parking it until the remote
// description exists.
func (l *link) AddCandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("decoding candidate: %w", err)
	}

	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, init)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	return l.pc.AddICECandidate(init)
}

func (l *link) applyPending() {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, init := range pending {
		if err := l.pc.AddICECandidate(init); err != nil {
			l.logger.Warnw("applying parked candidate failed",
				"connection_id", l.connID, "error", err)
		}
	}
}

// ReplaceVideoTrack swaps the outgoing video track without renegotiating.
func (l *link) ReplaceVideoTrack(track ports.LocalTrack) error {
	l.mu.Lock()
	sender := l.videoSender
	l.mu.Unlock()
	if sender == nil {
		return domain.ErrMediaUnavailable
	}
	if err := sender.ReplaceTrack(track.Track()); err != nil {
		return fmt.Errorf("replacing video track: %w", err)
	}
	return nil
}

func (l *link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.pc.Close()
}

// drainTrack consumes inbound RTP so the jitter buffer keeps moving, and
// accounts valid packets on the remote handle. Rendering attaches through
// the handle, not here.
func (l *link) drainTrack(track *webrtc.TrackRemote) {
	buf := packetPool.Get()
	defer packetPool.Put(buf)
	packet := &rtp.Packet{}
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.logger.Debugw("remote track closed",
					"connection_id", l.connID, "error", err)
			}
			return
		}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			continue
		}
		l.handle.recordInbound(n)
	}
}

func (l *link) drainRTCP(receiver *webrtc.RTPReceiver) {
	buf := packetPool.Get()
	defer packetPool.Put(buf)
	for {
		if _, _, err := receiver.Read(buf); err != nil {
			return
		}
	}
}

// keyframeLoop requests a keyframe periodically so late joiners and
// recovered links repaint quickly.
func (l *link) keyframeLoop(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return
		}
		err := l.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		})
		if err != nil {
			return
		}
	}
}

// remoteHandle is handed to the rendering layer through the event sink.
type remoteHandle struct {
	connID domain.ConnectionID

	packets atomic.Uint64
	bytes   atomic.Uint64

	mu    sync.Mutex
	kinds []string
}

var _ ports.RemoteHandle = (*remoteHandle)(nil)

func (h *remoteHandle) ConnectionID() domain.ConnectionID { return h.connID }

func (h *remoteHandle) Kinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.kinds))
	copy(out, h.kinds)
	return out
}

func (h *remoteHandle) Stats() (uint64, uint64) {
	return h.packets.Load(), h.bytes.Load()
}

func (h *remoteHandle) recordInbound(n int) {
	h.packets.Add(1)
	h.bytes.Add(uint64(n))
}

func (h *remoteHandle) addKind(kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range h.kinds {
		if k == kind {
			return
		}
	}
	h.kinds = append(h.kinds, kind)
}

package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meetcore/internal/core/ports"
	"meetcore/pkg/utils"

	"github.com/pion/webrtc/v3"
	webrtcmedia "github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

const (
	audioFrameDuration = 20 * time.Millisecond
	videoFrameDuration = 33 * time.Millisecond
)

// SampleSource produces encoded samples for one outgoing track. The engine
// pulls from it only while the track is enabled; a muted track sends
// nothing at all.
type SampleSource interface {
	// NextSample blocks until the next encoded sample is available.
	NextSample(ctx context.Context) (webrtcmedia.Sample, error)
	Close() error
}

// Config binds the platform capture sources. Nil sources leave the
// modality unavailable, which the acquisition path treats as a denial.
type Config struct {
	AudioSource  SampleSource
	VideoSource  SampleSource
	ScreenSource SampleSource
}

// Engine implements local media acquisition on pion sample tracks.
type Engine struct {
	cfg    Config
	logger *zap.SugaredLogger
}

var _ ports.MediaDevices = (*Engine)(nil)

func NewEngine(cfg Config, logger *zap.SugaredLogger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// AcquireMedia builds the local track pair. A modality whose source is
// missing or fails degrades to a nil track; only both failing is an error.
func (e *Engine) AcquireMedia(ctx context.Context, audio, video bool) (ports.LocalMedia, error) {
	lm := &localMedia{logger: e.logger}
	lm.ctx, lm.cancel = context.WithCancel(context.Background())

	if audio {
		track, err := e.newTrack(webrtc.RTPCodecTypeAudio, "audio", e.cfg.AudioSource)
		if err != nil {
			e.logger.Warnw("audio capture unavailable", "error", err)
		} else {
			lm.audio = track
			lm.feed(track, audioFrameDuration)
		}
	}
	if video {
		track, err := e.newTrack(webrtc.RTPCodecTypeVideo, "video", e.cfg.VideoSource)
		if err != nil {
			e.logger.Warnw("video capture unavailable", "error", err)
		} else {
			lm.video = track
			lm.feed(track, videoFrameDuration)
		}
	}

	if lm.audio == nil && lm.video == nil {
		lm.cancel()
		return nil, fmt.Errorf("no capture device available")
	}
	return lm, nil
}

// AcquireScreen builds the display capture track used for screen sharing.
func (e *Engine) AcquireScreen(ctx context.Context) (ports.LocalTrack, error) {
	track, err := e.newTrack(webrtc.RTPCodecTypeVideo, "screen", e.cfg.ScreenSource)
	if err != nil {
		return nil, fmt.Errorf("screen capture unavailable: %w", err)
	}
	track.SetEnabled(true)

	feedCtx, cancel := context.WithCancel(context.Background())
	track.stop = cancel
	go pump(feedCtx, track, videoFrameDuration, e.logger)
	return track, nil
}

func (e *Engine) newTrack(kind webrtc.RTPCodecType, label string, source SampleSource) (*sampleTrack, error) {
	if source == nil {
		return nil, fmt.Errorf("no %s source configured", label)
	}

	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	if kind == webrtc.RTPCodecTypeAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, label, utils.GenerateRequestID())
	if err != nil {
		return nil, fmt.Errorf("creating %s track: %w", label, err)
	}

	track := &sampleTrack{
		track:   local,
		kind:    kind,
		source:  source,
		enabled: true,
	}
	return track, nil
}

// sampleTrack is one outgoing track with a mutable enabled flag. The flag
// gates sample writes; the track itself survives toggles.
type sampleTrack struct {
	track  *webrtc.TrackLocalStaticSample
	kind   webrtc.RTPCodecType
	source SampleSource

	mu      sync.Mutex
	enabled bool
	stop    context.CancelFunc
}

var _ ports.LocalTrack = (*sampleTrack)(nil)

func (t *sampleTrack) Track() webrtc.TrackLocal { return t.track }

func (t *sampleTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *sampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *sampleTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Close stops the feeder and releases the source. Only standalone tracks
// (screen capture) are closed directly; session tracks go through
// localMedia.Close.
func (t *sampleTrack) Close() error {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
	return t.source.Close()
}

// localMedia owns the capture pair and the feeder goroutines.
type localMedia struct {
	audio *sampleTrack
	video *sampleTrack

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	logger    *zap.SugaredLogger
}

var _ ports.LocalMedia = (*localMedia)(nil)

func (m *localMedia) AudioTrack() ports.LocalTrack {
	if m.audio == nil {
		return nil
	}
	return m.audio
}

func (m *localMedia) VideoTrack() ports.LocalTrack {
	if m.video == nil {
		return nil
	}
	return m.video
}

func (m *localMedia) feed(track *sampleTrack, interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		pump(m.ctx, track, interval, m.logger)
	}()
}

// Close releases capture. Idempotent: the second call finds everything
// already stopped.
func (m *localMedia) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
		if m.audio != nil {
			m.audio.source.Close()
		}
		if m.video != nil {
			m.video.source.Close()
		}
	})
	return nil
}

// pump moves samples from the source into the track while enabled. A
// disabled track drops its samples instead of pausing the source, so
// re-enabling resumes instantly.
func pump(ctx context.Context, track *sampleTrack, interval time.Duration, logger *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sample, err := track.source.NextSample(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warnw("sample source stopped", "kind", track.kind.String(), "error", err)
			}
			return
		}
		if !track.Enabled() {
			continue
		}
		if sample.Duration == 0 {
			sample.Duration = interval
		}
		if err := track.track.WriteSample(sample); err != nil {
			logger.Debugw("sample write failed", "kind", track.kind.String(), "error", err)
			return
		}
	}
}

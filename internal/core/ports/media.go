package ports

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// LocalTrack is one locally captured track with a mutable enabled flag.
// Toggling enabled never recreates the underlying track.
type LocalTrack interface {
	Track() webrtc.TrackLocal
	Kind() webrtc.RTPCodecType
	SetEnabled(enabled bool)
	Enabled() bool
}

// LocalMedia owns the local capture tracks for one session. The lifecycle
// controller is the only component allowed to acquire or release it; other
// components may only read tracks and flip their enabled flags.
type LocalMedia interface {
	AudioTrack() LocalTrack
	VideoTrack() LocalTrack
	Close() error
}

// MediaDevices acquires local capture. Acquisition is best-effort: a denied
// modality yields a nil track, not an error, unless both modalities fail.
type MediaDevices interface {
	AcquireMedia(ctx context.Context, audio, video bool) (LocalMedia, error)
	AcquireScreen(ctx context.Context) (LocalTrack, error)
}

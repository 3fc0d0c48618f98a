package media

import (
	"context"
	"fmt"
	"os"
	"time"

	webrtcmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

// opus frame carrying 20ms of silence
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource produces opus silence at the frame cadence. It stands in
// for a microphone when no capture backend is wired up.
type SilenceSource struct{}

func (SilenceSource) NextSample(ctx context.Context) (webrtcmedia.Sample, error) {
	select {
	case <-ctx.Done():
		return webrtcmedia.Sample{}, ctx.Err()
	case <-time.After(audioFrameDuration):
	}
	return webrtcmedia.Sample{
		Data:     opusSilence,
		Duration: audioFrameDuration,
	}, nil
}

func (SilenceSource) Close() error { return nil }

// IVFFileSource loops a VP8 recording from disk, frame timed by the IVF
// header. Useful as a camera stand-in and in soak setups.
type IVFFileSource struct {
	path   string
	file   *os.File
	reader *ivfreader.IVFReader
	wait   time.Duration
}

func NewIVFFileSource(path string) (*IVFFileSource, error) {
	s := &IVFFileSource{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IVFFileSource) open() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening video file: %w", err)
	}
	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("reading ivf header: %w", err)
	}
	s.file = file
	s.reader = reader
	s.wait = time.Millisecond * time.Duration((float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
	if s.wait <= 0 {
		s.wait = videoFrameDuration
	}
	return nil
}

func (s *IVFFileSource) NextSample(ctx context.Context) (webrtcmedia.Sample, error) {
	select {
	case <-ctx.Done():
		return webrtcmedia.Sample{}, ctx.Err()
	case <-time.After(s.wait):
	}

	frame, _, err := s.reader.ParseNextFrame()
	if err != nil {
		// Loop the recording.
		s.file.Close()
		if err := s.open(); err != nil {
			return webrtcmedia.Sample{}, err
		}
		frame, _, err = s.reader.ParseNextFrame()
		if err != nil {
			return webrtcmedia.Sample{}, fmt.Errorf("reading frame after rewind: %w", err)
		}
	}
	return webrtcmedia.Sample{Data: frame, Duration: s.wait}, nil
}

func (s *IVFFileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// OggFileSource loops an opus recording from disk.
type OggFileSource struct {
	path   string
	file   *os.File
	reader *oggreader.OggReader
}

func NewOggFileSource(path string) (*OggFileSource, error) {
	s := &OggFileSource{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OggFileSource) open() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening audio file: %w", err)
	}
	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("reading ogg header: %w", err)
	}
	s.file = file
	s.reader = reader
	return nil
}

func (s *OggFileSource) NextSample(ctx context.Context) (webrtcmedia.Sample, error) {
	select {
	case <-ctx.Done():
		return webrtcmedia.Sample{}, ctx.Err()
	case <-time.After(audioFrameDuration):
	}

	page, _, err := s.reader.ParseNextPage()
	if err != nil {
		s.file.Close()
		if err := s.open(); err != nil {
			return webrtcmedia.Sample{}, err
		}
		page, _, err = s.reader.ParseNextPage()
		if err != nil {
			return webrtcmedia.Sample{}, fmt.Errorf("reading page after rewind: %w", err)
		}
	}
	return webrtcmedia.Sample{Data: page, Duration: audioFrameDuration}, nil
}

func (s *OggFileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

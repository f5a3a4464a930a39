package voice

import (
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

const silenceFrameDuration = 20 * time.Millisecond

// opusSilence is a minimal valid Opus packet decoding to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource is a CaptureSource that produces silent Opus frames at the
// normal packet rate. It keeps the voice path fully exercisable on hosts
// without audio hardware, for diagnostics and soak testing.
type SilenceSource struct {
	ticker *time.Ticker

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

var _ CaptureSource = (*SilenceSource)(nil)

func NewSilenceSource() *SilenceSource {
	return &SilenceSource{
		ticker: time.NewTicker(silenceFrameDuration),
		done:   make(chan struct{}),
	}
}

func (s *SilenceSource) NextSample() (media.Sample, error) {
	select {
	case <-s.done:
		return media.Sample{}, io.EOF
	case <-s.ticker.C:
		return media.Sample{Data: opusSilence, Duration: silenceFrameDuration}, nil
	}
}

func (s *SilenceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ticker.Stop()
	close(s.done)
	return nil
}

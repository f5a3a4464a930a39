// Package voice coordinates the per-room WebRTC voice mesh. Each session
// holds one peer connection per other participant; offers, answers and ICE
// candidates travel through the shared document store so no direct
// signaling channel between peers is needed.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

const (
	maxReconnectAttempts = 3
	reconnectBaseDelay   = 500 * time.Millisecond
)

var (
	ErrMediaUnavailable = errors.New("voice: media capture unavailable")
	ErrNotJoined        = errors.New("voice: not joined to voice")
	ErrAlreadyJoined    = errors.New("voice: already joined to voice")
)

// CaptureSource supplies encoded audio samples for the local track.
// NextSample blocks until a sample is ready and returns io.EOF when the
// source is exhausted.
type CaptureSource interface {
	NextSample() (media.Sample, error)
	Close() error
}

// signalMessage is the offer/answer document exchanged through the store.
type signalMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Options configures a Coordinator. Zero values fall back to defaults.
type Options struct {
	ICEServers    []webrtc.ICEServer
	OnPeerState   func(peerID string, state webrtc.PeerConnectionState)
	OnRemoteTrack func(peerID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

// Coordinator manages one participant's voice links for a single room.
// The offerer for each pair is chosen deterministically, so both sides
// agree on roles without negotiation: the peer with the smaller user id
// sends the offer.
type Coordinator struct {
	store         store.Store
	roomID        string
	userID        string
	iceServers    []webrtc.ICEServer
	onPeerState   func(string, webrtc.PeerConnectionState)
	onRemoteTrack func(string, *webrtc.TrackRemote, *webrtc.RTPReceiver)

	mu         sync.Mutex
	ctx        context.Context
	joined     bool
	muted      bool
	capture    CaptureSource
	localTrack *webrtc.TrackLocalStaticSample
	roster     map[string]bool
	links      map[string]*link
}

// link is the signaling and transport state for one remote peer.
type link struct {
	remoteID      string
	offerer       bool
	attempts      int
	pc            *webrtc.PeerConnection
	pending       []webrtc.ICECandidateInit
	remoteDescSet bool
	unsubSignal   func()
	unsubCands    func()
	closed        bool
}

func NewCoordinator(st store.Store, roomID, userID string, opts Options) *Coordinator {
	if st == nil {
		panic("store cannot be nil for Coordinator")
	}
	iceServers := opts.ICEServers
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	onPeerState := opts.OnPeerState
	if onPeerState == nil {
		onPeerState = func(string, webrtc.PeerConnectionState) {}
	}
	onRemoteTrack := opts.OnRemoteTrack
	if onRemoteTrack == nil {
		onRemoteTrack = func(string, *webrtc.TrackRemote, *webrtc.RTPReceiver) {}
	}
	return &Coordinator{
		store:         st,
		roomID:        roomID,
		userID:        userID,
		iceServers:    iceServers,
		onPeerState:   onPeerState,
		onRemoteTrack: onRemoteTrack,
		roster:        make(map[string]bool),
		links:         make(map[string]*link),
	}
}

// JoinVoice creates the local audio track and starts pumping samples from
// the capture source. Links to peers are not created here; SyncRoster
// drives that from presence updates.
func (c *Coordinator) JoinVoice(ctx context.Context, capture CaptureSource) error {
	if capture == nil {
		return ErrMediaUnavailable
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "voice-"+c.userID,
	)
	if err != nil {
		return fmt.Errorf("voice: create local track: %w", err)
	}

	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.joined = true
	c.ctx = context.WithoutCancel(ctx)
	c.capture = capture
	c.localTrack = track
	c.mu.Unlock()

	go c.pumpSamples(capture, track)

	logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"user_id": c.userID,
	}).Info("Joined voice")
	return nil
}

// SyncRoster reconciles voice links against the current participant roster:
// new participants get a link, departed ones are torn down. Calling it with
// an unchanged roster is a no-op.
func (c *Coordinator) SyncRoster(roster []domain.Participant) {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}

	current := make(map[string]bool, len(roster))
	for _, p := range roster {
		if p.UserID != c.userID {
			current[p.UserID] = true
		}
	}
	c.roster = current

	var toCreate []string
	for id := range current {
		if _, ok := c.links[id]; !ok {
			toCreate = append(toCreate, id)
		}
	}
	var toClose []*link
	for id, l := range c.links {
		if !current[id] {
			delete(c.links, id)
			toClose = append(toClose, l)
		}
	}
	c.mu.Unlock()

	for _, l := range toClose {
		c.teardownLink(l, true)
	}
	for _, id := range toCreate {
		if err := c.establishLink(id, 0); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": c.roomID,
				"peer_id": id,
			}).WithError(err).Error("Failed to establish voice link")
		}
	}
}

// ToggleMute controls whether captured samples reach the local track. The
// capture source keeps running so unmuting is instant.
func (c *Coordinator) ToggleMute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

// Muted reports the current mute state.
func (c *Coordinator) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// LeaveVoice tears down every link, stops the capture pump and removes
// this session's signaling documents from the store. Idempotent.
func (c *Coordinator) LeaveVoice(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return nil
	}
	c.joined = false
	capture := c.capture
	c.capture = nil
	c.localTrack = nil
	links := c.links
	c.links = make(map[string]*link)
	c.roster = make(map[string]bool)
	c.mu.Unlock()

	if capture != nil {
		if err := capture.Close(); err != nil {
			logrus.WithField("user_id", c.userID).WithError(err).Warn("Failed to close capture source")
		}
	}
	for _, l := range links {
		c.teardownLink(l, true)
	}

	logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"user_id": c.userID,
	}).Info("Left voice")
	return nil
}

// LinkedPeers returns the ids of peers with an active link, for tests and
// diagnostics.
func (c *Coordinator) LinkedPeers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.links))
	for id := range c.links {
		out = append(out, id)
	}
	return out
}

func (c *Coordinator) pumpSamples(capture CaptureSource, track *webrtc.TrackLocalStaticSample) {
	for {
		sample, err := capture.NextSample()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithField("user_id", c.userID).WithError(err).Warn("Capture source failed")
			}
			return
		}
		if c.Muted() {
			continue
		}
		if err := track.WriteSample(sample); err != nil {
			logrus.WithField("user_id", c.userID).WithError(err).Warn("Failed to write audio sample")
			return
		}
	}
}

// establishLink builds the peer connection and signaling subscriptions for
// one remote peer. attempts carries the reconnect count across rebuilds.
func (c *Coordinator) establishLink(remoteID string, attempts int) error {
	c.mu.Lock()
	if !c.joined || !c.roster[remoteID] {
		c.mu.Unlock()
		return nil
	}
	if _, exists := c.links[remoteID]; exists {
		c.mu.Unlock()
		return nil
	}
	ctx := c.ctx
	localTrack := c.localTrack
	c.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: c.iceServers})
	if err != nil {
		return fmt.Errorf("voice: create peer connection for %s: %w", remoteID, err)
	}
	if localTrack != nil {
		if _, err := pc.AddTrack(localTrack); err != nil {
			_ = pc.Close()
			return fmt.Errorf("voice: add local track for %s: %w", remoteID, err)
		}
	}

	l := &link{
		remoteID: remoteID,
		offerer:  c.userID < remoteID,
		attempts: attempts,
		pc:       pc,
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.onRemoteTrack(remoteID, track, receiver)
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		if _, err := c.store.AddToCollection(ctx, store.CandidatePath(c.roomID, c.userID, remoteID), init); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": c.roomID,
				"peer_id": remoteID,
			}).WithError(err).Warn("Failed to publish ICE candidate")
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.onPeerState(remoteID, state)
		if state == webrtc.PeerConnectionStateFailed {
			c.handleLinkFailure(remoteID)
		}
	})

	// Watch the counterpart's direction for its description and candidates.
	unsubSignal, err := c.store.SubscribeDocument(ctx, store.SignalPath(c.roomID, remoteID, c.userID), func(data []byte) {
		c.handleSignal(l, data)
	})
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("voice: subscribe signal for %s: %w", remoteID, err)
	}
	unsubCands, err := c.store.SubscribeCollection(ctx, store.CandidatePath(c.roomID, remoteID, c.userID), func(ev store.ChildEvent) {
		if ev.Type == store.ChildRemoved {
			return
		}
		c.handleCandidate(l, ev.Data)
	})
	if err != nil {
		unsubSignal()
		_ = pc.Close()
		return fmt.Errorf("voice: subscribe candidates for %s: %w", remoteID, err)
	}
	l.unsubSignal = unsubSignal
	l.unsubCands = unsubCands

	c.mu.Lock()
	if !c.joined || !c.roster[remoteID] {
		c.mu.Unlock()
		c.teardownLink(l, true)
		return nil
	}
	c.links[remoteID] = l
	c.mu.Unlock()

	// The counterpart may already have signaled before this session
	// subscribed; replay whatever is in the store.
	c.replayExisting(ctx, l)

	if l.offerer {
		if err := c.sendOffer(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) replayExisting(ctx context.Context, l *link) {
	if data, err := c.store.GetDocument(ctx, store.SignalPath(c.roomID, l.remoteID, c.userID)); err == nil {
		c.handleSignal(l, data)
	}
	if children, err := c.store.ListCollection(ctx, store.CandidatePath(c.roomID, l.remoteID, c.userID)); err == nil {
		for _, data := range children {
			c.handleCandidate(l, data)
		}
	}
}

func (c *Coordinator) sendOffer(ctx context.Context, l *link) error {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("voice: create offer for %s: %w", l.remoteID, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("voice: set local description for %s: %w", l.remoteID, err)
	}
	msg := signalMessage{Type: "offer", SDP: offer.SDP}
	if err := c.store.SetDocument(ctx, store.SignalPath(c.roomID, c.userID, l.remoteID), msg); err != nil {
		return fmt.Errorf("voice: publish offer for %s: %w", l.remoteID, err)
	}
	return nil
}

// handleSignal processes the counterpart's offer or answer. ICE candidates
// that arrived before the remote description are flushed right after it is
// applied.
func (c *Coordinator) handleSignal(l *link, data []byte) {
	if data == nil {
		return
	}
	var msg signalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logrus.WithField("peer_id", l.remoteID).WithError(err).Warn("Dropping malformed signal")
		return
	}

	c.mu.Lock()
	if l.closed {
		c.mu.Unlock()
		return
	}
	switch {
	case l.offerer && msg.Type == "answer":
		// fall through to apply
	case !l.offerer && msg.Type == "offer":
		// fall through to apply
	default:
		c.mu.Unlock()
		return
	}
	if l.remoteDescSet {
		c.mu.Unlock()
		return
	}
	pc := l.pc
	ctx := c.ctx
	c.mu.Unlock()

	sdpType := webrtc.SDPTypeOffer
	if msg.Type == "answer" {
		sdpType = webrtc.SDPTypeAnswer
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: msg.SDP}); err != nil {
		logrus.WithField("peer_id", l.remoteID).WithError(err).Error("Failed to set remote description")
		return
	}

	c.mu.Lock()
	l.remoteDescSet = true
	pending := l.pending
	l.pending = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := pc.AddICECandidate(cand); err != nil {
			logrus.WithField("peer_id", l.remoteID).WithError(err).Warn("Failed to add queued ICE candidate")
		}
	}

	if !l.offerer {
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			logrus.WithField("peer_id", l.remoteID).WithError(err).Error("Failed to create answer")
			return
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			logrus.WithField("peer_id", l.remoteID).WithError(err).Error("Failed to set local description")
			return
		}
		reply := signalMessage{Type: "answer", SDP: answer.SDP}
		if err := c.store.SetDocument(ctx, store.SignalPath(c.roomID, c.userID, l.remoteID), reply); err != nil {
			logrus.WithField("peer_id", l.remoteID).WithError(err).Error("Failed to publish answer")
		}
	}
}

// handleCandidate applies a remote ICE candidate, queueing it if the
// remote description has not been set yet.
func (c *Coordinator) handleCandidate(l *link, data []byte) {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(data, &cand); err != nil {
		logrus.WithField("peer_id", l.remoteID).WithError(err).Warn("Dropping malformed ICE candidate")
		return
	}

	c.mu.Lock()
	if l.closed {
		c.mu.Unlock()
		return
	}
	if !l.remoteDescSet {
		l.pending = append(l.pending, cand)
		c.mu.Unlock()
		return
	}
	pc := l.pc
	c.mu.Unlock()

	if err := pc.AddICECandidate(cand); err != nil {
		logrus.WithField("peer_id", l.remoteID).WithError(err).Warn("Failed to add ICE candidate")
	}
}

// handleLinkFailure rebuilds a failed link with exponential backoff, giving
// up after maxReconnectAttempts.
func (c *Coordinator) handleLinkFailure(remoteID string) {
	c.mu.Lock()
	l, ok := c.links[remoteID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.links, remoteID)
	attempts := l.attempts + 1
	stillWanted := c.joined && c.roster[remoteID]
	c.mu.Unlock()

	// Remove this side's offer/answer and candidates along with the link.
	// Left in place, the counterpart's rebuilt link would replay them and
	// spend reconnect attempts on the failed attempt's ICE credentials.
	c.teardownLink(l, true)

	if !stillWanted || attempts > maxReconnectAttempts {
		logrus.WithFields(logrus.Fields{
			"room_id":  c.roomID,
			"peer_id":  remoteID,
			"attempts": attempts - 1,
		}).Warn("Giving up on voice link")
		return
	}

	delay := reconnectBaseDelay << (attempts - 1)
	logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"peer_id": remoteID,
		"attempt": attempts,
		"delay":   delay.String(),
	}).Info("Rebuilding failed voice link")
	time.AfterFunc(delay, func() {
		if err := c.establishLink(remoteID, attempts); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": c.roomID,
				"peer_id": remoteID,
			}).WithError(err).Error("Voice link rebuild failed")
		}
	})
}

// teardownLink closes the peer connection and, when cleanStore is set,
// removes this session's signaling documents for the pair.
func (c *Coordinator) teardownLink(l *link, cleanStore bool) {
	c.mu.Lock()
	if l.closed {
		c.mu.Unlock()
		return
	}
	l.closed = true
	ctx := c.ctx
	c.mu.Unlock()

	if l.unsubSignal != nil {
		l.unsubSignal()
	}
	if l.unsubCands != nil {
		l.unsubCands()
	}
	if l.pc != nil {
		if err := l.pc.Close(); err != nil {
			logrus.WithField("peer_id", l.remoteID).WithError(err).Warn("Failed to close peer connection")
		}
	}

	if !cleanStore {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	candPath := store.CandidatePath(c.roomID, c.userID, l.remoteID)
	if children, err := c.store.ListCollection(ctx, candPath); err == nil {
		for id := range children {
			_ = c.store.DeleteDocument(ctx, candPath+"/"+id)
		}
	}
	_ = c.store.DeleteDocument(ctx, store.SignalPath(c.roomID, c.userID, l.remoteID))
}

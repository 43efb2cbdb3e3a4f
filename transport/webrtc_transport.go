package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/meshnet/meshcore/crypto"
)

// ErrNoSignaler is returned by Connect when no Signaler has been wired in.
var ErrNoSignaler = errors.New("transport: webrtc signaler not configured")

// SignalKind tags a SignalMessage's payload.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// SignalMessage is the out-of-band offer/answer/ICE-candidate exchange a
// WebRTC connection needs before any data channel can open. Actually
// delivering these to the remote peer is the caller's responsibility —
// commonly by relaying them through an already-connected transport or
// storing them in the DHT under the peer's NodeID — which is why this
// adapter takes a Signaler rather than opening a signaling socket itself.
type SignalMessage struct {
	Kind      SignalKind              `json:"kind"`
	SDP       string                  `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Signaler delivers a SignalMessage to peer through whatever side channel
// the caller has available.
type Signaler interface {
	SendSignal(ctx context.Context, peer crypto.NodeID, msg SignalMessage) error
}

// WebRTCConfig configures ICE server discovery for NAT traversal.
type WebRTCConfig struct {
	ICEServers []string
}

// DefaultWebRTCConfig returns a baseline public-STUN configuration,
// sufficient for peers without symmetric NATs; callers behind restrictive
// NATs should supply their own TURN servers.
func DefaultWebRTCConfig() WebRTCConfig {
	return WebRTCConfig{ICEServers: []string{"stun:stun.l.google.com:19302"}}
}

type webrtcPeer struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel
}

// WebRTC is a thin Transport adapter over a single pion/webrtc data
// channel per peer. It does not run a signaling server: offers, answers,
// and ICE candidates are handed to a caller-supplied Signaler and received
// via HandleSignal, so the caller can route them over any channel already
// available (an existing transport connection, a DHT-stored rendezvous
// record, etc).
type WebRTC struct {
	config   WebRTCConfig
	signaler Signaler

	mu    sync.Mutex
	peers map[crypto.NodeID]*webrtcPeer
	cb    Callbacks
}

// NewWebRTC creates a WebRTC transport adapter. signaler may be nil at
// construction and set later via SetSignaler, to break an initialization
// cycle with whatever transport carries the signaling traffic.
func NewWebRTC(config WebRTCConfig, signaler Signaler) *WebRTC {
	return &WebRTC{config: config, signaler: signaler, peers: make(map[crypto.NodeID]*webrtcPeer)}
}

// SetSignaler wires (or replaces) the out-of-band signaling channel.
func (w *WebRTC) SetSignaler(signaler Signaler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signaler = signaler
}

// Kind implements Transport.
func (w *WebRTC) Kind() Kind { return KindWebRTC }

// Start implements Transport.
func (w *WebRTC) Start(callbacks Callbacks) error {
	w.mu.Lock()
	w.cb = callbacks
	w.mu.Unlock()
	return nil
}

// Stop implements Transport.
func (w *WebRTC) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for peer, p := range w.peers {
		p.pc.Close()
		delete(w.peers, peer)
	}
	return nil
}

func (w *WebRTC) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(w.config.ICEServers))
	for _, url := range w.config.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return servers
}

// Connect implements Transport: creates a PeerConnection and data channel,
// generates an offer, and hands it to the Signaler. The connection is not
// usable until HandleSignal delivers the remote answer and the data
// channel reports open — Connect itself does not block on that.
func (w *WebRTC) Connect(ctx context.Context, peer crypto.NodeID, hint string) error {
	w.mu.Lock()
	signaler := w.signaler
	w.mu.Unlock()
	if signaler == nil {
		return ErrNoSignaler
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: w.iceServers()})
	if err != nil {
		return err
	}

	dc, err := pc.CreateDataChannel("mesh", nil)
	if err != nil {
		pc.Close()
		return err
	}

	entry := &webrtcPeer{pc: pc, dc: dc}
	w.mu.Lock()
	w.peers[peer] = entry
	w.mu.Unlock()

	w.wireDataChannel(peer, dc)
	w.wireICECandidates(peer, pc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}

	return signaler.SendSignal(ctx, peer, SignalMessage{Kind: SignalOffer, SDP: offer.SDP})
}

// HandleSignal processes an inbound offer, answer, or ICE candidate
// relayed by the caller's signaling channel.
func (w *WebRTC) HandleSignal(ctx context.Context, peer crypto.NodeID, msg SignalMessage) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "WebRTC.HandleSignal",
		"package":  "transport",
		"peer":     peer.String(),
		"kind":     string(msg.Kind),
	})

	switch msg.Kind {
	case SignalOffer:
		return w.handleOffer(ctx, peer, msg.SDP)
	case SignalAnswer:
		return w.handleAnswer(peer, msg.SDP)
	case SignalCandidate:
		return w.handleCandidate(peer, msg.Candidate)
	default:
		logger.Warn("unknown signal kind")
		return errors.New("transport: unknown signal kind")
	}
}

func (w *WebRTC) handleOffer(ctx context.Context, peer crypto.NodeID, sdp string) error {
	w.mu.Lock()
	signaler := w.signaler
	w.mu.Unlock()
	if signaler == nil {
		return ErrNoSignaler
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: w.iceServers()})
	if err != nil {
		return err
	}

	entry := &webrtcPeer{pc: pc}
	w.mu.Lock()
	w.peers[peer] = entry
	w.mu.Unlock()

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		w.mu.Lock()
		entry.dc = dc
		w.mu.Unlock()
		w.wireDataChannel(peer, dc)
	})
	w.wireICECandidates(peer, pc)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}

	return signaler.SendSignal(ctx, peer, SignalMessage{Kind: SignalAnswer, SDP: answer.SDP})
}

func (w *WebRTC) handleAnswer(peer crypto.NodeID, sdp string) error {
	w.mu.Lock()
	entry, ok := w.peers[peer]
	w.mu.Unlock()
	if !ok {
		return ErrPeerNotFound
	}
	return entry.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (w *WebRTC) handleCandidate(peer crypto.NodeID, candidate *webrtc.ICECandidateInit) error {
	if candidate == nil {
		return errors.New("transport: nil ICE candidate")
	}
	w.mu.Lock()
	entry, ok := w.peers[peer]
	w.mu.Unlock()
	if !ok {
		return ErrPeerNotFound
	}
	return entry.pc.AddICECandidate(*candidate)
}

func (w *WebRTC) wireICECandidates(peer crypto.NodeID, pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		w.mu.Lock()
		signaler := w.signaler
		w.mu.Unlock()
		if signaler == nil {
			return
		}
		init := candidate.ToJSON()
		signaler.SendSignal(context.Background(), peer, SignalMessage{Kind: SignalCandidate, Candidate: &init})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			w.mu.Lock()
			delete(w.peers, peer)
			cb := w.cb
			w.mu.Unlock()
			if cb.OnPeerDisconnected != nil {
				cb.OnPeerDisconnected(peer)
			}
		}
	})
}

func (w *WebRTC) wireDataChannel(peer crypto.NodeID, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		w.mu.Lock()
		cb := w.cb
		w.mu.Unlock()
		if cb.OnPeerConnected != nil {
			cb.OnPeerConnected(peer)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		w.mu.Lock()
		cb := w.cb
		w.mu.Unlock()
		if cb.OnMessage != nil {
			cb.OnMessage(peer, msg.Data)
		}
	})
}

// Disconnect implements Transport.
func (w *WebRTC) Disconnect(peer crypto.NodeID) error {
	w.mu.Lock()
	entry, ok := w.peers[peer]
	delete(w.peers, peer)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.pc.Close()
}

// Send implements Transport.
func (w *WebRTC) Send(peer crypto.NodeID, data []byte) error {
	w.mu.Lock()
	entry, ok := w.peers[peer]
	w.mu.Unlock()
	if !ok || entry.dc == nil {
		return ErrPeerNotFound
	}
	if entry.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrConnectionClosed
	}
	return entry.dc.Send(data)
}

// MarshalSignal and UnmarshalSignal are convenience helpers for callers
// relaying SignalMessage over a byte-oriented side channel (e.g. wrapped
// in a mesh control message).
func MarshalSignal(msg SignalMessage) ([]byte, error) { return json.Marshal(msg) }

func UnmarshalSignal(data []byte) (SignalMessage, error) {
	var msg SignalMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

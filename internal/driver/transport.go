package driver

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/aleph-go/poset/config"
	"github.com/aleph-go/poset/internal/log"
	"github.com/aleph-go/poset/pkg/crypto"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/control"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
)

// peerstoreTTL mirrors the teacher's persisted-peer TTL; a static committee
// book never expires.
const peerstoreTTL = peerstore.PermanentAddrTTL

// PeerIdentity derives a committee member's libp2p Ed25519 keypair from its
// secp256k1 protocol public key: Ed25519 keys are fully determined by a
// 32-byte seed, so hashing the compressed signing key gives every process
// an identical, independently-computable peer ID for every other member
// without distributing a second keypair out of band. Real authentication
// for the protocol still rests on the secp256k1 signatures over units
// (§4.2); this identity only has to get two committee hosts connected to
// each other.
func PeerIdentity(signingPubKey []byte) (libp2pcrypto.PrivKey, peer.ID, error) {
	seed := crypto.Hash(signingPubKey)
	priv, _, err := libp2pcrypto.GenerateEd25519Key(bytes.NewReader(seed[:]))
	if err != nil {
		return nil, "", fmt.Errorf("derive peer identity: %w", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, "", fmt.Errorf("derive peer id: %w", err)
	}
	return priv, id, nil
}

// PeerIDFor returns the peer ID a committee member with the given signing
// public key would derive for itself, letting any process address any
// other purely from committee config.
func PeerIDFor(signingPubKey []byte) (peer.ID, error) {
	_, id, err := PeerIdentity(signingPubKey)
	return id, err
}

// committeeGater restricts dialing and accepting connections to the static
// committee address book, adapted from the teacher's banGater: there the
// gate rejected banned peers, here it rejects everyone NOT a committee
// member, since this process never needs to talk to anyone else.
type committeeGater struct {
	allowed map[peer.ID]bool
}

func newCommitteeGater(members []config.Member) (*committeeGater, error) {
	allowed := make(map[peer.ID]bool, len(members))
	for _, m := range members {
		pub, err := m.PubKeyBytes()
		if err != nil {
			return nil, err
		}
		id, err := PeerIDFor(pub)
		if err != nil {
			return nil, err
		}
		allowed[id] = true
	}
	return &committeeGater{allowed: allowed}, nil
}

func (g *committeeGater) InterceptPeerDial(p peer.ID) bool {
	return g.allowed[p]
}

func (g *committeeGater) InterceptAddrDial(p peer.ID, _ ma.Multiaddr) bool {
	return g.allowed[p]
}

func (g *committeeGater) InterceptAccept(_ network.ConnMultiaddrs) bool {
	return true
}

func (g *committeeGater) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return g.allowed[p]
}

func (g *committeeGater) InterceptUpgraded(_ network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}

// Transport wraps a libp2p host scoped to a single committee: every other
// member's address and peer ID are known at construction time, so there is
// no discovery layer (no DHT, no mDNS, no seed list) to run, unlike the
// teacher's general-purpose p2p.Node.
type Transport struct {
	host      host.Host
	pubsub    *pubsub.PubSub
	committee *config.Committee
	selfID    int

	mu       sync.RWMutex
	peerByID map[int]peer.ID
}

// NewTransport creates and starts a libp2p host for selfID within
// committee, binding to listenAddr:port and gating connections to
// committee members only.
func NewTransport(ctx context.Context, committee *config.Committee, selfID int, signingPubKey []byte, listenAddr string, port int) (*Transport, error) {
	priv, _, err := PeerIdentity(signingPubKey)
	if err != nil {
		return nil, err
	}

	gater, err := newCommitteeGater(committee.Members)
	if err != nil {
		return nil, fmt.Errorf("build committee gater: %w", err)
	}

	addr := fmt.Sprintf("/ip4/%s/tcp/%d", listenAddr, port)
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(addr),
		libp2p.Identity(priv),
		libp2p.ConnectionGater(gater),
	)
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithMaxMessageSize(64*1024))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("create pubsub: %w", err)
	}

	t := &Transport{
		host:      h,
		pubsub:    ps,
		committee: committee,
		selfID:    selfID,
		peerByID:  make(map[int]peer.ID),
	}
	for i, m := range committee.Members {
		if i == selfID {
			continue
		}
		pub, err := m.PubKeyBytes()
		if err != nil {
			h.Close()
			return nil, err
		}
		id, err := PeerIDFor(pub)
		if err != nil {
			h.Close()
			return nil, err
		}
		t.mu.Lock()
		t.peerByID[i] = id
		t.mu.Unlock()

		maddr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", m.Address, m.Port))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("member %d address: %w", i, err)
		}
		h.Peerstore().AddAddr(id, maddr, peerstoreTTL)
	}

	log.Driver.Info().Int("self_id", selfID).Str("peer_id", h.ID().String()).Int("committee_size", committee.N()).Msg("transport started")
	return t, nil
}

// Host exposes the underlying libp2p host for stream registration.
func (t *Transport) Host() host.Host {
	return t.host
}

// PubSub exposes the shared GossipSub instance for auxiliary topics (the
// coin bus).
func (t *Transport) PubSub() *pubsub.PubSub {
	return t.pubsub
}

// PeerID returns the peer ID of committee member creatorID.
func (t *Transport) PeerID(creatorID int) (peer.ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.peerByID[creatorID]
	return id, ok
}

// Connect dials committee member creatorID if not already connected.
func (t *Transport) Connect(ctx context.Context, creatorID int) error {
	id, ok := t.PeerID(creatorID)
	if !ok {
		return fmt.Errorf("unknown committee member %d", creatorID)
	}
	if t.host.Network().Connectedness(id) == network.Connected {
		return nil
	}
	return t.host.Connect(ctx, t.host.Peerstore().PeerInfo(id))
}

// Close tears down the host.
func (t *Transport) Close() error {
	return t.host.Close()
}

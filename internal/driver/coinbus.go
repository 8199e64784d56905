package driver

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/aleph-go/poset/internal/coin"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
)

// CoinShareObserver is fed shares learned from the bus, mirroring
// order.Engine.ObserveShare without binding this package to internal/order.
type CoinShareObserver interface {
	ObserveShare(creatorID, level int, share coin.Share)
}

// CoinBus broadcasts and collects threshold coin shares over GossipSub,
// adapted from the teacher's heartbeat topic (same join/publish/read-loop
// shape) so a quorum can combine a level's coin before every carrying
// unit has arrived over pairwise sync (§4.4).
type CoinBus struct {
	ps     *pubsub.PubSub
	selfID peer.ID
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoinBus joins CoinShareTopic on the transport's pubsub instance.
func NewCoinBus(ctx context.Context, ps *pubsub.PubSub, selfID peer.ID) (*CoinBus, error) {
	topic, err := ps.Join(string(CoinShareTopic))
	if err != nil {
		return nil, fmt.Errorf("join coin topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return nil, fmt.Errorf("subscribe coin topic: %w", err)
	}
	busCtx, cancel := context.WithCancel(ctx)
	return &CoinBus{ps: ps, selfID: selfID, topic: topic, sub: sub, ctx: busCtx, cancel: cancel}, nil
}

// Run reads the topic until the bus is closed, forwarding every well-formed
// share from another peer to observer; verifying it is left to observer.
func (b *CoinBus) Run(observer CoinShareObserver) {
	for {
		msg, err := b.sub.Next(b.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == b.selfID {
			continue
		}
		creatorID, level, share, ok := decodeCoinShareMessage(msg.Data)
		if !ok {
			continue
		}
		observer.ObserveShare(creatorID, level, share)
	}
}

// Broadcast publishes creatorID's coin share for level.
func (b *CoinBus) Broadcast(creatorID, level int, share coin.Share) error {
	return b.topic.Publish(b.ctx, encodeCoinShareMessage(creatorID, level, share))
}

// Close tears down the subscription and topic.
func (b *CoinBus) Close() {
	b.cancel()
	b.sub.Cancel()
	b.topic.Close()
}

// encodeCoinShareMessage lays out creator_id(4) || level(4) || share, a
// fixed binary frame matching the rest of the package's convention of
// avoiding json/gob for anything consensus-adjacent.
func encodeCoinShareMessage(creatorID, level int, share coin.Share) []byte {
	buf := make([]byte, 8+len(share))
	binary.BigEndian.PutUint32(buf[0:4], uint32(creatorID))
	binary.BigEndian.PutUint32(buf[4:8], uint32(level))
	copy(buf[8:], share)
	return buf
}

func decodeCoinShareMessage(data []byte) (creatorID, level int, share coin.Share, ok bool) {
	if len(data) < 8 {
		return 0, 0, nil, false
	}
	creatorID = int(binary.BigEndian.Uint32(data[0:4]))
	level = int(binary.BigEndian.Uint32(data[4:8]))
	share = coin.Share(data[8:])
	return creatorID, level, share, true
}


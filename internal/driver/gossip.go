package driver

import (
	"context"
	"math/rand"
	"time"

	"github.com/aleph-go/poset/config"
	"github.com/aleph-go/poset/internal/log"
	"github.com/aleph-go/poset/internal/unit"
)

// GossipInitiator runs the gossip-initiator loop (§4.5): every SyncPeriod
// it picks a target per the configured strategy and runs the sync
// protocol against it as initiator.
type GossipInitiator struct {
	selfID   int
	n        int
	strategy config.GossipStrategy
	period   time.Duration
	syncer   *Syncer

	rng *rand.Rand

	lastSyncID map[int]int
	syncCount  int
}

// NewGossipInitiator constructs the initiator loop for selfID.
func NewGossipInitiator(selfID, n int, strategy config.GossipStrategy, period time.Duration, syncer *Syncer) *GossipInitiator {
	return &GossipInitiator{
		selfID:     selfID,
		n:          n,
		strategy:   strategy,
		period:     period,
		syncer:     syncer,
		rng:        rand.New(rand.NewSource(int64(selfID) + 17)),
		lastSyncID: make(map[int]int),
	}
}

// Run loops until ctx is cancelled, opening one sync as initiator every
// period.
func (g *GossipInitiator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.syncOnce(ctx)
		}
	}
}

func (g *GossipInitiator) syncOnce(ctx context.Context) {
	target, ok := g.pickTarget()
	if !ok {
		return
	}
	if err := g.syncer.SyncWith(ctx, target); err != nil {
		log.Sync.Debug().Err(err).Int("target", target).Msg("gossip-initiated sync failed")
		return
	}
	g.syncCount++
	g.lastSyncID[target] = g.syncCount
}

func (g *GossipInitiator) pickTarget() (int, bool) {
	var pool []int
	switch g.strategy {
	case config.GossipNonRecentRandom:
		staleBefore := g.syncCount - g.n/3
		for creator := 0; creator < g.n; creator++ {
			if creator == g.selfID {
				continue
			}
			if last, seen := g.lastSyncID[creator]; !seen || last < staleBefore {
				pool = append(pool, creator)
			}
		}
		if len(pool) == 0 {
			// Fall back to uniform-random if every peer was synced recently.
			pool = g.allPeers()
		}
	default: // config.GossipUniformRandom
		pool = g.allPeers()
	}
	if len(pool) == 0 {
		return 0, false
	}
	return pool[g.rng.Intn(len(pool))], true
}

func (g *GossipInitiator) allPeers() []int {
	var pool []int
	for creator := 0; creator < g.n; creator++ {
		if creator != g.selfID {
			pool = append(pool, creator)
		}
	}
	return pool
}

// scheduledGossip is the trivial GossipScheduler: the creator loop already
// lets the next periodic sync pick up a freshly admitted unit, so nothing
// needs to run immediately. It exists so Creator has somewhere to report
// a new unit, matching §4.5's "schedule for gossip" without inventing a
// push-based fast path the spec never asks for.
type scheduledGossip struct{}

func (scheduledGossip) ScheduleGossip(u *unit.Unit) {}

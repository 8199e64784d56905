package driver

import (
	"sync"
	"time"

	"github.com/aleph-go/poset/internal/log"
)

// Scheduling penalties and thresholds (§7): these score a peer's recent
// sync behavior purely to steer gossip targeting away from it. Unlike
// CryptoFailure on a unit, a ban here is never part of the protocol two
// processes need to agree on — it only shapes which peer THIS process
// picks next (§6 gossip-initiator target selection).
const (
	BanThreshold = 100
	BanDuration  = 10 * time.Minute

	PenaltyProtocolViolation = 50
	PenaltyUnitNonCompliant  = 20
)

// BanRecord is one scheduling-level ban, held only in memory: adapted
// from the teacher's persisted BanRecord, stripped of the on-disk store
// entirely, since a restarted process has no use for a stale penalty
// history.
type BanRecord struct {
	CreatorID int
	Reason    string
	ExpiresAt time.Time
}

func (r *BanRecord) expired() bool {
	return time.Now().After(r.ExpiresAt)
}

// BanManager tracks per-creator offense scores for gossip scheduling. It
// never persists to disk (the Non-goals drop on-disk ban storage); a
// restart starts every peer at a clean slate.
type BanManager struct {
	mu     sync.Mutex
	scores map[int]int
	bans   map[int]*BanRecord
}

// NewBanManager creates an empty, in-memory ban manager.
func NewBanManager() *BanManager {
	return &BanManager{
		scores: make(map[int]int),
		bans:   make(map[int]*BanRecord),
	}
}

// RecordOffense adds penalty to creatorID's score; crossing BanThreshold
// drops it from the active sync rotation for BanDuration.
func (bm *BanManager) RecordOffense(creatorID int, penalty int, reason string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if rec, ok := bm.bans[creatorID]; ok && !rec.expired() {
		return
	}

	bm.scores[creatorID] += penalty
	if bm.scores[creatorID] < BanThreshold {
		return
	}

	rec := &BanRecord{
		CreatorID: creatorID,
		Reason:    reason,
		ExpiresAt: time.Now().Add(BanDuration),
	}
	bm.bans[creatorID] = rec
	delete(bm.scores, creatorID)

	log.Driver.Warn().Int("creator_id", creatorID).Str("reason", reason).Msg("peer dropped from sync rotation")
}

// IsBanned reports whether creatorID is currently excluded from the sync
// rotation.
func (bm *BanManager) IsBanned(creatorID int) bool {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	rec, ok := bm.bans[creatorID]
	if !ok {
		return false
	}
	if rec.expired() {
		delete(bm.bans, creatorID)
		return false
	}
	return true
}

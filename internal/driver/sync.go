package driver

import (
	"bufio"
	"context"
	"fmt"
	"sort"

	"github.com/aleph-go/poset/internal/log"
	"github.com/aleph-go/poset/internal/poset"
	"github.com/aleph-go/poset/internal/unit"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

// AdmissionSink is what a received, compliant unit is handed to once
// admitted: the poset store plus whichever order engine is active
// (§4.4's Engine or SNAP, mutually exclusive).
type AdmissionSink interface {
	OnUnitAdmitted(u *unit.Unit)
}

// Syncer runs both sides of the symmetric pairwise sync exchange (§6),
// grounded on the teacher's Syncer but replacing JSON-framed block
// requests with the canonical length-prefixed UnitWire exchange the
// protocol requires for anything consensus-relevant.
type Syncer struct {
	selfID    int
	transport *Transport
	poset     *poset.Poset
	sink      AdmissionSink
	bans      *BanManager

	// inbound bounds concurrent inbound syncs at K_RECV (§4.5, §5); a
	// slot beyond capacity is rejected immediately rather than queued.
	inbound chan struct{}
}

// NewSyncer creates a syncer for selfID, wired to p for local state and
// sink for newly-admitted units. kRecv caps concurrent inbound syncs.
func NewSyncer(selfID int, transport *Transport, p *poset.Poset, sink AdmissionSink, bans *BanManager, kRecv int) *Syncer {
	if kRecv <= 0 {
		kRecv = 1
	}
	return &Syncer{selfID: selfID, transport: transport, poset: p, sink: sink, bans: bans, inbound: make(chan struct{}, kRecv)}
}

// RegisterHandler installs the inbound stream handler for SyncProtocol:
// this process is the "target" side of steps 1-4.
func (s *Syncer) RegisterHandler() {
	s.transport.Host().SetStreamHandler(SyncProtocol, func(stream network.Stream) {
		defer stream.Close()

		select {
		case s.inbound <- struct{}{}:
			defer func() { <-s.inbound }()
		default:
			log.Sync.Debug().Str("peer", stream.Conn().RemotePeer().String()).Msg("inbound sync rejected: K_RECV exceeded")
			return
		}

		if err := s.respond(stream); err != nil {
			log.Sync.Warn().Err(err).Str("peer", stream.Conn().RemotePeer().String()).Msg("sync (responder) failed")
		}
	})
}

// SyncWith runs the sync protocol as initiator against committee member
// creatorID (§6 "Gossip initiator").
func (s *Syncer) SyncWith(ctx context.Context, creatorID int) error {
	if s.bans.IsBanned(creatorID) {
		return fmt.Errorf("creator %d is dropped from the sync rotation", creatorID)
	}
	peerID, ok := s.transport.PeerID(creatorID)
	if !ok {
		return fmt.Errorf("unknown committee member %d", creatorID)
	}
	if err := s.transport.Connect(ctx, creatorID); err != nil {
		return fmt.Errorf("connect to %d: %w", creatorID, err)
	}

	stream, err := s.transport.Host().NewStream(ctx, peerID, SyncProtocol)
	if err != nil {
		return fmt.Errorf("open sync stream: %w", err)
	}
	defer stream.Close()

	if err := s.initiate(stream); err != nil {
		s.bans.RecordOffense(creatorID, PenaltyProtocolViolation, err.Error())
		return err
	}
	return nil
}

// initiate runs steps 1, 2 (as sender then receiver of state), 3, 4, 5 from
// the initiator's seat.
func (s *Syncer) initiate(stream network.Stream) error {
	r := bufio.NewReader(stream)

	ownState := s.localState()
	if err := writeFrame(stream, encodeState(ownState)); err != nil {
		return err
	}

	targetFrame, err := readFrame(r)
	if err != nil {
		return err
	}
	targetState, err := decodeState(targetFrame)
	if err != nil {
		return err
	}

	// Step 3: initiator -> target, everything target is missing.
	toSend := s.missingFor(ownState, targetState)
	if err := writeFrame(stream, encodeBatch(unitBatch{Units: toSend})); err != nil {
		return err
	}

	// Step 4: target -> initiator, everything this process is missing.
	batchFrame, err := readFrame(r)
	if err != nil {
		return err
	}
	batch, err := decodeBatch(batchFrame)
	if err != nil {
		return err
	}

	return s.admitBatch(batch.Units)
}

// respond runs steps 2, 1 (receive then send state), 4, 3, 5 from the
// target's seat — symmetric to initiate but reading state first.
func (s *Syncer) respond(stream network.Stream) error {
	r := bufio.NewReader(stream)

	initFrame, err := readFrame(r)
	if err != nil {
		return err
	}
	initState, err := decodeState(initFrame)
	if err != nil {
		return err
	}

	ownState := s.localState()
	if err := writeFrame(stream, encodeState(ownState)); err != nil {
		return err
	}

	batchFrame, err := readFrame(r)
	if err != nil {
		return err
	}
	batch, err := decodeBatch(batchFrame)
	if err != nil {
		return err
	}

	toSend := s.missingFor(ownState, initState)
	if err := writeFrame(stream, encodeBatch(unitBatch{Units: toSend})); err != nil {
		return err
	}

	if err := s.admitBatch(batch.Units); err != nil {
		s.bans.RecordOffense(initState.ProcessID, PenaltyProtocolViolation, err.Error())
		return err
	}
	return nil
}

func (s *Syncer) localState() stateMessage {
	heights, hashes := s.poset.MaxHeightsAndHashes()
	return stateMessage{ProcessID: s.selfID, Heights: heights, Hashes: hashes}
}

// missingFor returns, for every creator where mine.Heights[p] >
// theirs.Heights[p], every admitted unit by p between theirs.Heights[p]+1
// and mine.Heights[p] inclusive (step 3/4, covering all fork branches).
func (s *Syncer) missingFor(mine, theirs stateMessage) []*unit.Unit {
	var out []*unit.Unit
	for creator := 0; creator < s.poset.N(); creator++ {
		if mine.Heights[creator] <= theirs.Heights[creator] {
			continue
		}
		units := s.poset.UnitsByCreatorBetween(creator, theirs.Heights[creator]+1, mine.Heights[creator])
		out = append(out, units...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatorID != out[j].CreatorID {
			return out[i].CreatorID < out[j].CreatorID
		}
		return out[i].Height < out[j].Height
	})
	return out
}

// admitBatch runs compliance + admission over received units in sender
// order; a compliance failure aborts the sync without admitting any of
// the remaining units from that batch (§6 step 5).
func (s *Syncer) admitBatch(units []*unit.Unit) error {
	for _, u := range units {
		if s.poset.Contains(u.Hash()) {
			continue
		}
		if err := s.poset.Check(u); err != nil {
			return fmt.Errorf("%w: unit from creator %d: %v", ErrProtocolViolation, u.CreatorID, err)
		}
		s.poset.Add(u)
		s.sink.OnUnitAdmitted(u)
	}
	return nil
}


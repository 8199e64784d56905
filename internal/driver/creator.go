package driver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/aleph-go/poset/config"
	"github.com/aleph-go/poset/internal/coin"
	"github.com/aleph-go/poset/internal/log"
	"github.com/aleph-go/poset/internal/poset"
	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/crypto"
)

// GossipScheduler is asked, once a unit is admitted locally, to schedule
// it for gossip; the creator loop itself never dials peers (§4.5 "sign,
// admit locally, schedule for gossip").
type GossipScheduler interface {
	ScheduleGossip(u *unit.Unit)
}

// Creator runs the unit-creation loop (§4.5): every CreatePeriod it builds,
// signs, and admits one new unit, attaching pending ingress transactions
// and, once level reaches LambdaCoin, a coin share.
type Creator struct {
	selfID int
	sk     *crypto.PrivateKey

	poset    *poset.Poset
	n        int
	limits   config.LimitsConfig
	period   time.Duration
	nParents int
	lambda   int

	oracle  coin.Oracle
	ingress <-chan []byte
	gossip  GossipScheduler
	sink    AdmissionSink

	rng *rand.Rand

	unitsCreated int
}

// NewCreator constructs the creator loop for selfID.
func NewCreator(selfID int, sk *crypto.PrivateKey, p *poset.Poset, n int, limits config.LimitsConfig, period time.Duration, nParents, lambdaCoin int, oracle coin.Oracle, ingress <-chan []byte, gossip GossipScheduler, sink AdmissionSink) *Creator {
	return &Creator{
		selfID:   selfID,
		sk:       sk,
		poset:    p,
		n:        n,
		limits:   limits,
		period:   period,
		nParents: nParents,
		lambda:   lambdaCoin,
		oracle:   oracle,
		ingress:  ingress,
		gossip:   gossip,
		sink:     sink,
		rng:      rand.New(rand.NewSource(int64(selfID) + 1)),
	}
}

// Run loops until ctx is cancelled or a configured limit is reached
// (§4.5 "stop when either a configured unit-count limit or a level limit
// is reached").
func (c *Creator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	if c.unitsCreated == 0 {
		c.createGenesis()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.limitReached() {
				log.Driver.Info().Int("process_id", c.selfID).Msg("creator loop stopping: limit reached")
				return
			}
			c.createUnit()
		}
	}
}

func (c *Creator) limitReached() bool {
	if c.limits.MaxUnits > 0 && c.unitsCreated >= c.limits.MaxUnits {
		return true
	}
	if c.limits.MaxLevel > 0 {
		for _, tip := range c.poset.MaximalUnits(c.selfID) {
			if tip.Level >= c.limits.MaxLevel {
				return true
			}
		}
	}
	return false
}

func (c *Creator) createGenesis() {
	tips := c.poset.MaximalUnits(c.selfID)
	if len(tips) > 0 {
		return // already has a unit (e.g. resumed from sync).
	}
	u := &unit.Unit{CreatorID: c.selfID}
	c.signAdmitGossip(u)
}

func (c *Creator) createUnit() {
	tips := c.poset.MaximalUnits(c.selfID)
	if len(tips) == 0 {
		c.createGenesis()
		return
	}
	selfPred := tips[0]

	candidates := c.otherMaximalUnits()
	c.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	parents := c.poset.SelectParents(selfPred, candidates, c.nParents)

	u := &unit.Unit{CreatorID: c.selfID}
	u.Parents = append(u.Parents, selfPred.Hash())
	for _, p := range parents {
		u.Parents = append(u.Parents, p.Hash())
	}
	u.Txs = c.drainIngress()

	// The new unit's own level isn't known until Add computes it from
	// max(level(parents)) (poset.computeLevelLocked); mirror that formula
	// over selfPred and the chosen parents so the coin-share decision below
	// can't undershoot a unit that a non-self parent already pushed ahead.
	level := selfPred.Level
	for _, p := range parents {
		if p.Level > level {
			level = p.Level
		}
	}
	if level >= c.lambda {
		if share, err := c.oracle.Share(c.sk, coinMessage(level)); err == nil {
			u.CoinShares = [][]byte{share}
		}
	}

	c.signAdmitGossip(u)
}

func (c *Creator) otherMaximalUnits() []*unit.Unit {
	var out []*unit.Unit
	for creator := 0; creator < c.n; creator++ {
		if creator == c.selfID || c.poset.IsForker(creator) {
			continue
		}
		out = append(out, c.poset.MaximalUnits(creator)...)
	}
	return out
}

func (c *Creator) drainIngress() [][]byte {
	var txs [][]byte
	for {
		select {
		case tx := <-c.ingress:
			txs = append(txs, tx)
		default:
			return txs
		}
	}
}

func (c *Creator) signAdmitGossip(u *unit.Unit) {
	if err := u.Sign(c.sk); err != nil {
		log.Driver.Error().Err(err).Msg("creator: sign failed")
		return
	}
	if err := c.poset.Check(u); err != nil {
		log.Driver.Error().Err(err).Msg("creator: self-produced unit failed compliance (bug)")
		return
	}
	c.poset.Add(u)
	c.unitsCreated++
	c.sink.OnUnitAdmitted(u)
	c.gossip.ScheduleGossip(u)
}

// coinMessage must match order.Engine's own coinMessage exactly: it is
// the message every verifier reconstructs from (creator_id, level) alone
// when checking a coin share carried on an admitted unit.
func coinMessage(level int) []byte {
	return []byte(fmt.Sprintf("coin||%d", level))
}

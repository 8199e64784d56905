// Package driver implements the per-process orchestration (C5): the
// creator loop, the gossip listener, and the gossip initiator, all
// sharing one poset store (§4.5, §5). They run as separate goroutines;
// the store's mutex serializes each call into it.
package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/aleph-go/poset/config"
	"github.com/aleph-go/poset/internal/coin"
	"github.com/aleph-go/poset/internal/log"
	"github.com/aleph-go/poset/internal/order"
	"github.com/aleph-go/poset/internal/poset"
	"github.com/aleph-go/poset/internal/unit"
	"github.com/aleph-go/poset/pkg/crypto"
)

// multiSink fans a newly admitted unit out to the active order component
// and, if the unit carries a coin share, the coin bus — so a share reaches
// other processes both via the authoritative sync path and, faster, via
// the auxiliary broadcast (§4.4).
type multiSink struct {
	primary AdmissionSink
	bus     *CoinBus
}

func (s *multiSink) OnUnitAdmitted(u *unit.Unit) {
	s.primary.OnUnitAdmitted(u)
	if s.bus != nil && len(u.CoinShares) > 0 {
		if err := s.bus.Broadcast(u.CreatorID, u.Level, coin.Share(u.CoinShares[0])); err != nil {
			log.Driver.Debug().Err(err).Msg("coin bus broadcast failed")
		}
	}
}

// Driver is the one supervisor owning the creator, listener, and
// gossip-initiator tasks: it cancels them on shutdown and joins, per §9's
// "one supervisor owns the three tasks, cancels them on shutdown, and
// joins".
type Driver struct {
	cfg       *config.Config
	committee *config.Committee
	sk        *crypto.PrivateKey

	poset     *poset.Poset
	verifier  *CommitteeVerifier
	transport *Transport
	syncer    *Syncer
	bans      *BanManager
	ingress   *Ingress
	coinBus   *CoinBus

	creator   *Creator
	initiator *GossipInitiator

	Engine *order.Engine
	Snap   *order.SnapValidator

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New wires every C5 component together for one process, per the
// committee and config given. The validation mode selects whether Engine
// or Snap is active (§4.4, mutually exclusive); the unused one is left nil.
func New(ctx context.Context, cfg *config.Config, committee *config.Committee, sk *crypto.PrivateKey) (*Driver, error) {
	verifier, err := NewCommitteeVerifier(committee)
	if err != nil {
		return nil, err
	}

	p := poset.New(committee.N(), verifier)
	threshold := committee.Threshold()

	d := &Driver{
		cfg:       cfg,
		committee: committee,
		sk:        sk,
		poset:     p,
		verifier:  verifier,
	}

	switch cfg.ValidationMode {
	case config.ValidationSnap:
		d.Snap = order.NewSnapValidator(p, threshold)
	case config.ValidationLinear:
		d.Engine = order.NewEngine(p, verifier, coin.NewLocalOracle(), threshold, config.LambdaCoin, config.TimingDecisionDistance, committee.NetworkID, verifier.PubKeysHex())
	case config.ValidationNone:
		// No ledger application and no linear order: units are only
		// admitted to the poset.
	default:
		return nil, fmt.Errorf("unknown validation mode %q", cfg.ValidationMode)
	}

	transport, err := NewTransport(ctx, committee, cfg.ProcessID, sk.PublicKey(), cfg.P2P.ListenAddr, cfg.P2P.Port)
	if err != nil {
		return nil, err
	}
	d.transport = transport
	d.bans = NewBanManager()

	sink := d.admissionSink()

	if bus, err := NewCoinBus(ctx, transport.PubSub(), transport.Host().ID()); err == nil {
		d.coinBus = bus
	} else {
		log.Driver.Warn().Err(err).Msg("coin bus unavailable, falling back to sync-only share propagation")
	}

	d.syncer = NewSyncer(cfg.ProcessID, transport, p, &multiSink{primary: sink, bus: d.coinBus}, d.bans, cfg.P2P.KRecv)
	d.syncer.RegisterHandler()

	if cfg.Ingress.Enabled {
		ingress, err := NewIngress(cfg.Ingress.Addr, cfg.Ingress.Port)
		if err != nil {
			return nil, err
		}
		d.ingress = ingress
	}
	var ingressQueue <-chan []byte
	if d.ingress != nil {
		ingressQueue = d.ingress.Queue()
	} else {
		ingressQueue = make(chan []byte) // Never receives; creator loop just attaches no txs.
	}

	d.creator = NewCreator(cfg.ProcessID, sk, p, committee.N(), cfg.Limits, cfg.CreatePeriod, cfg.NParents, config.LambdaCoin, coin.NewLocalOracle(), ingressQueue, scheduledGossip{}, &multiSink{primary: sink, bus: d.coinBus})
	d.initiator = NewGossipInitiator(cfg.ProcessID, committee.N(), cfg.GossipStrategy, cfg.SyncPeriod, d.syncer)

	return d, nil
}

// admissionSink picks whichever of Engine/Snap is active, or a no-op if
// validation is disabled.
func (d *Driver) admissionSink() AdmissionSink {
	switch {
	case d.Engine != nil:
		return d.Engine
	case d.Snap != nil:
		return d.Snap
	default:
		return noopSink{}
	}
}

type noopSink struct{}

func (noopSink) OnUnitAdmitted(*unit.Unit) {}

// Run starts the creator, listener (already registered in New), and
// gossip-initiator tasks, and blocks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.creator.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.initiator.Run(runCtx)
	}()
	if d.coinBus != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.coinBus.Run(d.coinShareObserver())
		}()
	}

	<-runCtx.Done()
	d.wg.Wait()
}

func (d *Driver) coinShareObserver() CoinShareObserver {
	if d.Engine != nil {
		return d.Engine
	}
	return noopObserver{}
}

type noopObserver struct{}

func (noopObserver) ObserveShare(int, int, coin.Share) {}

// Shutdown cancels the three tasks and tears down the transport and
// ingress listener, joining every goroutine before returning.
func (d *Driver) Shutdown() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	if d.coinBus != nil {
		d.coinBus.Close()
	}
	if d.ingress != nil {
		d.ingress.Close()
	}
	if d.transport != nil {
		d.transport.Close()
	}
}

// Poset exposes the underlying store, e.g. for a CLI's status reporting.
func (d *Driver) Poset() *poset.Poset {
	return d.poset
}

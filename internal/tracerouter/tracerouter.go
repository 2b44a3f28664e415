// Package tracerouter implements the two-phase, round-based scheduler that
// drives per-destination DCBs, applies proximity propagation, maintains the
// global stop-sets, paces probing against a configured rate, and hands the
// accumulated results to the graph assembler.
package tracerouter

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/flashtrace/flashtrace/internal/config"
	"github.com/flashtrace/flashtrace/internal/dcb"
	"github.com/flashtrace/flashtrace/internal/network"
	"github.com/flashtrace/flashtrace/internal/prober"
	"github.com/flashtrace/flashtrace/internal/topo"
)

const (
	preProbeDrain  = 3 * time.Second
	mainProbeDrain = 5 * time.Second
	maxRoundPace   = 1 * time.Second
	roundPaceUnit  = 20 * time.Millisecond
)

// Tracerouter owns the target set, the DCB map, the two stop-sets, and the
// topology graph-builder for one run.
type Tracerouter struct {
	opts     config.Options
	sourceIP netip.Addr
	log      *slog.Logger

	dcbs map[uint32]*dcb.DCB

	// backwardStopSet and forwardDiscoverySet are touched only from the
	// main-phase receive callback's goroutine, so they need no locking.
	backwardStopSet     map[netip.Addr]struct{}
	forwardDiscoverySet map[netip.Addr]struct{}

	topo *topo.Topo

	stopped atomic.Bool

	counters Counters
}

// Counters are the atomic run counters surfaced at summary time.
type Counters struct {
	SentPreProbes          atomic.Uint64
	RecvPreProbeResponses  atomic.Uint64
	SentMainProbes         atomic.Uint64
	RecvMainProbeResponses atomic.Uint64
}

// New builds the target set and the DCB map from opts. It performs no I/O
// beyond (optionally) reading a target list file.
func New(opts config.Options, sourceIP netip.Addr, log *slog.Logger) (*Tracerouter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.ProbingRate == 0 {
		log.Warn("tracerouter: probing_rate=0, rate limiting disabled")
	}

	targets, err := GenerateTargets(GenerateOptions{
		Targets:      opts.Targets,
		Grain:        opts.Grain,
		GlobalOnly:   opts.GlobalOnly,
		AllowPrivate: opts.AllowPrivate,
		Seed:         opts.Seed,
	})
	if err != nil {
		return nil, err
	}

	dcbs := make(map[uint32]*dcb.DCB, len(targets))
	for _, addr := range targets {
		key := AddrToKey(addr, opts.Grain)
		dcbs[key] = dcb.New(addr, opts.SplitTTL)
	}

	return &Tracerouter{
		opts:                opts,
		sourceIP:            sourceIP,
		log:                 log,
		dcbs:                dcbs,
		backwardStopSet:     make(map[netip.Addr]struct{}),
		forwardDiscoverySet: make(map[netip.Addr]struct{}),
		topo:                topo.New(sourceIP),
	}, nil
}

// Stop requests early termination. Both phases check it between probes and
// between rounds; in-flight scheduled probes may still complete.
func (t *Tracerouter) Stop() {
	t.stopped.Store(true)
}

func (t *Tracerouter) probeConfig(phase prober.Phase) prober.Config {
	return prober.Config{
		Phase:           phase,
		DstPort:         t.opts.DstPort,
		PayloadMessage:  t.opts.PayloadMessage,
		EncodeTimestamp: true,
		ChecksumSalt:    t.opts.Salt,
		StrictSrcPort:   true,
	}
}

// Run drives both phases to completion (or until Stop is called and both
// drains elapse) and returns the assembled topology graph.
func (t *Tracerouter) Run(ctx context.Context) (*topo.Graph, error) {
	go t.topo.Run()

	if err := t.runPreProbePhase(ctx); err != nil {
		return nil, err
	}
	if err := t.runMainProbePhase(ctx); err != nil {
		return nil, err
	}

	return t.topo.Stop(), nil
}

func (t *Tracerouter) runPreProbePhase(ctx context.Context) error {
	netCfg := network.Config{ProbingRate: t.opts.ProbingRate, DryRun: t.opts.DryRun, Logger: t.log}
	mgr, err := network.New(netCfg)
	if err != nil {
		return err
	}

	prb := prober.New(t.probeConfig(prober.PhasePre))
	mgr.Start(ctx, func(data []byte, peer netip.Addr) {
		t.onPreProbeResult(data, peer, prb)
	})

	for _, d := range t.dcbs {
		if t.stopped.Load() || ctx.Err() != nil {
			break
		}
		unit := prober.Unit{Dst: d.Addr, TTL: t.opts.PreprobingTTL}
		packet, err := prb.Pack(unit, t.sourceIP)
		if err != nil {
			t.log.Warn("tracerouter: pre-probe pack failed", "dst", d.Addr, "err", err)
			continue
		}
		if err := mgr.Schedule(packet, d.Addr); err != nil {
			break
		}
		t.counters.SentPreProbes.Add(1)
	}

	sleepOrDone(ctx, preProbeDrain)
	mgr.Stop()
	return nil
}

func (t *Tracerouter) onPreProbeResult(data []byte, peer netip.Addr, prb *prober.Prober) {
	result, err := prb.Parse(data, peer)
	if err != nil {
		logParseError(t.log, err)
		return
	}
	t.counters.RecvPreProbeResponses.Add(1)
	if !result.FromDestination {
		return
	}

	key := AddrToKey(result.Destination, t.opts.Grain)
	d, ok := t.dcbs[key]
	if !ok {
		return
	}
	d.UpdateSplitTTL(result.Distance, true)

	lo := int64(key) - int64(t.opts.ProximitySpan)
	if lo < 0 {
		lo = 0
	}
	hi := int64(key) + int64(t.opts.ProximitySpan)
	for k := lo; k < hi; k++ {
		if uint32(k) == key {
			continue
		}
		if neighbor, ok := t.dcbs[uint32(k)]; ok {
			neighbor.UpdateSplitTTL(result.Distance, false)
		}
	}
}

func (t *Tracerouter) runMainProbePhase(ctx context.Context) error {
	netCfg := network.Config{ProbingRate: t.opts.ProbingRate, DryRun: t.opts.DryRun, Logger: t.log}
	mgr, err := network.New(netCfg)
	if err != nil {
		return err
	}

	prb := prober.New(t.probeConfig(prober.PhaseMain))
	mgr.Start(ctx, func(data []byte, peer netip.Addr) {
		t.onMainProbeResult(data, peer, prb)
	})

	work := make([]uint32, 0, len(t.dcbs))
	for k := range t.dcbs {
		work = append(work, k)
	}

	for len(work) > 0 && !t.stopped.Load() && ctx.Err() == nil {
		roundStart := time.Now()
		next := work[:0:0]

		for _, key := range work {
			d := t.dcbs[key]
			backward, okB := d.PullBackwardTask()
			forward, okF := d.PullForwardTask()

			if !okB && !okF {
				t.topo.Done(d.Addr)
				continue
			}
			if okB {
				t.scheduleMainProbe(mgr, prb, d.Addr, backward)
			}
			if okF {
				t.scheduleMainProbe(mgr, prb, d.Addr, forward)
			}
			next = append(next, key)
		}
		work = next

		budget := roundPaceUnit * time.Duration(len(work))
		if budget > maxRoundPace {
			budget = maxRoundPace
		}
		if elapsed := time.Since(roundStart); elapsed < budget {
			sleepOrDone(ctx, budget-elapsed)
		}
	}

	sleepOrDone(ctx, mainProbeDrain)
	mgr.Stop()
	return nil
}

func (t *Tracerouter) scheduleMainProbe(mgr *network.Manager, prb *prober.Prober, dst netip.Addr, ttl uint8) {
	packet, err := prb.Pack(prober.Unit{Dst: dst, TTL: ttl}, t.sourceIP)
	if err != nil {
		t.log.Warn("tracerouter: main-probe pack failed", "dst", dst, "err", err)
		return
	}
	if err := mgr.Schedule(packet, dst); err != nil {
		return
	}
	t.counters.SentMainProbes.Add(1)
}

func (t *Tracerouter) onMainProbeResult(data []byte, peer netip.Addr, prb *prober.Prober) {
	result, err := prb.Parse(data, peer)
	if err != nil {
		logParseError(t.log, err)
		return
	}
	t.counters.RecvMainProbeResponses.Add(1)

	key := AddrToKey(result.Destination, t.opts.Grain)
	d, ok := t.dcbs[key]
	if !ok {
		return
	}

	if !result.FromDestination {
		if result.Distance > d.InitialTTL() {
			t.forwardDiscoverySet[result.Responder] = struct{}{}
		} else {
			if _, seen := t.backwardStopSet[result.Responder]; seen {
				d.StopBackward(t.opts.Two)
			}
			t.backwardStopSet[result.Responder] = struct{}{}
		}
		if result.Distance <= d.LastForwardTask() {
			horizon := uint16(result.Distance) + uint16(t.opts.Gap)
			if horizon > uint16(t.opts.MaxTTL) {
				horizon = uint16(t.opts.MaxTTL)
			}
			d.SetForwardHorizon(uint8(horizon))
		}
	} else {
		t.backwardStopSet[result.Responder] = struct{}{}
		d.StopForward()
	}

	t.topo.Feed(*result)
}

func logParseError(log *slog.Logger, err error) {
	switch err.(type) {
	case *prober.ParseError:
		log.Warn("tracerouter: parse error", "err", err)
	default:
		log.Debug("tracerouter: decode rejected reply", "err", err)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// BackwardResponderCount returns the number of distinct responders in the
// backward stop-set: those seen at or below a destination's initial TTL,
// plus destinations that replied directly.
func (t *Tracerouter) BackwardResponderCount() int { return len(t.backwardStopSet) }

// ForwardResponderCount returns the number of distinct responders observed
// strictly past a destination's initial TTL on forward probes.
func (t *Tracerouter) ForwardResponderCount() int { return len(t.forwardDiscoverySet) }

// TotalResponderCount returns the size of the union of both stop-sets.
func (t *Tracerouter) TotalResponderCount() int {
	union := make(map[netip.Addr]struct{}, len(t.backwardStopSet)+len(t.forwardDiscoverySet))
	for a := range t.backwardStopSet {
		union[a] = struct{}{}
	}
	for a := range t.forwardDiscoverySet {
		union[a] = struct{}{}
	}
	return len(union)
}

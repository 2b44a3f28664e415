package tracerouter

import "time"

// Summary is the set of counters printed at run completion: pre-probes
// sent/received, main probes sent/received, elapsed time, and responder
// counts by stop-set.
type Summary struct {
	SentPreProbes          uint64
	RecvPreProbeResponses  uint64
	SentMainProbes         uint64
	RecvMainProbeResponses uint64
	Elapsed                time.Duration
	BackwardResponders     int
	ForwardResponders      int
	TotalResponders        int
}

// Summary snapshots the run's counters. elapsed is supplied by the caller,
// which owns the wall-clock start time (the core keeps no notion of its own
// run duration beyond what its counters need).
func (t *Tracerouter) Summary(elapsed time.Duration) Summary {
	return Summary{
		SentPreProbes:          t.counters.SentPreProbes.Load(),
		RecvPreProbeResponses:  t.counters.RecvPreProbeResponses.Load(),
		SentMainProbes:         t.counters.SentMainProbes.Load(),
		RecvMainProbeResponses: t.counters.RecvMainProbeResponses.Load(),
		Elapsed:                elapsed,
		BackwardResponders:     t.BackwardResponderCount(),
		ForwardResponders:      t.ForwardResponderCount(),
		TotalResponders:        t.TotalResponderCount(),
	}
}

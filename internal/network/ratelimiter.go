package network

import "time"

// windowLimiter enforces a packets-per-second cap using a running window,
// only reconciling against the clock every rateSampleInterval sends (or
// whenever the running count reaches the cap, whichever comes first). A
// zero rate disables limiting.
type windowLimiter struct {
	rate uint64
	now  func() time.Time

	sentThisWindow uint64
	windowStart    time.Time
}

func newWindowLimiter(rate uint64, now func() time.Time) *windowLimiter {
	if now == nil {
		now = time.Now
	}
	return &windowLimiter{rate: rate, now: now, windowStart: now()}
}

// RecordSend accounts for one packet having been sent and returns how long
// the caller should sleep before sending the next one, if at all.
func (l *windowLimiter) RecordSend() time.Duration {
	if l.rate == 0 {
		return 0
	}

	l.sentThisWindow++
	if l.sentThisWindow%rateSampleInterval != 0 && l.sentThisWindow < l.rate {
		return 0
	}

	now := l.now()
	elapsed := now.Sub(l.windowStart)
	switch {
	case elapsed >= time.Second:
		l.windowStart = now
		l.sentThisWindow = 0
		return 0
	case l.sentThisWindow >= l.rate:
		sleep := time.Second - elapsed
		l.windowStart = l.now().Add(sleep)
		l.sentThisWindow = 0
		return sleep
	default:
		return 0
	}
}

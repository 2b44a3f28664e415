// Package prober implements the stateless UDP/ICMP probe codec: it encodes
// the send-time TTL, probe phase, and a truncated timestamp into IP and UDP
// header fields, and recovers them from ICMP reply envelopes to compute hop
// distance and RTT without any server-side state.
package prober

import (
	"fmt"
	"net/netip"
)

// Phase distinguishes pre-probes (used only to refine split TTLs) from
// main-phase discovery probes. It is packed into bit 5 of the IP
// identification field so a reply can be attributed to the phase that sent
// it, even though nothing about reply handling currently depends on it.
type Phase uint8

const (
	PhasePre  Phase = 0
	PhaseMain Phase = 1
)

// Unit is the opaque transport ticket between the scheduler and the network
// layer: a destination and the TTL to probe it at.
type Unit struct {
	Dst netip.Addr
	TTL uint8
}

// Result is a decoded probe reply.
type Result struct {
	Destination     netip.Addr // recovered from the inner IP header
	Responder       netip.Addr // source of the ICMP reply
	Distance        uint8      // hop count from source to responder (1-based)
	FromDestination bool       // true iff Destination Unreachable code 1,2,3
	RTTMillis       uint16     // best-effort; 0 if timestamp encoding is off
}

// Config configures a Prober's encode/decode behavior. A Prober is stateless
// and safe for concurrent use by multiple senders/receivers.
type Config struct {
	Phase           Phase
	DstPort         uint16
	PayloadMessage  string
	EncodeTimestamp bool
	ChecksumSalt    uint16

	// StrictSrcPort rejects replies whose cookie does not match. When it is
	// off, the cookie is not checked. The tracerouter's probe configs always
	// set it.
	StrictSrcPort bool
}

// Prober is a stateless UDP/ICMP probe codec.
type Prober struct {
	cfg Config
}

// New creates a Prober from cfg.
func New(cfg Config) *Prober {
	return &Prober{cfg: cfg}
}

const (
	ipv4HeaderLen = 20
	udpHeaderLen  = 8
	icmpHeaderLen = 8

	baseTotalLen = 128
)

// cookie computes the per-destination authenticator embedded in the UDP
// source port: an Internet checksum over the destination's four octets plus
// a configured salt.
func cookie(dst netip.Addr, salt uint16) uint16 {
	a4 := dst.As4()
	return internetChecksum(a4[:]) + salt
}

// timestampMS16 returns now's time in milliseconds truncated to 16 bits,
// wrapping every 65536 ms (~65s). The wrap is accepted as-is: RTTs beyond
// the window fold, and no unwrapping is attempted.
var timestampMS16 = defaultTimestampMS16

func defaultTimestampMS16() uint16 {
	return uint16(nowUnixMilli())
}

// ParseErrorStage names which decode layer failed.
type ParseErrorStage int

const (
	StageOuterIPv4 ParseErrorStage = iota + 1
	StageICMP
	StageInnerIPv4
	StageInnerUDP
)

func (s ParseErrorStage) String() string {
	switch s {
	case StageOuterIPv4:
		return "outer-ipv4"
	case StageICMP:
		return "icmp"
	case StageInnerIPv4:
		return "inner-ipv4"
	case StageInnerUDP:
		return "inner-udp"
	default:
		return "unknown"
	}
}

// ParseError reports which layer of a reply failed to decode.
type ParseError struct {
	Stage ParseErrorStage
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at stage %s (%d)", e.Stage, e.Stage)
}

// UnexpectedSrcPortError reports a cookie mismatch (likely foreign ICMP
// traffic, not a reply to one of our probes).
type UnexpectedSrcPortError struct {
	Got, Want uint16
}

func (e *UnexpectedSrcPortError) Error() string {
	return fmt.Sprintf("unexpected src port: got %d, want %d", e.Got, e.Want)
}

// UnexpectedIcmpTypeError reports an ICMP message this decoder does not
// interpret.
type UnexpectedIcmpTypeError struct {
	Type, Code byte
}

func (e *UnexpectedIcmpTypeError) Error() string {
	return fmt.Sprintf("unexpected icmp type=%d code=%d", e.Type, e.Code)
}

// InvalidDistanceError reports a violated arithmetic precondition: the
// embedded initial TTL was smaller than the TTL the packet expired with.
type InvalidDistanceError struct {
	Initial, Dst uint8
}

func (e *InvalidDistanceError) Error() string {
	return fmt.Sprintf("invalid distance: initial_ttl=%d < dst_ttl=%d", e.Initial, e.Dst)
}

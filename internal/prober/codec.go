package prober

import (
	"encoding/binary"
	"net/netip"

	"golang.org/x/net/ipv4"
)

const (
	icmpTypeDestUnreachable = 3
	icmpTypeTimeExceeded    = 11

	protocolUDP = 17
)

// Pack produces a complete IPv4 packet carrying a UDP datagram, with the
// probe TTL, phase, and a truncated send timestamp folded into the IP total
// length and identification fields. Checksums are left unset: routers
// recompute them, and the kernel fills them in on transmit where required.
func (p *Prober) Pack(unit Unit, sourceIP netip.Addr) ([]byte, error) {
	ts := timestampMS16()

	totalLen := uint16(baseTotalLen)
	if p.cfg.EncodeTimestamp {
		totalLen |= ((ts >> 10) & 0x3F) << 1
	}
	udpLen := totalLen - ipv4HeaderLen

	ipID := uint16(unit.TTL) & 0x1F
	ipID |= (uint16(p.cfg.Phase) & 0x1) << 5
	if p.cfg.EncodeTimestamp {
		ipID |= (ts & 0x3FF) << 6
	}

	udp := make([]byte, udpLen)
	binary.BigEndian.PutUint16(udp[0:2], cookie(unit.Dst, p.cfg.ChecksumSalt))
	binary.BigEndian.PutUint16(udp[2:4], p.cfg.DstPort)
	binary.BigEndian.PutUint16(udp[4:6], udpLen)
	copy(udp[udpHeaderLen:], p.cfg.PayloadMessage)

	hdr := &ipv4.Header{
		Version:  4,
		Len:      ipv4HeaderLen,
		TotalLen: int(totalLen),
		ID:       int(ipID),
		TTL:      int(unit.TTL),
		Protocol: protocolUDP,
		Src:      addrSlice(sourceIP),
		Dst:      addrSlice(unit.Dst),
	}
	hdrBytes, err := hdr.Marshal()
	if err != nil {
		return nil, err
	}

	return append(hdrBytes, udp...), nil
}

func addrSlice(a netip.Addr) []byte {
	a4 := a.As4()
	return a4[:]
}

// Parse decodes the raw ICMP message body (as delivered by a raw ICMP
// socket, i.e. with the outer IPv4 header already stripped by the kernel)
// into a ProbeResult. responder is the outer ICMP source, supplied by the
// caller from the socket's peer address since Go's raw ICMP sockets do not
// hand back the outer IP header bytes the way a Layer-3 transport channel
// would. This is the one structural difference from the original decoder,
// which peels the outer IPv4 header itself; the recovered fields are
// identical either way.
func (p *Prober) Parse(data []byte, responder netip.Addr) (*Result, error) {
	if len(data) < icmpHeaderLen {
		return nil, &ParseError{Stage: StageICMP}
	}
	icmpType := data[0]
	icmpCode := data[1]

	inner := data[icmpHeaderLen:]
	if len(inner) < ipv4HeaderLen {
		return nil, &ParseError{Stage: StageInnerIPv4}
	}
	ihl := int(inner[0]&0x0F) * 4
	if ihl < ipv4HeaderLen || len(inner) < ihl {
		return nil, &ParseError{Stage: StageInnerIPv4}
	}

	innerTotalLen := maybeSwapTotalLen(binary.BigEndian.Uint16(inner[2:4]))
	innerID := binary.BigEndian.Uint16(inner[4:6])
	innerTTL := inner[8]
	var innerDst [4]byte
	copy(innerDst[:], inner[16:20])
	destination := netip.AddrFrom4(innerDst)

	if len(inner) < ihl+udpHeaderLen {
		return nil, &ParseError{Stage: StageInnerUDP}
	}
	udp := inner[ihl : ihl+udpHeaderLen]
	srcPort := binary.BigEndian.Uint16(udp[0:2])

	expectedCookie := cookie(destination, p.cfg.ChecksumSalt)
	if p.cfg.StrictSrcPort && srcPort != expectedCookie {
		return nil, &UnexpectedSrcPortError{Got: srcPort, Want: expectedCookie}
	}

	initialTTLField := innerID & 0x1F
	initialTTL := uint8(initialTTLField)
	if initialTTLField == 0 {
		initialTTL = 32
	}
	dstTTL := innerTTL

	var distance uint8
	var fromDestination bool
	switch {
	case icmpType == icmpTypeDestUnreachable && (icmpCode == 1 || icmpCode == 2 || icmpCode == 3):
		if initialTTL < dstTTL {
			return nil, &InvalidDistanceError{Initial: initialTTL, Dst: dstTTL}
		}
		distance = initialTTL - dstTTL + 1
		fromDestination = true
	case icmpType == icmpTypeTimeExceeded:
		distance = initialTTL
		fromDestination = false
	default:
		return nil, &UnexpectedIcmpTypeError{Type: icmpType, Code: icmpCode}
	}

	var rtt uint16
	if p.cfg.EncodeTimestamp {
		tsHigh6 := (innerTotalLen >> 1) & 0x3F
		tsLow10 := (innerID >> 6) & 0x3FF
		sendTS := (tsHigh6 << 10) | tsLow10
		rtt = timestampMS16() - sendTS
	}

	return &Result{
		Destination:     destination,
		Responder:       responder,
		Distance:        distance,
		FromDestination: fromDestination,
		RTTMillis:       rtt,
	}, nil
}

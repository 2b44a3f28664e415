//go:build linux || darwin || freebsd || netbsd || openbsd

// Package network owns the two system resources flashtrace's probing loop
// needs: a raw socket to transmit hand-built IPv4/UDP packets with an
// explicit TTL, and an ICMP listener to receive the replies they provoke.
// It is deliberately agnostic to probe encoding; callers hand it finished
// bytes and get finished bytes back.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/sys/unix"
)

// rateSampleInterval bounds how often the send loop calls time.Now():
// checking the clock on every packet at a few hundred thousand packets per
// second is itself a meaningful tax, so the window is only reconciled every
// Nth send.
const rateSampleInterval = 128

// Config configures a Manager.
type Config struct {
	// ProbingRate caps sends per second across the whole Manager. Zero
	// disables rate limiting entirely.
	ProbingRate uint64

	// SendQueueSize bounds how many packets may be queued ahead of the send
	// worker before Schedule blocks. Zero derives it from ProbingRate,
	// clamped to [1000, 400000] so a second's worth of probes fits without
	// the queue growing unbounded at extreme rates.
	SendQueueSize int

	// DryRun runs the full encode/queue/rate-limit path but opens no
	// sockets and transmits nothing.
	DryRun bool

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.SendQueueSize <= 0 {
		size := c.ProbingRate
		if size < 1000 {
			size = 1000
		}
		if size > 400000 {
			size = 400000
		}
		c.SendQueueSize = int(size)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type job struct {
	packet []byte
	dst    netip.Addr
}

// ReceiveFunc handles one raw ICMP datagram; data is the ICMP message as
// returned by the kernel, peer is its source address.
type ReceiveFunc func(data []byte, peer netip.Addr)

// Manager owns the send and receive workers and their shared counters. It
// has no notion of probe phases or destinations: that belongs to the
// scheduler above it.
type Manager struct {
	cfg Config

	sendQueue chan job
	sendFD    int
	icmpConn  *icmp.PacketConn

	sentPackets atomic.Uint64
	recvPackets atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New opens the raw send socket and the ICMP listener. Both require
// CAP_NET_RAW (or root) on Linux. In dry-run mode neither is opened.
func New(cfg Config) (*Manager, error) {
	cfg.setDefaults()

	if cfg.DryRun {
		return &Manager{
			cfg:       cfg,
			sendQueue: make(chan job, cfg.SendQueueSize),
			sendFD:    -1,
			stopCh:    make(chan struct{}),
		}, nil
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("open raw send socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt IP_HDRINCL: %w", err)
	}

	icmpConn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("open icmp listener: %w", err)
	}

	return &Manager{
		cfg:       cfg,
		sendQueue: make(chan job, cfg.SendQueueSize),
		sendFD:    fd,
		icmpConn:  icmpConn,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the send and receive workers. onReceive is invoked from
// the receive worker's goroutine for every datagram the ICMP listener
// yields; it must not block for long.
func (m *Manager) Start(ctx context.Context, onReceive ReceiveFunc) {
	m.wg.Add(2)
	go m.sendLoop()
	go m.recvLoop(ctx, onReceive)

	m.wg.Add(1)
	go m.stopWatcher(ctx)
}

// Schedule enqueues a fully-built IPv4 packet for transmission to dst. It
// blocks if the send queue is full.
func (m *Manager) Schedule(packet []byte, dst netip.Addr) error {
	select {
	case m.sendQueue <- job{packet: packet, dst: dst}:
		return nil
	case <-m.stopCh:
		return fmt.Errorf("network manager stopped")
	}
}

// Stop closes the send queue, waits for both workers to drain, and releases
// the sockets. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		close(m.sendQueue)
	})
	m.wg.Wait()
	if m.sendFD >= 0 {
		unix.Close(m.sendFD)
	}
	if m.icmpConn != nil {
		m.icmpConn.Close()
	}
}

// SentPackets returns the number of packets handed to the kernel so far.
func (m *Manager) SentPackets() uint64 { return m.sentPackets.Load() }

// RecvPackets returns the number of ICMP datagrams delivered to onReceive.
func (m *Manager) RecvPackets() uint64 { return m.recvPackets.Load() }

// stopWatcher polls for shutdown every 200ms and force-closes the ICMP
// listener once it sees one: the receive worker sits in a blocking read that
// nothing but closing the socket will interrupt.
func (m *Manager) stopWatcher(ctx context.Context) {
	defer m.wg.Done()
	if m.icmpConn == nil {
		return
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-m.stopCh:
		case <-ticker.C:
			continue
		}
		m.icmpConn.Close()
		return
	}
}

func (m *Manager) sendLoop() {
	defer m.wg.Done()

	limiter := newWindowLimiter(m.cfg.ProbingRate, nil)

	for j := range m.sendQueue {
		if err := m.sendOne(j); err != nil {
			m.cfg.Logger.Debug("network: send failed", "dst", j.dst, "err", err)
			continue
		}
		m.sentPackets.Add(1)

		if sleep := limiter.RecordSend(); sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (m *Manager) sendOne(j job) error {
	if m.cfg.DryRun {
		return nil
	}
	var sa unix.SockaddrInet4
	sa.Addr = j.dst.As4()
	return unix.Sendto(m.sendFD, j.packet, 0, &sa)
}

func (m *Manager) recvLoop(ctx context.Context, onReceive ReceiveFunc) {
	defer m.wg.Done()

	if m.icmpConn == nil {
		select {
		case <-ctx.Done():
		case <-m.stopCh:
		}
		return
	}

	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return
		}
		n, peer, err := m.icmpConn.ReadFrom(buf)
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
			}
			if ctx.Err() != nil {
				return
			}
			m.cfg.Logger.Debug("network: recv error", "err", err)
			continue
		}

		addr, ok := peerToAddr(peer)
		if !ok {
			continue
		}

		m.recvPackets.Add(1)
		onReceive(buf[:n], addr)
	}
}

func peerToAddr(peer net.Addr) (netip.Addr, bool) {
	ipAddr, ok := peer.(*net.IPAddr)
	if !ok {
		return netip.Addr{}, false
	}
	a, ok := netip.AddrFromSlice(ipAddr.IP.To4())
	if !ok {
		return netip.Addr{}, false
	}
	return a, true
}

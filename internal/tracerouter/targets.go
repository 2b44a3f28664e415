package tracerouter

import (
	"bufio"
	"math/rand"
	"net/netip"
	"os"
	"strings"
)

// GenerateOptions configures target-set construction.
type GenerateOptions struct {
	// Targets is either a CIDR (e.g. "10.0.0.0/8") or a path to a file
	// containing one IPv4 address per line.
	Targets      string
	Grain        uint8
	GlobalOnly   bool
	AllowPrivate bool
	Seed         uint64
}

// GenerateTargets builds the initial target address list: one address per
// /(32-grain) subnet of a CIDR, chosen uniformly at random with a seeded
// PRNG, or the literal contents of a target list file.
func GenerateTargets(opts GenerateOptions) ([]netip.Addr, error) {
	if prefix, err := netip.ParsePrefix(opts.Targets); err == nil {
		return generateFromCIDR(prefix, opts)
	}
	return readTargetFile(opts.Targets)
}

func generateFromCIDR(prefix netip.Prefix, opts GenerateOptions) ([]netip.Addr, error) {
	prefix = prefix.Masked()
	p := uint8(prefix.Bits())
	if opts.Grain > 32-p {
		return nil, &BadGrainOrNetError{Grain: opts.Grain, Net: prefix.String()}
	}

	subnetBits := (32 - p) - opts.Grain
	subnetCount := uint64(1) << subnetBits
	grainSize := uint32(1) << opts.Grain

	base := addrToUint32(prefix.Addr())
	rng := rand.New(rand.NewSource(int64(opts.Seed)))

	targets := make([]netip.Addr, 0, subnetCount)
	for i := uint64(0); i < subnetCount; i++ {
		subnetBase := base + uint32(i)*grainSize

		var offset uint32
		if grainSize > 1 {
			offset = 1 + uint32(rng.Int63n(int64(grainSize-1)))
		}
		addr := uint32ToAddr(subnetBase + offset)

		if opts.GlobalOnly && !isGloballyRoutable(addr, opts.AllowPrivate) {
			continue
		}
		targets = append(targets, addr)
	}
	return targets, nil
}

func readTargetFile(path string) ([]netip.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InvalidIpv4AddrError{Input: path}
	}
	defer f.Close()

	var targets []netip.Addr
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addr, err := netip.ParseAddr(line)
		if err != nil || !addr.Is4() {
			return nil, &InvalidIpv4AddrError{Input: line}
		}
		targets = append(targets, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

func addrToUint32(addr netip.Addr) uint32 {
	a4 := addr.As4()
	return uint32(a4[0])<<24 | uint32(a4[1])<<16 | uint32(a4[2])<<8 | uint32(a4[3])
}

func uint32ToAddr(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

var (
	privatePrefixes = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
	}

	nonRoutablePrefixes = []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("169.254.0.0/16"),
		netip.MustParsePrefix("255.255.255.255/32"),
		netip.MustParsePrefix("192.0.2.0/24"),
		netip.MustParsePrefix("198.51.100.0/24"),
		netip.MustParsePrefix("203.0.113.0/24"),
		netip.MustParsePrefix("100.64.0.0/10"),
		netip.MustParsePrefix("192.0.0.0/29"),
		netip.MustParsePrefix("240.0.0.0/4"),
		netip.MustParsePrefix("198.18.0.0/15"),
	}

	globallyRoutableExceptions = map[netip.Addr]bool{
		netip.MustParseAddr("192.0.0.9"):  true,
		netip.MustParseAddr("192.0.0.10"): true,
	}
)

// isGloballyRoutable applies the global_only filter rules. allowPrivate
// re-admits RFC-1918 private space while still excluding the other
// non-routable blocks.
func isGloballyRoutable(addr netip.Addr, allowPrivate bool) bool {
	if globallyRoutableExceptions[addr] {
		return true
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return allowPrivate
		}
	}
	for _, p := range nonRoutablePrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

package tracerouter

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateFromCIDRRejectsGrainLargerThanHostBits(t *testing.T) {
	_, err := GenerateTargets(GenerateOptions{Targets: "10.0.0.0/24", Grain: 9})
	require.Error(t, err)
	var badGrain *BadGrainOrNetError
	require.ErrorAs(t, err, &badGrain)
}

func TestGenerateFromCIDRProducesOneTargetPerSubnet(t *testing.T) {
	targets, err := GenerateTargets(GenerateOptions{Targets: "10.0.0.0/24", Grain: 4, Seed: 1})
	require.NoError(t, err)
	// (32-24)-4 = 4 bits of subnet index => 16 subnets.
	require.Len(t, targets, 16)

	seen := map[netip.Addr]bool{}
	for _, a := range targets {
		require.True(t, netip.MustParsePrefix("10.0.0.0/24").Contains(a))
		require.False(t, seen[a], "targets should be distinct across subnets")
		seen[a] = true
	}
}

func TestGenerateFromCIDRIsDeterministicForASeed(t *testing.T) {
	a, err := GenerateTargets(GenerateOptions{Targets: "10.0.0.0/16", Grain: 8, Seed: 42})
	require.NoError(t, err)
	b, err := GenerateTargets(GenerateOptions{Targets: "10.0.0.0/16", Grain: 8, Seed: 42})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestGenerateFromCIDRNeverPicksTheSubnetBaseAddress(t *testing.T) {
	targets, err := GenerateTargets(GenerateOptions{Targets: "10.0.0.0/24", Grain: 4, Seed: 7})
	require.NoError(t, err)
	for _, a := range targets {
		require.NotEqual(t, byte(0), a.As4()[3]&0x0F)
	}
}

func TestGlobalOnlyFiltersNonRoutableAddresses(t *testing.T) {
	targets, err := GenerateTargets(GenerateOptions{
		Targets:    "10.0.0.0/8",
		Grain:      20,
		Seed:       1,
		GlobalOnly: true,
	})
	require.NoError(t, err)
	require.Empty(t, targets, "10/8 is entirely private and global_only should exclude all of it")
}

func TestGlobalOnlyWithAllowPrivateAdmitsRFC1918(t *testing.T) {
	targets, err := GenerateTargets(GenerateOptions{
		Targets:      "10.0.0.0/16",
		Grain:        8,
		Seed:         1,
		GlobalOnly:   true,
		AllowPrivate: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, targets)
}

func TestIsGloballyRoutableSpecialCaseHosts(t *testing.T) {
	require.True(t, isGloballyRoutable(netip.MustParseAddr("192.0.0.9"), false))
	require.True(t, isGloballyRoutable(netip.MustParseAddr("192.0.0.10"), false))
	require.False(t, isGloballyRoutable(netip.MustParseAddr("192.0.0.1"), false))
}

func TestIsGloballyRoutableExcludesDocumentedReservedBlocks(t *testing.T) {
	cases := []string{
		"127.0.0.1",
		"169.254.1.1",
		"255.255.255.255",
		"192.0.2.1",
		"198.51.100.1",
		"203.0.113.1",
		"100.64.0.1",
		"240.0.0.1",
		"198.18.0.1",
		"0.1.2.3",
	}
	for _, c := range cases {
		require.False(t, isGloballyRoutable(netip.MustParseAddr(c), false), c)
	}
}

func TestReadTargetFileSkipsBlankLinesAndComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("8.8.8.8\n\n# a comment\n1.1.1.1\n"), 0644))

	targets, err := GenerateTargets(GenerateOptions{Targets: path})
	require.NoError(t, err)
	require.Equal(t, []netip.Addr{
		netip.MustParseAddr("8.8.8.8"),
		netip.MustParseAddr("1.1.1.1"),
	}, targets)
}

func TestReadTargetFileRejectsMalformedAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("not-an-ip\n"), 0644))

	_, err := GenerateTargets(GenerateOptions{Targets: path})
	require.Error(t, err)
	var invalid *InvalidIpv4AddrError
	require.ErrorAs(t, err, &invalid)
}

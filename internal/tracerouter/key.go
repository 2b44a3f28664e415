package tracerouter

import (
	"encoding/binary"
	"net/netip"
)

// AddrToKey maps a destination to the compact integer key that indexes the
// DCB map: the address's u32 representation shifted right by grain bits. A
// grain of g means every 2^g addresses share one DCB.
func AddrToKey(addr netip.Addr, grain uint8) uint32 {
	a4 := addr.As4()
	return binary.BigEndian.Uint32(a4[:]) >> grain
}

// KeyToBase recovers the lowest address a key represents: the inverse of
// AddrToKey's right shift, reconstructed by shifting back left (the low
// grain bits lost by AddrToKey are implicitly zero).
func KeyToBase(key uint32, grain uint8) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], key<<grain)
	return netip.AddrFrom4(b)
}

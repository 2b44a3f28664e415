package tracerouter

import (
	"net"
	"net/netip"
)

// ResolveInterfaceAddr returns the first IPv4 address bound to the named
// network interface, for use as the Prober's source address. Interface
// enumeration and selection UI are collaborators; this is the one lookup
// the core itself performs, since NoSuchInterfaceError is part of the core's
// error taxonomy.
func ResolveInterfaceAddr(name string) (net.IP, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, &NoSuchInterfaceError{Name: name}
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, &NoSuchInterfaceError{Name: name}
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, &NoSuchInterfaceError{Name: name}
}

// ResolveSourceAddr picks the Prober's source address: the named interface's
// address if ifaceName is set, otherwise whatever address the kernel would
// route a packet toward the public Internet from.
func ResolveSourceAddr(ifaceName string) (netip.Addr, error) {
	if ifaceName != "" {
		ip, err := ResolveInterfaceAddr(ifaceName)
		if err != nil {
			return netip.Addr{}, err
		}
		addr, ok := netip.AddrFromSlice(ip.To4())
		if !ok {
			return netip.Addr{}, &NoSuchInterfaceError{Name: ifaceName}
		}
		return addr, nil
	}

	conn, err := net.Dial("udp4", "198.51.100.1:80")
	if err != nil {
		return netip.Addr{}, err
	}
	defer conn.Close()

	local := conn.LocalAddr().(*net.UDPAddr)
	addr, ok := netip.AddrFromSlice(local.IP.To4())
	if !ok {
		return netip.Addr{}, &InvalidIpv4AddrError{Input: local.IP.String()}
	}
	return addr, nil
}

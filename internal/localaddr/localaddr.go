// Package localaddr picks the IPv4 address a node advertises to the LAN.
package localaddr

import (
	"net"
)

// Loopback is returned when no usable interface exists.
const Loopback = "127.0.0.1"

// Interface is the part of a network interface the picker looks at.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// Resolve returns the first IPv4 address of an interface that is up, running
// and not a loopback. Falls back to Loopback without an error.
func Resolve() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Loopback
	}

	candidates := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		candidates = append(candidates, Interface{
			Name:  iface.Name,
			Flags: iface.Flags,
			Addrs: addrs,
		})
	}

	return Pick(candidates)
}

// Pick applies the selection rule of Resolve to a fixed list of interfaces.
func Pick(ifaces []Interface) string {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagRunning == 0 ||
			iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		for _, addr := range iface.Addrs {
			if ip := ipv4(addr); ip != nil {
				return ip.String()
			}
		}
	}

	return Loopback
}

func ipv4(addr net.Addr) net.IP {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return nil
	}
	return ip.To4()
}

package protocol

import (
	"net"
	"strconv"
)

// HostOf returns the IP (or host) part of a datagram source address.
func HostOf(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// StreamAddr joins a peer IP with a streaming port.
func StreamAddr(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

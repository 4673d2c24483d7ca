// Package netutil provides helpers for IP address handling.
package netutil

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

var privateRanges = func() []*net.IPNet {
	var list []*net.IPNet
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"127.0.0.0/8",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	} {
		_, block, _ := net.ParseCIDR(cidr)
		list = append(list, block)
	}
	return list
}()

// GetLocalIP returns the non-loopback local IP of the host
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", errors.WithStack(err)
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	return "", errors.New("unable to determine local IP address")
}

// IsPrivateAddress returns true if the IP address is in a private range
func IsPrivateAddress(address string) (bool, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return false, errors.Errorf("invalid IP address: %q", address)
	}
	for _, block := range privateRanges {
		if block.Contains(ip) {
			return true, nil
		}
	}
	return false, nil
}

// IsAddrInUse returns true for the bind errors,
// when the address is already in use
func IsAddrInUse(err error) bool {
	return err != nil && strings.Contains(err.Error(), "address already in use")
}

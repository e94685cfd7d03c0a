package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
)

const (
	KeyHTTPAddress = "http_address"
	KeyHTTPPort    = "http_port"
)

// HTTPConfig holds the listen address of the HTTP runtime.
type HTTPConfig struct {
	Address netip.Addr
	Port    uint16
}

// ListenAddress returns host:port, bracketing IPv6 addresses.
func (c HTTPConfig) ListenAddress() string {
	return net.JoinHostPort(c.Address.String(), strconv.Itoa(int(c.Port)))
}

// BuildHTTPConfig reads http_address and http_port. The address may be
// IPv6 or IPv4; port 0 is reserved and rejected.
func BuildHTTPConfig(src Source) (HTTPConfig, error) {
	rawAddress, err := src.Require(KeyHTTPAddress)
	if err != nil {
		return HTTPConfig{}, err
	}
	address, err := rawAddress.AsString()
	if err != nil {
		return HTTPConfig{}, err
	}
	ip, err := ParseIPAddress(address)
	if err != nil {
		return HTTPConfig{}, errspkg.NewConfigurationError(KeyHTTPAddress, err)
	}

	rawPort, err := src.Require(KeyHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}
	port, err := rawPort.AsInt()
	if err != nil {
		return HTTPConfig{}, err
	}
	if port < 0 || port > 65535 {
		return HTTPConfig{}, errspkg.NewConfigurationError(KeyHTTPPort,
			fmt.Errorf("invalid port number %d", port))
	}
	if port == 0 {
		return HTTPConfig{}, errspkg.NewConfigurationError(KeyHTTPPort,
			errors.New("0 is a reserved TCP port"))
	}

	return HTTPConfig{Address: ip, Port: uint16(port)}, nil
}

// ParseIPAddress accepts an IPv6 address first and falls back to IPv4.
func ParseIPAddress(address string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("address %q is neither an IPv6 nor an IPv4 address", address)
	}
	if ip.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("address %q carries a zone, which is not supported", address)
	}
	return ip, nil
}

package instrument

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Resource is a parsed instrument address.
type Resource struct {
	Raw  string
	Host string
	Port int
}

func (r Resource) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// ParseResource accepts a VISA socket resource string
// ("TCPIP0::192.168.0.10::4000::SOCKET") or a plain "host:port".
func ParseResource(s string) (Resource, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Resource{}, fmt.Errorf("%w: empty resource", ErrUnsupportedResource)
	}

	if !strings.Contains(s, "::") {
		host, port, err := net.SplitHostPort(s)
		if err != nil {
			return Resource{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedResource, s, err)
		}
		return newResource(s, host, port)
	}

	parts := strings.Split(s, "::")
	iface := strings.ToUpper(parts[0])
	if !strings.HasPrefix(iface, "TCPIP") {
		// USB, GPIB, ASRL need a native VISA library
		return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, s)
	}
	if len(parts) != 4 || !strings.EqualFold(parts[3], "SOCKET") {
		return Resource{}, fmt.Errorf("%w: %q: only TCPIP::host::port::SOCKET is supported", ErrUnsupportedResource, s)
	}
	return newResource(s, parts[1], parts[2])
}

func newResource(raw, host, port string) (Resource, error) {
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return Resource{}, fmt.Errorf("%w: %q: invalid port %q", ErrUnsupportedResource, raw, port)
	}
	if host == "" {
		return Resource{}, fmt.Errorf("%w: %q: missing host", ErrUnsupportedResource, raw)
	}
	return Resource{Raw: raw, Host: host, Port: p}, nil
}

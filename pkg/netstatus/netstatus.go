// Package netstatus reports whether the node has network connectivity.
package netstatus

import (
	"net"
	"sync/atomic"
)

// Status reports link state.
type Status interface {
	IsConnected() bool
}

// Interfaces considers the node connected when a non-loopback interface is
// up and holds a unicast address.
type Interfaces struct {
	name string // restrict to this interface; empty means any

	list func() ([]iface, error)
}

// iface is the subset of net.Interface used for the check.
type iface struct {
	name  string
	flags net.Flags
	addrs func() ([]net.Addr, error)
}

// NewInterfaces returns a Status backed by the host's network interfaces.
func NewInterfaces(name string) *Interfaces {
	return &Interfaces{name: name, list: hostInterfaces}
}

func hostInterfaces() ([]iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]iface, 0, len(ifs))
	for i := range ifs {
		ifc := ifs[i]
		result = append(result, iface{name: ifc.Name, flags: ifc.Flags, addrs: ifc.Addrs})
	}
	return result, nil
}

// IsConnected checks the interfaces on every call.
func (s *Interfaces) IsConnected() bool {
	ifs, err := s.list()
	if err != nil {
		return false
	}

	for _, ifc := range ifs {
		if s.name != "" && ifc.name != s.name {
			continue
		}
		if ifc.flags&net.FlagUp == 0 || ifc.flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

// Static is a settable Status for tests and simulated nodes.
type Static struct {
	connected atomic.Bool
}

// NewStatic returns a Static with the given initial state.
func NewStatic(connected bool) *Static {
	s := &Static{}
	s.connected.Store(connected)
	return s
}

// Set changes the reported state.
func (s *Static) Set(connected bool) {
	s.connected.Store(connected)
}

// IsConnected returns the stored state.
func (s *Static) IsConnected() bool {
	return s.connected.Load()
}

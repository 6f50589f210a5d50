// Package mcast manages the IPv4 UDP multicast command-channel socket:
// join on open, drop membership exactly once on close.
package mcast

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

// Endpoint is the joined multicast socket the dispatcher reads from
// and writes replies on.
type Endpoint struct {
	conn  *net.UDPConn
	pconn *ipv4.PacketConn
	group *net.UDPAddr

	leaveOnce sync.Once
}

// Open creates an IPv4 UDP socket bound to INADDR_ANY:port, joins the
// group at the given dotted-quad address on INADDR_ANY. It fails if
// group does not parse as IPv4.
func Open(group string, port int) (*Endpoint, error) {
	groupIP := net.ParseIP(group)
	if groupIP == nil || groupIP.To4() == nil {
		return nil, fmt.Errorf("mcast: %q is not a valid dotted IPv4 address", group)
	}

	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("mcast: listen: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	groupAddr := &net.UDPAddr{IP: groupIP}
	if err := pconn.JoinGroup(nil, groupAddr); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcast: join group %s: %w", group, err)
	}

	return &Endpoint{conn: conn, pconn: pconn, group: groupAddr}, nil
}

// Conn returns the underlying UDP connection for reads/writes.
func (e *Endpoint) Conn() *net.UDPConn { return e.conn }

// LocalAddr returns the bound local address.
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// Close drops multicast group membership exactly once, then closes the
// socket. Safe to call more than once.
func (e *Endpoint) Close() error {
	e.leaveOnce.Do(func() {
		_ = e.pconn.LeaveGroup(nil, e.group)
	})
	return e.conn.Close()
}

// Package transport carries messages between nodes over UDP: one unicast
// socket for direct peer-to-peer traffic and one multicast socket for game
// discovery announcements. It is grounded on network.py's NetworkHandler —
// same two-socket split, same subscriber fan-out — reworked around
// golang.org/x/net/ipv4 for the multicast socket options stdlib net.UDPConn
// cannot express.
package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// MulticastGroup and MulticastPort are the well-known rendezvous address
// every node joins to discover and announce games, matching
// NetworkHandler.MULTICAST_GROUP/MULTICAST_PORT.
const (
	MulticastGroup = "224.0.0.1"
	MulticastPort  = 9192
	multicastTTL   = 100
)

const maxDatagramSize = 65507

// Datagram is a received payload plus the address it arrived from.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// Handler processes one received Datagram. Handlers run on the goroutine
// driving Serve's read loops and must not block.
type Handler func(Datagram)

// Endpoint owns one unicast socket (bound to an ephemeral port, used for
// direct peer traffic and acks) and one multicast socket (bound to
// MulticastPort, joined to MulticastGroup, used for game announcements).
type Endpoint struct {
	unicastConn   *net.UDPConn
	multicastConn *net.UDPConn
	multicastPC   *ipv4.PacketConn
	subscribers   []Handler
}

// New opens both sockets and joins the multicast group. The multicast
// socket is configured the way NetworkHandler configures its QUdpSocket —
// TTL 100, loopback enabled — via golang.org/x/net/ipv4 since
// net.ListenMulticastUDP exposes neither setter.
func New(multicastGroup string, multicastPort int) (*Endpoint, error) {
	unicastConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("transport: bind unicast socket: %w", err)
	}

	// Several nodes on the same host all need to bind MulticastPort, just as
	// network.py's multicast_socket binds with ShareAddress|ReuseAddressHint.
	// net.ListenUDP has no equivalent flag, so SO_REUSEADDR/SO_REUSEPORT are
	// set on the raw socket via a ListenConfig.Control callback before bind.
	lc := net.ListenConfig{Control: reuseAddrAndPort}
	mcAddr := fmt.Sprintf("0.0.0.0:%d", multicastPort)
	pconn, err := lc.ListenPacket(context.Background(), "udp4", mcAddr)
	if err != nil {
		unicastConn.Close()
		return nil, fmt.Errorf("transport: bind multicast socket: %w", err)
	}
	multicastConn := pconn.(*net.UDPConn)

	pc := ipv4.NewPacketConn(multicastConn)
	group := &net.UDPAddr{IP: net.ParseIP(multicastGroup)}
	ifaces, err := multicastCapableInterfaces()
	if err != nil {
		multicastConn.Close()
		unicastConn.Close()
		return nil, fmt.Errorf("transport: list interfaces: %w", err)
	}
	joined := false
	for _, iface := range ifaces {
		if err := pc.JoinGroup(&iface, group); err == nil {
			joined = true
		}
	}
	if !joined {
		if err := pc.JoinGroup(nil, group); err != nil {
			multicastConn.Close()
			unicastConn.Close()
			return nil, fmt.Errorf("transport: join multicast group: %w", err)
		}
	}
	if err := pc.SetMulticastTTL(multicastTTL); err != nil {
		multicastConn.Close()
		unicastConn.Close()
		return nil, fmt.Errorf("transport: set multicast ttl: %w", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		multicastConn.Close()
		unicastConn.Close()
		return nil, fmt.Errorf("transport: set multicast loopback: %w", err)
	}

	return &Endpoint{
		unicastConn:   unicastConn,
		multicastConn: multicastConn,
		multicastPC:   pc,
	}, nil
}

func reuseAddrAndPort(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func multicastCapableInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.Interface
	for _, iface := range all {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 {
			out = append(out, iface)
		}
	}
	return out, nil
}

// SendUnicast writes b directly to addr over the unicast socket.
func (e *Endpoint) SendUnicast(b []byte, addr *net.UDPAddr) error {
	_, err := e.unicastConn.WriteToUDP(b, addr)
	return err
}

// SendMulticast writes b to the well-known multicast rendezvous group,
// matching NetworkHandler.multicast.
func (e *Endpoint) SendMulticast(b []byte) error {
	dst := &net.UDPAddr{IP: net.ParseIP(MulticastGroup), Port: MulticastPort}
	_, err := e.multicastConn.WriteToUDP(b, dst)
	return err
}

// Subscribe registers h to receive every datagram from either socket, in
// the order Serve receives them — matching NetworkHandler.subscribe/
// notifySubscribers, collapsed to a static list since nothing in this
// module ever unsubscribes mid-run.
func (e *Endpoint) Subscribe(h Handler) {
	e.subscribers = append(e.subscribers, h)
}

func (e *Endpoint) notify(d Datagram) {
	for _, h := range e.subscribers {
		h(d)
	}
}

// Serve runs both read loops until ctx is done, then closes both sockets.
// Each loop mirrors processP2PDatagram/processMulticastDatagram: read,
// fan out to subscribers, repeat.
func (e *Endpoint) Serve(ctx context.Context) error {
	done := make(chan struct{})
	errCh := make(chan error, 2)

	go e.readLoop(ctx, e.unicastConn, done, errCh)
	go e.readLoop(ctx, e.multicastConn, done, errCh)

	<-ctx.Done()
	e.unicastConn.Close()
	e.multicastConn.Close()
	<-done
	<-done

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (e *Endpoint) readLoop(ctx context.Context, conn *net.UDPConn, done chan<- struct{}, errCh chan<- error) {
	defer func() { done <- struct{}{} }()
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				errCh <- err
				return
			}
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		e.notify(Datagram{Payload: payload, From: from})
	}
}

// LocalAddr returns the unicast socket's bound address, used as this
// node's return address in Join/Steer/Ack messages.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.unicastConn.LocalAddr().(*net.UDPAddr)
}

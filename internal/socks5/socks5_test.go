package socks5

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startEchoListener runs a trivial TCP echo server and returns its address.
func startEchoListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				io.Copy(c, c)
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func startProxy(t *testing.T) string {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(cancel)
	return srv.listener.Addr().String()
}

// TestConnectHandshakeAndRelay performs a full greeting + CONNECT request
// against a local echo server and confirms bytes round-trip through the
// relay once ACTIVE.
func TestConnectHandshakeAndRelay(t *testing.T) {
	echoAddr := startEchoListener(t)
	proxyAddr := startProxy(t)

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// Greeting: version 5, one method, no-auth.
	_, err = conn.Write([]byte{0x05, 0x01, 0x00})
	require.NoError(t, err)
	reply := make([]byte, 2)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x00}, reply)

	host, portStr, err := net.SplitHostPort(echoAddr)
	require.NoError(t, err)
	ip := net.ParseIP(host).To4()
	require.NotNil(t, ip)
	p, err := net.LookupPort("tcp", portStr)
	require.NoError(t, err)
	port := uint16(p)

	req := []byte{0x05, cmdConnect, 0x00, atypIPv4}
	req = append(req, ip...)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, port)
	req = append(req, portBytes...)
	_, err = conn.Write(req)
	require.NoError(t, err)

	connReply := make([]byte, 10)
	_, err = io.ReadFull(conn, connReply)
	require.NoError(t, err)
	require.Equal(t, byte(replySuccess), connReply[1])

	payload := []byte("hello through the relay")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	echoed := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, echoed)
	require.NoError(t, err)
	require.Equal(t, payload, echoed)
}

// TestNoAcceptableAuthRejected confirms a client offering only an
// unsupported auth method is sent 0xFF and disconnected.
func TestNoAcceptableAuthRejected(t *testing.T) {
	proxyAddr := startProxy(t)
	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// Offer only method 0x01 (GSSAPI), which this relay does not support.
	_, err = conn.Write([]byte{0x05, 0x01, 0x01})
	require.NoError(t, err)
	reply := make([]byte, 2)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0xFF}, reply)
}

// TestUnsupportedCommandRejected confirms a BIND request (not implemented)
// gets a command-not-supported reply.
func TestUnsupportedCommandRejected(t *testing.T) {
	proxyAddr := startProxy(t)
	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x05, 0x01, 0x00})
	require.NoError(t, err)
	greet := make([]byte, 2)
	_, err = io.ReadFull(conn, greet)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x00}, greet)

	// BIND (0x02) instead of CONNECT, targeting 0.0.0.0:0.
	req := []byte{0x05, 0x02, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	_, err = conn.Write(req)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, byte(replyCommandNotSupported), reply[1])
}

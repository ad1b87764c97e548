package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snakemesh/internal/roster"
	"snakemesh/internal/transport"
	"snakemesh/internal/wire"
)

func testConfig(name string, role wire.Role) Config {
	return Config{
		GameName:      "arena",
		Width:         24,
		Height:        24,
		FoodStatic:    2,
		StateDelayMS:  60,
		ClientName:    name,
		RequestedRole: role,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.FailNow(t, "condition never became true within "+timeout.String())
}

// TestJoinRoundTrip boots a host, joins a second node to it over real
// loopback sockets, and waits for the join to fully settle: the client
// learns its assigned id and the host grows a snake for it.
func TestJoinRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostEp, err := transport.New(transport.MulticastGroup, transport.MulticastPort)
	require.NoError(t, err)
	go hostEp.Serve(ctx)

	host := New(testConfig("host", wire.RoleMaster), hostEp, nil)
	require.NoError(t, host.Start(ctx, true, nil))

	clientEp, err := transport.New(transport.MulticastGroup, transport.MulticastPort)
	require.NoError(t, err)
	go clientEp.Serve(ctx)

	client := New(testConfig("joiner", wire.RoleNormal), clientEp, nil)
	require.NoError(t, client.Start(ctx, false, hostEp.LocalAddr()))

	waitFor(t, 2*time.Second, func() bool { return client.localID != -1 })
	assert.Equal(t, int32(1), client.localID)

	waitFor(t, 2*time.Second, func() bool { return host.roster.Len() == 2 })
	waitFor(t, 2*time.Second, func() bool { return host.field.HasSnake(client.localID) })
}

// TestSteerChangesHeading drives a Steer request from a joined client
// through the wire to the host and confirms the host's field actually
// turned that player's snake.
func TestSteerChangesHeading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostEp, err := transport.New(transport.MulticastGroup, transport.MulticastPort)
	require.NoError(t, err)
	go hostEp.Serve(ctx)

	host := New(testConfig("host", wire.RoleMaster), hostEp, nil)
	require.NoError(t, host.Start(ctx, true, nil))

	clientEp, err := transport.New(transport.MulticastGroup, transport.MulticastPort)
	require.NoError(t, err)
	go clientEp.Serve(ctx)

	client := New(testConfig("joiner", wire.RoleNormal), clientEp, nil)
	require.NoError(t, client.Start(ctx, false, hostEp.LocalAddr()))

	waitFor(t, 2*time.Second, func() bool { return host.field.HasSnake(client.localID) })

	var before wire.Direction
	for _, s := range host.field.Snakes() {
		if s.PlayerID == client.localID {
			before = s.Direction
		}
	}
	want := nonReversingTurn(before)

	client.Steer(want)

	waitFor(t, 2*time.Second, func() bool {
		for _, s := range host.field.Snakes() {
			if s.PlayerID == client.localID {
				return s.Direction == want
			}
		}
		return false
	})
}

func nonReversingTurn(current wire.Direction) wire.Direction {
	for _, d := range []wire.Direction{wire.Up, wire.Down, wire.Left, wire.Right} {
		if d != current && d != current.Opposite() {
			return d
		}
	}
	return current
}

// TestStateOrderStrictlyIncreasing confirms onState applies a strictly
// higher state_order and silently drops anything not strictly greater.
func TestStateOrderStrictlyIncreasing(t *testing.T) {
	ep, err := transport.New(transport.MulticastGroup, transport.MulticastPort+22)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ep.Serve(ctx)

	e := New(testConfig("follower", wire.RoleNormal), ep, nil)
	e.localID = 1
	e.roster.Add(roster.Player{ID: 1, IsLocal: true, Role: wire.RoleNormal})
	e.stateOrder = 5

	e.onState(wire.StateBody{State: wire.GameState{StateOrder: 5}})
	assert.EqualValues(t, 5, e.stateOrder, "equal state_order must be dropped")

	e.onState(wire.StateBody{State: wire.GameState{StateOrder: 4}})
	assert.EqualValues(t, 5, e.stateOrder, "regressed state_order must be dropped")

	e.onState(wire.StateBody{State: wire.GameState{StateOrder: 6, Players: []wire.PlayerInfo{
		{ID: 1, Role: wire.RoleNormal},
	}}})
	assert.EqualValues(t, 6, e.stateOrder, "strictly greater state_order must apply")
}

// TestMasterEvictionPromotesDeputy exercises situation A from ping: a
// NORMAL node whose MASTER goes silent promotes its known DEPUTY locally.
func TestMasterEvictionPromotesDeputy(t *testing.T) {
	ep, err := transport.New(transport.MulticastGroup, transport.MulticastPort+20)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ep.Serve(ctx)

	e := New(testConfig("normal", wire.RoleNormal), ep, nil)
	e.localID = 2
	e.localRole = wire.RoleNormal
	e.roster.Add(roster.Player{ID: 2, IsLocal: true, Role: wire.RoleNormal, LastRecvNS: time.Now().UnixNano()})
	e.roster.Add(roster.Player{
		ID: 0, Role: wire.RoleMaster,
		Addr:       &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9001},
		LastRecvNS: time.Now().Add(-time.Hour).UnixNano(),
		LastSendNS: time.Now().Add(-time.Hour).UnixNano(),
	})
	e.roster.Add(roster.Player{
		ID: 1, Role: wire.RoleDeputy,
		Addr:       &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9002},
		LastRecvNS: time.Now().UnixNano(),
		LastSendNS: time.Now().UnixNano(),
	})

	e.ping()

	_, masterGone := e.roster.ByID(0)
	assert.False(t, masterGone, "unresponsive master should be evicted")

	deputy, ok := e.roster.ByID(1)
	require.True(t, ok)
	assert.Equal(t, wire.RoleMaster, deputy.Role, "deputy should be optimistically promoted to master")
}

// TestBecomeMasterAssignsDeputyAndArmsTickers exercises the MASTER-side
// counterpart of failover: becomeMaster should promote a NORMAL peer to
// DEPUTY and resume the tick/announce cadence a master alone is
// responsible for driving.
func TestBecomeMasterAssignsDeputyAndArmsTickers(t *testing.T) {
	ep, err := transport.New(transport.MulticastGroup, transport.MulticastPort+21)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ep.Serve(ctx)

	e := New(testConfig("host", wire.RoleNormal), ep, nil)
	e.localID = 0
	e.roster.Add(roster.Player{ID: 0, IsLocal: true, Role: wire.RoleNormal})
	e.roster.Add(roster.Player{ID: 1, Role: wire.RoleNormal, Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9003}})

	e.becomeMaster()
	defer e.disarmMasterTickers()

	assert.Equal(t, wire.RoleMaster, e.localRole)
	deputy, ok := e.roster.Deputy()
	require.True(t, ok)
	assert.Equal(t, int32(1), deputy.ID)
	assert.NotNil(t, e.tickTicker)
	assert.NotNil(t, e.announceTicker)
}

// TestOnAckResolvesOriginalRoleChange exercises the fix for engine.py's
// dead _on_notify_ack branch: the pending table must be keyed by the
// ORIGINAL outgoing message, since a received Ack carries no type
// information of its own.
func TestOnAckResolvesOriginalRoleChange(t *testing.T) {
	e := New(testConfig("deputy", wire.RoleDeputy), nil, nil)
	e.localID = 1
	e.localRole = wire.RoleDeputy
	e.roster.Add(roster.Player{ID: 1, IsLocal: true, Role: wire.RoleDeputy})
	e.roster.Add(roster.Player{ID: 0, Role: wire.RoleNormal})

	original := &wire.Message{
		MsgSeq: 7, SenderID: 1, ReceiverID: 0,
		Body: wire.RoleChangeBody{SenderRole: wire.RoleMaster, ReceiverRole: wire.RoleNormal},
	}
	e.pendingAcks[7] = original

	e.onAck(&wire.Message{MsgSeq: 7, SenderID: 0, ReceiverID: 1, Body: wire.AckBody{}})

	assert.Equal(t, wire.RoleMaster, e.localRole)
	peer, ok := e.roster.ByID(0)
	require.True(t, ok)
	assert.Equal(t, wire.RoleNormal, peer.Role)
	assert.Empty(t, e.pendingAcks)
}

// TestOnRoleChangeAcksExactlyOnce is a regression test for the double-ack
// bug in _on_notify_role_change: every branch there falls through to an
// unconditional second acknowledge. onRoleChange must send exactly one.
func TestOnRoleChangeAcksExactlyOnce(t *testing.T) {
	ep, err := transport.New(transport.MulticastGroup, transport.MulticastPort+10)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ep.Serve(ctx)

	e := New(testConfig("normal", wire.RoleNormal), ep, nil)
	e.localID = 1
	e.localRole = wire.RoleNormal
	e.roster.Add(roster.Player{ID: 1, IsLocal: true, Role: wire.RoleNormal})
	e.roster.Add(roster.Player{ID: 0, Role: wire.RoleMaster, Addr: ep.LocalAddr()})

	recvEp, err := transport.New(transport.MulticastGroup, transport.MulticastPort+11)
	require.NoError(t, err)
	go recvEp.Serve(ctx)

	var acks int
	recvEp.Subscribe(func(d transport.Datagram) {
		msg, derr := wire.Decode(d.Payload)
		if derr == nil {
			if _, isAck := msg.Body.(wire.AckBody); isAck {
				acks++
			}
		}
	})

	msg := &wire.Message{MsgSeq: 3, SenderID: 0, ReceiverID: 1, Body: wire.RoleChangeBody{
		SenderRole: wire.RoleMaster, ReceiverRole: wire.RoleDeputy,
	}}
	e.onRoleChange(msg, wire.RoleChangeBody{SenderRole: wire.RoleMaster, ReceiverRole: wire.RoleDeputy}, recvEp.LocalAddr())

	waitFor(t, time.Second, func() bool { return acks >= 1 })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, acks, "a legal role_change must be acknowledged exactly once")
	assert.Equal(t, wire.RoleDeputy, e.localRole)
}

package roster

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snakemesh/internal/wire"
)

func udpAddr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", s)
	require.NoError(t, err)
	return addr
}

func TestAtMostOneMasterAndDeputy(t *testing.T) {
	r := New()
	r.Add(Player{ID: 0, Role: wire.RoleMaster, Addr: udpAddr(t, "127.0.0.1:9191"), IsLocal: true})
	r.Add(Player{ID: 1, Role: wire.RoleDeputy, Addr: udpAddr(t, "127.0.0.1:9192")})
	r.Add(Player{ID: 2, Role: wire.RoleNormal, Addr: udpAddr(t, "127.0.0.1:9193")})

	master, ok := r.Master()
	require.True(t, ok)
	assert.Equal(t, int32(0), master.ID)

	deputy, ok := r.Deputy()
	require.True(t, ok)
	assert.Equal(t, int32(1), deputy.ID)

	count := 0
	for _, p := range r.Players() {
		if p.Role == wire.RoleMaster {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestUniqueIDs(t *testing.T) {
	r := New()
	r.Add(Player{ID: 5})
	r.Add(Player{ID: 5, Name: "replaces-previous"})
	assert.Equal(t, 1, r.Len())
	p, ok := r.ByID(5)
	require.True(t, ok)
	assert.Equal(t, "replaces-previous", p.Name)
}

func TestExactlyOneIsLocal(t *testing.T) {
	r := New()
	r.Add(Player{ID: 0, IsLocal: true})
	r.Add(Player{ID: 1, IsLocal: false})
	r.Add(Player{ID: 2, IsLocal: false})

	localCount := 0
	for _, p := range r.Players() {
		if p.IsLocal {
			localCount++
		}
	}
	assert.Equal(t, 1, localCount)
}

func TestMaxID(t *testing.T) {
	r := New()
	assert.Equal(t, int32(-1), r.MaxID())
	r.Add(Player{ID: 3})
	r.Add(Player{ID: 7})
	r.Add(Player{ID: 1})
	assert.Equal(t, int32(7), r.MaxID())
}

func TestRemoveByID(t *testing.T) {
	r := New()
	r.Add(Player{ID: 1})
	r.RemoveByID(1)
	_, ok := r.ByID(1)
	assert.False(t, ok)
}

// Package roster tracks the set of players in a game: their network
// address, role, and score. It is grounded directly on player_manager.py's
// PlayerManager, with the mutex-protected map shape taken from
// sonpython-slether's ConnManager.
package roster

import (
	"net"
	"sort"
	"sync"

	"snakemesh/internal/wire"
)

// Player is one participant in the game, local or remote.
type Player struct {
	ID         int32
	Name       string
	Addr       *net.UDPAddr
	Role       wire.Role
	Score      uint32
	LastRecvNS int64
	LastSendNS int64
	IsLocal    bool
}

// Snapshot is an immutable copy of the roster suitable for replication or
// display, ordered by ID.
type Snapshot struct {
	StateOrder uint64
	Players    []Player
}

// Roster is the mutex-protected player table. All methods are safe for
// concurrent use, matching ConnManager's sync.RWMutex-guarded map.
type Roster struct {
	mu      sync.RWMutex
	players map[int32]*Player
}

// New returns an empty roster.
func New() *Roster {
	return &Roster{players: make(map[int32]*Player)}
}

// Add inserts or replaces the player keyed by p.ID.
func (r *Roster) Add(p Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.players[p.ID] = &cp
}

// RemoveByID deletes the player with the given id, if present.
func (r *Roster) RemoveByID(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, id)
}

// ByID returns the player with the given id, or a zero Player and false if
// absent.
func (r *Roster) ByID(id int32) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Mutate applies fn to the stored player with the given id under lock; it
// is a no-op if no such player exists. Use this for in-place field updates
// (score, role, timestamps) instead of read-modify-Add round trips.
func (r *Roster) Mutate(id int32, fn func(*Player)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[id]; ok {
		fn(p)
	}
}

// Master returns the roster's MASTER, if any. More than one MASTER is a
// bookkeeping bug elsewhere in the system; this returns the first found,
// same fallback player_manager.py's getMaster takes (logging a warning
// there, where here the caller is expected to have prevented it).
func (r *Roster) Master() (Player, bool) {
	return r.firstWithRole(wire.RoleMaster)
}

// Deputy returns the roster's DEPUTY, if any.
func (r *Roster) Deputy() (Player, bool) {
	return r.firstWithRole(wire.RoleDeputy)
}

func (r *Roster) firstWithRole(role wire.Role) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.players {
		if p.Role == role {
			return *p, true
		}
	}
	return Player{}, false
}

// MaxID returns the highest player id currently in the roster, or -1 if
// empty — player_manager.py's getMaxPlayerID, used to assign the next id.
func (r *Roster) MaxID() int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := int32(-1)
	for id := range r.players {
		if id > max {
			max = id
		}
	}
	return max
}

// Players returns a copy of every player in the roster, ordered by ID.
func (r *Roster) Players() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many players are tracked.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// LoadFromWire replaces the roster's contents from a replicated player
// list, matching player_manager.py's playersFromMsg upsert-by-id semantics
// except that, unlike the Python original, players absent from the
// incoming list are removed — the engine only calls this with a full
// snapshot, never a partial update, so staleness cannot result.
func LoadFromWire(r *Roster, infos []wire.PlayerInfo, resolveAddr func(wire.PlayerInfo) *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fresh := make(map[int32]*Player, len(infos))
	for _, info := range infos {
		existing, had := r.players[info.ID]
		var addr *net.UDPAddr
		var isLocal bool
		if had {
			addr = existing.Addr
			isLocal = existing.IsLocal
		}
		if resolveAddr != nil {
			addr = resolveAddr(info)
		}
		fresh[info.ID] = &Player{
			ID:      info.ID,
			Name:    info.Name,
			Addr:    addr,
			Role:    info.Role,
			Score:   info.Score,
			IsLocal: isLocal,
		}
	}
	r.players = fresh
}

// ToWire converts the roster to the wire.PlayerInfo slice carried in a
// replicated GameState, matching PlayerManager.asMsg.
func ToWire(r *Roster) []wire.PlayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		var addr string
		var port uint16
		if p.Addr != nil {
			addr = p.Addr.IP.String()
			port = uint16(p.Addr.Port)
		}
		out = append(out, wire.PlayerInfo{
			ID:      p.ID,
			Name:    p.Name,
			Address: addr,
			Port:    port,
			Role:    p.Role,
			Score:   p.Score,
			Type:    wire.PlayerHuman,
		})
	}
	return out
}

// Package wire defines the on-the-wire message catalogue exchanged between
// snakemesh nodes and the binary codec used to (de)serialize it.
//
// The wire format is length-delimited and tag-oneof: each Message carries a
// one-byte type tag identifying which of the nine payload kinds follows it,
// then that payload's fields framed with encoding/binary and uint16-length-
// prefixed strings. See codec.go for the exact byte layout.
package wire

// Direction is a heading a snake can move in.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Opposite returns the 180-degree reversal of d.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return d
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	default:
		return "UNKNOWN"
	}
}

// Role is a player's position in the replication topology.
type Role uint8

const (
	RoleNormal Role = iota
	RoleMaster
	RoleDeputy
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "MASTER"
	case RoleDeputy:
		return "DEPUTY"
	case RoleViewer:
		return "VIEWER"
	default:
		return "NORMAL"
	}
}

// SnakeState distinguishes a player-controlled snake from one whose owner
// has left the game but whose body is still in motion.
type SnakeState uint8

const (
	SnakeAlive SnakeState = iota
	SnakeZombie
)

// PlayerType identifies who is behind a player slot. The replication engine
// never branches on it; it is carried purely for UI display.
type PlayerType uint8

const (
	PlayerHuman PlayerType = iota
	PlayerBot
)

// Coord is an absolute or delta grid coordinate, depending on context.
type Coord struct {
	X int32
	Y int32
}

// MsgKind tags which oneof member a Message carries.
type MsgKind uint8

const (
	KindPing MsgKind = iota + 1
	KindSteer
	KindAck
	KindState
	KindAnnouncement
	KindJoin
	KindError
	KindRoleChange
	KindDiscover
)

// Body is implemented by each of the nine payload types. It is a marker
// interface, not a base class: behavior differences live in the engine's
// handlers, which switch on Kind(), not in methods on Body.
type Body interface {
	Kind() MsgKind
}

// Message is the top-level envelope. Exactly one of the Body types appears
// per message, selected by Body.Kind().
type Message struct {
	MsgSeq     uint64
	SenderID   int32
	ReceiverID int32
	Body       Body
}

// PingBody carries no data; a Ping's only purpose is to refresh the
// receiver's view of the sender's liveness.
type PingBody struct{}

func (PingBody) Kind() MsgKind { return KindPing }

// SteerBody requests a heading change for every snake the sender owns.
type SteerBody struct {
	Direction Direction
}

func (SteerBody) Kind() MsgKind { return KindSteer }

// AckBody acknowledges the message whose MsgSeq matches this Ack's MsgSeq.
type AckBody struct{}

func (AckBody) Kind() MsgKind { return KindAck }

// PlayerInfo is a roster entry as carried on the wire.
type PlayerInfo struct {
	ID      int32
	Name    string
	Address string
	Port    uint16
	Role    Role
	Score   uint32
	Type    PlayerType
}

// SnakeInfo is a snake as carried in a GameState. Points[0] is the head and
// Points[1:] are the tail segments in order, all absolute cells. The codec
// puts them on the wire head-absolute, tail-relative: Points[0] verbatim,
// each later point as its delta from the previous one (EncodeSnakePoints).
type SnakeInfo struct {
	PlayerID int32
	Points   []Coord
	Heading  Direction
	State    SnakeState
}

// GameState is a full snapshot of the authoritative world.
type GameState struct {
	StateOrder uint64
	Players    []PlayerInfo
	Foods      []Coord
	Snakes     []SnakeInfo
}

// StateBody replicates the host's world to a follower.
type StateBody struct {
	State GameState
}

func (StateBody) Kind() MsgKind { return KindState }

// GameConfig is the field configuration advertised in an Announcement.
type GameConfig struct {
	Width        int32
	Height       int32
	FoodStatic   int32
	StateDelayMS int32
}

// GameAnnouncement advertises one joinable (or full) game.
type GameAnnouncement struct {
	CanJoin bool
	Name    string
	Config  GameConfig
	Players []PlayerInfo
}

// AnnouncementBody is multicast periodically by the host. It is never
// acknowledged; its only evidence of delivery is a discoverer's later Join.
// InstanceTag identifies the sending node so a host that receives its own
// multicast loopback (address/port alone can't tell two local nodes apart
// when they share a SO_REUSEPORT socket) can recognize and drop it.
type AnnouncementBody struct {
	InstanceTag [16]byte
	Games       []GameAnnouncement
}

func (AnnouncementBody) Kind() MsgKind { return KindAnnouncement }

// JoinBody requests the host admit the sender as a new player.
type JoinBody struct {
	PlayerType    PlayerType
	PlayerName    string
	GameName      string
	RequestedRole Role
}

func (JoinBody) Kind() MsgKind { return KindJoin }

// ErrorBody carries a human-readable rejection reason, e.g. for a Join that
// could not be satisfied because the field has no space.
type ErrorBody struct {
	Message string
}

func (ErrorBody) Kind() MsgKind { return KindError }

// RoleChangeBody encodes a role transition: SenderRole is the role the
// sender is adopting (or already holds, for transitions the sender merely
// informs the receiver about); ReceiverRole is the role the receiver is
// being assigned.
type RoleChangeBody struct {
	SenderRole   Role
	ReceiverRole Role
}

func (RoleChangeBody) Kind() MsgKind { return KindRoleChange }

// DiscoverBody asks a host to immediately unicast an Announcement back,
// instead of waiting for the next periodic multicast.
type DiscoverBody struct{}

func (DiscoverBody) Kind() MsgKind { return KindDiscover }

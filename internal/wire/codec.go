package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortBuffer is returned by Decode when b is truncated mid-field.
var ErrShortBuffer = errors.New("wire: short buffer")

// ErrUnknownKind is returned by Decode when the leading tag byte does not
// match any MsgKind.
var ErrUnknownKind = errors.New("wire: unknown message kind")

// byte layout (big-endian throughout):
//
//	[0]      kind tag (MsgKind)
//	[1:9]    MsgSeq   uint64
//	[9:13]   SenderID int32
//	[13:17]  ReceiverID int32
//	[17:]    body, shape depends on kind (see each encode*/decode* pair)
//
// strings are length-prefixed with a uint16 byte count; slices are
// length-prefixed with a uint16 element count. Neither is expected to ever
// approach that ceiling for this protocol's message sizes.

// Encode serializes msg into a self-contained datagram payload.
func Encode(msg *Message) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Body.Kind()))
	_ = binary.Write(&buf, binary.BigEndian, msg.MsgSeq)
	_ = binary.Write(&buf, binary.BigEndian, msg.SenderID)
	_ = binary.Write(&buf, binary.BigEndian, msg.ReceiverID)

	switch b := msg.Body.(type) {
	case PingBody:
	case AckBody:
	case DiscoverBody:
	case SteerBody:
		buf.WriteByte(byte(b.Direction))
	case StateBody:
		encodeGameState(&buf, b.State)
	case AnnouncementBody:
		buf.Write(b.InstanceTag[:])
		writeUint16(&buf, len(b.Games))
		for _, g := range b.Games {
			encodeAnnouncement(&buf, g)
		}
	case JoinBody:
		buf.WriteByte(byte(b.PlayerType))
		writeString(&buf, b.PlayerName)
		writeString(&buf, b.GameName)
		buf.WriteByte(byte(b.RequestedRole))
	case ErrorBody:
		writeString(&buf, b.Message)
	case RoleChangeBody:
		buf.WriteByte(byte(b.SenderRole))
		buf.WriteByte(byte(b.ReceiverRole))
	default:
		panic(fmt.Sprintf("wire: Encode: unhandled body type %T", msg.Body))
	}
	return buf.Bytes()
}

// Decode parses a datagram payload previously produced by Encode.
func Decode(b []byte) (*Message, error) {
	r := bytes.NewReader(b)
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrShortBuffer
	}
	kind := MsgKind(kindByte)

	msg := &Message{}
	if err := binary.Read(r, binary.BigEndian, &msg.MsgSeq); err != nil {
		return nil, ErrShortBuffer
	}
	if err := binary.Read(r, binary.BigEndian, &msg.SenderID); err != nil {
		return nil, ErrShortBuffer
	}
	if err := binary.Read(r, binary.BigEndian, &msg.ReceiverID); err != nil {
		return nil, ErrShortBuffer
	}

	switch kind {
	case KindPing:
		msg.Body = PingBody{}
	case KindAck:
		msg.Body = AckBody{}
	case KindDiscover:
		msg.Body = DiscoverBody{}
	case KindSteer:
		dir, err := r.ReadByte()
		if err != nil {
			return nil, ErrShortBuffer
		}
		msg.Body = SteerBody{Direction: Direction(dir)}
	case KindState:
		state, err := decodeGameState(r)
		if err != nil {
			return nil, err
		}
		msg.Body = StateBody{State: state}
	case KindAnnouncement:
		var tag [16]byte
		if _, err := io.ReadFull(r, tag[:]); err != nil {
			return nil, ErrShortBuffer
		}
		n, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		games := make([]GameAnnouncement, 0, n)
		for i := 0; i < n; i++ {
			g, err := decodeAnnouncement(r)
			if err != nil {
				return nil, err
			}
			games = append(games, g)
		}
		msg.Body = AnnouncementBody{InstanceTag: tag, Games: games}
	case KindJoin:
		pt, err := r.ReadByte()
		if err != nil {
			return nil, ErrShortBuffer
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		game, err := readString(r)
		if err != nil {
			return nil, err
		}
		role, err := r.ReadByte()
		if err != nil {
			return nil, ErrShortBuffer
		}
		msg.Body = JoinBody{
			PlayerType:    PlayerType(pt),
			PlayerName:    name,
			GameName:      game,
			RequestedRole: Role(role),
		}
	case KindError:
		m, err := readString(r)
		if err != nil {
			return nil, err
		}
		msg.Body = ErrorBody{Message: m}
	case KindRoleChange:
		sr, err := r.ReadByte()
		if err != nil {
			return nil, ErrShortBuffer
		}
		rr, err := r.ReadByte()
		if err != nil {
			return nil, ErrShortBuffer
		}
		msg.Body = RoleChangeBody{SenderRole: Role(sr), ReceiverRole: Role(rr)}
	default:
		return nil, ErrUnknownKind
	}
	return msg, nil
}

func writeUint16(buf *bytes.Buffer, n int) {
	_ = binary.Write(buf, binary.BigEndian, uint16(n))
}

func readUint16(r *bytes.Reader) (int, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, ErrShortBuffer
	}
	return int(n), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint16(buf, len(s))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", ErrShortBuffer
	}
	return string(out), nil
}

func writePlayerInfo(buf *bytes.Buffer, p PlayerInfo) {
	_ = binary.Write(buf, binary.BigEndian, p.ID)
	writeString(buf, p.Name)
	writeString(buf, p.Address)
	_ = binary.Write(buf, binary.BigEndian, p.Port)
	buf.WriteByte(byte(p.Role))
	_ = binary.Write(buf, binary.BigEndian, p.Score)
	buf.WriteByte(byte(p.Type))
}

func readPlayerInfo(r *bytes.Reader) (PlayerInfo, error) {
	var p PlayerInfo
	if err := binary.Read(r, binary.BigEndian, &p.ID); err != nil {
		return p, ErrShortBuffer
	}
	name, err := readString(r)
	if err != nil {
		return p, err
	}
	addr, err := readString(r)
	if err != nil {
		return p, err
	}
	p.Name, p.Address = name, addr
	if err := binary.Read(r, binary.BigEndian, &p.Port); err != nil {
		return p, ErrShortBuffer
	}
	role, err := r.ReadByte()
	if err != nil {
		return p, ErrShortBuffer
	}
	p.Role = Role(role)
	if err := binary.Read(r, binary.BigEndian, &p.Score); err != nil {
		return p, ErrShortBuffer
	}
	typ, err := r.ReadByte()
	if err != nil {
		return p, ErrShortBuffer
	}
	p.Type = PlayerType(typ)
	return p, nil
}

func writeCoord(buf *bytes.Buffer, c Coord) {
	_ = binary.Write(buf, binary.BigEndian, c.X)
	_ = binary.Write(buf, binary.BigEndian, c.Y)
}

func readCoord(r *bytes.Reader) (Coord, error) {
	var c Coord
	if err := binary.Read(r, binary.BigEndian, &c.X); err != nil {
		return c, ErrShortBuffer
	}
	if err := binary.Read(r, binary.BigEndian, &c.Y); err != nil {
		return c, ErrShortBuffer
	}
	return c, nil
}

// EncodeSnakePoints converts an absolute point sequence into the head-
// absolute, tail-delta wire representation: pts[0] is carried verbatim,
// every later point is replaced by its offset from its predecessor. This
// mirrors field_manager.py's toPoints/fromPoints compaction for snake
// bodies, which are usually long runs of +1/-1 steps.
func EncodeSnakePoints(pts []Coord) []Coord {
	if len(pts) == 0 {
		return nil
	}
	out := make([]Coord, len(pts))
	out[0] = pts[0]
	for i := 1; i < len(pts); i++ {
		out[i] = Coord{X: pts[i].X - pts[i-1].X, Y: pts[i].Y - pts[i-1].Y}
	}
	return out
}

// DecodeSnakePoints reverses EncodeSnakePoints.
func DecodeSnakePoints(deltas []Coord) []Coord {
	if len(deltas) == 0 {
		return nil
	}
	out := make([]Coord, len(deltas))
	out[0] = deltas[0]
	for i := 1; i < len(deltas); i++ {
		out[i] = Coord{X: out[i-1].X + deltas[i].X, Y: out[i-1].Y + deltas[i].Y}
	}
	return out
}

func encodeGameState(buf *bytes.Buffer, s GameState) {
	_ = binary.Write(buf, binary.BigEndian, s.StateOrder)
	writeUint16(buf, len(s.Players))
	for _, p := range s.Players {
		writePlayerInfo(buf, p)
	}
	writeUint16(buf, len(s.Foods))
	for _, f := range s.Foods {
		writeCoord(buf, f)
	}
	writeUint16(buf, len(s.Snakes))
	for _, sn := range s.Snakes {
		_ = binary.Write(buf, binary.BigEndian, sn.PlayerID)
		deltas := EncodeSnakePoints(sn.Points)
		writeUint16(buf, len(deltas))
		for _, d := range deltas {
			writeCoord(buf, d)
		}
		buf.WriteByte(byte(sn.Heading))
		buf.WriteByte(byte(sn.State))
	}
}

func decodeGameState(r *bytes.Reader) (GameState, error) {
	var s GameState
	if err := binary.Read(r, binary.BigEndian, &s.StateOrder); err != nil {
		return s, ErrShortBuffer
	}
	nPlayers, err := readUint16(r)
	if err != nil {
		return s, err
	}
	s.Players = make([]PlayerInfo, 0, nPlayers)
	for i := 0; i < nPlayers; i++ {
		p, err := readPlayerInfo(r)
		if err != nil {
			return s, err
		}
		s.Players = append(s.Players, p)
	}
	nFoods, err := readUint16(r)
	if err != nil {
		return s, err
	}
	s.Foods = make([]Coord, 0, nFoods)
	for i := 0; i < nFoods; i++ {
		c, err := readCoord(r)
		if err != nil {
			return s, err
		}
		s.Foods = append(s.Foods, c)
	}
	nSnakes, err := readUint16(r)
	if err != nil {
		return s, err
	}
	s.Snakes = make([]SnakeInfo, 0, nSnakes)
	for i := 0; i < nSnakes; i++ {
		var sn SnakeInfo
		if err := binary.Read(r, binary.BigEndian, &sn.PlayerID); err != nil {
			return s, ErrShortBuffer
		}
		nPts, err := readUint16(r)
		if err != nil {
			return s, err
		}
		deltas := make([]Coord, 0, nPts)
		for j := 0; j < nPts; j++ {
			c, err := readCoord(r)
			if err != nil {
				return s, err
			}
			deltas = append(deltas, c)
		}
		sn.Points = DecodeSnakePoints(deltas)
		heading, err := r.ReadByte()
		if err != nil {
			return s, ErrShortBuffer
		}
		sn.Heading = Direction(heading)
		state, err := r.ReadByte()
		if err != nil {
			return s, ErrShortBuffer
		}
		sn.State = SnakeState(state)
		s.Snakes = append(s.Snakes, sn)
	}
	return s, nil
}

func encodeAnnouncement(buf *bytes.Buffer, g GameAnnouncement) {
	if g.CanJoin {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeString(buf, g.Name)
	_ = binary.Write(buf, binary.BigEndian, g.Config.Width)
	_ = binary.Write(buf, binary.BigEndian, g.Config.Height)
	_ = binary.Write(buf, binary.BigEndian, g.Config.FoodStatic)
	_ = binary.Write(buf, binary.BigEndian, g.Config.StateDelayMS)
	writeUint16(buf, len(g.Players))
	for _, p := range g.Players {
		writePlayerInfo(buf, p)
	}
}

func decodeAnnouncement(r *bytes.Reader) (GameAnnouncement, error) {
	var g GameAnnouncement
	canJoin, err := r.ReadByte()
	if err != nil {
		return g, ErrShortBuffer
	}
	g.CanJoin = canJoin != 0
	name, err := readString(r)
	if err != nil {
		return g, err
	}
	g.Name = name
	if err := binary.Read(r, binary.BigEndian, &g.Config.Width); err != nil {
		return g, ErrShortBuffer
	}
	if err := binary.Read(r, binary.BigEndian, &g.Config.Height); err != nil {
		return g, ErrShortBuffer
	}
	if err := binary.Read(r, binary.BigEndian, &g.Config.FoodStatic); err != nil {
		return g, ErrShortBuffer
	}
	if err := binary.Read(r, binary.BigEndian, &g.Config.StateDelayMS); err != nil {
		return g, ErrShortBuffer
	}
	n, err := readUint16(r)
	if err != nil {
		return g, err
	}
	g.Players = make([]PlayerInfo, 0, n)
	for i := 0; i < n; i++ {
		p, err := readPlayerInfo(r)
		if err != nil {
			return g, err
		}
		g.Players = append(g.Players, p)
	}
	return g, nil
}

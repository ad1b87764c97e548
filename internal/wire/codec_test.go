package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  *Message
	}{
		{"ping", &Message{MsgSeq: 1, SenderID: 2, ReceiverID: 3, Body: PingBody{}}},
		{"ack", &Message{MsgSeq: 42, SenderID: 1, ReceiverID: 0, Body: AckBody{}}},
		{"discover", &Message{MsgSeq: 7, SenderID: -1, ReceiverID: 0, Body: DiscoverBody{}}},
		{"steer", &Message{MsgSeq: 5, SenderID: 3, ReceiverID: 1, Body: SteerBody{Direction: Left}}},
		{"join", &Message{MsgSeq: 9, SenderID: -1, ReceiverID: 0, Body: JoinBody{
			PlayerType:    PlayerHuman,
			PlayerName:    "hiss",
			GameName:      "arena",
			RequestedRole: RoleNormal,
		}}},
		{"error", &Message{MsgSeq: 10, SenderID: 1, ReceiverID: 5, Body: ErrorBody{Message: "field is full"}}},
		{"role_change", &Message{MsgSeq: 11, SenderID: 1, ReceiverID: 2, Body: RoleChangeBody{
			SenderRole:   RoleMaster,
			ReceiverRole: RoleDeputy,
		}}},
		{"state", &Message{MsgSeq: 100, SenderID: 1, ReceiverID: 2, Body: StateBody{State: GameState{
			StateOrder: 12,
			Players: []PlayerInfo{
				{ID: 1, Name: "alice", Address: "10.0.0.1", Port: 9191, Role: RoleMaster, Score: 3, Type: PlayerHuman},
			},
			Foods: []Coord{{X: 4, Y: 4}, {X: 9, Y: 1}},
			Snakes: []SnakeInfo{
				{PlayerID: 1, Points: []Coord{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}, Heading: Down, State: SnakeAlive},
			},
		}}}},
		{"announcement", &Message{MsgSeq: 3, SenderID: 1, ReceiverID: -1, Body: AnnouncementBody{
			InstanceTag: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
			Games: []GameAnnouncement{
				{
					CanJoin: true,
					Name:    "arena",
					Config:  GameConfig{Width: 40, Height: 30, FoodStatic: 5, StateDelayMS: 300},
					Players: []PlayerInfo{{ID: 1, Name: "alice", Address: "10.0.0.1", Port: 9191, Role: RoleMaster}},
				},
			},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.msg)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.msg, decoded)
		})
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{byte(KindPing)})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeUnknownKind(t *testing.T) {
	msg := &Message{MsgSeq: 1, SenderID: 1, ReceiverID: 1, Body: PingBody{}}
	encoded := Encode(msg)
	encoded[0] = 0xFF
	_, err := Decode(encoded)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSnakePointDeltaRoundTrip(t *testing.T) {
	pts := []Coord{{X: 10, Y: 10}, {X: 10, Y: 11}, {X: 11, Y: 11}, {X: 11, Y: 12}}
	deltas := EncodeSnakePoints(pts)
	require.Equal(t, pts[0], deltas[0])
	restored := DecodeSnakePoints(deltas)
	assert.Equal(t, pts, restored)
}

func TestSnakePointDeltaEmpty(t *testing.T) {
	assert.Nil(t, EncodeSnakePoints(nil))
	assert.Nil(t, DecodeSnakePoints(nil))
}

// Package field implements the toroidal game world: snake motion, food
// spawning, and collision resolution. It is grounded directly on
// field_manager.py's FieldManager/Snake pair and deliberately keeps that
// algorithm's ordering and edge cases (e.g. the k=30 spawn-site search).
package field

import (
	"math/rand"

	"snakemesh/internal/wire"
)

// Point is an absolute grid coordinate, already reduced modulo the field's
// dimensions.
type Point struct {
	X int
	Y int
}

// Snake is a single player's body on the field. The head moves each tick in
// Direction; Tail holds body segments ordered head-to-tail-most, each one
// tick "behind" the segment before it.
type Snake struct {
	PlayerID  int32
	HeadX     int
	HeadY     int
	Direction wire.Direction
	requested *wire.Direction
	Tail      []Point
	State     wire.SnakeState
}

// newSnake places a freshly spawned snake at (headX, headY) heading dir,
// with a single tail segment one cell behind the head — mirroring
// Snake.__init__'s tail-seeding switch.
func newSnake(playerID int32, headX, headY int, dir wire.Direction) *Snake {
	s := &Snake{
		PlayerID:  playerID,
		HeadX:     headX,
		HeadY:     headY,
		Direction: dir,
		State:     wire.SnakeAlive,
	}
	switch dir {
	case wire.Up:
		s.Tail = []Point{{headX, headY + 1}}
	case wire.Down:
		s.Tail = []Point{{headX, headY - 1}}
	case wire.Left:
		s.Tail = []Point{{headX + 1, headY}}
	case wire.Right:
		s.Tail = []Point{{headX - 1, headY}}
	}
	return s
}

// Turn records a heading change to be applied on the next Move. A second
// Turn before the next tick overwrites the first, same as
// Snake.turn/_requested_direction.
func (s *Snake) Turn(dir wire.Direction) {
	d := dir
	s.requested = &d
}

// move advances the snake by one cell and returns the segment that fell off
// the tail (the caller re-appends it if the new head lands on food).
func (s *Snake) move(width, height int) Point {
	if s.requested != nil {
		s.Direction = *s.requested
		s.requested = nil
	}
	newX, newY := s.HeadX, s.HeadY
	switch s.Direction {
	case wire.Up:
		newY--
	case wire.Down:
		newY++
	case wire.Left:
		newX--
	case wire.Right:
		newX++
	}
	last := s.Tail[len(s.Tail)-1]
	newTail := make([]Point, len(s.Tail))
	newTail[0] = Point{s.HeadX, s.HeadY}
	copy(newTail[1:], s.Tail[:len(s.Tail)-1])
	s.Tail = newTail
	s.HeadX, s.HeadY = mod(newX, width), mod(newY, height)
	return Point{mod(last.X, width), mod(last.Y, height)}
}

// head returns the snake's current head position, already wrapped.
func (s *Snake) head(width, height int) Point {
	return Point{mod(s.HeadX, width), mod(s.HeadY, height)}
}

// occupiedBlocks returns the head plus every tail segment, each wrapped.
func (s *Snake) occupiedBlocks(width, height int) []Point {
	out := make([]Point, 0, len(s.Tail)+1)
	out = append(out, s.head(width, height))
	for _, t := range s.Tail {
		out = append(out, Point{mod(t.X, width), mod(t.Y, height)})
	}
	return out
}

// toPoints returns the head as an absolute, wrapped cell followed by each
// tail segment's delta from the point before it; loadFromPoints reverses it.
func (s *Snake) toPoints(width, height int) []wire.Coord {
	pts := make([]wire.Coord, 0, len(s.Tail)+1)
	oldX, oldY := mod(s.HeadX, width), mod(s.HeadY, height)
	pts = append(pts, wire.Coord{X: int32(oldX), Y: int32(oldY)})
	for _, t := range s.Tail {
		x, y := mod(t.X, width), mod(t.Y, height)
		pts = append(pts, wire.Coord{X: int32(x - oldX), Y: int32(y - oldY)})
		oldX, oldY = x, y
	}
	return pts
}

// loadFromPoints rebuilds a snake's head/tail from an absolute head plus
// tail deltas, the same shape field_manager.py's fromPoints consumes.
func (s *Snake) loadFromPoints(pts []wire.Coord) {
	if len(pts) < 2 {
		return
	}
	oldX, oldY := int(pts[0].X), int(pts[0].Y)
	s.HeadX, s.HeadY = oldX, oldY
	s.Tail = s.Tail[:0]
	for _, d := range pts[1:] {
		oldX += int(d.X)
		oldY += int(d.Y)
		s.Tail = append(s.Tail, Point{oldX, oldY})
	}
}

func mod(v, m int) int {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

var directions = [...]wire.Direction{wire.Up, wire.Down, wire.Left, wire.Right}

func randomDirection(rng *rand.Rand) wire.Direction {
	return directions[rng.Intn(len(directions))]
}

package field

import (
	"math/rand"

	"golang.org/x/exp/maps"

	"snakemesh/internal/wire"
)

// Config is the field's fixed geometry and food pressure, set once at
// construction — mirrors FieldManager.__init__'s width/height/food_static.
type Config struct {
	Width        int
	Height       int
	FoodStatic   int
	StateDelayMS int
}

// EventKind distinguishes the two update kinds FieldManager.tick reports.
type EventKind int

const (
	// EventScore fires for the killer(s) of a dead snake and for a snake
	// that has just eaten.
	EventScore EventKind = iota
	// EventDeath fires once per snake removed from the field this tick.
	EventDeath
)

// Event is one outcome of a Tick, to be relayed to the roster for
// score bookkeeping and to observers for death animation.
type Event struct {
	PlayerID int32
	Kind     EventKind
}

// Field is the authoritative toroidal game world: a fixed-size grid holding
// snakes and food. It has no notion of network identity or replication; the
// engine package owns that and drives Field purely through PlayerID values.
type Field struct {
	cfg   Config
	rng   *rand.Rand
	snake map[int32]*Snake
	food  map[Point]struct{}
}

// New builds an empty field of the given geometry with no snakes or food.
func New(cfg Config) *Field {
	return &Field{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(1)),
		snake: make(map[int32]*Snake),
		food:  make(map[Point]struct{}),
	}
}

// SpawnSnake places a new snake for playerID at (x, y) heading a random
// direction, mirroring FieldManager.spawnSnake.
func (f *Field) SpawnSnake(x, y int, playerID int32) {
	f.snake[playerID] = newSnake(playerID, x, y, randomDirection(f.rng))
}

func (f *Field) occupiedBlocks() map[Point]struct{} {
	occupied := make(map[Point]struct{}, len(f.food)+len(f.snake)*4)
	for p := range f.food {
		occupied[p] = struct{}{}
	}
	for _, s := range f.snake {
		for _, p := range s.occupiedBlocks(f.cfg.Width, f.cfg.Height) {
			occupied[p] = struct{}{}
		}
	}
	return occupied
}

func (f *Field) spawnFoodAt(occupied map[Point]struct{}) Point {
	for {
		p := Point{f.rng.Intn(f.cfg.Width), f.rng.Intn(f.cfg.Height)}
		if _, taken := occupied[p]; !taken {
			f.food[p] = struct{}{}
			return p
		}
	}
}

// replenishFood tops food up to FoodStatic+len(snakes), same floor
// FieldManager._replenishFood maintains, and stops once the board is full.
func (f *Field) replenishFood() {
	target := f.cfg.FoodStatic + len(f.snake)
	if len(f.food) >= target {
		return
	}
	occupied := f.occupiedBlocks()
	for len(f.food) < target && len(occupied) < f.cfg.Width*f.cfg.Height {
		occupied[f.spawnFoodAt(occupied)] = struct{}{}
	}
}

// spawnFoodFromSnake scatters food over a dead snake's former body, each
// cell independently at 50% odds — FieldManager._spawnFoodFromSnake.
func (f *Field) spawnFoodFromSnake(s *Snake) {
	for _, t := range s.Tail {
		if f.rng.Float64() < 0.5 {
			f.food[Point{mod(t.X, f.cfg.Width), mod(t.Y, f.cfg.Height)}] = struct{}{}
		}
	}
}

// RequestPosForNewSnake searches for an open 5x5 neighborhood for a new
// snake to spawn into, matching FieldManager.getPosForNewSnake's k=30
// bounded retry. false means the field has no room right now.
func (f *Field) RequestPosForNewSnake() (Point, bool) {
	occupied := f.occupiedBlocks()
	for attempt := 0; attempt < 30; attempt++ {
		x := f.rng.Intn(f.cfg.Width)
		y := f.rng.Intn(f.cfg.Height)
		clear := true
		for dx := -2; dx <= 2 && clear; dx++ {
			for dy := -2; dy <= 2; dy++ {
				p := Point{mod(x+dx, f.cfg.Width), mod(y+dy, f.cfg.Height)}
				if _, taken := occupied[p]; taken {
					clear = false
					break
				}
			}
		}
		if clear {
			return Point{x, y}, true
		}
	}
	return Point{}, false
}

// Turn records a pending heading change for playerID's snake. It is a no-op
// if that player has no snake on the field (e.g. a Steer arriving after
// death), and a no-op if d is the 180-degree reversal of the snake's
// current heading — mirroring engine.py's _on_notify_steer guard, which
// drops a turn into the snake's own neck rather than handing Field an
// immediately-fatal transition.
func (f *Field) Turn(playerID int32, d wire.Direction) {
	s, ok := f.snake[playerID]
	if !ok {
		return
	}
	if s.State == wire.SnakeZombie || d.Opposite() == s.Direction {
		return
	}
	s.Turn(d)
}

// tickFood moves every snake one cell and grows any that landed on food,
// mirroring FieldManager._tickFood.
func (f *Field) tickFood() []Event {
	var events []Event
	toDelete := make(map[Point]struct{})
	for _, s := range f.snake {
		last := s.move(f.cfg.Width, f.cfg.Height)
		pos := s.head(f.cfg.Width, f.cfg.Height)
		if _, hasFood := f.food[pos]; hasFood {
			toDelete[pos] = struct{}{}
			s.Tail = append(s.Tail, last)
			events = append(events, Event{PlayerID: s.PlayerID, Kind: EventScore})
		}
	}
	for p := range toDelete {
		delete(f.food, p)
	}
	return events
}

// tickDeath resolves head/body collisions: a snake dies if its head lands on
// a block occupied at least twice over, counting its own blocks — that
// covers both colliding with another snake's block and colliding with its
// own tail. Every *other* occupant of that block scores; a self-collision
// awards no score to anyone. Mirrors FieldManager._tickDeath, including the
// same-cell mutual-kill semantics (both snakes die, both score each other).
func (f *Field) tickDeath() []Event {
	occupants := make(map[Point][]*Snake)
	for _, s := range f.snake {
		for _, p := range s.occupiedBlocks(f.cfg.Width, f.cfg.Height) {
			occupants[p] = append(occupants[p], s)
		}
	}

	var events []Event
	dead := make(map[int32]*Snake)
	for _, s := range f.snake {
		headPos := s.head(f.cfg.Width, f.cfg.Height)
		killers := occupants[headPos]
		if len(killers) < 2 {
			continue
		}
		for _, k := range killers {
			if k.PlayerID != s.PlayerID {
				events = append(events, Event{PlayerID: k.PlayerID, Kind: EventScore})
			}
		}
		dead[s.PlayerID] = s
		events = append(events, Event{PlayerID: s.PlayerID, Kind: EventDeath})
	}
	for id, s := range dead {
		f.spawnFoodFromSnake(s)
		delete(f.snake, id)
	}
	return events
}

// Tick advances the field by one step: move/eat, then collision/death, then
// food replenishment — the exact phase order of FieldManager.tick.
func (f *Field) Tick() []Event {
	events := f.tickFood()
	events = append(events, f.tickDeath()...)
	f.replenishFood()
	return events
}

// Snakes returns every live snake on the field, order unspecified.
func (f *Field) Snakes() []*Snake {
	return maps.Values(f.snake)
}

// Food returns every food cell on the field, order unspecified.
func (f *Field) Food() []Point {
	return maps.Keys(f.food)
}

// HasSnake reports whether playerID currently has a snake on the field.
func (f *Field) HasSnake(playerID int32) bool {
	_, ok := f.snake[playerID]
	return ok
}

// Zombify marks playerID's snake (if any) as abandoned: it keeps moving in
// its last heading but no longer responds to Turn, matching
// engine.py's state=ZOMBIE assignment for a player who left but whose body
// remains in play until something kills it.
func (f *Field) Zombify(playerID int32) {
	if s, ok := f.snake[playerID]; ok {
		s.State = wire.SnakeZombie
	}
}

// RemoveSnake deletes playerID's snake outright, leaving no body behind.
// The engine does not call it; eviction and VIEWER transitions zombify.
func (f *Field) RemoveSnake(playerID int32) {
	delete(f.snake, playerID)
}

// Snapshot is the field's snakes and food at one point in time, for
// replication or display. Snakes holds the field's own *Snake values, not
// copies.
type Snapshot struct {
	StateOrder uint64
	Snakes     []*Snake
	Food       []Point
}

// LoadSnapshot replaces the field's snakes and food wholesale — used by a
// follower applying a replicated wire.State, mirroring
// FieldManager.snakesFromMsg/foodFromMsg.
func (f *Field) LoadSnapshot(snakes []*Snake, food []Point) {
	f.snake = make(map[int32]*Snake, len(snakes))
	for _, s := range snakes {
		f.snake[s.PlayerID] = s
	}
	f.food = make(map[Point]struct{}, len(food))
	for _, p := range food {
		f.food[p] = struct{}{}
	}
}

// ToWireSnake converts a field snake to its wire representation: the head
// and tail as absolute, wrapped cells, which the codec delta-encodes.
func ToWireSnake(s *Snake, width, height int) wire.SnakeInfo {
	pts := s.toPoints(width, height)
	return wire.SnakeInfo{
		PlayerID: s.PlayerID,
		Points:   wire.DecodeSnakePoints(pts),
		Heading:  s.Direction,
		State:    s.State,
	}
}

// FromWireSnake reconstructs a field snake from its wire representation.
func FromWireSnake(info wire.SnakeInfo) *Snake {
	s := &Snake{PlayerID: info.PlayerID, Direction: info.Heading, State: info.State}
	s.loadFromPoints(wire.EncodeSnakePoints(info.Points))
	return s
}

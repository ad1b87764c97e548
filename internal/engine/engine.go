// Package engine implements the replication/role engine: the timer wheel,
// the message dispatch table, and the MASTER/DEPUTY/NORMAL/VIEWER role
// transitions. It is grounded clause-for-clause on engine.py's GameEngine,
// generalized from Qt's QTimer/readyRead signal plumbing to four
// *time.Ticker objects driven from one goroutine's select, the idiom
// bontibon-go-workshop/snakes/server.go's Server.Run uses for its own
// control loop.
package engine

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"

	"snakemesh/internal/field"
	"snakemesh/internal/roster"
	"snakemesh/internal/transport"
	"snakemesh/internal/wire"
)

// Direction re-exports wire.Direction as the engine's input seam, matching
// the documented UI boundary (direction in, Repaint out).
type Direction = wire.Direction

// UIObserver is the engine's outbound seam to a UI collaborator. Repaint is
// called after every accepted state snapshot or local host tick.
type UIObserver interface {
	Repaint(roster.Snapshot, field.Snapshot)
}

// Config is the fixed parameter bundle an Engine is built from, populated
// from config.NodeConfig by the CLI.
type Config struct {
	GameName      string
	Width         int
	Height        int
	FoodStatic    int
	StateDelayMS  int
	ClientName    string
	RequestedRole wire.Role
}

// PendingAckTable is the set of sent messages awaiting acknowledgement,
// keyed by msg_seq — engine.py's self._messages_expecting_ack.
type PendingAckTable map[uint64]*wire.Message

// Engine owns one node's roster, field, and role-transition state machine.
// All of its mutable state is touched only from the goroutine started by
// Start; every other method communicates with that goroutine over a
// channel, matching the single-event-loop-per-resource discipline.
type Engine struct {
	cfg      Config
	transport *transport.Endpoint
	roster   *roster.Roster
	field    *field.Field
	observer UIObserver

	instanceTag [16]byte

	localID   int32
	localRole wire.Role

	bootstrapMaster *net.UDPAddr

	msgSeq      uint64
	stateOrder  uint64
	pendingAcks PendingAckTable

	ackTicker      *time.Ticker
	pingTicker     *time.Ticker
	tickTicker     *time.Ticker
	announceTicker *time.Ticker

	incoming       chan transport.Datagram
	steerCh        chan wire.Direction
	becomeViewerCh chan struct{}
	snapshotCh     chan snapshotRequest
	doneCh         chan struct{}
	cancel         context.CancelFunc
}

type snapshotRequest struct {
	reply chan snapshotResult
}

type snapshotResult struct {
	Roster roster.Snapshot
	Field  field.Snapshot
}

// New builds an Engine bound to ep. It does no network I/O until Start.
func New(cfg Config, ep *transport.Endpoint, observer UIObserver) *Engine {
	tag := uuid.New()
	var tagBytes [16]byte
	copy(tagBytes[:], tag[:])

	return &Engine{
		cfg:       cfg,
		transport: ep,
		roster:    roster.New(),
		field: field.New(field.Config{
			Width:        cfg.Width,
			Height:       cfg.Height,
			FoodStatic:   cfg.FoodStatic,
			StateDelayMS: cfg.StateDelayMS,
		}),
		observer:       observer,
		instanceTag:    tagBytes,
		localID:        -1,
		localRole:      cfg.RequestedRole,
		pendingAcks:    make(PendingAckTable),
		incoming:       make(chan transport.Datagram, 64),
		steerCh:        make(chan wire.Direction),
		becomeViewerCh: make(chan struct{}),
		snapshotCh:     make(chan snapshotRequest),
		doneCh:         make(chan struct{}),
	}
}

// Start boots the node: as host it assigns itself id 0, becomes MASTER, and
// spawns its own snake; as a joiner it sends a Join to masterAddr and waits
// for the engine's own event loop to process the reply. Matches
// GameEngine.start's is_host branch.
func (e *Engine) Start(ctx context.Context, host bool, masterAddr *net.UDPAddr) error {
	now := time.Now().UnixNano()

	if host {
		e.localID = 0
		e.localRole = wire.RoleMaster
		e.roster.Add(roster.Player{
			ID: 0, Name: e.cfg.ClientName, Addr: e.transport.LocalAddr(),
			Role: wire.RoleMaster, IsLocal: true, LastRecvNS: now, LastSendNS: now,
		})
		pos, ok := e.field.RequestPosForNewSnake()
		if !ok {
			return fmt.Errorf("%w: fresh field has no room for the host's own snake", ErrNoSpace)
		}
		e.field.SpawnSnake(pos.X, pos.Y, 0)
		e.armMasterTickers()
	} else {
		if masterAddr == nil {
			return fmt.Errorf("%w: joining requires a master address", ErrProtocolViolation)
		}
		e.bootstrapMaster = masterAddr
		e.roster.Add(roster.Player{
			ID: -1, Name: e.cfg.ClientName, Addr: e.transport.LocalAddr(),
			Role: e.localRole, IsLocal: true, LastRecvNS: now, LastSendNS: now,
		})
		e.sendRawToMaster(wire.JoinBody{
			PlayerType:    wire.PlayerHuman,
			PlayerName:    e.cfg.ClientName,
			GameName:      e.cfg.GameName,
			RequestedRole: e.localRole,
		}, true)
	}

	delay := e.cfg.StateDelayMS / 10
	if delay < 1 {
		delay = 1
	}
	e.ackTicker = time.NewTicker(time.Duration(delay) * time.Millisecond)
	e.pingTicker = time.NewTicker(time.Duration(delay) * time.Millisecond)

	e.transport.Subscribe(func(d transport.Datagram) {
		select {
		case e.incoming <- d:
		case <-e.doneCh:
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(runCtx)
	return nil
}

// Stop ends the engine's event loop and releases its tickers.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Steer requests a heading change for the local player's snake. It is
// delivered to the engine's own goroutine, which (per moveClientSnake) does
// not touch the field directly but sends a Steer request to the master —
// even when this node IS the master, in which case the request loops back
// over the network exactly like any other player's.
func (e *Engine) Steer(d wire.Direction) {
	select {
	case e.steerCh <- d:
	case <-e.doneCh:
	}
}

// BecomeViewer requests the local player step down to VIEWER.
func (e *Engine) BecomeViewer() {
	select {
	case e.becomeViewerCh <- struct{}{}:
	case <-e.doneCh:
	}
}

// Snapshot returns the roster and field as of one point in time, obtained
// via a round trip through the engine's own goroutine. The roster players
// are copies; the field snapshot's snakes are the field's own *Snake values.
func (e *Engine) Snapshot() (roster.Snapshot, field.Snapshot) {
	req := snapshotRequest{reply: make(chan snapshotResult, 1)}
	select {
	case e.snapshotCh <- req:
	case <-e.doneCh:
		return roster.Snapshot{}, field.Snapshot{}
	}
	select {
	case res := <-req.reply:
		return res.Roster, res.Field
	case <-e.doneCh:
		return roster.Snapshot{}, field.Snapshot{}
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)
	defer e.stopTickers()

	for {
		var tickC, announceC <-chan time.Time
		if e.tickTicker != nil {
			tickC = e.tickTicker.C
		}
		if e.announceTicker != nil {
			announceC = e.announceTicker.C
		}

		select {
		case <-ctx.Done():
			return
		case dg := <-e.incoming:
			e.dispatch(dg)
		case d := <-e.steerCh:
			e.doSteerLocal(d)
		case <-e.becomeViewerCh:
			e.becomeViewer()
		case req := <-e.snapshotCh:
			req.reply <- e.buildSnapshot()
		case <-e.ackTicker.C:
			e.retryAcks()
		case <-e.pingTicker.C:
			e.ping()
		case <-tickC:
			e.tick()
		case <-announceC:
			e.announce(nil)
		}
	}
}

func (e *Engine) stopTickers() {
	if e.ackTicker != nil {
		e.ackTicker.Stop()
	}
	if e.pingTicker != nil {
		e.pingTicker.Stop()
	}
	e.disarmMasterTickers()
}

// armMasterTickers lazily constructs the tick/announce tickers on becoming
// MASTER. time.Ticker cannot be restarted once Stop'd, so disarming always
// nils the field and arming always allocates fresh — the Go equivalent of
// engine.py's _init_timer(start=False) + explicit .start()/.stop() pairing.
func (e *Engine) armMasterTickers() {
	if e.tickTicker == nil {
		e.tickTicker = time.NewTicker(time.Duration(e.cfg.StateDelayMS) * time.Millisecond)
	}
	if e.announceTicker == nil {
		e.announceTicker = time.NewTicker(time.Second)
	}
}

func (e *Engine) disarmMasterTickers() {
	if e.tickTicker != nil {
		e.tickTicker.Stop()
		e.tickTicker = nil
	}
	if e.announceTicker != nil {
		e.announceTicker.Stop()
		e.announceTicker = nil
	}
}

func (e *Engine) buildSnapshot() snapshotResult {
	return snapshotResult{
		Roster: roster.Snapshot{StateOrder: e.stateOrder, Players: e.roster.Players()},
		Field:  field.Snapshot{StateOrder: e.stateOrder, Snakes: e.field.Snakes(), Food: e.field.Food()},
	}
}

func (e *Engine) repaint() {
	if e.observer == nil {
		return
	}
	res := e.buildSnapshot()
	e.observer.Repaint(res.Roster, res.Field)
}

func (e *Engine) nextMsgSeq() uint64 {
	seq := e.msgSeq
	e.msgSeq++
	return seq
}

// nextPlayerID returns the next id to assign a newly joined player,
// matching getMaxPlayerID()+1 rather than a separately tracked counter —
// the roster is always this engine's sole source of truth for ids in use.
func (e *Engine) nextPlayerID() int32 {
	return e.roster.MaxID() + 1
}

func (e *Engine) setLocalRole(r wire.Role) {
	e.localRole = r
	e.roster.Mutate(e.localID, func(p *roster.Player) { p.Role = r })
}

// sendToPlayer addresses a fresh message to p, tracking it for ack-retry if
// expectAck, matching _sendMessage2Player's calibrate=True path.
func (e *Engine) sendToPlayer(p roster.Player, body wire.Body, expectAck bool) {
	if p.Addr == nil {
		log.Printf("engine: %v: player %d has no known address, message dropped", ErrTransport, p.ID)
		return
	}
	seq := e.nextMsgSeq()
	msg := &wire.Message{MsgSeq: seq, SenderID: e.localID, ReceiverID: p.ID, Body: body}
	if expectAck {
		e.pendingAcks[seq] = msg
	}
	if err := e.transport.SendUnicast(wire.Encode(msg), p.Addr); err != nil {
		log.Printf("engine: %v: %v", ErrTransport, err)
		return
	}
	now := time.Now().UnixNano()
	e.roster.Mutate(p.ID, func(pp *roster.Player) { pp.LastSendNS = now })
}

// sendRawToMaster is used before the roster has a Master entry at all: the
// initial Join, and any message sent while still mid-bootstrap.
func (e *Engine) sendRawToMaster(body wire.Body, expectAck bool) {
	if e.bootstrapMaster == nil {
		log.Printf("engine: %v: no bootstrap master address known, message dropped", ErrUnknownSender)
		return
	}
	seq := e.nextMsgSeq()
	msg := &wire.Message{MsgSeq: seq, SenderID: e.localID, ReceiverID: -1, Body: body}
	if expectAck {
		e.pendingAcks[seq] = msg
	}
	if err := e.transport.SendUnicast(wire.Encode(msg), e.bootstrapMaster); err != nil {
		log.Printf("engine: %v: %v", ErrTransport, err)
	}
}

// sendMessage2Master resolves the current MASTER from the roster and sends
// through it; a DEPUTY that finds no MASTER promotes itself first, matching
// _sendMessage2Master's self-healing branch.
func (e *Engine) sendMessage2Master(body wire.Body, expectAck bool) {
	master, ok := e.roster.Master()
	if !ok {
		log.Printf("engine: %v: tried to send to MASTER but none was found", ErrUnknownSender)
		switch {
		case e.localRole == wire.RoleDeputy:
			e.becomeMaster()
			e.sendMessage2Master(body, expectAck)
		case e.bootstrapMaster != nil:
			e.sendRawToMaster(body, expectAck)
		}
		return
	}
	e.sendToPlayer(master, body, expectAck)
}

func (e *Engine) acknowledge(msg *wire.Message, to *net.UDPAddr) {
	ack := &wire.Message{MsgSeq: msg.MsgSeq, SenderID: msg.ReceiverID, ReceiverID: msg.SenderID, Body: wire.AckBody{}}
	if err := e.transport.SendUnicast(wire.Encode(ack), to); err != nil {
		log.Printf("engine: %v: %v", ErrTransport, err)
	}
}

// retryAcks re-sends every still-unacknowledged message to whoever is
// currently MASTER — including entries that were never MASTER-bound in the
// first place (e.g. a DEPUTY's pending ack for a handoff RoleChange). This
// is intentional, not an oversight: engine.py's _retrySending2Master does
// the same blanket re-send, and spec.md's own design note calls for
// preserving it verbatim.
func (e *Engine) retryAcks() {
	if len(e.pendingAcks) == 0 {
		return
	}
	var dest *net.UDPAddr
	if master, ok := e.roster.Master(); ok {
		dest = master.Addr
	} else {
		dest = e.bootstrapMaster
	}
	if dest == nil {
		return
	}
	for _, msg := range e.pendingAcks {
		if err := e.transport.SendUnicast(wire.Encode(msg), dest); err != nil {
			log.Printf("engine: %v: %v", ErrTransport, err)
		}
	}
}

func (e *Engine) doSteerLocal(d wire.Direction) {
	if e.localRole == wire.RoleViewer {
		return
	}
	e.sendMessage2Master(wire.SteerBody{Direction: d}, true)
}

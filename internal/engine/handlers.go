package engine

import (
	"log"
	"net"
	"time"

	"snakemesh/internal/field"
	"snakemesh/internal/roster"
	"snakemesh/internal/transport"
	"snakemesh/internal/wire"
)

// dispatch is the engine's top-level inbound switch, grounded on
// GameEngine.notify. After the per-kind handler runs, every message kind
// (including ones whose handler already returned early) refreshes the
// sender's last-seen timestamp if the sender is a known roster member; an
// unknown sender is logged but its message was still acted on above, per
// the no-spoofing-protection non-goal.
func (e *Engine) dispatch(dg transport.Datagram) {
	msg, err := wire.Decode(dg.Payload)
	if err != nil {
		log.Printf("engine: %v: %v", ErrParse, err)
		return
	}

	switch body := msg.Body.(type) {
	case wire.AnnouncementBody:
		e.onAnnouncement(body)
	case wire.AckBody:
		e.onAck(msg)
	case wire.PingBody:
		// Liveness alone; the trailing last-recv bump below is the entire
		// effect of a Ping.
	case wire.ErrorBody:
		log.Printf("engine: peer %d reported: %s", msg.SenderID, body.Message)
		e.acknowledge(msg, dg.From)
	case wire.RoleChangeBody:
		e.onRoleChange(msg, body, dg.From)
	case wire.DiscoverBody:
		e.announce(dg.From)
	case wire.SteerBody:
		e.onSteer(msg, body, dg.From)
	case wire.JoinBody:
		e.onJoin(msg, body, dg.From)
	case wire.StateBody:
		e.onState(body)
	}

	if _, ok := e.roster.ByID(msg.SenderID); ok {
		now := time.Now().UnixNano()
		e.roster.Mutate(msg.SenderID, func(p *roster.Player) { p.LastRecvNS = now })
	} else {
		log.Printf("engine: %v: message from id %d", ErrUnknownSender, msg.SenderID)
	}
}

func (e *Engine) onAnnouncement(body wire.AnnouncementBody) {
	if body.InstanceTag == e.instanceTag {
		return
	}
	// Discovery of other games is a UI concern this node doesn't act on
	// itself, matching notify's unconditional `case "announcement": return`.
}

// onAck resolves what is being acknowledged by inspecting the ORIGINAL
// outgoing message stored in pendingAcks, not the Ack itself (an Ack's own
// oneof only ever says "ack" and carries no information about its cause).
// This sidesteps a dead branch in engine.py's _on_notify_ack, which
// match-cases on the received Ack's own WhichOneof and so can never select
// its "role_change" arm.
func (e *Engine) onAck(msg *wire.Message) {
	original, hadPending := e.pendingAcks[msg.MsgSeq]
	if hadPending {
		delete(e.pendingAcks, msg.MsgSeq)
		if rc, ok := original.Body.(wire.RoleChangeBody); ok {
			e.setLocalRole(rc.SenderRole)
			e.roster.Mutate(original.ReceiverID, func(p *roster.Player) { p.Role = rc.ReceiverRole })
		}
	}

	if e.localID == -1 {
		old, hadOld := e.roster.ByID(-1)
		e.roster.RemoveByID(-1)
		e.localID = msg.ReceiverID
		if hadOld {
			old.ID = msg.ReceiverID
			old.IsLocal = true
			e.roster.Add(old)
		}
		if _, known := e.roster.ByID(msg.SenderID); !known && e.bootstrapMaster != nil {
			e.roster.Add(roster.Player{ID: msg.SenderID, Addr: e.bootstrapMaster, Role: wire.RoleMaster})
		}
		log.Printf("engine: joined as player %d", e.localID)
	}
}

// onSteer applies a heading change for msg's sender, grounded on
// _on_notify_steer. The 180-degree-reversal guard itself lives in
// field.Field.Turn, since it is a property of what a legal turn means, not
// of how the request arrived. Only acks if the sender actually has a snake
// on the field, matching the original's guard around its own ack call.
func (e *Engine) onSteer(msg *wire.Message, body wire.SteerBody, from *net.UDPAddr) {
	if !e.field.HasSnake(msg.SenderID) {
		return
	}
	e.field.Turn(msg.SenderID, body.Direction)
	e.acknowledge(msg, from)
}

// onJoin admits a new player, grounded on _on_notify_join. A VIEWER request
// is always satisfiable; a playing request fails with ErrNoSpace when the
// field has no room, in which case an ErrorBody is sent back instead of an
// Ack and no roster entry is created.
func (e *Engine) onJoin(msg *wire.Message, body wire.JoinBody, from *net.UDPAddr) {
	newID := e.nextPlayerID()
	now := time.Now().UnixNano()

	if body.RequestedRole == wire.RoleViewer {
		e.roster.Add(roster.Player{
			ID: newID, Name: body.PlayerName, Addr: from, Role: wire.RoleViewer,
			LastRecvNS: now, LastSendNS: now,
		})
		ack := &wire.Message{MsgSeq: msg.MsgSeq, SenderID: e.localID, ReceiverID: newID, Body: wire.AckBody{}}
		if err := e.transport.SendUnicast(wire.Encode(ack), from); err != nil {
			log.Printf("engine: %v: %v", ErrTransport, err)
		}
		if p, ok := e.roster.ByID(newID); ok {
			e.sendGameStateTo(p)
		}
		log.Printf("engine: %s joined as VIEWER (id %d)", body.PlayerName, newID)
		return
	}

	pos, ok := e.field.RequestPosForNewSnake()
	if !ok {
		errMsg := &wire.Message{MsgSeq: msg.MsgSeq, SenderID: e.localID, ReceiverID: msg.SenderID,
			Body: wire.ErrorBody{Message: "Could not find space on field."}}
		if err := e.transport.SendUnicast(wire.Encode(errMsg), from); err != nil {
			log.Printf("engine: %v: %v", ErrTransport, err)
		}
		return
	}

	e.roster.Add(roster.Player{
		ID: newID, Name: body.PlayerName, Addr: from, Role: wire.RoleNormal,
		LastRecvNS: now, LastSendNS: now,
	})
	e.field.SpawnSnake(pos.X, pos.Y, newID)
	ack := &wire.Message{MsgSeq: msg.MsgSeq, SenderID: e.localID, ReceiverID: newID, Body: wire.AckBody{}}
	if err := e.transport.SendUnicast(wire.Encode(ack), from); err != nil {
		log.Printf("engine: %v: %v", ErrTransport, err)
	}
	if p, ok := e.roster.ByID(newID); ok {
		e.sendGameStateTo(p)
	}
	log.Printf("engine: %s joined as NORMAL (id %d)", body.PlayerName, newID)

	if _, hasDeputy := e.roster.Deputy(); !hasDeputy {
		e.assignNewDeputy()
	}
}

// onRoleChange is a single switch over (local role, sender role, receiver
// role) acking exactly once per legal branch, collapsing
// _on_notify_role_change's if/elif chain — every branch there falls through
// to a second, unconditional trailing acknowledge, so the original acks
// every legal transition twice. The unmatched default here neither mutates
// state nor acks, matching the original's one genuinely single-ack branch.
func (e *Engine) onRoleChange(msg *wire.Message, body wire.RoleChangeBody, from *net.UDPAddr) {
	switch {
	case body.SenderRole == wire.RoleMaster && body.ReceiverRole == wire.RoleViewer:
		// The master is demoting us (our snake died under its tick).
		e.setLocalRole(wire.RoleViewer)
		e.acknowledge(msg, from)

	case body.SenderRole == wire.RoleMaster && body.ReceiverRole == wire.RoleMaster && e.localRole == wire.RoleDeputy:
		// Handoff notice: the old master is stepping down to us.
		if old, ok := e.roster.Master(); ok {
			e.roster.Mutate(old.ID, func(p *roster.Player) { p.Role = wire.RoleViewer })
		}
		e.becomeMaster()
		e.acknowledge(msg, from)

	case e.localRole == wire.RoleMaster && body.ReceiverRole == wire.RoleMaster && body.SenderRole == wire.RoleViewer:
		// A player is voluntarily stepping down to VIEWER.
		if p, ok := e.roster.ByID(msg.SenderID); ok {
			e.roster.Mutate(p.ID, func(pp *roster.Player) { pp.Role = wire.RoleViewer })
			e.field.Zombify(p.ID)
		}
		e.acknowledge(msg, from)

	case e.localRole == wire.RoleNormal && body.SenderRole == wire.RoleMaster && body.ReceiverRole == wire.RoleDeputy:
		e.setLocalRole(wire.RoleDeputy)
		e.acknowledge(msg, from)

	case e.localRole == wire.RoleNormal && body.SenderRole == wire.RoleMaster && body.ReceiverRole == wire.RoleNormal:
		// The informational broadcast a new master sends every other
		// player: learn who the master now is.
		if p, ok := e.roster.ByID(msg.SenderID); ok {
			e.roster.Mutate(p.ID, func(pp *roster.Player) { pp.Role = body.SenderRole })
		}
		e.acknowledge(msg, from)

	default:
		log.Printf("engine: %v: sender=%s receiver=%s local=%s", ErrUnsupportedRoleChange,
			body.SenderRole, body.ReceiverRole, e.localRole)
	}
}

// onState applies a replicated snapshot, grounded on _on_notify_state. A
// snapshot with state_order no greater than the one already applied is
// silently dropped — strict monotonicity, not just non-decrease. The
// current MASTER never applies an incoming State; it is the one producing
// them.
func (e *Engine) onState(body wire.StateBody) {
	if body.State.StateOrder <= e.stateOrder {
		return
	}
	e.stateOrder = body.State.StateOrder

	if e.localRole != wire.RoleMaster {
		snakes := make([]*field.Snake, len(body.State.Snakes))
		for i, si := range body.State.Snakes {
			snakes[i] = field.FromWireSnake(si)
		}
		foods := make([]field.Point, len(body.State.Foods))
		for i, c := range body.State.Foods {
			foods[i] = field.Point{X: int(c.X), Y: int(c.Y)}
		}
		e.field.LoadSnapshot(snakes, foods)

		resolveAddr := func(info wire.PlayerInfo) *net.UDPAddr {
			if info.ID == e.localID {
				return e.transport.LocalAddr()
			}
			return &net.UDPAddr{IP: net.ParseIP(info.Address), Port: int(info.Port)}
		}
		roster.LoadFromWire(e.roster, body.State.Players, resolveAddr)
	}

	e.repaint()
}

// sendGameStateTo unicasts the current world to a single player outside of
// the regular per-tick broadcast, used right after admitting them via Join.
// It reuses the engine's current state_order rather than advancing it,
// since no tick actually occurred.
func (e *Engine) sendGameStateTo(p roster.Player) {
	e.sendToPlayer(p, wire.StateBody{State: e.buildGameState()}, false)
}

func (e *Engine) buildGameState() wire.GameState {
	foods := e.field.Food()
	foodCoords := make([]wire.Coord, len(foods))
	for i, p := range foods {
		foodCoords[i] = wire.Coord{X: int32(p.X), Y: int32(p.Y)}
	}
	snakes := e.field.Snakes()
	snakeInfos := make([]wire.SnakeInfo, len(snakes))
	for i, s := range snakes {
		snakeInfos[i] = field.ToWireSnake(s, e.cfg.Width, e.cfg.Height)
	}
	return wire.GameState{
		StateOrder: e.stateOrder,
		Players:    roster.ToWire(e.roster),
		Foods:      foodCoords,
		Snakes:     snakeInfos,
	}
}

// broadcastState advances state_order and unicasts the resulting snapshot
// to every other player. engine.py computes self._state_order+1 fresh on
// every call without ever persisting it back, so a MASTER that never
// applies its own State (it never does; State only flows master-to-
// follower) would broadcast the same state_order forever. Advancing and
// persisting the counter here is the natural reading of what
// self._state_order is for, and matches the strictly-increasing
// requirement that follows applies.
func (e *Engine) broadcastState() {
	e.stateOrder++
	state := e.buildGameState()
	for _, p := range e.roster.Players() {
		if p.IsLocal {
			continue
		}
		e.sendToPlayer(p, wire.StateBody{State: state}, false)
	}
}

// tick advances the field by one step, applies score/death events to the
// roster, broadcasts the new state, and demotes this node to VIEWER if its
// own snake just died — grounded on GameEngine._tick.
func (e *Engine) tick() {
	events := e.field.Tick()
	localDied := false

	for _, ev := range events {
		p, ok := e.roster.ByID(ev.PlayerID)
		if !ok {
			log.Printf("engine: %v: tick event for unknown player %d", ErrProtocolViolation, ev.PlayerID)
			continue
		}
		switch ev.Kind {
		case field.EventScore:
			e.roster.Mutate(ev.PlayerID, func(pp *roster.Player) { pp.Score++ })
		case field.EventDeath:
			if p.IsLocal {
				localDied = true
				continue
			}
			e.roster.Mutate(ev.PlayerID, func(pp *roster.Player) { pp.Role = wire.RoleViewer })
			e.sendToPlayer(p, wire.RoleChangeBody{SenderRole: wire.RoleMaster, ReceiverRole: wire.RoleViewer}, true)
		}
	}

	e.broadcastState()
	if localDied {
		e.becomeViewer()
	}
	e.repaint()
}

// ping refreshes liveness with every other player and evicts anyone silent
// for too long, grounded on GameEngine._ping's two independent thresholds
// (send cadence at state_delay_ms/10, eviction at state_delay_ms*0.8).
func (e *Engine) ping() {
	now := time.Now().UnixNano()
	sendThreshold := int64(e.cfg.StateDelayMS/10) * int64(time.Millisecond)
	evictThreshold := int64(float64(e.cfg.StateDelayMS)*0.8) * int64(time.Millisecond)

	var toEvict []roster.Player
	for _, p := range e.roster.Players() {
		if p.IsLocal {
			continue
		}
		if now-p.LastSendNS > sendThreshold {
			e.sendToPlayer(p, wire.PingBody{}, false)
		}
		if now-p.LastRecvNS > evictThreshold {
			toEvict = append(toEvict, p)
		}
	}

	for _, p := range toEvict {
		log.Printf("engine: player %d (%s) unresponsive, evicting", p.ID, p.Role)
		e.roster.RemoveByID(p.ID)
		e.field.Zombify(p.ID)

		switch {
		case e.localRole == wire.RoleNormal && p.Role == wire.RoleMaster:
			e.switch2NewMaster()
		case e.localRole == wire.RoleMaster && p.Role == wire.RoleDeputy:
			e.assignNewDeputy()
		case e.localRole == wire.RoleDeputy && p.Role == wire.RoleMaster:
			e.becomeMaster()
		}
	}
}

// announce sends a GameAnnouncement: to a specific address in reply to a
// Discover, or multicast to the whole group otherwise. Grounded on
// GameEngine._announce.
func (e *Engine) announce(to *net.UDPAddr) {
	_, canJoin := e.field.RequestPosForNewSnake()
	body := wire.AnnouncementBody{
		InstanceTag: e.instanceTag,
		Games: []wire.GameAnnouncement{{
			CanJoin: canJoin,
			Name:    e.cfg.GameName,
			Config: wire.GameConfig{
				Width:        int32(e.cfg.Width),
				Height:       int32(e.cfg.Height),
				FoodStatic:   int32(e.cfg.FoodStatic),
				StateDelayMS: int32(e.cfg.StateDelayMS),
			},
			Players: roster.ToWire(e.roster),
		}},
	}
	msg := &wire.Message{MsgSeq: e.nextMsgSeq(), SenderID: e.localID, ReceiverID: -1, Body: body}
	encoded := wire.Encode(msg)

	var err error
	if to != nil {
		err = e.transport.SendUnicast(encoded, to)
	} else {
		err = e.transport.SendMulticast(encoded)
	}
	if err != nil {
		log.Printf("engine: %v: %v", ErrTransport, err)
	}
}

// becomeMaster promotes the local node to MASTER: assigns a deputy if one
// is available and tells every other player (purely informationally — no
// ack expected) who the new master is, before arming the tick/announce
// tickers. Grounded on GameEngine._becomeMaster.
func (e *Engine) becomeMaster() {
	log.Printf("engine: node %d becoming MASTER", e.localID)
	e.setLocalRole(wire.RoleMaster)

	if _, ok := e.findNewDeputy(); !ok {
		log.Printf("engine: no eligible player to promote to DEPUTY")
	}

	for _, p := range e.roster.Players() {
		if p.IsLocal {
			continue
		}
		e.sendToPlayer(p, wire.RoleChangeBody{SenderRole: wire.RoleMaster, ReceiverRole: p.Role}, false)
	}

	e.armMasterTickers()
}

// becomeViewer requests VIEWER status from the master and, if this node was
// itself MASTER, disarms its tickers and notifies its deputy of the
// handoff. Grounded on GameEngine.becomeViewer.
func (e *Engine) becomeViewer() {
	if e.localRole == wire.RoleViewer {
		return
	}
	e.sendMessage2Master(wire.RoleChangeBody{SenderRole: wire.RoleViewer, ReceiverRole: wire.RoleMaster}, true)

	if e.localRole == wire.RoleMaster {
		e.disarmMasterTickers()
		if deputy, ok := e.roster.Deputy(); ok {
			e.sendToPlayer(deputy, wire.RoleChangeBody{SenderRole: wire.RoleMaster, ReceiverRole: wire.RoleMaster}, true)
		}
	}
}

// findNewDeputy promotes an arbitrary NORMAL player to DEPUTY in the roster
// only — the promoted player learns of it later, via the informational
// broadcast becomeMaster sends to everyone. Grounded on
// GameEngine._findNewDeputy.
func (e *Engine) findNewDeputy() (roster.Player, bool) {
	for _, p := range e.roster.Players() {
		if p.IsLocal || p.Role != wire.RoleNormal {
			continue
		}
		e.roster.Mutate(p.ID, func(pp *roster.Player) { pp.Role = wire.RoleDeputy })
		p.Role = wire.RoleDeputy
		return p, true
	}
	return roster.Player{}, false
}

// assignNewDeputy finds a fresh deputy and explicitly notifies them,
// expecting an ack — used both after a Join leaves the roster deputy-less
// and after the prior deputy is evicted (situation B in ping).
func (e *Engine) assignNewDeputy() {
	deputy, ok := e.findNewDeputy()
	if !ok {
		log.Printf("engine: no eligible player to promote to DEPUTY")
		return
	}
	e.sendToPlayer(deputy, wire.RoleChangeBody{SenderRole: e.localRole, ReceiverRole: deputy.Role}, true)
}

// switch2NewMaster optimistically marks the current deputy as the new
// master in the local roster only; the deputy itself independently notices
// the master's death via its own ping timer and calls becomeMaster.
// Grounded on GameEngine._switch2NewMaster (situation A in ping).
func (e *Engine) switch2NewMaster() {
	deputy, ok := e.roster.Deputy()
	if !ok {
		log.Printf("engine: master unresponsive but no deputy known")
		return
	}
	e.roster.Mutate(deputy.ID, func(p *roster.Player) { p.Role = wire.RoleMaster })
}

package engine

import "errors"

// Sentinel errors for the handler boundary. Each is wrapped with
// fmt.Errorf("%w", ...) at its call site and logged once there; callers
// deeper in the engine never see a bare error value, only these.
var (
	// ErrTransport wraps a failure sending or receiving a datagram.
	ErrTransport = errors.New("engine: transport error")
	// ErrParse wraps a wire.Decode failure on an inbound datagram.
	ErrParse = errors.New("engine: could not parse message")
	// ErrNoSpace means the field had no room for a new snake.
	ErrNoSpace = errors.New("engine: no space on field")
	// ErrUnknownSender means a message's SenderID is not in the roster.
	// Per the no-spoofing-protection non-goal, its idempotent payload is
	// still processed; only last-seen bookkeeping is skipped.
	ErrUnknownSender = errors.New("engine: unknown sender")
	// ErrProtocolViolation marks a request or event that makes no sense in
	// the node's current state (e.g. joining without a master address, or
	// a tick event for a player not in the roster).
	ErrProtocolViolation = errors.New("engine: protocol violation")
	// ErrUnsupportedRoleChange means a role_change's (local role, sender
	// role, receiver role) triple matches no legal transition.
	ErrUnsupportedRoleChange = errors.New("engine: unsupported role change")
)

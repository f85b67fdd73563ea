package model

import "errors"

// Sentinel kinds for game engine errors. Callers classify failures with
// errors.Is against these values.
var (
	// ErrNotFound marks an unknown session, board, or player.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidArgument marks a structurally invalid command, e.g. a
	// non-positive stake.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState marks an operation that is not legal in the session's
	// current status, e.g. joining a full or already started session.
	ErrInvalidState = errors.New("invalid session state")

	// ErrAlreadyMatched marks a move referencing a pair the player has
	// already resolved.
	ErrAlreadyMatched = errors.New("cards already matched")

	// ErrAntiCheat marks a move rejected by the timing heuristic.
	ErrAntiCheat = errors.New("anti-cheat rejection")

	// ErrSettlement marks a settlement the ledger did not confirm. The
	// session stays in Settling for external remediation.
	ErrSettlement = errors.New("settlement failure")
)

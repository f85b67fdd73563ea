package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrUnconfirmed = errors.New("ledger did not confirm transaction")
)

package radiusd

import "github.com/pkg/errors"

var (
	// ErrUnknownNas source address not in the NAS allow-list; the packet is
	// dropped without a response
	ErrUnknownNas = errors.New("unknown nas source address")

	// ErrAuthFailure credentials did not match; an explicit Access-Reject is sent
	ErrAuthFailure = errors.New("authentication failure")

	// ErrStoreUnavailable the session store could not be reached; authentication
	// fails closed, accounting is best-effort
	ErrStoreUnavailable = errors.New("session store unavailable")
)

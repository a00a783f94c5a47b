package addrbook

import (
	"errors"
	"fmt"
)

// Validation errors. They are returned in the reply to the offending request
// and do not affect the address book itself.
var (
	// ErrPeerAlreadyConnected is returned by MarkConnected when the address is
	// still marked live-connected by an earlier MarkConnected.
	ErrPeerAlreadyConnected = errors.New("peer is already connected")
	// ErrPeerNotFound is returned when the address is in neither list.
	ErrPeerNotFound = errors.New("peer was not found in book")
	// ErrPeerIsBanned is returned when the address' ban id is banned.
	ErrPeerIsBanned = errors.New("the peer is banned")
	// ErrInvalidBanDuration is returned for non-positive ban durations.
	ErrInvalidBanDuration = errors.New("ban duration must be positive")
)

// Infrastructure errors. They mean the zone's address book is no longer
// usable.
var (
	// ErrAddressBooksChannelClosed is returned when a request can not be
	// submitted because the address book is shutting down or has shut down.
	ErrAddressBooksChannelClosed = errors.New("the address books channel has closed")
	// ErrAddressBookTaskExited is returned when the address book goroutine
	// ended before it replied.
	ErrAddressBookTaskExited = errors.New("the address book task has exited")
)

// ErrPeersDataChanged is returned when a request tries to change immutable
// peer data.
type ErrPeersDataChanged struct {
	Field string
}

func (e ErrPeersDataChanged) Error() string {
	return fmt.Sprintf("immutable peer data was changed: %s", e.Field)
}

// IsInfrastructureError reports whether err means the address book is gone,
// as opposed to the request being invalid.
func IsInfrastructureError(err error) bool {
	return errors.Is(err, ErrAddressBooksChannelClosed) || errors.Is(err, ErrAddressBookTaskExited)
}

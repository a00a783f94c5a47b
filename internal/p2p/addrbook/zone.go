package addrbook

import (
	"time"
)

// Addr is the constraint every zone's peer address and ban identifier type
// satisfies. String must be stable: it is the persisted form and the
// eviction tie-break key.
type Addr interface {
	comparable
	String() string
}

// Zone is the capability the address book requires from a network zone's
// address type. A is the peer address, B the coarser ban identifier (for
// example an IP without port).
type Zone[A Addr, B Addr] interface {
	// Name identifies the zone. It names the zone's peer file and labels its
	// metrics, so it must be unique per node.
	Name() string

	// Canonicalize normalizes equivalent representations of an address.
	Canonicalize(addr A) A

	// BanID derives the identifier used to ban addr. The result is in
	// canonical form.
	BanID(addr A) B

	// CanonicalizeBanID normalizes equivalent representations of a ban
	// identifier so that it matches what BanID returns.
	CanonicalizeBanID(id B) B

	// ShouldAddToPeerList reports whether addr may be stored at all.
	ShouldAddToPeerList(addr A) bool

	// ReadBanLine expands one line of a ban-list file into ban identifiers.
	// Blank lines and comments yield no identifiers and no error.
	ReadBanLine(line string) ([]B, error)

	// ParseAddr and ParseBanID invert String for persisted values.
	ParseAddr(s string) (A, error)
	ParseBanID(s string) (B, error)
}

// PeerEntry is a peer stored in a white or gray list.
type PeerEntry[A Addr] struct {
	Addr A
	// ID is the handshake-assigned peer id. Zero means not yet known.
	ID       uint64
	LastSeen time.Time
}

package addrbook

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

// bookState is everything one zone's address book owns. Only the address
// book goroutine touches it once the book is started.
type bookState[A Addr, B Addr] struct {
	zone    Zone[A, B]
	clock   clock.Clock
	rng     *rand.Rand
	metrics *Metrics

	white     *peerList[A]
	gray      *peerList[A]
	bans      *banList[B]
	connected map[A]struct{}
}

func newBookState[A Addr, B Addr](zone Zone[A, B], opts Options) *bookState[A, B] {
	return &bookState[A, B]{
		zone:      zone,
		clock:     opts.Clock,
		rng:       opts.Rand,
		metrics:   opts.Metrics,
		white:     newPeerList[A](opts.MaxWhiteListLength),
		gray:      newPeerList[A](opts.MaxGrayListLength),
		bans:      newBanList[B](opts.Clock),
		connected: make(map[A]struct{}),
	}
}

// restore fills the state from a loaded snapshot. Bans go first so that
// stored peers which are now banned are dropped. An address stored in both
// lists stays white.
func (s *bookState[A, B]) restore(snap Snapshot[A, B]) error {
	for _, ban := range snap.Bans {
		s.bans.restore(s.zone.CanonicalizeBanID(ban.ID), ban.Expiry)
	}
	for _, entry := range snap.White {
		if s.bans.isBanned(s.zone.BanID(entry.Addr)) {
			continue
		}
		if _, err := s.white.insertOrRefresh(entry); err != nil {
			return fmt.Errorf("white peer %v: %w", entry.Addr, err)
		}
	}
	for _, entry := range snap.Gray {
		if s.white.contains(entry.Addr) || s.bans.isBanned(s.zone.BanID(entry.Addr)) {
			continue
		}
		if _, err := s.gray.insertOrRefresh(entry); err != nil {
			return fmt.Errorf("gray peer %v: %w", entry.Addr, err)
		}
	}
	return nil
}

// dropBanned removes stored peers whose ban id is banned, for bans applied
// after the peers were restored.
func (s *bookState[A, B]) dropBanned() {
	for _, list := range []*peerList[A]{s.white, s.gray} {
		for _, entry := range list.entries() {
			if s.bans.isBanned(s.zone.BanID(entry.Addr)) {
				list.remove(entry.Addr)
			}
		}
	}
}

func (s *bookState[A, B]) snapshot() Snapshot[A, B] {
	return Snapshot[A, B]{
		White: s.white.entries(),
		Gray:  s.gray.entries(),
		Bans:  s.bans.snapshot(),
	}
}

func (s *bookState[A, B]) isBannedAddr(addr A) bool {
	return s.bans.isBanned(s.zone.BanID(addr))
}

// ingestGossipedPeers stores gossiped addresses in the gray list, or
// refreshes them where they already are. Ineligible and banned addresses are
// dropped silently. It returns the number of accepted addresses.
func (s *bookState[A, B]) ingestGossipedPeers(addrs []A) int {
	accepted := 0
	for _, addr := range addrs {
		addr = s.zone.Canonicalize(addr)
		if !s.zone.ShouldAddToPeerList(addr) || s.isBannedAddr(addr) {
			s.metrics.DroppedGossip.Add(1)
			continue
		}

		entry := PeerEntry[A]{Addr: addr, LastSeen: s.clock.Now()}
		list := s.gray
		if s.white.contains(addr) {
			list = s.white
		}
		evicted, err := list.insertOrRefresh(entry)
		if err != nil {
			// a zero id never conflicts
			s.metrics.DroppedGossip.Add(1)
			continue
		}
		if evicted != nil {
			s.metrics.Evictions.Add(1)
		}
		accepted++
	}
	return accepted
}

// takePeersForConnect returns up to n peers worth dialing, white peers
// first. Peers marked connected are skipped.
func (s *bookState[A, B]) takePeersForConnect(n int) []PeerEntry[A] {
	keep := func(e PeerEntry[A]) bool {
		if _, live := s.connected[e.Addr]; live {
			return false
		}
		return !s.isBannedAddr(e.Addr)
	}

	peers := s.white.randomSample(s.rng, n, keep)
	if len(peers) < n {
		peers = append(peers, s.gray.randomSample(s.rng, n-len(peers), keep)...)
	}
	return peers
}

// takePeersForGossip returns up to n peers sampled across both lists.
func (s *bookState[A, B]) takePeersForGossip(n int) []PeerEntry[A] {
	candidates := make([]PeerEntry[A], 0, s.white.len()+s.gray.len())
	for _, e := range append(s.white.entries(), s.gray.entries()...) {
		if !s.isBannedAddr(e.Addr) {
			candidates = append(candidates, e)
		}
	}
	return sample(s.rng, candidates, n)
}

// markConnected promotes addr to the white list and marks it live-connected.
// A white peer evicted to make room is demoted to the gray list.
func (s *bookState[A, B]) markConnected(addr A, id uint64) error {
	addr = s.zone.Canonicalize(addr)
	if s.isBannedAddr(addr) {
		return ErrPeerIsBanned
	}
	if _, live := s.connected[addr]; live {
		return ErrPeerAlreadyConnected
	}
	for _, list := range []*peerList[A]{s.white, s.gray} {
		if stored, ok := list.get(addr); ok && stored.ID != 0 && id != 0 && stored.ID != id {
			return ErrPeersDataChanged{Field: "peer_id"}
		}
	}

	entry := PeerEntry[A]{Addr: addr, ID: id, LastSeen: s.clock.Now()}
	if stored, ok := s.gray.remove(addr); ok && entry.ID == 0 {
		entry.ID = stored.ID
	}
	evicted, err := s.white.insertOrRefresh(entry)
	if err != nil {
		return err
	}
	if evicted != nil {
		s.metrics.Evictions.Add(1)
		s.demote(*evicted)
	}
	s.connected[addr] = struct{}{}
	return nil
}

// markDisconnected clears the live-connected mark of addr.
func (s *bookState[A, B]) markDisconnected(addr A) {
	delete(s.connected, s.zone.Canonicalize(addr))
}

// markConnectionFailed demotes a white peer to the gray list, since it may
// become reachable again, and forgets a gray one.
func (s *bookState[A, B]) markConnectionFailed(addr A) error {
	addr = s.zone.Canonicalize(addr)
	delete(s.connected, addr)

	if entry, ok := s.white.remove(addr); ok {
		s.demote(entry)
		return nil
	}
	if _, ok := s.gray.remove(addr); ok {
		return nil
	}
	return ErrPeerNotFound
}

func (s *bookState[A, B]) demote(entry PeerEntry[A]) {
	// entry is not in the gray list, so there is no id to conflict with
	evicted, _ := s.gray.insertOrRefresh(entry)
	if evicted != nil {
		s.metrics.Evictions.Add(1)
	}
}

// banPeer bans id for d and forgets every stored peer with that ban id.
func (s *bookState[A, B]) banPeer(id B, d time.Duration) error {
	id = s.zone.CanonicalizeBanID(id)
	if _, err := s.bans.ban(id, d); err != nil {
		return err
	}
	for _, list := range []*peerList[A]{s.white, s.gray} {
		for _, entry := range list.entries() {
			if s.zone.BanID(entry.Addr) == id {
				list.remove(entry.Addr)
				delete(s.connected, entry.Addr)
			}
		}
	}
	return nil
}

func (s *bookState[A, B]) isBanned(addr A) bool {
	return s.isBannedAddr(s.zone.Canonicalize(addr))
}

// Sizes reports how many entries an address book holds.
type Sizes struct {
	White     int
	Gray      int
	Bans      int
	Connected int
}

func (s *bookState[A, B]) sizes() Sizes {
	return Sizes{
		White:     s.white.len(),
		Gray:      s.gray.len(),
		Bans:      s.bans.len(),
		Connected: len(s.connected),
	}
}

func (s *bookState[A, B]) updateMetrics() {
	sizes := s.sizes()
	s.metrics.WhitePeers.Set(float64(sizes.White))
	s.metrics.GrayPeers.Set(float64(sizes.Gray))
	s.metrics.Bans.Set(float64(sizes.Bans))
	s.metrics.ConnectedPeers.Set(float64(sizes.Connected))
}

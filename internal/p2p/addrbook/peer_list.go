package addrbook

import (
	"container/list"
	"math/rand"
)

// peerList is a capacity-bounded, insertion-ordered set of peers. It is not
// thread-safe; it is owned by a single address book goroutine.
type peerList[A Addr] struct {
	capacity int
	order    *list.List // of *PeerEntry[A], oldest insertion first
	peers    map[A]*list.Element
}

func newPeerList[A Addr](capacity int) *peerList[A] {
	return &peerList[A]{
		capacity: capacity,
		order:    list.New(),
		peers:    make(map[A]*list.Element),
	}
}

// insertOrRefresh adds entry, or refreshes LastSeen if the address is
// already present. A non-zero stored id can not be replaced by a different
// non-zero id. When the list is full, the entry with the oldest LastSeen is
// evicted first and returned.
func (pl *peerList[A]) insertOrRefresh(entry PeerEntry[A]) (*PeerEntry[A], error) {
	if el, ok := pl.peers[entry.Addr]; ok {
		stored := el.Value.(*PeerEntry[A])
		if entry.ID != 0 && stored.ID != 0 && entry.ID != stored.ID {
			return nil, ErrPeersDataChanged{Field: "peer_id"}
		}
		if stored.ID == 0 {
			stored.ID = entry.ID
		}
		stored.LastSeen = entry.LastSeen
		return nil, nil
	}

	var evicted *PeerEntry[A]
	if pl.order.Len() >= pl.capacity {
		evicted = pl.evictOldest()
	}

	e := entry
	pl.peers[entry.Addr] = pl.order.PushBack(&e)
	return evicted, nil
}

// evictOldest removes the entry with the oldest LastSeen, the smallest
// address winning ties.
func (pl *peerList[A]) evictOldest() *PeerEntry[A] {
	var oldest *list.Element
	for el := pl.order.Front(); el != nil; el = el.Next() {
		if oldest == nil || older(el.Value.(*PeerEntry[A]), oldest.Value.(*PeerEntry[A])) {
			oldest = el
		}
	}
	if oldest == nil {
		return nil
	}

	entry := pl.order.Remove(oldest).(*PeerEntry[A])
	delete(pl.peers, entry.Addr)
	return entry
}

func older[A Addr](a, b *PeerEntry[A]) bool {
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.Before(b.LastSeen)
	}
	return a.Addr.String() < b.Addr.String()
}

// remove deletes addr if present.
func (pl *peerList[A]) remove(addr A) (PeerEntry[A], bool) {
	el, ok := pl.peers[addr]
	if !ok {
		return PeerEntry[A]{}, false
	}
	delete(pl.peers, addr)
	return *pl.order.Remove(el).(*PeerEntry[A]), true
}

func (pl *peerList[A]) contains(addr A) bool {
	_, ok := pl.peers[addr]
	return ok
}

// get returns a copy of the stored entry.
func (pl *peerList[A]) get(addr A) (PeerEntry[A], bool) {
	el, ok := pl.peers[addr]
	if !ok {
		return PeerEntry[A]{}, false
	}
	return *el.Value.(*PeerEntry[A]), true
}

func (pl *peerList[A]) len() int {
	return pl.order.Len()
}

// entries returns copies of all entries in insertion order.
func (pl *peerList[A]) entries() []PeerEntry[A] {
	out := make([]PeerEntry[A], 0, pl.order.Len())
	for el := pl.order.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*PeerEntry[A]))
	}
	return out
}

// randomSample returns up to k entries chosen uniformly at random without
// replacement, filtered by keep (nil keeps everything).
func (pl *peerList[A]) randomSample(rng *rand.Rand, k int, keep func(PeerEntry[A]) bool) []PeerEntry[A] {
	candidates := make([]PeerEntry[A], 0, pl.order.Len())
	for el := pl.order.Front(); el != nil; el = el.Next() {
		entry := *el.Value.(*PeerEntry[A])
		if keep == nil || keep(entry) {
			candidates = append(candidates, entry)
		}
	}
	return sample(rng, candidates, k)
}

// sample shuffles the first k positions of candidates in place (Fisher-Yates)
// and returns them.
func sample[T any](rng *rand.Rand, candidates []T, k int) []T {
	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return nil
	}
	for i := 0; i < k; i++ {
		// pick a number between current index and the end
		j := rng.Intn(len(candidates)-i) + i
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:k]
}

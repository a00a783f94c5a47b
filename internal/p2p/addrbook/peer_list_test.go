package addrbook

import (
	"errors"
	"math/rand"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }

func addr(s string) netip.AddrPort { return netip.MustParseAddrPort(s) }

func entry(s string, sec int) PeerEntry[netip.AddrPort] {
	return PeerEntry[netip.AddrPort]{Addr: addr(s), LastSeen: at(sec)}
}

func TestPeerListEvictsOldest(t *testing.T) {
	pl := newPeerList[netip.AddrPort](2)

	for i, e := range []PeerEntry[netip.AddrPort]{
		entry("1.1.1.1:18080", 1), // A
		entry("2.2.2.2:18080", 2), // B
		entry("3.3.3.3:18080", 3), // C
	} {
		evicted, err := pl.insertOrRefresh(e)
		require.NoError(t, err)
		if i < 2 {
			require.Nil(t, evicted)
		} else {
			require.NotNil(t, evicted)
			require.Equal(t, addr("1.1.1.1:18080"), evicted.Addr)
		}
	}

	require.Equal(t, 2, pl.len())
	require.False(t, pl.contains(addr("1.1.1.1:18080")))
	require.True(t, pl.contains(addr("2.2.2.2:18080")))
	require.True(t, pl.contains(addr("3.3.3.3:18080")))
}

func TestPeerListEvictionTieBreak(t *testing.T) {
	pl := newPeerList[netip.AddrPort](2)
	_, err := pl.insertOrRefresh(entry("9.9.9.9:1", 5))
	require.NoError(t, err)
	_, err = pl.insertOrRefresh(entry("10.0.0.1:1", 5))
	require.NoError(t, err)

	evicted, err := pl.insertOrRefresh(entry("8.8.8.8:1", 6))
	require.NoError(t, err)
	require.NotNil(t, evicted)
	// "10.0.0.1:1" < "9.9.9.9:1" lexicographically
	require.Equal(t, addr("10.0.0.1:1"), evicted.Addr)
}

func TestPeerListRefreshedEntryIsNotEvicted(t *testing.T) {
	pl := newPeerList[netip.AddrPort](2)
	_, _ = pl.insertOrRefresh(entry("1.1.1.1:1", 1))
	_, _ = pl.insertOrRefresh(entry("2.2.2.2:1", 2))

	evicted, err := pl.insertOrRefresh(entry("1.1.1.1:1", 10))
	require.NoError(t, err)
	require.Nil(t, evicted)
	require.Equal(t, 2, pl.len())

	evicted, err = pl.insertOrRefresh(entry("3.3.3.3:1", 11))
	require.NoError(t, err)
	require.Equal(t, addr("2.2.2.2:1"), evicted.Addr)

	got, ok := pl.get(addr("1.1.1.1:1"))
	require.True(t, ok)
	require.Equal(t, at(10), got.LastSeen)
}

func TestPeerListPeerID(t *testing.T) {
	pl := newPeerList[netip.AddrPort](4)

	// an unknown id is filled in once
	_, err := pl.insertOrRefresh(entry("1.1.1.1:1", 1))
	require.NoError(t, err)
	withID := entry("1.1.1.1:1", 2)
	withID.ID = 42
	_, err = pl.insertOrRefresh(withID)
	require.NoError(t, err)

	// refreshing without an id keeps it
	_, err = pl.insertOrRefresh(entry("1.1.1.1:1", 3))
	require.NoError(t, err)
	got, _ := pl.get(addr("1.1.1.1:1"))
	require.EqualValues(t, 42, got.ID)
	require.Equal(t, at(3), got.LastSeen)

	// a different id is a conflict and changes nothing
	conflict := entry("1.1.1.1:1", 4)
	conflict.ID = 7
	_, err = pl.insertOrRefresh(conflict)
	var changed ErrPeersDataChanged
	require.True(t, errors.As(err, &changed))
	require.Equal(t, "peer_id", changed.Field)
	got, _ = pl.get(addr("1.1.1.1:1"))
	require.EqualValues(t, 42, got.ID)
	require.Equal(t, at(3), got.LastSeen)
}

func TestPeerListRemove(t *testing.T) {
	pl := newPeerList[netip.AddrPort](4)
	_, _ = pl.insertOrRefresh(entry("1.1.1.1:1", 1))

	removed, ok := pl.remove(addr("1.1.1.1:1"))
	require.True(t, ok)
	require.Equal(t, addr("1.1.1.1:1"), removed.Addr)

	_, ok = pl.remove(addr("1.1.1.1:1"))
	require.False(t, ok)
	require.Zero(t, pl.len())
	require.Empty(t, pl.entries())
}

func TestPeerListEntriesKeepInsertionOrder(t *testing.T) {
	pl := newPeerList[netip.AddrPort](4)
	for i, s := range []string{"3.3.3.3:1", "1.1.1.1:1", "2.2.2.2:1"} {
		_, _ = pl.insertOrRefresh(entry(s, 10-i))
	}

	entries := pl.entries()
	require.Len(t, entries, 3)
	assert.Equal(t, addr("3.3.3.3:1"), entries[0].Addr)
	assert.Equal(t, addr("1.1.1.1:1"), entries[1].Addr)
	assert.Equal(t, addr("2.2.2.2:1"), entries[2].Addr)
}

func TestPeerListRandomSample(t *testing.T) {
	pl := newPeerList[netip.AddrPort](100)
	for i := 0; i < 50; i++ {
		_, _ = pl.insertOrRefresh(PeerEntry[netip.AddrPort]{
			Addr:     netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, 0, byte(i)}), 18080),
			LastSeen: at(i),
		})
	}

	testCases := map[string]struct {
		k    int
		want int
	}{
		"none":       {0, 0},
		"negative":   {-3, 0},
		"some":       {10, 10},
		"all":        {50, 50},
		"beyond all": {80, 50},
	}
	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			got := pl.randomSample(rand.New(rand.NewSource(1)), tc.k, nil)
			require.Len(t, got, tc.want)

			seen := map[netip.AddrPort]bool{}
			for _, e := range got {
				require.False(t, seen[e.Addr], "duplicate %v", e.Addr)
				require.True(t, pl.contains(e.Addr))
				seen[e.Addr] = true
			}
		})
	}

	// the same seed gives the same sample
	first := pl.randomSample(rand.New(rand.NewSource(7)), 5, nil)
	second := pl.randomSample(rand.New(rand.NewSource(7)), 5, nil)
	require.Equal(t, first, second)

	// samples vary between draws
	rng := rand.New(rand.NewSource(7))
	distinct := map[netip.AddrPort]bool{}
	for i := 0; i < 20; i++ {
		for _, e := range pl.randomSample(rng, 5, nil) {
			distinct[e.Addr] = true
		}
	}
	require.Greater(t, len(distinct), 5)

	// filtered entries are never returned
	even := pl.randomSample(rand.New(rand.NewSource(3)), 50, func(e PeerEntry[netip.AddrPort]) bool {
		return e.Addr.Addr().As4()[3]%2 == 0
	})
	require.Len(t, even, 25)
}

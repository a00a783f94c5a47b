package addrbook

import (
	"errors"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/coinnode/coinnode/internal/p2p/netzone"
)

type clearNetSnapshot = Snapshot[netip.AddrPort, netip.Addr]

func sortSnapshot() cmp.Option {
	return cmp.Options{
		cmpopts.SortSlices(func(a, b PeerEntry[netip.AddrPort]) bool {
			return a.Addr.String() < b.Addr.String()
		}),
		cmpopts.SortSlices(func(a, b BanEntry[netip.Addr]) bool {
			return a.ID.Less(b.ID)
		}),
		cmpopts.EquateEmpty(),
		cmp.Comparer(func(a, b netip.AddrPort) bool { return a == b }),
		cmp.Comparer(func(a, b netip.Addr) bool { return a == b }),
	}
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	store := newPeerStore[netip.AddrPort, netip.Addr](netzone.ClearNet{}, t.TempDir())

	snap, err := store.load()
	require.NoError(t, err)
	require.Empty(t, snap.White)
	require.Empty(t, snap.Gray)
	require.Empty(t, snap.Bans)
}

func TestStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "peers")
	store := newPeerStore[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir)

	want := clearNetSnapshot{
		White: []PeerEntry[netip.AddrPort]{
			{Addr: addr("1.1.1.1:18080"), ID: 11, LastSeen: at(1)},
			{Addr: addr("[2001:db8::1]:18080"), ID: 12, LastSeen: at(2)},
		},
		Gray: []PeerEntry[netip.AddrPort]{
			{Addr: addr("3.3.3.3:18080"), LastSeen: at(3)},
		},
		Bans: []BanEntry[netip.Addr]{
			{ID: netip.MustParseAddr("6.6.6.6"), Expiry: at(1000)},
			{ID: netip.MustParseAddr("5.5.5.5"), Expiry: at(500)},
		},
	}
	require.NoError(t, store.save(want))
	require.FileExists(t, PeerFilePath(dir, "clearnet"))

	got, err := store.load()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, sortSnapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// exported loader reads the same file
	got, err = LoadSnapshot[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir)
	require.NoError(t, err)
	require.Len(t, got.White, 2)
}

func TestStoreLoadErrors(t *testing.T) {
	testCases := map[string]string{
		"malformed json":   `{"zone": "clearnet", "white": [`,
		"unknown field":    `{"zone": "clearnet", "white": [], "gray": [], "extra": 1}`,
		"wrong zone":       `{"zone": "onion", "white": [], "gray": []}`,
		"bad address":      `{"zone": "clearnet", "white": [{"addr": "nope", "last_seen": "2022-01-01T00:00:00Z"}], "gray": []}`,
		"bad gray":         `{"zone": "clearnet", "white": [], "gray": [{"addr": "1.1.1.1", "last_seen": "2022-01-01T00:00:00Z"}]}`,
		"bad ban id":       `{"zone": "clearnet", "white": [], "gray": [], "bans": [{"id": "1.1.1.1:80", "expiry": "2022-01-01T00:00:00Z"}]}`,
		"not json at all":  "\x00\x01\x02",
		"trailing garbage": `{"zone": "clearnet", "white": [], "gray": []} garbage`,
		"second record":    `{"zone": "clearnet", "white": [], "gray": []}{"zone": "clearnet"}`,
	}
	for name, contents := range testCases {
		contents := contents
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(PeerFilePath(dir, "clearnet"), []byte(contents), 0600))

			store := newPeerStore[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir)
			_, err := store.load()
			require.Error(t, err)
		})
	}
}

func TestStoreCanonicalizesOnLoad(t *testing.T) {
	dir := t.TempDir()
	contents := `{"zone": "clearnet", "white": [{"addr": "[::ffff:1.2.3.4]:80", "last_seen": "2022-01-01T00:00:00Z"}], "gray": []}`
	require.NoError(t, os.WriteFile(PeerFilePath(dir, "clearnet"), []byte(contents), 0600))

	snap, err := newPeerStore[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir).load()
	require.NoError(t, err)
	require.Len(t, snap.White, 1)
	require.Equal(t, addr("1.2.3.4:80"), snap.White[0].Addr)
}

var errSimulatedCrash = errors.New("simulated crash")

func TestStoreInterruptedSaveKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	store := newPeerStore[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir)

	before := clearNetSnapshot{
		White: []PeerEntry[netip.AddrPort]{{Addr: addr("1.1.1.1:18080"), ID: 1, LastSeen: at(1)}},
	}
	require.NoError(t, store.save(before))

	store.encode = func(w io.Writer, f *peerFile) error {
		// half a file, then the process dies
		_, _ = w.Write([]byte(`{"zone": "clearnet", "white": [{"addr": "2.2.2.2:1`))
		return errSimulatedCrash
	}
	after := clearNetSnapshot{
		White: []PeerEntry[netip.AddrPort]{{Addr: addr("2.2.2.2:18080"), LastSeen: at(2)}},
	}
	err := store.save(after)
	require.ErrorIs(t, err, errSimulatedCrash)

	got, err := store.load()
	require.NoError(t, err)
	if diff := cmp.Diff(before, got, sortSnapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1, "temporary file left behind")
	require.Equal(t, "clearnet_peers.json", files[0].Name())
}

func TestStoreZonesUseSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	clearNet := newPeerStore[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir)
	onion := newPeerStore[netzone.OnionAddr, netzone.OnionHost](netzone.Onion{}, dir)

	require.NoError(t, clearNet.save(clearNetSnapshot{
		Gray: []PeerEntry[netip.AddrPort]{{Addr: addr("1.1.1.1:1"), LastSeen: at(1)}},
	}))

	snap, err := onion.load()
	require.NoError(t, err)
	require.Empty(t, snap.Gray)

	// a clear-net file under the onion name is rejected
	require.NoError(t, os.Rename(clearNet.path, onion.path))
	_, err = onion.load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "belongs to zone")
}

func TestReadBanList(t *testing.T) {
	dir := t.TempDir()

	lines, err := readBanList(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	require.Nil(t, lines)

	path := filepath.Join(dir, "ban_list.txt")
	require.NoError(t, os.WriteFile(path, []byte("1.2.3.4\n# comment\n5.6.7.0/24\n"), 0600))
	lines, err = readBanList(path)
	require.NoError(t, err)
	require.Equal(t, []string{"1.2.3.4", "# comment", "5.6.7.0/24"}, lines)
}

func TestStoreSavesTimesInUTC(t *testing.T) {
	dir := t.TempDir()
	store := newPeerStore[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir)
	local := time.FixedZone("somewhere", 3*60*60)

	require.NoError(t, store.save(clearNetSnapshot{
		Gray: []PeerEntry[netip.AddrPort]{{Addr: addr("1.1.1.1:1"), LastSeen: at(0).In(local)}},
	}))
	bz, err := os.ReadFile(store.path)
	require.NoError(t, err)
	require.Contains(t, string(bz), `"last_seen": "2022-01-01T00:00:00Z"`)
}

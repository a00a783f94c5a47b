package addrbook

import (
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinnode/coinnode/internal/p2p/netzone"
)

func newTestBanList(t *testing.T) (*banList[netip.Addr], *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(epoch)
	return newBanList[netip.Addr](mock), mock
}

func TestBanListExpiry(t *testing.T) {
	bl, mock := newTestBanList(t)
	ip := netip.MustParseAddr("1.2.3.4")

	expiry, err := bl.ban(ip, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, epoch.Add(10*time.Second), expiry)
	require.True(t, bl.isBanned(ip))

	mock.Add(10*time.Second - time.Nanosecond)
	require.True(t, bl.isBanned(ip))

	// banned strictly before the expiry, free at it
	mock.Add(time.Nanosecond)
	require.False(t, bl.isBanned(ip))
	require.NotContains(t, bl.bans, ip)
	require.Zero(t, bl.len())
}

func TestBanListOnlyExtends(t *testing.T) {
	testCases := map[string][]time.Duration{
		"longer first":  {time.Hour, time.Minute},
		"shorter first": {time.Minute, time.Hour},
	}
	for name, durations := range testCases {
		durations := durations
		t.Run(name, func(t *testing.T) {
			bl, _ := newTestBanList(t)
			ip := netip.MustParseAddr("1.2.3.4")
			for _, d := range durations {
				_, err := bl.ban(ip, d)
				require.NoError(t, err)
			}

			expiry, ok := bl.expiry(ip)
			require.True(t, ok)
			require.Equal(t, epoch.Add(time.Hour), expiry)
		})
	}
}

func TestBanListInvalidDuration(t *testing.T) {
	bl, _ := newTestBanList(t)
	ip := netip.MustParseAddr("1.2.3.4")

	for _, d := range []time.Duration{0, -time.Second} {
		_, err := bl.ban(ip, d)
		require.ErrorIs(t, err, ErrInvalidBanDuration)
	}
	require.False(t, bl.isBanned(ip))
}

func TestBanListLoadFromLines(t *testing.T) {
	bl, mock := newTestBanList(t)
	lines := []string{
		"# known bad hosts",
		"",
		"5.6.7.8",
		"9.9.9.9:18080 # port is ignored",
		"1.2.3.0/30",
		"  ",
	}

	n, err := bl.loadFromLines(lines, netzone.ClearNet{})
	require.NoError(t, err)
	require.Equal(t, 6, n)

	for _, s := range []string{"5.6.7.8", "9.9.9.9", "1.2.3.0", "1.2.3.1", "1.2.3.2", "1.2.3.3"} {
		assert.True(t, bl.isBanned(netip.MustParseAddr(s)), s)
	}
	assert.False(t, bl.isBanned(netip.MustParseAddr("1.2.3.4")))

	mock.Add(StaticBanDuration - time.Second)
	assert.True(t, bl.isBanned(netip.MustParseAddr("5.6.7.8")))
}

func TestBanListLoadFromLinesMalformed(t *testing.T) {
	bl, _ := newTestBanList(t)

	_, err := bl.loadFromLines([]string{"1.2.3.4", "not an address"}, netzone.ClearNet{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestBanListSnapshotSkipsStaticBans(t *testing.T) {
	bl, mock := newTestBanList(t)
	static := netip.MustParseAddr("5.6.7.8")
	runtime := netip.MustParseAddr("1.1.1.1")
	expired := netip.MustParseAddr("2.2.2.2")

	_, err := bl.loadFromLines([]string{static.String()}, netzone.ClearNet{})
	require.NoError(t, err)
	_, err = bl.ban(runtime, time.Hour)
	require.NoError(t, err)
	_, err = bl.ban(expired, time.Minute)
	require.NoError(t, err)

	mock.Add(time.Minute)
	snap := bl.snapshot()
	require.Equal(t, []BanEntry[netip.Addr]{{ID: runtime, Expiry: epoch.Add(time.Hour)}}, snap)
	require.NotContains(t, bl.bans, expired)
	require.Equal(t, 2, bl.len())
}

func TestBanListRestore(t *testing.T) {
	bl, _ := newTestBanList(t)
	live := netip.MustParseAddr("1.1.1.1")
	stale := netip.MustParseAddr("2.2.2.2")

	bl.restore(live, epoch.Add(time.Hour))
	bl.restore(stale, epoch)

	require.True(t, bl.isBanned(live))
	require.False(t, bl.isBanned(stale))

	// restoring never shortens a ban
	_, err := bl.ban(live, 2*time.Hour)
	require.NoError(t, err)
	bl.restore(live, epoch.Add(time.Hour))
	expiry, ok := bl.expiry(live)
	require.True(t, ok)
	require.Equal(t, epoch.Add(2*time.Hour), expiry)
}

func TestBanListStaticBanKeepsRuntimeBan(t *testing.T) {
	bl, _ := newTestBanList(t)
	ip := netip.MustParseAddr("5.6.7.8")

	// a persisted runtime ban restored before the ban-list file is applied
	bl.restore(ip, epoch.Add(time.Hour))
	_, err := bl.loadFromLines([]string{ip.String()}, netzone.ClearNet{})
	require.NoError(t, err)

	expiry, ok := bl.expiry(ip)
	require.True(t, ok)
	require.Equal(t, epoch.Add(StaticBanDuration), expiry)
	require.Equal(t, []BanEntry[netip.Addr]{{ID: ip, Expiry: epoch.Add(time.Hour)}}, bl.snapshot())

	// the same holds for a runtime ban given after the file was read
	other := netip.MustParseAddr("6.6.6.6")
	_, err = bl.loadFromLines([]string{other.String()}, netzone.ClearNet{})
	require.NoError(t, err)
	_, err = bl.ban(other, time.Minute)
	require.NoError(t, err)
	require.ElementsMatch(t, []BanEntry[netip.Addr]{
		{ID: ip, Expiry: epoch.Add(time.Hour)},
		{ID: other, Expiry: epoch.Add(time.Minute)},
	}, bl.snapshot())
}

package netzone_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinnode/coinnode/internal/p2p/netzone"
)

func testOnionHost(b byte) string {
	return netzone.OnionHostFromKey(bytes.Repeat([]byte{b}, 32))
}

func TestOnionHostFromKey(t *testing.T) {
	host := testOnionHost(1)
	require.True(t, strings.HasSuffix(host, ".onion"))
	require.Len(t, host, 56+len(".onion"))
	require.NoError(t, netzone.ValidateOnionHost(host))
	require.NoError(t, netzone.ValidateOnionHost(strings.ToUpper(host)))
}

func TestValidateOnionHost(t *testing.T) {
	host := testOnionHost(1)
	label := strings.TrimSuffix(host, ".onion")

	// flip one character of the key so the checksum no longer matches
	flipped := []byte(label)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	for name, bad := range map[string]string{
		"no suffix":    label,
		"too short":    label[1:] + ".onion",
		"not base32":   "0" + label[1:] + ".onion",
		"bad checksum": string(flipped) + ".onion",
		"v2 style":     "expyuzz4wqqyqhjn.onion",
	} {
		assert.Error(t, netzone.ValidateOnionHost(bad), name)
	}
}

func TestOnionZone(t *testing.T) {
	z := netzone.Onion{}
	host := testOnionHost(7)
	upper := netzone.OnionAddr{Host: strings.ToUpper(host), Port: 18083}

	canonical := z.Canonicalize(upper)
	require.Equal(t, host, canonical.Host)
	require.Equal(t, netzone.OnionHost(host), z.BanID(upper))
	require.Equal(t, netzone.OnionHost(host), z.CanonicalizeBanID(netzone.OnionHost(strings.ToUpper(host))))
	require.Equal(t, host+":18083", canonical.String())

	require.True(t, z.ShouldAddToPeerList(canonical))
	require.False(t, z.ShouldAddToPeerList(netzone.OnionAddr{Host: host}))
	require.False(t, z.ShouldAddToPeerList(netzone.OnionAddr{Host: "example.com", Port: 1}))

	parsed, err := z.ParseAddr(canonical.String())
	require.NoError(t, err)
	require.Equal(t, canonical, parsed)

	_, err = z.ParseAddr(host)
	require.Error(t, err)
	_, err = z.ParseAddr(host + ":70000")
	require.Error(t, err)

	id, err := z.ParseBanID(strings.ToUpper(host))
	require.NoError(t, err)
	require.Equal(t, netzone.OnionHost(host), id)
}

func TestOnionReadBanLine(t *testing.T) {
	z := netzone.Onion{}
	host := testOnionHost(3)

	for _, line := range []string{host, host + ":18083", "  " + host + "  # spammer"} {
		ids, err := z.ReadBanLine(line)
		require.NoError(t, err, line)
		require.Equal(t, []netzone.OnionHost{netzone.OnionHost(host)}, ids)
	}

	ids, err := z.ReadBanLine("# only a comment")
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = z.ReadBanLine("1.2.3.4")
	require.Error(t, err)
	_, err = z.ReadBanLine("notanonion.onion:80")
	require.Error(t, err)
}

package netzone

import (
	"bytes"
	"encoding/base32"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	onionSuffix  = ".onion"
	onionVersion = 3
	// base32 of a 32 byte key, 2 byte checksum and 1 byte version
	onionHostLen = 56
)

var onionEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// OnionAddr is the address of a peer behind a v3 onion service.
type OnionAddr struct {
	Host string
	Port uint16
}

func (a OnionAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// OnionHost bans every port of an onion service.
type OnionHost string

func (h OnionHost) String() string { return string(h) }

// Onion is the zone of peers reached through Tor onion services.
type Onion struct{}

// Name implements addrbook.Zone.
func (Onion) Name() string { return "onion" }

// Canonicalize lower-cases the host.
func (Onion) Canonicalize(addr OnionAddr) OnionAddr {
	addr.Host = strings.ToLower(addr.Host)
	return addr
}

// BanID implements addrbook.Zone.
func (Onion) BanID(addr OnionAddr) OnionHost {
	return OnionHost(strings.ToLower(addr.Host))
}

// CanonicalizeBanID lower-cases the host.
func (Onion) CanonicalizeBanID(host OnionHost) OnionHost {
	return OnionHost(strings.ToLower(string(host)))
}

// ShouldAddToPeerList implements addrbook.Zone.
func (Onion) ShouldAddToPeerList(addr OnionAddr) bool {
	return addr.Port != 0 && ValidateOnionHost(addr.Host) == nil
}

// ReadBanLine implements addrbook.Zone. A line holds an onion host,
// optionally with a port. Text after '#' is a comment.
func (Onion) ReadBanLine(line string) ([]OnionHost, error) {
	line = stripComment(line)
	if line == "" {
		return nil, nil
	}
	host := line
	if strings.Contains(line, ":") {
		h, _, err := net.SplitHostPort(line)
		if err != nil {
			return nil, fmt.Errorf("invalid ban line %q: %w", line, err)
		}
		host = h
	}
	id, err := parseOnionHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ban line %q: %w", line, err)
	}
	return []OnionHost{id}, nil
}

// ParseAddr implements addrbook.Zone.
func (Onion) ParseAddr(s string) (OnionAddr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return OnionAddr{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return OnionAddr{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	id, err := parseOnionHost(host)
	if err != nil {
		return OnionAddr{}, err
	}
	return OnionAddr{Host: string(id), Port: uint16(port)}, nil
}

// ParseBanID implements addrbook.Zone.
func (Onion) ParseBanID(s string) (OnionHost, error) {
	return parseOnionHost(s)
}

func parseOnionHost(host string) (OnionHost, error) {
	host = strings.ToLower(host)
	if err := ValidateOnionHost(host); err != nil {
		return "", err
	}
	return OnionHost(host), nil
}

// ValidateOnionHost checks that host is a v3 onion service name with a
// valid checksum.
func ValidateOnionHost(host string) error {
	host = strings.ToLower(host)
	if !strings.HasSuffix(host, onionSuffix) {
		return fmt.Errorf("%q is not an onion host", host)
	}
	label := strings.TrimSuffix(host, onionSuffix)
	if len(label) != onionHostLen {
		return fmt.Errorf("onion host %q: expected %d characters, got %d", host, onionHostLen, len(label))
	}
	raw, err := onionEncoding.DecodeString(strings.ToUpper(label))
	if err != nil {
		return fmt.Errorf("onion host %q: %w", host, err)
	}

	pubkey, checksum, version := raw[:32], raw[32:34], raw[34]
	if version != onionVersion {
		return fmt.Errorf("onion host %q: unsupported version %d", host, version)
	}
	if !bytes.Equal(checksum, onionChecksum(pubkey)) {
		return errors.New("onion host checksum mismatch")
	}
	return nil
}

// OnionHostFromKey returns the v3 onion host of an ed25519 public key.
func OnionHostFromKey(pubkey []byte) string {
	raw := make([]byte, 0, 35)
	raw = append(raw, pubkey...)
	raw = append(raw, onionChecksum(pubkey)...)
	raw = append(raw, onionVersion)
	return strings.ToLower(onionEncoding.EncodeToString(raw)) + onionSuffix
}

// onionChecksum is the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func onionChecksum(pubkey []byte) []byte {
	h := sha3.New256()
	h.Write([]byte(".onion checksum"))
	h.Write(pubkey)
	h.Write([]byte{onionVersion})
	return h.Sum(nil)[:2]
}

package addrbook

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/creachadair/atomicfile"
)

const (
	peerFileSuffix = "_peers.json"
	peerFilePerm   = 0600
	peerDirPerm    = 0700
)

// Snapshot is the persisted state of one zone's address book.
type Snapshot[A Addr, B Addr] struct {
	White []PeerEntry[A]
	Gray  []PeerEntry[A]
	Bans  []BanEntry[B]
}

// peerFile is the on-disk form of a Snapshot.
type peerFile struct {
	Zone  string       `json:"zone"`
	White []peerRecord `json:"white"`
	Gray  []peerRecord `json:"gray"`
	Bans  []banRecord  `json:"bans,omitempty"`
}

type peerRecord struct {
	Addr     string    `json:"addr"`
	ID       uint64    `json:"id,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

type banRecord struct {
	ID     string    `json:"id"`
	Expiry time.Time `json:"expiry"`
}

// PeerFilePath returns the path of zone's peer file inside dir.
func PeerFilePath(dir, zone string) string {
	return filepath.Join(dir, zone+peerFileSuffix)
}

// peerStore reads and writes one zone's peer file. Writes go to a temporary
// file in the same directory which is then renamed over the target, so a
// reader only ever sees a complete file.
type peerStore[A Addr, B Addr] struct {
	zone Zone[A, B]
	path string

	// encode is replaced in tests to simulate an interrupted write.
	encode func(w io.Writer, f *peerFile) error
}

func newPeerStore[A Addr, B Addr](zone Zone[A, B], dir string) *peerStore[A, B] {
	return &peerStore[A, B]{
		zone:   zone,
		path:   PeerFilePath(dir, zone.Name()),
		encode: encodePeerFile,
	}
}

func encodePeerFile(w io.Writer, f *peerFile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(f)
}

// LoadSnapshot reads the peer file of zone from dir. A missing file yields an
// empty snapshot.
func LoadSnapshot[A Addr, B Addr](zone Zone[A, B], dir string) (Snapshot[A, B], error) {
	return newPeerStore(zone, dir).load()
}

// load reads the peer file. A missing file is not an error; a malformed one
// is, since silently dropping it would lose the user's peers.
func (s *peerStore[A, B]) load() (Snapshot[A, B], error) {
	var snap Snapshot[A, B]

	r, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("opening peer file %s: %w", s.path, err)
	}
	defer r.Close()

	var f peerFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return snap, fmt.Errorf("reading peer file %s: %w", s.path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return snap, fmt.Errorf("reading peer file %s: trailing data after peer record", s.path)
	}
	if f.Zone != s.zone.Name() {
		return snap, fmt.Errorf("peer file %s belongs to zone %q, not %q", s.path, f.Zone, s.zone.Name())
	}

	if snap.White, err = s.decodePeers(f.White); err != nil {
		return snap, fmt.Errorf("peer file %s: white list: %w", s.path, err)
	}
	if snap.Gray, err = s.decodePeers(f.Gray); err != nil {
		return snap, fmt.Errorf("peer file %s: gray list: %w", s.path, err)
	}
	for _, rec := range f.Bans {
		id, err := s.zone.ParseBanID(rec.ID)
		if err != nil {
			return snap, fmt.Errorf("peer file %s: ban %q: %w", s.path, rec.ID, err)
		}
		snap.Bans = append(snap.Bans, BanEntry[B]{ID: id, Expiry: rec.Expiry})
	}

	return snap, nil
}

func (s *peerStore[A, B]) decodePeers(records []peerRecord) ([]PeerEntry[A], error) {
	peers := make([]PeerEntry[A], 0, len(records))
	for _, rec := range records {
		addr, err := s.zone.ParseAddr(rec.Addr)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", rec.Addr, err)
		}
		peers = append(peers, PeerEntry[A]{
			Addr:     s.zone.Canonicalize(addr),
			ID:       rec.ID,
			LastSeen: rec.LastSeen,
		})
	}
	return peers, nil
}

// save atomically replaces the peer file with snap.
func (s *peerStore[A, B]) save(snap Snapshot[A, B]) error {
	f := &peerFile{
		Zone:  s.zone.Name(),
		White: encodePeers(snap.White),
		Gray:  encodePeers(snap.Gray),
	}
	for _, ban := range snap.Bans {
		f.Bans = append(f.Bans, banRecord{ID: ban.ID.String(), Expiry: ban.Expiry.UTC()})
	}

	if err := os.MkdirAll(filepath.Dir(s.path), peerDirPerm); err != nil {
		return fmt.Errorf("creating peer store directory: %w", err)
	}

	out, err := atomicfile.New(s.path, peerFilePerm)
	if err != nil {
		return fmt.Errorf("creating peer file: %w", err)
	}
	if err := s.encode(out, f); err != nil {
		out.Cancel()
		return fmt.Errorf("writing peer file %s: %w", s.path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("committing peer file %s: %w", s.path, err)
	}
	return nil
}

func encodePeers[A Addr](peers []PeerEntry[A]) []peerRecord {
	records := make([]peerRecord, 0, len(peers))
	for _, p := range peers {
		records = append(records, peerRecord{
			Addr:     p.Addr.String(),
			ID:       p.ID,
			LastSeen: p.LastSeen.UTC(),
		})
	}
	return records
}

// readBanList reads the lines of the ban-list file at path. A missing file
// yields no lines.
func readBanList(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ban list %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ban list %s: %w", path, err)
	}
	return lines, nil
}

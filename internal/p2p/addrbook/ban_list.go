package addrbook

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// StaticBanDuration is how long every ban read from the ban-list file lasts.
// The file is re-read on every start, so it effectively never expires.
const StaticBanDuration = 365 * 24 * time.Hour

// banEntry keeps runtime and ban-list file expiries apart. Only the runtime
// expiry is persisted, so dropping a line from the ban-list file never lifts
// a ban given at runtime.
type banEntry struct {
	runtime time.Time
	static  time.Time
}

func (e banEntry) expiry() time.Time {
	if e.static.After(e.runtime) {
		return e.static
	}
	return e.runtime
}

// BanEntry is a persisted ban.
type BanEntry[B Addr] struct {
	ID     B
	Expiry time.Time
}

// banList maps ban ids to expiries. Expired entries are purged lazily when
// they are looked up. It is not thread-safe.
type banList[B Addr] struct {
	clock clock.Clock
	bans  map[B]banEntry
}

func newBanList[B Addr](clk clock.Clock) *banList[B] {
	return &banList[B]{
		clock: clk,
		bans:  make(map[B]banEntry),
	}
}

// ban bans id for d from now. An existing ban is only ever extended.
func (bl *banList[B]) ban(id B, d time.Duration) (time.Time, error) {
	return bl.add(id, d, false)
}

func (bl *banList[B]) add(id B, d time.Duration, static bool) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, ErrInvalidBanDuration
	}

	expiry := bl.clock.Now().Add(d)
	entry := bl.bans[id]
	switch {
	case static && expiry.After(entry.static):
		entry.static = expiry
	case !static && expiry.After(entry.runtime):
		entry.runtime = expiry
	}
	bl.bans[id] = entry
	return entry.expiry(), nil
}

// isBanned reports whether id is banned now, purging the entry if its ban
// has run out.
func (bl *banList[B]) isBanned(id B) bool {
	entry, ok := bl.bans[id]
	if !ok {
		return false
	}
	if bl.clock.Now().Before(entry.expiry()) {
		return true
	}
	delete(bl.bans, id)
	return false
}

// expiry returns the ban expiry of id, if banned.
func (bl *banList[B]) expiry(id B) (time.Time, bool) {
	if !bl.isBanned(id) {
		return time.Time{}, false
	}
	return bl.bans[id].expiry(), true
}

type banLineReader[B Addr] interface {
	ReadBanLine(line string) ([]B, error)
}

// loadFromLines bans every id the lines expand to for StaticBanDuration and
// returns how many ids were banned.
func (bl *banList[B]) loadFromLines(lines []string, reader banLineReader[B]) (int, error) {
	n := 0
	for i, line := range lines {
		ids, err := reader.ReadBanLine(line)
		if err != nil {
			return n, fmt.Errorf("ban list line %d: %w", i+1, err)
		}
		for _, id := range ids {
			if _, err := bl.add(id, StaticBanDuration, true); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// restore re-inserts a persisted ban. Bans that already ran out are dropped.
func (bl *banList[B]) restore(id B, expiry time.Time) {
	if !bl.clock.Now().Before(expiry) {
		return
	}
	entry := bl.bans[id]
	if expiry.After(entry.runtime) {
		entry.runtime = expiry
	}
	bl.bans[id] = entry
}

// snapshot returns the live runtime bans, purging expired entries on the
// way. Expiries from the ban-list file are left out.
func (bl *banList[B]) snapshot() []BanEntry[B] {
	now := bl.clock.Now()
	out := make([]BanEntry[B], 0, len(bl.bans))
	for id, entry := range bl.bans {
		if !now.Before(entry.expiry()) {
			delete(bl.bans, id)
			continue
		}
		if now.Before(entry.runtime) {
			out = append(out, BanEntry[B]{ID: id, Expiry: entry.runtime})
		}
	}
	return out
}

// len returns the number of live bans.
func (bl *banList[B]) len() int {
	now := bl.clock.Now()
	for id, entry := range bl.bans {
		if !now.Before(entry.expiry()) {
			delete(bl.bans, id)
		}
	}
	return len(bl.bans)
}

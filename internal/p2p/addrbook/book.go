package addrbook

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/coinnode/coinnode/libs/log"
	"github.com/coinnode/coinnode/libs/service"
)

// mailboxSize is how many requests may queue before callers block.
const mailboxSize = 64

// Options specifies options for an AddressBook.
type Options struct {
	// MaxWhiteListLength bounds the list of peers we have connected to.
	MaxWhiteListLength int
	// MaxGrayListLength bounds the list of peers only known through gossip.
	MaxGrayListLength int
	// PeerStoreDirectory holds one peer file per zone.
	PeerStoreDirectory string
	// BanListPath is an optional ban-list file applied at startup.
	BanListPath string
	// PeerSavePeriod is the time between two saves of the peer file.
	PeerSavePeriod time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Rand is the randomness used to sample peers. Defaults to a time-seeded
	// source.
	Rand *rand.Rand
	// Metrics defaults to NopMetrics.
	Metrics *Metrics
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.MaxWhiteListLength <= 0 {
		return fmt.Errorf("MaxWhiteListLength must be positive, got %d", o.MaxWhiteListLength)
	}
	if o.MaxGrayListLength <= 0 {
		return fmt.Errorf("MaxGrayListLength must be positive, got %d", o.MaxGrayListLength)
	}
	if o.PeerStoreDirectory == "" {
		return errors.New("PeerStoreDirectory not set")
	}
	if o.PeerSavePeriod <= 0 {
		return fmt.Errorf("PeerSavePeriod must be positive, got %v", o.PeerSavePeriod)
	}
	return nil
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) // nolint:gosec
	}
	if o.Metrics == nil {
		o.Metrics = NopMetrics()
	}
}

type response[A Addr] struct {
	peers []PeerEntry[A]
	n     int
	ok    bool
	sizes Sizes
	err   error
}

type request[A Addr, B Addr] struct {
	name     string
	apply    func(*bookState[A, B]) response[A]
	reply    chan response[A]
	shutdown bool
}

// AddressBook is the address book of one network zone. It owns the zone's
// white list, gray list and bans; a single goroutine applies every request
// in arrival order, which is what makes each request atomic.
//
// Requests submitted before Start queue up and are handled once the book is
// started. Stop queues a shutdown behind the pending requests, saves the peer
// file one last time and ends the goroutine.
type AddressBook[A Addr, B Addr] struct {
	service.BaseService

	logger  log.Logger
	zone    Zone[A, B]
	options Options
	store   *peerStore[A, B]
	state   *bookState[A, B]

	mailbox chan request[A, B]
	closing chan struct{} // closed once Stop begins
	done    chan struct{} // closed once the goroutine has exited

	// stopErr is the result of the final save, set before done is closed.
	stopErr error
}

// New creates the address book for zone, loading its peer file and applying
// the ban list. A malformed peer file or ban list is an error; missing ones
// are not. Use Start to begin handling requests.
func New[A Addr, B Addr](zone Zone[A, B], options Options, logger log.Logger) (*AddressBook[A, B], error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	options.setDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With("zone", zone.Name())

	ab := &AddressBook[A, B]{
		logger:  logger,
		zone:    zone,
		options: options,
		store:   newPeerStore(zone, options.PeerStoreDirectory),
		state:   newBookState(zone, options),
		mailbox: make(chan request[A, B], mailboxSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	ab.BaseService = *service.NewBaseService(logger, "AddressBook", ab)

	snap, err := ab.store.load()
	if err != nil {
		return nil, err
	}
	if err := ab.state.restore(snap); err != nil {
		return nil, fmt.Errorf("peer file %s: %w", ab.store.path, err)
	}

	if options.BanListPath != "" {
		lines, err := readBanList(options.BanListPath)
		if err != nil {
			return nil, err
		}
		n, err := ab.state.bans.loadFromLines(lines, zone)
		if err != nil {
			return nil, fmt.Errorf("ban list %s: %w", options.BanListPath, err)
		}
		ab.state.dropBanned()
		if n > 0 {
			logger.Info("applied ban list", "path", options.BanListPath, "bans", n)
		}
	}

	ab.state.updateMetrics()
	sizes := ab.state.sizes()
	logger.Info("loaded address book",
		"white", sizes.White,
		"gray", sizes.Gray,
		"bans", sizes.Bans,
		"file", ab.store.path)

	return ab, nil
}

// OnStart implements service.Service.
func (ab *AddressBook[A, B]) OnStart(ctx context.Context) error {
	ticker := ab.options.Clock.Ticker(ab.options.PeerSavePeriod)
	go ab.run(ticker)
	return nil
}

// OnStop implements service.Service. It blocks until the final save is done.
func (ab *AddressBook[A, B]) OnStop() {
	close(ab.closing)
	select {
	case ab.mailbox <- request[A, B]{name: "shutdown", shutdown: true}:
	case <-ab.done:
	}
	<-ab.done
}

// Err returns the error of the final save. It is only meaningful once Wait
// has returned.
func (ab *AddressBook[A, B]) Err() error {
	select {
	case <-ab.done:
		return ab.stopErr
	default:
		return nil
	}
}

// Zone returns the zone this address book serves.
func (ab *AddressBook[A, B]) Zone() Zone[A, B] {
	return ab.zone
}

func (ab *AddressBook[A, B]) run(ticker *clock.Ticker) {
	defer close(ab.done)
	defer ticker.Stop()

	for {
		select {
		case req := <-ab.mailbox:
			if req.shutdown {
				ab.stopErr = ab.save()
				return
			}
			ab.options.Metrics.Requests.With("request", req.name).Add(1)
			resp := req.apply(ab.state)
			ab.state.updateMetrics()
			req.reply <- resp

		case <-ticker.C:
			// failures are logged and retried on the next tick
			_ = ab.save()
		}
	}
}

func (ab *AddressBook[A, B]) save() error {
	snap := ab.state.snapshot()
	if err := ab.store.save(snap); err != nil {
		ab.options.Metrics.SaveFailures.Add(1)
		ab.logger.Error("failed to save peer file", "file", ab.store.path, "err", err)
		return err
	}
	ab.logger.Debug("saved peer file",
		"file", ab.store.path,
		"white", len(snap.White),
		"gray", len(snap.Gray),
		"bans", len(snap.Bans))
	return nil
}

// call submits a request and waits for its reply.
func (ab *AddressBook[A, B]) call(
	ctx context.Context,
	name string,
	apply func(*bookState[A, B]) response[A],
) (response[A], error) {
	select {
	case <-ab.closing:
		return response[A]{}, ErrAddressBooksChannelClosed
	default:
	}

	req := request[A, B]{name: name, apply: apply, reply: make(chan response[A], 1)}
	select {
	case ab.mailbox <- req:
	case <-ab.closing:
		return response[A]{}, ErrAddressBooksChannelClosed
	case <-ab.done:
		return response[A]{}, ErrAddressBookTaskExited
	case <-ctx.Done():
		return response[A]{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ab.done:
		// the reply may have been sent right before the goroutine exited
		select {
		case resp := <-req.reply:
			return resp, nil
		default:
			return response[A]{}, ErrAddressBookTaskExited
		}
	case <-ctx.Done():
		return response[A]{}, ctx.Err()
	}
}

// IngestGossipedPeers adds gossiped addresses to the gray list, refreshing
// ones already known. Banned and ineligible addresses are dropped. It returns
// how many addresses were accepted.
func (ab *AddressBook[A, B]) IngestGossipedPeers(ctx context.Context, addrs []A) (int, error) {
	resp, err := ab.call(ctx, "ingest_gossiped_peers", func(s *bookState[A, B]) response[A] {
		return response[A]{n: s.ingestGossipedPeers(addrs)}
	})
	return resp.n, err
}

// TakePeersForConnect returns up to count peers to dial, preferring white
// peers over gray ones.
func (ab *AddressBook[A, B]) TakePeersForConnect(ctx context.Context, count int) ([]PeerEntry[A], error) {
	resp, err := ab.call(ctx, "take_peers_for_connect", func(s *bookState[A, B]) response[A] {
		return response[A]{peers: s.takePeersForConnect(count)}
	})
	return resp.peers, err
}

// TakePeersForGossip returns up to count random peers from both lists.
func (ab *AddressBook[A, B]) TakePeersForGossip(ctx context.Context, count int) ([]PeerEntry[A], error) {
	resp, err := ab.call(ctx, "take_peers_for_gossip", func(s *bookState[A, B]) response[A] {
		return response[A]{peers: s.takePeersForGossip(count)}
	})
	return resp.peers, err
}

// MarkConnected records a successful handshake with addr, moving it to the
// white list and marking it connected until MarkDisconnected or
// MarkConnectionFailed.
func (ab *AddressBook[A, B]) MarkConnected(ctx context.Context, addr A, id uint64) error {
	resp, err := ab.call(ctx, "mark_connected", func(s *bookState[A, B]) response[A] {
		return response[A]{err: s.markConnected(addr, id)}
	})
	if err != nil {
		return err
	}
	return resp.err
}

// MarkDisconnected clears the connected mark of addr.
func (ab *AddressBook[A, B]) MarkDisconnected(ctx context.Context, addr A) error {
	_, err := ab.call(ctx, "mark_disconnected", func(s *bookState[A, B]) response[A] {
		s.markDisconnected(addr)
		return response[A]{}
	})
	return err
}

// MarkConnectionFailed demotes a white peer to the gray list and forgets a
// gray one.
func (ab *AddressBook[A, B]) MarkConnectionFailed(ctx context.Context, addr A) error {
	resp, err := ab.call(ctx, "mark_connection_failed", func(s *bookState[A, B]) response[A] {
		return response[A]{err: s.markConnectionFailed(addr)}
	})
	if err != nil {
		return err
	}
	return resp.err
}

// BanPeer bans id for d and removes every stored peer it covers. Bans are
// only ever extended.
func (ab *AddressBook[A, B]) BanPeer(ctx context.Context, id B, d time.Duration) error {
	id = ab.zone.CanonicalizeBanID(id)
	resp, err := ab.call(ctx, "ban_peer", func(s *bookState[A, B]) response[A] {
		return response[A]{err: s.banPeer(id, d)}
	})
	if err != nil {
		return err
	}
	if resp.err == nil {
		ab.logger.Info("banned peer", "ban_id", id, "duration", d)
	}
	return resp.err
}

// IsBanned reports whether addr's ban id is banned.
func (ab *AddressBook[A, B]) IsBanned(ctx context.Context, addr A) (bool, error) {
	resp, err := ab.call(ctx, "is_banned", func(s *bookState[A, B]) response[A] {
		return response[A]{ok: s.isBanned(addr)}
	})
	return resp.ok, err
}

// Sizes returns the number of white, gray, banned and connected entries.
func (ab *AddressBook[A, B]) Sizes(ctx context.Context) (Sizes, error) {
	resp, err := ab.call(ctx, "sizes", func(s *bookState[A, B]) response[A] {
		return response[A]{sizes: s.sizes()}
	})
	return resp.sizes, err
}

// Save writes the peer file now.
func (ab *AddressBook[A, B]) Save(ctx context.Context) error {
	resp, err := ab.call(ctx, "save", func(*bookState[A, B]) response[A] {
		return response[A]{err: ab.save()}
	})
	if err != nil {
		return err
	}
	return resp.err
}

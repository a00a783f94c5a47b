package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/coinnode/coinnode/config"
	"github.com/coinnode/coinnode/internal/p2p/addrbook"
	"github.com/coinnode/coinnode/internal/p2p/netzone"
	"github.com/coinnode/coinnode/libs/log"
	"github.com/coinnode/coinnode/libs/service"
)

// MetricsProvider returns the address book metrics of a node.
type MetricsProvider func() *addrbook.Metrics

// DefaultMetricsProvider returns Metrics built using Prometheus client library
// if Prometheus is enabled. Otherwise, it returns no-op Metrics.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func() *addrbook.Metrics {
		if cfg.Prometheus {
			return addrbook.PrometheusMetrics(cfg.Namespace)
		}
		return addrbook.NopMetrics()
	}
}

// ZoneBook is the part of an address book that does not depend on the
// zone's address types.
type ZoneBook interface {
	service.Service

	Sizes(ctx context.Context) (addrbook.Sizes, error)
	Save(ctx context.Context) error
	// Err returns the error of the final save once the book has stopped.
	Err() error
}

type (
	// ClearNetBook is the address book of the clear-net zone.
	ClearNetBook = addrbook.AddressBook[netip.AddrPort, netip.Addr]
	// OnionBook is the address book of the onion zone.
	OnionBook = addrbook.AddressBook[netzone.OnionAddr, netzone.OnionHost]
)

// Node owns one address book per enabled network zone and the metrics
// server.
type Node struct {
	service.BaseService

	config *config.Config
	logger log.Logger

	clearNet *ClearNetBook
	onion    *OnionBook
	books    []ZoneBook // in start order
	byZone   map[string]ZoneBook

	prometheusSrv *http.Server
	metricsAddr   net.Addr

	// stopErr collects the final save errors, set before the quit channel
	// is closed.
	stopErr error
}

// NewNode returns a new, ready to go, node. The address books of all enabled
// zones are loaded concurrently; a malformed peer file or ban list in any of
// them is an error.
func NewNode(cfg *config.Config, logger log.Logger, metricsProvider MetricsProvider) (*Node, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metricsProvider == nil {
		metricsProvider = DefaultMetricsProvider(cfg.Instrumentation)
	}

	n := &Node{
		config: cfg,
		logger: logger,
		byZone: make(map[string]ZoneBook),
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)

	metrics := metricsProvider()
	bookLogger := logger.With("module", "addrbook")
	options := func(zone, banList string) addrbook.Options {
		return addrbook.Options{
			MaxWhiteListLength: cfg.AddrBook.MaxWhiteListLength,
			MaxGrayListLength:  cfg.AddrBook.MaxGrayListLength,
			PeerStoreDirectory: cfg.AddrBook.PeerStoreDir(),
			BanListPath:        banList,
			PeerSavePeriod:     cfg.AddrBook.PeerSavePeriod,
			Metrics:            metrics.ForZone(zone),
		}
	}

	var g errgroup.Group
	if cfg.P2P.ClearNet {
		zone := netzone.ClearNet{Strict: cfg.P2P.AddrBookStrict}
		opts := options(zone.Name(), cfg.AddrBook.BanListFile())
		g.Go(func() (err error) {
			n.clearNet, err = addrbook.New[netip.AddrPort, netip.Addr](zone, opts, bookLogger)
			if err != nil {
				return fmt.Errorf("loading %s address book: %w", zone.Name(), err)
			}
			return nil
		})
	}
	if cfg.P2P.Onion {
		zone := netzone.Onion{}
		opts := options(zone.Name(), cfg.AddrBook.OnionBanListFile())
		g.Go(func() (err error) {
			n.onion, err = addrbook.New[netzone.OnionAddr, netzone.OnionHost](zone, opts, bookLogger)
			if err != nil {
				return fmt.Errorf("loading %s address book: %w", zone.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if n.clearNet != nil {
		n.addBook(n.clearNet.Zone().Name(), n.clearNet)
	}
	if n.onion != nil {
		n.addBook(n.onion.Zone().Name(), n.onion)
	}
	return n, nil
}

func (n *Node) addBook(zone string, book ZoneBook) {
	n.books = append(n.books, book)
	n.byZone[zone] = book
}

// OnStart starts the address books, then the metrics server.
func (n *Node) OnStart(ctx context.Context) error {
	for i, book := range n.books {
		if err := book.Start(ctx); err != nil {
			for _, started := range n.books[:i] {
				_ = started.Stop()
				started.Wait()
			}
			return fmt.Errorf("starting %v: %w", book, err)
		}
	}

	if n.config.Instrumentation.Prometheus {
		if err := n.startPrometheusServer(); err != nil {
			for _, book := range n.books {
				_ = book.Stop()
				book.Wait()
			}
			return err
		}
	}

	n.logger.Info("started node", "zones", n.Zones())
	return nil
}

// OnStop stops the metrics server and the address books. Every book saves
// its peer file one last time; failures are available from Err.
func (n *Node) OnStop() {
	var errs error

	if n.prometheusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.prometheusSrv.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stopping prometheus server: %w", err))
		}
		cancel()
	}

	for _, book := range n.books {
		// a book may already be stopping because the start context ended
		if err := book.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			errs = multierr.Append(errs, err)
		}
		book.Wait()
		errs = multierr.Append(errs, book.Err())
	}

	if errs != nil {
		n.logger.Error("error while stopping node", "err", errs)
	}
	n.stopErr = errs
}

// Err returns the errors that happened while stopping, including failed
// final saves of peer files. It is only meaningful once Wait has returned.
func (n *Node) Err() error {
	select {
	case <-n.Quit():
		return n.stopErr
	default:
		return nil
	}
}

// ClearNet returns the clear-net address book, or nil if the zone is
// disabled.
func (n *Node) ClearNet() *ClearNetBook { return n.clearNet }

// Onion returns the onion address book, or nil if the zone is disabled.
func (n *Node) Onion() *OnionBook { return n.onion }

// ZoneBook returns the address book of the named zone.
func (n *Node) ZoneBook(zone string) (ZoneBook, bool) {
	book, ok := n.byZone[zone]
	return book, ok
}

// Zones returns the names of the enabled zones.
func (n *Node) Zones() []string {
	zones := make([]string, 0, len(n.books))
	for _, z := range []string{netzone.ClearNet{}.Name(), netzone.Onion{}.Name()} {
		if _, ok := n.byZone[z]; ok {
			zones = append(zones, z)
		}
	}
	return zones
}

// MetricsAddr returns the address the metrics server listens on, or nil.
func (n *Node) MetricsAddr() net.Addr { return n.metricsAddr }

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on the configured address.
func (n *Node) startPrometheusServer() error {
	cfg := n.config.Instrumentation

	listener, err := net.Listen("tcp", cfg.PrometheusListenAddr)
	if err != nil {
		return fmt.Errorf("prometheus server: %w", err)
	}
	if cfg.MaxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxOpenConnections)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{MaxRequestsInFlight: cfg.MaxOpenConnections},
		),
	))
	n.prometheusSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	n.metricsAddr = listener.Addr()

	go func() {
		if err := n.prometheusSrv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			// Error starting or closing listener:
			n.logger.Error("prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return nil
}

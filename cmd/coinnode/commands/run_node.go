package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coinnode/coinnode/config"
	"github.com/coinnode/coinnode/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a coinnode node
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	// p2p flags
	cmd.Flags().Bool("p2p.clearnet", conf.P2P.ClearNet, "keep a clear-net address book")
	cmd.Flags().Bool("p2p.onion", conf.P2P.Onion, "keep an onion address book")
	cmd.Flags().Bool("p2p.addr_book_strict", conf.P2P.AddrBookStrict,
		"reject peers that are not publicly routable")

	// address book flags
	cmd.Flags().Int("addr_book.max_white_list_length", conf.AddrBook.MaxWhiteListLength,
		"maximum number of peers we have connected to, per zone")
	cmd.Flags().Int("addr_book.max_gray_list_length", conf.AddrBook.MaxGrayListLength,
		"maximum number of gossiped peers, per zone")
	cmd.Flags().String("addr_book.peer_store_directory", conf.AddrBook.PeerStoreDirectory,
		"directory holding the peer files")
	cmd.Flags().String("addr_book.ban_list_path", conf.AddrBook.BanListPath,
		"file of IPs and subnets to ban at startup")
	cmd.Flags().String("addr_book.onion_ban_list_path", conf.AddrBook.OnionBanListPath,
		"file of onion hosts to ban at startup")
	cmd.Flags().Duration("addr_book.peer_save_period", conf.AddrBook.PeerSavePeriod,
		"time between two saves of the peer files")

	// instrumentation flags
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus,
		"serve Prometheus metrics")
	cmd.Flags().String("instrumentation.prometheus_listen_addr", conf.Instrumentation.PrometheusListenAddr,
		"address to serve Prometheus metrics on")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
func NewRunNodeCmd(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the coinnode node",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(conf)
			if err != nil {
				return err
			}
			if err := config.EnsureRoot(conf.RootDir); err != nil {
				return err
			}

			n, err := node.NewNode(conf, logger, node.DefaultMetricsProvider(conf.Instrumentation))
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			// Stop upon receiving SIGTERM or CTRL-C.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runNode(ctx, n)
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}

// runNode runs n until ctx ends and reports how stopping went.
func runNode(ctx context.Context, n *node.Node) error {
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	n.Wait()
	return n.Err()
}

package commands

import (
	"fmt"
	"io"
	"net/netip"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coinnode/coinnode/config"
	"github.com/coinnode/coinnode/internal/p2p/addrbook"
	"github.com/coinnode/coinnode/internal/p2p/netzone"
)

// MakeShowPeersCommand returns the command that prints the peer files of a
// stopped node.
func MakeShowPeersCommand(conf *config.Config) *cobra.Command {
	var zone string
	cmd := &cobra.Command{
		Use:   "show-peers",
		Short: "Show the peers and bans saved in the peer files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := conf.AddrBook.PeerStoreDir()
			out := cmd.OutOrStdout()

			switch zone {
			case netzone.ClearNet{}.Name():
				snap, err := addrbook.LoadSnapshot[netip.AddrPort, netip.Addr](netzone.ClearNet{}, dir)
				if err != nil {
					return err
				}
				return printSnapshot(out, zone, snap)
			case netzone.Onion{}.Name():
				snap, err := addrbook.LoadSnapshot[netzone.OnionAddr, netzone.OnionHost](netzone.Onion{}, dir)
				if err != nil {
					return err
				}
				return printSnapshot(out, zone, snap)
			default:
				return fmt.Errorf("unknown zone %q", zone)
			}
		},
	}
	cmd.Flags().StringVar(&zone, "zone", netzone.ClearNet{}.Name(), "zone to show (clearnet | onion)")
	return cmd
}

func printSnapshot[A addrbook.Addr, B addrbook.Addr](w io.Writer, zone string, snap addrbook.Snapshot[A, B]) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "zone %s: %d white, %d gray, %d bans\n", zone, len(snap.White), len(snap.Gray), len(snap.Bans))

	for _, list := range []struct {
		name  string
		peers []addrbook.PeerEntry[A]
	}{
		{"white", snap.White},
		{"gray", snap.Gray},
	} {
		peers := append([]addrbook.PeerEntry[A](nil), list.peers...)
		sort.Slice(peers, func(i, j int) bool {
			return peers[i].LastSeen.After(peers[j].LastSeen)
		})
		for _, p := range peers {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", list.name, p.Addr, p.ID, p.LastSeen.UTC().Format(time.RFC3339))
		}
	}

	bans := append([]addrbook.BanEntry[B](nil), snap.Bans...)
	sort.Slice(bans, func(i, j int) bool { return bans[i].ID.String() < bans[j].ID.String() })
	for _, b := range bans {
		fmt.Fprintf(tw, "ban\t%s\t\tuntil %s\n", b.ID, b.Expiry.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

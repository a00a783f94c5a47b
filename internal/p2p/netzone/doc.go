// Package netzone implements the network zones a node can reach peers in.
//
// Every zone supplies the address type its peers are known by and the
// operations the address book needs from it: canonicalization, ban id
// derivation, an eligibility filter and ban-list parsing. Zones never share
// address types, which keeps the address book of one zone from ever holding
// an address of another.
package netzone

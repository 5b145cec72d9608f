// Command correlator is the offline batch processor: given a captured
// SQLite database of BTLE advertisement fingerprints, it reconstructs
// same-device identity across MAC randomisation, groups fingerprints into
// connected components, extracts movement paths, and prints the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fieldmesh/beacon/internal/codec"
	"github.com/fieldmesh/beacon/internal/correlate"
	"github.com/fieldmesh/beacon/internal/dbread"
)

// maxDistanceKM is the default same-device distance threshold (§4.8).
const maxDistanceKM = correlate.DefaultMaxDistanceKM

// macList collects repeated -m/--mac flag occurrences.
type macList []string

func (m *macList) String() string { return strings.Join(*m, ",") }
func (m *macList) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("correlator", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var all bool
	fs.BoolVar(&all, "a", false, "print, for every stored MAC address, the hop chain starting at its earliest fingerprint")
	fs.BoolVar(&all, "all", false, "alias of -a")

	var macs macList
	fs.Var(&macs, "m", "restrict to the named MAC address (repeatable)")
	fs.Var(&macs, "mac", "alias of -m")

	var correlation bool
	fs.BoolVar(&correlation, "c", false, "print the resolved hop chain for the selected MACs")
	fs.BoolVar(&correlation, "correlation", false, "alias of -c")

	var path bool
	fs.BoolVar(&path, "p", false, "print the head-to-tail path for the selected MACs")
	fs.BoolVar(&path, "path", false, "alias of -p")

	var image bool
	fs.BoolVar(&image, "i", false, "accepted for CLI compatibility; image rendering is not implemented")
	fs.BoolVar(&image, "image", false, "alias of -i")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	dbFile := "bluetooth.db"
	if fs.NArg() > 0 {
		dbFile = fs.Arg(0)
	}

	if (correlation || path || image) && len(macs) == 0 {
		fmt.Fprintln(stderr, "beacon-correlator: -c, -p, and -i require at least one -m/--mac")
		return 2
	}

	db, err := dbread.Open(dbFile)
	if err != nil {
		fmt.Fprintf(stderr, "beacon-correlator: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx := context.Background()
	locate := db.AntennaLocator()

	switch {
	case all:
		return printAll(ctx, db, locate, stdout, stderr)
	case len(macs) > 0:
		return printSelected(ctx, db, locate, macs, correlation, path, image, stdout, stderr)
	default:
		fmt.Fprintln(stderr, "beacon-correlator: nothing to do; pass -a/--all or -m/--mac")
		return 2
	}
}

// printAll resolves hop chains for every distinct MAC address in the
// database and, per MAC, prints the one chain that starts at the MAC's
// earliest fingerprint (FindEnd's head). Fingerprints not on that chain,
// such as those in other components of the same MAC, are not printed, and
// successor links are not followed.
func printAll(ctx context.Context, db *dbread.DB, locate correlate.AntennaLocator, stdout, stderr *os.File) int {
	rows, err := db.MacAddresses(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "beacon-correlator: %v\n", err)
		return 1
	}

	arena, byMAC := buildArena(rows)

	allIDs := make([]int, 0, len(rows))
	for _, r := range rows {
		allIDs = append(allIDs, int(r.ID))
	}

	if err := correlate.LinkSuccessors(arena, randomizedIDs(arena, allIDs), locate); err != nil {
		fmt.Fprintf(stderr, "beacon-correlator: link successors: %v\n", err)
		return 1
	}

	macsInOrder := sortedMACKeys(byMAC)
	for _, mac := range macsInOrder {
		ids := byMAC[mac]
		if err := correlate.ResolveHops(arena, ids, locate, maxDistanceKM); err != nil {
			fmt.Fprintf(stderr, "beacon-correlator: resolve hops for %s: %v\n", mac, err)
			return 1
		}
	}

	for _, mac := range macsInOrder {
		head := chainHead(arena, byMAC[mac])
		fmt.Fprintf(stdout, "%s (head=%d)\n", mac, head)
		printChain(stdout, arena, head)
	}
	return 0
}

// printSelected runs the requested reporting modes against the fingerprints
// belonging to the named MAC addresses only.
func printSelected(ctx context.Context, db *dbread.DB, locate correlate.AntennaLocator, macs []string, correlation, path, image bool, stdout, stderr *os.File) int {
	rows, err := db.MacAddressesByMAC(ctx, macs)
	if err != nil {
		fmt.Fprintf(stderr, "beacon-correlator: %v\n", err)
		return 1
	}
	if len(rows) == 0 {
		fmt.Fprintf(stderr, "beacon-correlator: no fingerprints found for: %s\n", strings.Join(macs, ", "))
		return 1
	}

	arena, byMAC := buildArena(rows)

	allIDs := make([]int, 0, len(rows))
	for _, r := range rows {
		allIDs = append(allIDs, int(r.ID))
	}
	if err := correlate.LinkSuccessors(arena, randomizedIDs(arena, allIDs), locate); err != nil {
		fmt.Fprintf(stderr, "beacon-correlator: link successors: %v\n", err)
		return 1
	}

	for _, mac := range macs {
		ids := byMAC[mac]
		if len(ids) == 0 {
			fmt.Fprintf(stderr, "beacon-correlator: no fingerprints for %s\n", mac)
			continue
		}
		if err := correlate.ResolveHops(arena, ids, locate, maxDistanceKM); err != nil {
			fmt.Fprintf(stderr, "beacon-correlator: resolve hops for %s: %v\n", mac, err)
			return 1
		}
	}

	if image {
		fmt.Fprintln(stdout, "beacon-correlator: -i/--image accepted, map rendering is not implemented")
	}

	if correlation {
		for _, mac := range macs {
			head := chainHead(arena, byMAC[mac])
			fmt.Fprintf(stdout, "%s (head=%d)\n", mac, head)
			printChain(stdout, arena, head)
		}
	}

	if path {
		for _, mac := range macs {
			printPath(stdout, arena, byMAC[mac], locate, mac)
		}
	}

	if !correlation && !path && !image {
		for _, mac := range macs {
			fmt.Fprintf(stdout, "%s: %d fingerprint(s)\n", mac, len(byMAC[mac]))
		}
	}

	return 0
}

func buildArena(rows []dbread.MacAddressRow) (map[int]*correlate.Fingerprint, map[string][]int) {
	arena := make(map[int]*correlate.Fingerprint, len(rows))
	byMAC := make(map[string][]int)
	for _, r := range rows {
		fp := r.ToFingerprint()
		arena[int(r.ID)] = fp
		byMAC[r.MacAddress] = append(byMAC[r.MacAddress], int(r.ID))
	}
	return arena, byMAC
}

func randomizedIDs(arena map[int]*correlate.Fingerprint, ids []int) []int {
	var out []int
	for _, id := range ids {
		if arena[id].Random {
			out = append(out, id)
		}
	}
	return out
}

func sortedMACKeys(byMAC map[string][]int) []string {
	keys := make([]string, 0, len(byMAC))
	for k := range byMAC {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// chainHead walks AntennaHop backwards is not possible (the chain only
// points forward), so the head is simply the fingerprint FindEnd would pick
// for End Head among ids; ResolveHops has already linked it forward via
// AntennaHop.
func chainHead(arena map[int]*correlate.Fingerprint, ids []int) int {
	if len(ids) == 0 {
		return 0
	}
	head, err := correlate.FindEnd(arena, ids, correlate.EndHead)
	if err != nil {
		return ids[0]
	}
	return head
}

func printChain(stdout *os.File, arena map[int]*correlate.Fingerprint, head int) {
	id := head
	for {
		fp, ok := arena[id]
		if !ok {
			return
		}
		fmt.Fprintf(stdout, "  id=%d mac=%s antenna=%d first_seen=%d last_seen=%d hopped=%v\n",
			fp.ID, codec.MacString(fp.MAC), fp.AntennaID, fp.FirstSeen, fp.LastSeen, fp.IsHopped)
		if fp.AntennaHop < 0 {
			return
		}
		id = fp.AntennaHop
	}
}

func printPath(stdout *os.File, arena map[int]*correlate.Fingerprint, ids []int, locate correlate.AntennaLocator, mac string) {
	if len(ids) == 0 {
		fmt.Fprintf(stdout, "%s: no fingerprints, no path\n", mac)
		return
	}
	g, components, err := correlate.GetComponents(arena, ids, locate, maxDistanceKM)
	if err != nil {
		fmt.Fprintf(stdout, "%s: path extraction failed: %v\n", mac, err)
		return
	}
	paths, _, err := correlate.GetPaths(arena, g, components)
	if err != nil {
		fmt.Fprintf(stdout, "%s: path extraction failed: %v\n", mac, err)
		return
	}

	if len(paths) == 0 {
		fmt.Fprintf(stdout, "%s: single-fingerprint component(s), no path to extract\n", mac)
		return
	}

	for i, p := range paths {
		fmt.Fprintf(stdout, "%s path %d:\n", mac, i)
		for _, id := range p {
			fp := arena[id]
			pt, err := locate(fp.AntennaID, fp.LastSeen)
			if err != nil {
				fmt.Fprintf(stdout, "  id=%d antenna=%d location=unknown\n", fp.ID, fp.AntennaID)
				continue
			}
			fmt.Fprintf(stdout, "  id=%d antenna=%d lat=%.6f lng=%.6f t=%d\n", fp.ID, fp.AntennaID, pt.Lat, pt.Lng, fp.LastSeen)
		}
	}
}

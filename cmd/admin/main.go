package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/clock"
	"asteroidworks.ai/internal/sim/contracts"
	"asteroidworks.ai/internal/sim/rng"
	"asteroidworks.ai/internal/sim/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "gen":
			genCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "boards")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		latest := snapshot.Latest(filepath.Join(base, e.Name(), "snapshots"))
		if latest == "" {
			fmt.Println(e.Name())
			continue
		}
		fmt.Printf("%s\t%s\n", e.Name(), filepath.Base(latest))
	}
}

// inspectCmd prints the contracts held in a snapshot the way players see them.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	boardID := fs.String("board", "board_1", "board id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = snapshot.Latest(filepath.Join(*dataDir, "boards", *boardID, "snapshots"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	tiles, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	if err := writeInspect(os.Stdout, snap, tiles); err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
}

func writeInspect(w io.Writer, snap snapshot.SnapshotV1, tiles *catalogs.TileCatalog) error {
	h := snap.Header
	fmt.Fprintf(w, "snapshot v%d board=%s tick=%d seed=%d contracts=%d next=C%d\n",
		h.Version, h.BoardID, h.Tick, h.Seed, len(snap.Contracts), h.NextContract)
	if h.CatalogDigest != "" && h.CatalogDigest != tiles.Digest {
		fmt.Fprintln(w, "warning: tile catalog differs from the one the snapshot was written with")
	}
	currency := h.Currency
	if currency == "" {
		currency = "$"
	}
	codec := contracts.Codec{Tiles: tiles}
	for _, rec := range snap.Contracts {
		c, err := codec.Decode(rec.Record)
		if err != nil {
			return fmt.Errorf("%s: %w", rec.ID, err)
		}
		fmt.Fprintf(w, "\n%s [%s] created=%d time_left=%s\n", rec.ID, rec.Phase, rec.CreatedTick,
			contracts.FormatTimeLeft(c.TimeLeft(h.Tick)))
		if c.LowBidder != contracts.NoBidder {
			fmt.Fprintf(w, "  low bidder %s, reserve %s%d\n", c.LowBidder, currency, c.ReservedBid)
		}
		for _, line := range strings.Split(c.Describe(currency), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	return nil
}

// genCmd prints a sample of contracts a fresh board with the given seed would
// offer.
func genCmd(args []string) {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	seed := fs.Uint64("seed", 1337, "generator seed")
	n := fs.Int("n", 5, "number of contracts")
	size := fs.String("size", "", "fixed size (optional)")
	typ := fs.String("type", "", "fixed type (optional)")
	configDir := fs.String("configs", "./configs", "config directory")
	showRecord := fs.Bool("records", false, "print the save record of each contract")
	_ = fs.Parse(args)

	tiles, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	gen := &contracts.Generator{Tiles: tiles, Tune: tune.Contracts, Rand: rng.New(*seed), Clock: clock.NewManual(0)}
	if err := writeGen(os.Stdout, gen, contracts.Codec{Tiles: tiles}, *n, *size, *typ, tune.Currency, *showRecord); err != nil {
		fmt.Fprintln(os.Stderr, "gen:", err)
		os.Exit(2)
	}
}

func writeGen(w io.Writer, gen *contracts.Generator, codec contracts.Codec, n int, size, typ, currency string, records bool) error {
	var (
		fixedSize contracts.Size
		fixedType contracts.Type
		err       error
	)
	if size != "" {
		if fixedSize, err = contracts.ParseSize(size); err != nil {
			return err
		}
	}
	if typ != "" {
		if fixedType, err = contracts.ParseType(typ); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		var c *contracts.Contract
		if size == "" && typ == "" {
			c, err = gen.Random()
		} else {
			c, err = gen.Generate(pickSize(gen, fixedSize, size != ""), pickType(gen, fixedType, typ != ""))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "#%d\n%s\n", i+1, c.Describe(currency))
		if records {
			line, err := codec.Encode(c)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "record: %s\n", line)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func pickSize(gen *contracts.Generator, fixed contracts.Size, ok bool) contracts.Size {
	if ok {
		return fixed
	}
	return contracts.Sizes[gen.Rand.Pick(len(contracts.Sizes))]
}

func pickType(gen *contracts.Generator, fixed contracts.Type, ok bool) contracts.Type {
	if ok {
		return fixed
	}
	return contracts.Types[gen.Rand.Pick(len(contracts.Types))]
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"eyes.sim/internal/persistence/archive"
	"eyes.sim/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "control":
			controlCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	if err := listSnapshots(os.Stdout, filepath.Join(*dataDir, "snapshots")); err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
}

// listSnapshots prints one line per snapshot file, newest tick first,
// using only the uncompressed header.
func listSnapshots(out io.Writer, dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type row struct {
		name string
		hdr  snapshot.Header
		size int64
	}
	var rows []row
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		hdr, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintf(out, "%s\tunreadable: %v\n", e.Name(), err)
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		rows = append(rows, row{name: e.Name(), hdr: hdr, size: size})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].hdr.Tick > rows[j].hdr.Tick })
	for _, r := range rows {
		final := ""
		if r.hdr.Final {
			final = "\tfinal"
		}
		fmt.Fprintf(out, "%s\trun=%s\ttick=%s\t%s%s\n", r.name, r.hdr.RunID, humanize.Comma(int64(r.hdr.Tick)), humanize.Bytes(uint64(r.size)), final)
	}
	return nil
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	if err := listArchives(os.Stdout, *dataDir); err != nil {
		fmt.Fprintln(os.Stderr, "archives:", err)
		os.Exit(1)
	}
}

func listArchives(out io.Writer, dataDir string) error {
	ents, err := os.ReadDir(filepath.Join(dataDir, "archives"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		meta, err := archive.ReadMeta(filepath.Join(dataDir, "archives", e.Name()))
		if err != nil {
			fmt.Fprintf(out, "%s\tunreadable: %v\n", e.Name(), err)
			continue
		}
		printJSON(out, meta)
	}
	return nil
}

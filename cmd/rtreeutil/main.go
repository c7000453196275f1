// Command rtreeutil is a small command-line front end over the rtreenode
// and rtreedepth introspection helpers (spec.md §6), plus a bolt-backed
// "create" subcommand for scripting a fresh index without a host process.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rtreeindex/rtree"
	"github.com/rtreeindex/rtree/storebolt"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "node":
		runNode(os.Args[2:])
	case "depth":
		runDepth(os.Args[2:])
	case "create":
		runCreate(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: rtreeutil <node|depth|create> [flags]")
}

func runNode(args []string) {
	fs := flag.NewFlagSet("node", flag.ExitOnError)
	ndim := fs.Int("ndim", 2, "number of dimensions")
	hexBlob := fs.String("hex", "", "hex-encoded raw node page")
	fs.Parse(args)

	if *hexBlob == "" {
		log.Fatal("rtreeutil node: -hex is required")
	}
	blob, err := hex.DecodeString(*hexBlob)
	if err != nil {
		log.Fatalf("rtreeutil node: decoding -hex: %v", err)
	}
	out, err := rtree.RtreeNode(*ndim, blob)
	if err != nil {
		log.Fatalf("rtreeutil node: %v", err)
	}
	fmt.Println(out)
}

func runDepth(args []string) {
	fs := flag.NewFlagSet("depth", flag.ExitOnError)
	hexBlob := fs.String("hex", "", "hex-encoded raw root page")
	fs.Parse(args)

	if *hexBlob == "" {
		log.Fatal("rtreeutil depth: -hex is required")
	}
	blob, err := hex.DecodeString(*hexBlob)
	if err != nil {
		log.Fatalf("rtreeutil depth: decoding -hex: %v", err)
	}
	depth, err := rtree.RtreeDepth(blob)
	if err != nil {
		log.Fatalf("rtreeutil depth: %v", err)
	}
	fmt.Println(depth)
}

func runCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	path := fs.String("path", "", "bolt file path to create")
	name := fs.String("name", "idx", "index name")
	dims := fs.Int("dims", 2, "number of dimensions")
	intCoords := fs.Bool("int32", false, "use 32-bit integer coordinates instead of float32")
	fs.Parse(args)

	if *path == "" {
		log.Fatal("rtreeutil create: -path is required")
	}

	store, err := storebolt.Open(*path, *name)
	if err != nil {
		log.Fatalf("rtreeutil create: opening store: %v", err)
	}

	ct := rtree.CoordFloat32
	if *intCoords {
		ct = rtree.CoordInt32
	}

	idx, err := rtree.Create(rtree.Options{
		Name:      *name,
		Dims:      *dims,
		CoordType: ct,
		Store:     store,
	})
	if err != nil {
		log.Fatalf("rtreeutil create: %v", err)
	}
	defer idx.Close()

	fmt.Printf("created %s\n", idx)
}

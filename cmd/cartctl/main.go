// cartctl is a command-line smoke tool for exercising a cartridge
// container directly, without a network surface.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kestrelfs/cartridge"
	"github.com/kestrelfs/cartridge/internal/cartlog"
)

var (
	dbPath = flag.String("db", "cartridge.db", "container file path")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	logger := cartlog.NewLogger(cartlog.Config{Level: "info", Pretty: true})
	opts := cartridge.Options{Logger: logger}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "create":
		err = runCreate(rest, opts)
	case "write":
		err = runWrite(rest, opts)
	case "read":
		err = runRead(rest, opts)
	case "delete":
		err = runDelete(rest, opts)
	case "list":
		err = runList(rest, opts)
	case "stat":
		err = runStat(rest, opts)
	default:
		fmt.Fprintf(os.Stderr, "cartctl: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("cartctl %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `cartctl - inspect and manipulate a cartridge container

Usage:
  cartctl -db PATH create SLUG TITLE
  cartctl -db PATH write PATH < content
  cartctl -db PATH read PATH
  cartctl -db PATH delete PATH
  cartctl -db PATH list DIR
  cartctl -db PATH stat PATH

`)
	flag.PrintDefaults()
}

func runCreate(args []string, opts cartridge.Options) error {
	if len(args) < 2 {
		return fmt.Errorf("create requires SLUG and TITLE")
	}
	c, err := cartridge.Create(*dbPath, args[0], args[1], opts)
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Printf("created %s (slug=%s title=%q)\n", *dbPath, args[0], args[1])
	return nil
}

func runWrite(args []string, opts cartridge.Options) error {
	if len(args) < 1 {
		return fmt.Errorf("write requires PATH")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	c, err := cartridge.Open(*dbPath, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Write(args[0], data); err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), args[0])
	return nil
}

func runRead(args []string, opts cartridge.Options) error {
	if len(args) < 1 {
		return fmt.Errorf("read requires PATH")
	}
	c, err := cartridge.Open(*dbPath, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	data, err := c.Read(args[0])
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runDelete(args []string, opts cartridge.Options) error {
	if len(args) < 1 {
		return fmt.Errorf("delete requires PATH")
	}
	c, err := cartridge.Open(*dbPath, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func runList(args []string, opts cartridge.Options) error {
	dir := "/"
	if len(args) > 0 {
		dir = args[0]
	}
	c, err := cartridge.Open(*dbPath, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	entries, err := c.ListEntries(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Printf("%-4s %10d  %s\n", kind, e.Size, e.Path)
	}
	return nil
}

func runStat(args []string, opts cartridge.Options) error {
	if len(args) < 1 {
		return fmt.Errorf("stat requires PATH")
	}
	c, err := cartridge.Open(*dbPath, opts)
	if err != nil {
		return err
	}
	defer c.Close()
	meta, err := c.Metadata(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("type:         %s\n", meta.FileType)
	fmt.Printf("size:         %d\n", meta.Size)
	fmt.Printf("blocks:       %d\n", len(meta.Blocks))
	fmt.Printf("created_at:   %d\n", meta.CreatedAt)
	fmt.Printf("modified_at:  %d\n", meta.ModifiedAt)
	fmt.Printf("permissions:  %o\n", meta.Permissions)
	if meta.ContentType != "" {
		fmt.Printf("content_type: %s\n", meta.ContentType)
	}
	if len(meta.ContentHash) > 0 {
		fmt.Printf("content_hash: %x\n", meta.ContentHash)
	}

	stats := c.Stats()
	fmt.Printf("container total_blocks=%d free_blocks=%d fragmentation=%.3f files=%d dirs=%d\n",
		stats.TotalBlocks, stats.FreeBlocks, stats.FragmentationScore, stats.FileCount, stats.DirectoryCount)
	return nil
}

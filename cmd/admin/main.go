// Command admin inspects a colony data directory and a running server: it
// lists engines, queries the sqlite index and fetches the admin state.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func main() {
	var err error
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			err = dbCmd(os.Args[2:], os.Stdout)
		case "state":
			err = stateCmd(os.Args[2:], os.Stdout)
		default:
			err = listCmd(os.Args[1:], os.Stdout)
		}
	} else {
		err = listCmd(nil, os.Stdout)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := os.ReadDir(filepath.Join(*dataDir, "engines"))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintln(out, e.Name())
		}
	}
	return nil
}

func printJSON(out io.Writer, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintln(out, string(b))
}

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/litani-build/litani/internal/capabilities"
)

// cmdPrintCapabilities lists the feature tags this build supports: a
// machine-readable JSON array by default, or an aligned tag:description
// table with -human-readable, per spec.md §6.
func cmdPrintCapabilities(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("print-capabilities", flag.ExitOnError)
	humanReadable := fs.Bool("human-readable", false, "emit an aligned tag:description table instead of JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *humanReadable {
		fmt.Print(capabilities.Table())
		return nil
	}
	out, err := capabilities.JSON()
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// Command strategy-lint validates a strategy file and prints the resulting
// table, or the problems that prevent it from loading.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mohammed-shakir/route-cache/internal/strategy"
	"github.com/mohammed-shakir/route-cache/internal/strategy/loader"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("strategy-lint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	quiet := fs.Bool("q", false, "only report problems")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path := fs.Arg(0) // empty means the embedded default table

	tbl, err := loader.Table(path)
	if err != nil {
		var ce *strategy.ConfigurationError
		if errors.As(err, &ce) {
			for _, p := range ce.Problems {
				fmt.Fprintln(stderr, p.Error())
			}
			return 1
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *quiet {
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tTHRESHOLD\tMODE\tWINDOW")
	for _, k := range tbl.Keys() {
		s, _ := tbl.Lookup(k)
		for _, b := range s.Buckets() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", k.String(), s.Name(), b.Threshold.String(), b.Mode, b.RecentRoutes())
		}
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "%d strategies OK\n", tbl.Len())
	return 0
}

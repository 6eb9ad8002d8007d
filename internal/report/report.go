// Package report renders alignment results for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cwbudde/crabalign/internal/align"
	"github.com/cwbudde/crabalign/internal/input"
)

// Options controls text output
type Options struct {
	Verbose bool // Print every crab's move
}

// Write prints the best position and total fuel, plus the per-crab moves when verbose.
func Write(w io.Writer, sol *align.Solution, opts Options) error {
	if opts.Verbose {
		for i, origin := range sol.Positions {
			if _, err := fmt.Fprintf(w, "Move from %d to %d: %d fuel\n", origin, sol.Target, sol.Costs[i]); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "Best position: %d\nTotal fuel: %d\n", sol.Target, sol.Total)
	return err
}

// WriteWarnings prints one line per skipped token.
func WriteWarnings(w io.Writer, warnings []*input.ParseError) error {
	for _, pe := range warnings {
		if _, err := fmt.Fprintf(w, "warning: skipping %q: %v\n", pe.Token, pe.Err); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON encodes the solution as indented JSON.
func WriteJSON(w io.Writer, sol *align.Solution) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sol)
}

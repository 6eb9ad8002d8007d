package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/crabalign/internal/align"
	"github.com/cwbudde/crabalign/internal/input"
	"github.com/cwbudde/crabalign/internal/opt"
	"github.com/cwbudde/crabalign/internal/report"
	"github.com/cwbudde/crabalign/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	inputFile   string
	interactive bool
	costModel   string
	strategy    string
	verbose     bool
	output      string
	workers     int
	saveResult  bool
	writeTrace  bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Find the cheapest alignment position",
	Long: `Reads crab positions from a file (--file), from the terminal (--interactive)
or uses the built-in sample list, then prints the cheapest target and its total fuel.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := solveOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		return runSolve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), o)
	},
}

func init() {
	solveCmd.Flags().StringVar(&inputFile, "file", "", "File with comma separated positions, optionally wrapped in {}")
	solveCmd.Flags().BoolVar(&interactive, "interactive", false, "Prompt for positions, one per line")
	solveCmd.Flags().StringVar(&costModel, "cost", "linear", "Fuel model: linear or triangular")
	solveCmd.Flags().StringVar(&strategy, "strategy", "scan", "Search strategy: scan, parallel, mayfly")
	solveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every crab's move")
	solveCmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	solveCmd.Flags().IntVar(&workers, "workers", 0, "Goroutines for the parallel strategy (0 = GOMAXPROCS)")
	solveCmd.Flags().BoolVar(&saveResult, "save", false, "Persist the result to the configured store")
	solveCmd.Flags().BoolVar(&writeTrace, "trace", false, "Write every candidate's total as JSONL under the data dir (implies --save)")

	solveCmd.MarkFlagsMutuallyExclusive("file", "interactive")
	rootCmd.AddCommand(solveCmd)
}

// solveOptions is the resolved solve configuration
type solveOptions struct {
	File        string
	Interactive bool
	Model       align.CostModel
	Strategy    align.Strategy
	Verbose     bool
	JSON        bool
	Workers     int
	Save        bool
	Trace       bool
	Optimizer   opt.Optimizer
	Store       store.Store // Used by Save and Trace; nil opens the configured store
	DataDir     string      // Trace output directory
}

// solveOptionsFromFlags merges flags over the loaded config
func solveOptionsFromFlags(cmd *cobra.Command) (solveOptions, error) {
	s := cfg.Solve
	flags := cmd.Flags()
	if flags.Changed("cost") {
		s.CostModel = costModel
	}
	if flags.Changed("strategy") {
		s.Strategy = strategy
	}
	if flags.Changed("verbose") {
		s.Verbose = verbose
	}
	if flags.Changed("output") {
		s.Output = output
	}
	if flags.Changed("workers") {
		s.Workers = workers
	}

	model, err := align.ParseCostModel(s.CostModel)
	if err != nil {
		return solveOptions{}, err
	}
	strat, err := align.ParseStrategy(s.Strategy)
	if err != nil {
		return solveOptions{}, err
	}
	if s.Output != "text" && s.Output != "json" {
		return solveOptions{}, fmt.Errorf("unknown output format %q (want text or json)", s.Output)
	}

	return solveOptions{
		File:        inputFile,
		Interactive: interactive,
		Model:       model,
		Strategy:    strat,
		Verbose:     s.Verbose,
		JSON:        s.Output == "json",
		Workers:     s.Workers,
		Save:        saveResult,
		Trace:       writeTrace,
		Optimizer:   newOptimizer(),
		DataDir:     cfg.Store.DataDir,
	}, nil
}

// readPositions picks the input source. Parse warnings are returned, not fatal.
func readPositions(ctx context.Context, in io.Reader, prompt io.Writer, o solveOptions) ([]int, []*input.ParseError, error) {
	switch {
	case o.File != "":
		return input.ReadFile(o.File)
	case o.Interactive:
		return input.Collect(ctx, in, prompt, input.MinInteractive)
	default:
		return input.DefaultPositions, nil, nil
	}
}

func runSolve(ctx context.Context, in io.Reader, out, errOut io.Writer, o solveOptions) error {
	positions, warnings, err := readPositions(ctx, in, errOut, o)
	if err != nil {
		return err
	}
	if err := report.WriteWarnings(errOut, warnings); err != nil {
		return err
	}

	slog.Info("Starting alignment", "crabs", len(positions), "cost_model", o.Model.String(), "strategy", string(o.Strategy))

	sol, err := align.Solve(ctx, align.Request{
		Positions: positions,
		Model:     o.Model,
		Strategy:  o.Strategy,
		Workers:   o.Workers,
		Optimizer: o.Optimizer,
	})
	if err != nil {
		return err
	}

	if o.JSON {
		err = report.WriteJSON(out, sol)
	} else {
		err = report.Write(out, sol, report.Options{Verbose: o.Verbose})
	}
	if err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	// A trace is always stored with its result so that results clean and
	// results show can find it by ID
	if !o.Save && !o.Trace {
		return nil
	}
	id := uuid.NewString()

	if err := persist(ctx, o.Store, id, sol); err != nil {
		return err
	}
	fmt.Fprintf(errOut, "Saved result %s\n", id)

	if o.Trace {
		path, err := traceScan(o.DataDir, id, sol)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "Trace written to %s\n", path)
	}
	return nil
}

// traceScan records every candidate's total under <baseDir>/traces
func traceScan(baseDir, id string, sol *align.Solution) (string, error) {
	candidates, err := align.Scan(sol.Positions, sol.Model.Func())
	if err != nil {
		return "", err
	}

	tw, err := store.NewTraceWriter(baseDir, id)
	if err != nil {
		return "", fmt.Errorf("failed to create trace: %w", err)
	}
	if err := tw.WriteScan(candidates, sol.Target); err != nil {
		tw.Close()
		return "", fmt.Errorf("failed to write trace: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("failed to close trace: %w", err)
	}
	return tw.Path(), nil
}

// persist saves sol under id, opening the configured store when st is nil
func persist(ctx context.Context, st store.Store, id string, sol *align.Solution) error {
	if st == nil {
		opened, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer opened.Close()
		st = opened
	}

	if err := st.SaveResult(ctx, store.NewRecord(id, sol)); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	slog.Info("Saved result", "id", id, "backend", cfg.Store.Backend)
	return nil
}

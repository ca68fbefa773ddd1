package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/envelope-engine/budget"
	"github.com/warp/envelope-engine/factory"
	"github.com/warp/envelope-engine/generic"
	"github.com/warp/envelope-engine/store/sqlite"
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one simulation from a JSON input file",
		Long: `Run the capped-refill or slush-fund policy over a JSON input file.

When the file has no "transactions" key, transactions are read from the
ledger in the configured database. The flattened dataset can be written
with --out for a later reconcile.`,
		RunE: runSimulate,
	}

	cmd.Flags().StringP("policy", "p", "", "capped-refill or slush-fund (overrides the file)")
	cmd.Flags().StringP("input", "i", "", "simulation input JSON file")
	cmd.Flags().StringP("out", "o", "", "write the result dataset to this file")
	cmd.Flags().Bool("save", false, "store the run in the database")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	policy, _ := cmd.Flags().GetString("policy")
	input, _ := cmd.Flags().GetString("input")
	out, _ := cmd.Flags().GetString("out")
	save, _ := cmd.Flags().GetBool("save")

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	var sj factory.SimulationJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return fmt.Errorf("%w: %s: %v", generic.ErrInvalidInput, input, err)
	}
	if policy != "" {
		sj.Policy = policy
	}

	in, err := factory.NewInputFactory().FromJSON(sj)
	if err != nil {
		return err
	}
	opts := engineOptions()
	in.StartEmpty = in.StartEmpty || opts.StartEmpty

	var (
		ledger generic.Ledger
		store  *sqlite.Store
	)
	if in.Transactions == nil || save {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store = s
		ledger = budget.NewImportLedger(store, in.Categories)
	}

	planner := budget.NewPlanner(ledger, opts.Calendar, opts.Parallelism, slog.Default())
	result, err := planner.Simulate(ctx, in)
	if err != nil {
		return err
	}

	if save {
		run := budget.NewRun(result)
		if err := store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		slog.Info("Run stored", "run_id", run.ID)
	}

	if out != "" {
		encoded, err := factory.MarshalDataset(result.Dataset)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, encoded, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		slog.Info("Dataset written", "path", out)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(result))
	return nil
}

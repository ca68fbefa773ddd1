package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/envelope-engine/factory"
	"github.com/warp/envelope-engine/generic"
)

// errDatasetsDiffer makes a mismatch exit non-zero.
var errDatasetsDiffer = errors.New("datasets differ")

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a dataset with a reference dataset",
		Long: `Compare a computed dataset with a reference one and report the first
divergence in (location, field, category) order. The computed side is a
dataset file written by "simulate --out" or a stored run.

Exits non-zero when the datasets differ.`,
		RunE: runReconcile,
	}

	cmd.Flags().StringP("input", "i", "", "computed dataset JSON file")
	cmd.Flags().String("run", "", "stored run ID to use as the computed side")
	cmd.Flags().StringP("reference", "r", "", "reference dataset JSON file")
	_ = cmd.MarkFlagRequired("reference")
	cmd.MarkFlagsMutuallyExclusive("input", "run")
	cmd.MarkFlagsOneRequired("input", "run")

	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	input, _ := cmd.Flags().GetString("input")
	runID, _ := cmd.Flags().GetString("run")
	refPath, _ := cmd.Flags().GetString("reference")

	reference, err := readDataset(refPath)
	if err != nil {
		return err
	}

	var computed generic.Dataset
	if runID != "" {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		run, err := store.GetRun(cmd.Context(), runID)
		if err != nil {
			return err
		}
		computed = run.Dataset
	} else if computed, err = readDataset(input); err != nil {
		return err
	}

	diff := generic.Reconcile(computed, reference)
	fmt.Fprintln(cmd.OutOrStdout(), renderDiff(diff))
	if diff != nil {
		return errDatasetsDiffer
	}
	return nil
}

func readDataset(path string) (generic.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	d, err := factory.ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

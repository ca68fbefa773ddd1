package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a transaction file into the ledger",
		Long: `Import transactions from a JSON file into the ledger.

The file holds an array of transactions or {"transactions": [...]}.
Re-importing an overlapping export is safe: rows already present are
skipped by idempotency key.`,
		RunE: runImport,
	}

	cmd.Flags().StringP("file", "f", "", "transaction JSON file")
	cmd.Flags().Bool("quiet", false, "hide the progress bar")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("file")
	quiet, _ := cmd.Flags().GetBool("quiet")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	store, handler, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	txs, err := handler.Factory.ParseTransactions(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var w io.Writer = cmd.ErrOrStderr()
	if quiet {
		w = io.Discard
	}
	bar := newImportBar(len(txs), w)

	res, err := handler.Ledger.Import(ctx, txs, func() {
		if err := bar.Add(1); err != nil {
			slog.Debug("Failed to update progress bar", "error", err)
		}
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	total, err := store.CountTransactions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), FormatSuccess(fmt.Sprintf(
		"Imported %d transactions, skipped %d already present (%d in ledger)", res.Added, res.Skipped, total)))
	return nil
}

func newImportBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing transactions...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

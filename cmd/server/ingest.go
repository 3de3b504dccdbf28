package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>...",
	Short: "Index local PDF files",
	Long: `Runs each file through the same pipeline as an admin upload: extract, chunk,
embed and store. Files are processed one after another; a failure does not stop the rest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var errs []error
	for _, path := range args {
		doc, err := a.pipeline.IngestFile(ctx, path)
		if err != nil {
			cmd.PrintErrf("%s: %v\n", path, err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		cmd.Printf("%s: document %d is %s\n", path, doc.ID, doc.Status)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d files failed: %w", len(errs), len(args), errors.Join(errs...))
	}
	return nil
}

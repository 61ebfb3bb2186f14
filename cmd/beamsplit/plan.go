package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/config"
	"github.com/bamsammich/beamsplit/internal/stats"
	"github.com/bamsammich/beamsplit/internal/ui"
)

func newPlanCmd(gf *globalFlags) *cobra.Command {
	var copyTool string
	cmd := &cobra.Command{
		Use:   "plan [profile...]",
		Short: "Partition profiles into chunks and print them without copying",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, settings, err := loadConfig(gf)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("copy-tool") {
				settings.CopyTool = copyTool
			}
			profiles, err := cfg.Select(args)
			if err != nil {
				return usageError(err)
			}
			runner, err := newRunner(settings, slog.Default(), nil, stats.NewCollector())
			if err != nil {
				return usageError(err)
			}

			failed := 0
			for _, p := range profiles {
				chunks, err := runner.Plan(cmd.Context(), p)
				if err != nil {
					slog.Error("cannot plan profile", "profile", p.Name, "error", err)
					failed++
					continue
				}
				printPlan(cmd.OutOrStdout(), p, chunks)
			}
			if failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&copyTool, "copy-tool", config.DefaultCopyTool, "copy program used to list the source")
	return cmd
}

// printPlan writes one table per profile followed by its totals.
func printPlan(w io.Writer, p config.Profile, chunks []*chunk.Chunk) {
	fmt.Fprintf(w, "profile %s: %s -> %s\n", p.Name, p.Source, p.Destination)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tFILES\tKIND\tSOURCE\tDESTINATION")
	for _, c := range chunks {
		kind := "tree"
		if c.IsFilesOnly {
			kind = "files"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, ui.FormatBytes(c.EstimatedSize), ui.FormatCount(c.EstimatedFiles),
			kind, c.SourcePath, c.DestinationPath)
	}
	_ = tw.Flush() //nolint:errcheck // write errors surface on the underlying writer
	size, files := chunk.Totals(chunks)
	fmt.Fprintf(w, "%d chunks  %s  %s files\n\n", len(chunks), ui.FormatBytes(size), ui.FormatCount(files))
}

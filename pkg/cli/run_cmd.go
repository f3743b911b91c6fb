package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"shoplake/internal/domain"
)

func newRunCmd() *cobra.Command {
	var (
		tables  []string
		date    string
		full    bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the bronze/silver/gold pipeline",
		Long:  "Ingests landed extracts into bronze, cleans them into silver, and rebuilds the gold star schema. By default only files not seen before are ingested; --full reprocesses everything.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			run, err := env.app.Runner.Execute(cmd.Context(), domain.TriggerManual, domain.RunParams{
				Tables:         tables,
				ProcessingDate: date,
				Bookmark:       !full,
				Workers:        workers,
			})
			if err != nil {
				return err
			}

			fmt.Printf("run %s %s\n", run.ID, run.Status)
			for _, stage := range run.Stages {
				fmt.Printf("  %-10s %s", stage.Stage, stage.Status)
				if stage.Error != "" {
					fmt.Printf("  %s", stage.Error)
				}
				fmt.Println()
				for _, report := range stage.Reports {
					if report.Skipped {
						continue
					}
					fmt.Printf("    %-20s in=%d out=%d\n", report.Table, report.RecordsIn, report.RecordsOut)
				}
			}

			if run.Status == domain.RunFailed {
				return fmt.Errorf("run failed: %s", run.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tables, "tables", nil, "tables to process (default: all)")
	cmd.Flags().StringVar(&date, "date", "", "processing date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&full, "full", false, "ignore bookmarks and reprocess all landed files")
	cmd.Flags().IntVar(&workers, "workers", 0, "stage parallelism (default: from config)")

	return cmd
}

package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shoplake/internal/domain"
)

func newQueryCmd() *cobra.Command {
	var sqlText string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a read-only SQL query over the lake views",
		Long:  "Executes a SELECT over the registered lake views (bronze_*, silver_*, gold_*) and prints the result as CSV. Reads SQL from --sql or stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sqlText == "" {
				stat, _ := os.Stdin.Stat()
				if (stat.Mode() & os.ModeCharDevice) == 0 {
					data, err := io.ReadAll(os.Stdin)
					if err != nil {
						return fmt.Errorf("read stdin: %w", err)
					}
					sqlText = strings.TrimSpace(string(data))
				}
			}
			if sqlText == "" {
				return fmt.Errorf("provide SQL via --sql or a stdin pipe")
			}

			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.app.Warehouse.RefreshViews(cmd.Context()); err != nil {
				return fmt.Errorf("refresh views: %w", err)
			}
			result, err := env.app.Warehouse.Query(cmd.Context(), sqlText)
			if err != nil {
				return err
			}

			w := csv.NewWriter(os.Stdout)
			if err := w.Write(result.Columns); err != nil {
				return err
			}
			record := make([]string, len(result.Columns))
			for _, row := range result.Rows {
				for i, cell := range row {
					if cell == nil {
						record[i] = ""
						continue
					}
					record[i] = domain.FormatValue(cell)
				}
				if err := w.Write(record); err != nil {
					return err
				}
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return err
			}
			if result.Truncated {
				fmt.Fprintln(os.Stderr, "result truncated")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sqlText, "sql", "", "SQL to execute")

	return cmd
}

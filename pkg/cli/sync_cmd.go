package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload the local lake to the configured object store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			if env.app.Syncer == nil {
				return fmt.Errorf("no object store configured; set the S3, GCS, or Azure environment variables")
			}

			uploaded, err := env.app.Syncer.Sync(cmd.Context(), env.cfg.LakeRoot, prefix)
			if err != nil {
				return err
			}
			fmt.Printf("uploaded %d files\n", uploaded)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "lake", "key prefix in the object store")

	return cmd
}

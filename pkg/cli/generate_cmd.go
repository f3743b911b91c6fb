package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"shoplake/internal/config"
	"shoplake/internal/datagen"
)

func newGenerateCmd() *cobra.Command {
	var (
		output     string
		customers  int
		products   int
		orders     int
		seed       int64
		defectRate float64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate seeded sample extracts into the landing zone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				cfg, err := config.LoadFromEnv()
				if err != nil {
					return err
				}
				output = cfg.LandingDir
			}

			genCfg := datagen.DefaultConfig()
			genCfg.Seed = seed
			genCfg.Customers = customers
			genCfg.Products = products
			genCfg.Orders = orders
			genCfg.DefectRate = defectRate

			ds := datagen.New(genCfg).Generate()
			if err := ds.WriteCSV(output); err != nil {
				return err
			}

			fmt.Printf("wrote %d customers, %d products, %d orders, %d order items to %s\n",
				len(ds.Customers), len(ds.Products), len(ds.Orders), len(ds.OrderItems), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default: the configured landing dir)")
	cmd.Flags().IntVar(&customers, "customers", 1000, "number of customers")
	cmd.Flags().IntVar(&products, "products", 200, "number of products")
	cmd.Flags().IntVar(&orders, "orders", 5000, "number of orders")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().Float64Var(&defectRate, "defect-rate", 0.02, "per-row probability of an injected quality defect")

	return cmd
}

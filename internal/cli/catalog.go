package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/vitabot/internal/catalog"
)

type catalogOptions struct {
	file   string
	asYAML bool
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(_ *RootOptions) *cobra.Command {
	opts := &catalogOptions{}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and print the symptom and plan catalog",
		Long: `Load the catalog from --file, CATALOG_PATH or the embedded default,
validate it and print a summary. Exits non-zero if the catalog is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.file
			if path == "" {
				path = os.Getenv("CATALOG_PATH")
			}

			c, err := catalog.Load(path)
			if err != nil {
				return err
			}

			if opts.asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(c); err != nil {
					return fmt.Errorf("failed to encode catalog: %w", err)
				}
				return enc.Close()
			}
			printCatalog(cmd.OutOrStdout(), c)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "catalog YAML file (default: CATALOG_PATH or embedded)")
	cmd.Flags().BoolVar(&opts.asYAML, "yaml", false, "print the full catalog as YAML")

	return cmd
}

func printCatalog(w io.Writer, c *catalog.Catalog) {
	_, _ = fmt.Fprintf(w, "Catalog OK: %d symptoms, %d plans, currency %s\n\n", c.Len(), len(c.Plans), c.Currency)

	_, _ = fmt.Fprintln(w, "Symptoms:")
	for i, s := range c.Symptoms {
		_, _ = fmt.Fprintf(w, "  %d. %-14s %s\n", i+1, s.ID, s.DeficiencyHint)
	}

	_, _ = fmt.Fprintln(w, "\nPlans:")
	for _, p := range c.Plans {
		_, _ = fmt.Fprintf(w, "  %-6s %-10s %s\n", p.Tag, p.Title, formatUnits(p.PriceUnits, c.Currency))
	}
}

// formatUnits renders an amount in minor units, e.g. 4990 BRL as "49.90 BRL".
func formatUnits(units int, currency string) string {
	return fmt.Sprintf("%d.%02d %s", units/100, units%100, currency)
}

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/ZanzyTHEbar/callbridge/callbridge/backend"
	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		category, _ := cmd.Flags().GetString("category")
		asJSON, _ := cmd.Flags().GetBool("json")

		registry, err := pipeline.NewFactory(cfg, backend.NewService(logger), logger).CreateRegistry()
		if err != nil {
			return err
		}
		defs := registry.All()
		if prefix != "" {
			defs = registry.ByPrefix(prefix)
		}
		var out []*pipeline.ToolDefinition
		for _, d := range defs {
			if category == "" || d.Category == category {
				out = append(out, d)
			}
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCATEGORY\tBINDING\tPARAMS")
		for _, d := range out {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.Name, d.Category, d.Binding, len(d.Params))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().String("prefix", "", "Only tools whose name starts with prefix")
	toolsCmd.Flags().String("category", "", "Only tools in category (billing, telecom, support, system)")
	toolsCmd.Flags().Bool("json", false, "Print definitions as JSON")
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rosterFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load groups and agents from a YAML roster",
	Long: `Upserts every group and agent listed in the roster file. Running the same
file twice is safe; agents already present are updated in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		roster, err := LoadRoster(rosterFile)
		if err != nil {
			return err
		}
		result, err := ApplyRoster(cmd.Context(), rt.Engine.Directory, roster)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "groups: %d, agents created: %d, agents updated: %d\n",
			result.Groups, result.Created, result.Updated)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&rosterFile, "file", "f", "roster.yaml", "roster file path")
}
